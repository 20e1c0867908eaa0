package rpc

import (
	"context"
	"encoding/json"
)

// Context carries one inbound request to its handler.
type Context struct {
	ctx context.Context
	req *wireRequest
}

// Bind decodes the request params into v.
func (c *Context) Bind(v any) error {
	if len(c.req.Params) == 0 {
		return NewError(CodeInvalidParams, "%s requires params", c.req.Method)
	}
	if err := json.Unmarshal(c.req.Params, v); err != nil {
		return NewError(CodeInvalidParams, "invalid params for %s: %v", c.req.Method, err)
	}
	return nil
}

// Ctx returns the responder's run context.
func (c *Context) Ctx() context.Context { return c.ctx }

func (c *Context) Method() string { return c.req.Method }
func (c *Context) DeviceID() string { return c.req.DeviceID }

// Params returns the raw params, or nil when none were sent.
func (c *Context) Params() json.RawMessage { return c.req.Params }
