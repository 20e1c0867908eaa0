package rpc

// RequestHandlerFunc serves one RPC method on a device. The returned value
// is JSON encoded into Response.Result; []byte and json.RawMessage holding
// valid JSON are sent as is. Returning an *Error controls the error code.
type RequestHandlerFunc func(c *Context) (any, error)
