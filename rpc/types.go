package rpc

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/juju/errors"
)

// Request is the envelope published on a device's request topic.
type Request struct {
	ID       string `json:"id"`
	DeviceID string `json:"deviceId"`
	Method   string `json:"method"`
	Params   any    `json:"params,omitempty"`
}

// Response is the envelope a device publishes on its response topic.
// The core routes on ID only; it does not enforce that exactly one of
// Result and Error is set.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Err returns the response error object, or nil.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// Decode unmarshals Result into v. A response carrying an error returns it.
func (r *Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 {
		return errors.NotFoundf("result of response %q", r.ID)
	}
	return errors.Trace(json.Unmarshal(r.Result, v))
}

// Validator checks a method name and its parameters before a request is built.
type Validator func(method string, params any) error

// NewRequest validates method and params and returns a request with a fresh id.
// A nil validate skips validation.
func NewRequest(deviceID, method string, params any, validate Validator) (*Request, error) {
	if method == "" {
		return nil, errors.NotValidf("empty rpc method")
	}
	if validate != nil {
		if err := validate(method, params); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return &Request{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Method:   method,
		Params:   params,
	}, nil
}

// DecodeResponse parses a response envelope. Payloads that are not JSON
// objects, have mistyped fields, or carry no id are rejected.
func DecodeResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, errors.Annotate(err, "decode rpc response")
	}
	if resp.ID == "" {
		return nil, errors.NotValidf("rpc response without id")
	}
	return &resp, nil
}

// wireRequest keeps params raw so handlers can bind them to their own types.
type wireRequest struct {
	ID       string          `json:"id"`
	DeviceID string          `json:"deviceId"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params,omitempty"`
}

func decodeRequest(payload []byte) (*wireRequest, error) {
	var req wireRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.Annotate(err, "decode rpc request")
	}
	if req.ID == "" || req.Method == "" {
		return nil, errors.NotValidf("rpc request without id or method")
	}
	return &req, nil
}
