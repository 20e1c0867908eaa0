package rpc

import "context"

// Call is the future returned by SendCommandAsync. It completes once, with
// the correlated response or with the error that ended the wait.
type Call struct {
	Request *Request

	done chan struct{}
	resp *Response
	err  error
}

func newCall(req *Request) *Call {
	return &Call{Request: req, done: make(chan struct{})}
}

// complete is the call's CompleteFunc; callers guarantee a single invocation.
func (c *Call) complete(resp *Response, err error) {
	c.resp, c.err = resp, err
	close(c.done)
}

// Done is closed when the call completes.
func (c *Call) Done() <-chan struct{} { return c.done }

// Result blocks until the call completes. A response carrying an error
// object is still returned with a nil error; see Response.Err.
func (c *Call) Result() (*Response, error) {
	<-c.done
	return c.resp, c.err
}

// Wait is Result bounded by ctx. Giving up on ctx does not cancel the call;
// its deadline still applies.
func (c *Call) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-c.done:
		return c.resp, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
