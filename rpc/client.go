package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-device-rpc/methods"
	"github.com/mrjvadi/go-device-rpc/topic"
	"github.com/mrjvadi/go-device-rpc/transport"
)

// Client issues RPC requests to devices in one user's namespace and
// correlates their responses.
type Client struct {
	conn     transport.Conn
	userID   string
	deviceID string
	s        *settings
	logger   *zap.Logger

	pending    *Pending
	dispatcher *Dispatcher

	mu        sync.Mutex
	state     ConnectionState
	onConnect []func()

	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// Dial connects to brokerURL and starts the client's event loop and stale
// entry sweep. userID and deviceID select the topic namespace; requests
// without a DeviceID go to deviceID, and responses are read from its
// response topic.
func Dial(d transport.Dialer, brokerURL, userID, deviceID string, options ...Option) (*Client, error) {
	switch {
	case brokerURL == "":
		return nil, errors.NotValidf("empty broker url")
	case userID == "":
		return nil, errors.NotValidf("empty user id")
	case deviceID == "":
		return nil, errors.NotValidf("empty device id")
	}
	s := newSettings(options)
	if !s.qos.Valid() {
		return nil, errors.NotValidf("qos %d", s.qos)
	}
	if s.validate == nil {
		s.validate = methods.Default.Validate
	}

	conn, err := d.Dial(brokerURL, s.transportOptions(userID, deviceID))
	if err != nil {
		return nil, errors.Annotatef(err, "dial %s", brokerURL)
	}

	logger := s.logger.With(zap.String("user", userID), zap.String("device", deviceID))
	pending := NewPending(s.clock, logger, s.staleAfter, s.metrics)
	c := &Client{
		conn:       conn,
		userID:     userID,
		deviceID:   deviceID,
		s:          s,
		logger:     logger,
		pending:    pending,
		dispatcher: NewDispatcher(pending, logger, s.metrics),
		state:      StateConnecting,
		stop:       make(chan struct{}),
	}

	c.wg.Add(2)
	go c.loop()
	go c.sweepLoop()
	return c, nil
}

// OnConnect registers fn to run on every connect event, on the event loop.
// fn must not call Disconnect.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// SendCommand publishes req without waiting for a response. Failures are
// logged only.
func (c *Client) SendCommand(req *Request) {
	if c.closed() || !c.conn.IsConnected() {
		c.logger.Warn("not connected, cannot send command", zap.String("method", req.Method))
		return
	}
	if !c.allow() {
		c.logger.Warn("publish rate limit exceeded, dropping command", zap.String("method", req.Method))
		return
	}
	payload, err := json.Marshal(req)
	if err != nil {
		c.logger.Error("failed to encode command", zap.String("method", req.Method), zap.Error(err))
		return
	}
	c.conn.Publish(c.requestTopic(req), payload, c.s.qos, func(err error) {
		if err != nil {
			c.logger.Error("failed to publish command", zap.String("method", req.Method), zap.Error(err))
		}
	})
}

// SendCommandAsync registers req.ID, publishes req and returns the call's
// future. A timeout <= 0 uses the default. The call fails immediately with
// ErrNotConnected, ErrClientClosed or ErrRateLimited before publishing, and
// with the publish error if the transport rejects the request.
func (c *Client) SendCommandAsync(req *Request, timeout time.Duration) *Call {
	call := newCall(req)
	if timeout <= 0 {
		timeout = c.s.defaultTimeout
	}

	switch {
	case c.closed():
		call.complete(nil, ErrClientClosed)
		return call
	case !c.conn.IsConnected():
		c.logger.Warn("not connected, cannot send command", zap.String("method", req.Method))
		call.complete(nil, ErrNotConnected)
		return call
	case !c.allow():
		call.complete(nil, ErrRateLimited)
		return call
	}

	payload, err := json.Marshal(req)
	if err != nil {
		call.complete(nil, errors.Annotatef(err, "encode %s request", req.Method))
		return call
	}
	if err := c.pending.Register(req.ID, call.complete, timeout); err != nil {
		call.complete(nil, err)
		return call
	}

	c.conn.Publish(c.requestTopic(req), payload, c.s.qos, func(err error) {
		if err != nil {
			c.logger.Error("failed to publish command", zap.String("id", req.ID), zap.String("method", req.Method), zap.Error(err))
			c.pending.Fail(req.ID, err)
			return
		}
		c.logger.Debug("command sent", zap.String("id", req.ID), zap.String("method", req.Method))
	})
	return call
}

// Call validates method and params, sends the request to the client's device
// and waits for the response. A response carrying an error object is returned
// together with that error. Cancelling ctx abandons the request.
func (c *Client) Call(ctx context.Context, method string, params any) (*Response, error) {
	req, err := NewRequest(c.deviceID, method, params, c.s.validate)
	if err != nil {
		return nil, errors.Trace(err)
	}
	timeout := c.s.defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, deadline.Sub(c.s.clock.Now()))
	}

	call := c.SendCommandAsync(req, timeout)
	select {
	case <-call.Done():
	case <-ctx.Done():
		c.pending.Cancel(req.ID, ctx.Err())
	}
	resp, err := call.Result()
	if err != nil {
		return nil, err
	}
	return resp, resp.Err()
}

// OnResponseTopic subscribes to the client's response topic. Failure is logged.
func (c *Client) OnResponseTopic() {
	t := topic.Response(c.userID, c.deviceID)
	c.conn.Subscribe(t, c.s.qos, func(err error) {
		if err != nil {
			c.logger.Error("subscribe error", zap.String("topic", t), zap.Error(err))
			return
		}
		c.logger.Info("subscribed to response topic", zap.String("topic", t))
	})
}

// IsConnected reports the transport's connectivity flag.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// State returns the last connection state observed from transport events.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	return c.pending.Len()
}

// Disconnect stops the sweep, fails outstanding calls with ErrClientClosed
// and closes the transport. force skips the transport's graceful flush.
// Later calls are no-ops.
func (c *Client) Disconnect(force bool) {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.stop)
		c.pending.CancelAll(ErrClientClosed)
		if err := c.conn.Close(force); err != nil {
			c.logger.Error("failed to close connection", zap.Error(err))
		}
		c.wg.Wait()
		c.logger.Info("disconnected")
	})
}

func (c *Client) loop() {
	defer c.wg.Done()
	for ev := range c.conn.Events() {
		if ev.Kind == transport.EventMessage {
			c.dispatcher.OnMessage(ev.Message.Topic, ev.Message.Payload)
			continue
		}
		c.handleLifecycle(ev)
	}
}

func (c *Client) sweepLoop() {
	defer c.wg.Done()
	if c.s.sweepInterval <= 0 {
		return
	}
	for {
		select {
		case <-c.stop:
			return
		case <-c.s.clock.After(c.s.sweepInterval):
			if n := c.pending.Sweep(); n > 0 {
				c.logger.Warn("swept stale rpc requests", zap.Int("count", n))
			}
		}
	}
}

func (c *Client) requestTopic(req *Request) string {
	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = c.deviceID
	}
	return topic.Request(c.userID, deviceID)
}

func (c *Client) allow() bool {
	return c.s.limiter == nil || c.s.limiter.Allow()
}

func (c *Client) closed() bool {
	return c.State() == StateClosed
}
