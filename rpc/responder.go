package rpc

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-device-rpc/topic"
	"github.com/mrjvadi/go-device-rpc/transport"
)

// Responder is the device side: it serves requests published on one
// device's request topic and answers on its response topic.
type Responder struct {
	dialer    transport.Dialer
	brokerURL string
	userID    string
	deviceID  string
	s         *settings
	logger    *zap.Logger

	mu       sync.RWMutex
	handlers map[string]RequestHandlerFunc

	sem chan struct{}
	wg  sync.WaitGroup

	readyOnce sync.Once
	ready     chan struct{}
}

// NewResponder returns a Responder for userID/deviceID. It does not connect
// until Run.
func NewResponder(d transport.Dialer, brokerURL, userID, deviceID string, options ...Option) (*Responder, error) {
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
	return &Responder{
		dialer:    d,
		brokerURL: brokerURL,
		userID:    userID,
		deviceID:  deviceID,
		s:         s,
		logger:    s.logger.With(zap.String("user", userID), zap.String("device", deviceID)),
		handlers:  make(map[string]RequestHandlerFunc),
		sem:       make(chan struct{}, s.maxJobs),
		ready:     make(chan struct{}),
	}, nil
}

// OnRequest registers h for method, replacing any earlier handler.
func (r *Responder) OnRequest(method string, h RequestHandlerFunc) {
	r.mu.Lock()
	r.handlers[method] = h
	r.mu.Unlock()
}

// Methods returns the registered method names, sorted.
func (r *Responder) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Run connects, subscribes to the request topic on every connect and serves
// requests until ctx is cancelled. In-flight handlers finish before the
// connection is closed.
func (r *Responder) Run(ctx context.Context) error {
	conn, err := r.dialer.Dial(r.brokerURL, r.s.transportOptions(r.userID, r.deviceID))
	if err != nil {
		return errors.Annotatef(err, "dial %s", r.brokerURL)
	}

	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			r.shutdown(conn, events)
			return nil
		case ev, ok := <-events:
			if !ok {
				r.wg.Wait()
				return errors.New("transport closed")
			}
			switch ev.Kind {
			case transport.EventMessage:
				r.dispatch(ctx, conn, ev.Message)
			case transport.EventConnect:
				r.logger.Info("connected")
				r.subscribe(conn)
			case transport.EventClose:
				r.logger.Warn("connection closed", zap.Error(ev.Err))
			case transport.EventError:
				r.logger.Error("transport error", zap.Error(ev.Err))
			default:
				r.logger.Debug("transport event", zap.Stringer("kind", ev.Kind))
			}
		}
	}
}

func (r *Responder) subscribe(conn transport.Conn) {
	t := topic.Request(r.userID, r.deviceID)
	conn.Subscribe(t, r.s.qos, func(err error) {
		if err != nil {
			r.logger.Error("subscribe error", zap.String("topic", t), zap.Error(err))
			return
		}
		r.logger.Info("subscribed to request topic", zap.String("topic", t))
		r.readyOnce.Do(func() { close(r.ready) })
	})
}

// Ready is closed once the first subscription to the request topic succeeds.
func (r *Responder) Ready() <-chan struct{} { return r.ready }

// shutdown waits for running handlers while draining events, so adapters
// blocked on a full event buffer can make progress, then closes conn.
func (r *Responder) shutdown(conn transport.Conn, events <-chan transport.Event) {
	idle := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(idle)
	}()
	for waiting := true; waiting; {
		select {
		case <-idle:
			waiting = false
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		}
	}
	if err := conn.Close(false); err != nil {
		r.logger.Error("failed to close connection", zap.Error(err))
	}
	r.logger.Info("responder stopped")
}

// dispatch hands one request to a handler goroutine, blocking while maxJobs
// handlers are already running.
func (r *Responder) dispatch(ctx context.Context, conn transport.Conn, msg transport.Message) {
	req, err := decodeRequest(msg.Payload)
	if err != nil {
		r.logger.Error("invalid rpc request", zap.String("topic", msg.Topic), zap.Error(err))
		return
	}
	if req.DeviceID != "" && req.DeviceID != r.deviceID {
		r.logger.Warn("rpc request for another device",
			zap.String("id", req.ID),
			zap.String("target", req.DeviceID),
		)
		return
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.sem }()
		r.reply(conn, req, r.serve(ctx, req))
	}()
}

func (r *Responder) serve(ctx context.Context, req *wireRequest) (resp *Response) {
	resp = &Response{ID: req.ID}

	r.mu.RLock()
	h := r.handlers[req.Method]
	r.mu.RUnlock()
	if h == nil {
		resp.Error = NewError(CodeMethodNotFound, "method %q not found", req.Method)
		return resp
	}

	if r.s.validate != nil {
		if err := r.validate(req); err != nil {
			resp.Error = toError(err)
			return resp
		}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("rpc handler panicked", zap.String("method", req.Method), zap.Any("panic", p))
			resp.Result = nil
			resp.Error = NewError(CodeInternal, "internal error")
		}
	}()

	result, err := h(&Context{ctx: ctx, req: req})
	if err != nil {
		r.logger.Debug("rpc handler failed", zap.String("method", req.Method), zap.Error(err))
		resp.Error = toError(err)
		return resp
	}
	raw, err := encodeResult(result)
	if err != nil {
		resp.Error = NewError(CodeInternal, "encode result: %v", err)
		return resp
	}
	resp.Result = raw
	return resp
}

func (r *Responder) validate(req *wireRequest) error {
	var params any
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewError(CodeInvalidParams, "invalid params: %v", err)
		}
	}
	err := r.s.validate(req.Method, params)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.NotFound):
		return NewError(CodeMethodNotFound, "%v", err)
	default:
		return NewError(CodeInvalidParams, "%v", err)
	}
}

func (r *Responder) reply(conn transport.Conn, req *wireRequest, resp *Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error("failed to encode rpc response", zap.String("id", req.ID), zap.Error(err))
		return
	}
	t := topic.Response(r.userID, r.deviceID)
	conn.Publish(t, payload, r.s.qos, func(err error) {
		if err != nil {
			r.logger.Error("failed to publish rpc response", zap.String("id", req.ID), zap.Error(err))
		}
	})
}

// toError maps a handler error onto the error object sent back. *Error
// values pass through; anything else becomes a server error.
func toError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return NewError(CodeServer, "%s", err.Error())
}

func encodeResult(v any) (json.RawMessage, error) {
	switch r := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if json.Valid(r) {
			return r, nil
		}
	case []byte:
		if json.Valid(r) {
			return json.RawMessage(r), nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Annotatef(err, "encode %T", v)
	}
	return b, nil
}
