// Package memory is an in-process pub/sub hub implementing transport.Dialer.
//
// It routes publications between connections of the same Hub with MQTT
// filter semantics, keeps retained messages, publishes wills on Drop, and
// exposes hooks tests use to force disconnects and publish failures.
package memory

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"

	"github.com/mrjvadi/go-device-rpc/topic"
	"github.com/mrjvadi/go-device-rpc/transport"
)

// ErrNotConnected is reported by Publish and Subscribe on a dropped or closed Conn.
const ErrNotConnected = errors.ConstError("memory: not connected")

// Hub is an in-process broker. The zero value is not usable; call NewHub.
type Hub struct {
	mu       sync.Mutex
	conns    map[*Conn]struct{}
	retained map[string][]byte
}

func NewHub() *Hub {
	return &Hub{
		conns:    make(map[*Conn]struct{}),
		retained: make(map[string][]byte),
	}
}

// Dial connects immediately and emits EventConnect. brokerURL is ignored.
func (h *Hub) Dial(_ string, opts transport.Options) (transport.Conn, error) {
	return h.Connect(opts), nil
}

// Connect is Dial with the concrete type, for tests that need the hooks.
func (h *Hub) Connect(opts transport.Options) *Conn {
	c := &Conn{
		hub:  h,
		opts: opts,
		pump: transport.NewPump(256),
		subs: make(map[string]transport.QoS),
	}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	c.connected.Store(true)
	c.pump.Emit(transport.Event{Kind: transport.EventConnect})
	return c
}

// Publish routes payload to every subscribed connection.
func (h *Hub) Publish(t string, payload []byte, retain bool) {
	h.mu.Lock()
	if retain {
		if len(payload) == 0 {
			delete(h.retained, t)
		} else {
			h.retained[t] = append([]byte(nil), payload...)
		}
	}
	var targets []*Conn
	for c := range h.conns {
		if c.subscribed(t) {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.deliver(t, payload)
	}
}

// Retained returns the retained payload for t, if any.
func (h *Hub) Retained(t string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.retained[t]
	return p, ok
}

func (h *Hub) retainedFor(filter string) []transport.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []transport.Message
	for t, p := range h.retained {
		if topic.Match(filter, t) {
			out = append(out, transport.Message{Topic: t, Payload: p})
		}
	}
	return out
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// Published is a publish observed on a Conn.
type Published struct {
	Topic   string
	Payload []byte
	QoS     transport.QoS
}

// Conn is one client connection to a Hub.
type Conn struct {
	hub  *Hub
	opts transport.Options
	pump *transport.Pump

	connected atomic.Bool

	mu         sync.Mutex
	subs       map[string]transport.QoS
	published  []Published
	publishErr error
	holdAcks   bool
	held       []transport.DoneFunc
}

func (c *Conn) Publish(t string, payload []byte, qos transport.QoS, done transport.DoneFunc) {
	c.mu.Lock()
	failErr := c.publishErr
	c.published = append(c.published, Published{Topic: t, Payload: append([]byte(nil), payload...), QoS: qos})
	c.mu.Unlock()

	switch {
	case failErr != nil:
		complete(done, failErr)
	case !c.connected.Load():
		complete(done, ErrNotConnected)
	default:
		c.hub.Publish(t, payload, false)
		c.ack(done)
	}
}

func (c *Conn) Subscribe(filter string, qos transport.QoS, done transport.DoneFunc) {
	if !c.connected.Load() {
		complete(done, ErrNotConnected)
		return
	}
	c.mu.Lock()
	c.subs[filter] = qos
	c.mu.Unlock()
	complete(done, nil)

	if retained := c.hub.retainedFor(filter); len(retained) > 0 {
		go func() {
			for _, m := range retained {
				c.deliver(m.Topic, m.Payload)
			}
		}()
	}
}

func (c *Conn) Events() <-chan transport.Event { return c.pump.Events() }

func (c *Conn) IsConnected() bool { return c.connected.Load() }

// Close disconnects cleanly; the will is not published.
func (c *Conn) Close(bool) error {
	c.connected.Store(false)
	c.hub.remove(c)
	c.releaseAcks()
	c.pump.Close()
	return nil
}

// Drop simulates an unclean connection loss: close and offline are emitted
// and the will, if configured, is published by the hub.
func (c *Conn) Drop() {
	if !c.connected.Swap(false) {
		return
	}
	c.pump.Emit(transport.Event{Kind: transport.EventClose, Err: ErrNotConnected})
	c.pump.Emit(transport.Event{Kind: transport.EventOffline})
	if w := c.opts.Will; w != nil {
		c.hub.Publish(w.Topic, w.Payload, w.Retain)
	}
}

// Reconnect restores a dropped connection, emitting reconnect then connect.
func (c *Conn) Reconnect() {
	if c.connected.Load() {
		return
	}
	c.pump.Emit(transport.Event{Kind: transport.EventReconnect})
	c.connected.Store(true)
	c.pump.Emit(transport.Event{Kind: transport.EventConnect})
}

// EmitError reports a transport error without changing connectivity.
func (c *Conn) EmitError(err error) {
	c.pump.Emit(transport.Event{Kind: transport.EventError, Err: err})
}

// FailPublish makes every following publish complete with err; nil restores.
func (c *Conn) FailPublish(err error) {
	c.mu.Lock()
	c.publishErr = err
	c.mu.Unlock()
}

// HoldAcks defers publish completions until ReleaseAcks, like a broker that
// has not yet acknowledged a QoS 1 publish.
func (c *Conn) HoldAcks() {
	c.mu.Lock()
	c.holdAcks = true
	c.mu.Unlock()
}

// ReleaseAcks completes every held publish successfully.
func (c *Conn) ReleaseAcks() {
	c.releaseAcks()
}

// Published returns a copy of every publish attempted on c.
func (c *Conn) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// Options returns the options c was dialed with.
func (c *Conn) Options() transport.Options { return c.opts }

func (c *Conn) ack(done transport.DoneFunc) {
	c.mu.Lock()
	if c.holdAcks {
		c.held = append(c.held, done)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	complete(done, nil)
}

func (c *Conn) releaseAcks() {
	c.mu.Lock()
	held := c.held
	c.held = nil
	c.holdAcks = false
	c.mu.Unlock()
	for _, done := range held {
		complete(done, nil)
	}
}

func (c *Conn) subscribed(t string) bool {
	if !c.connected.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for f := range c.subs {
		if topic.Match(f, t) {
			return true
		}
	}
	return false
}

func (c *Conn) deliver(t string, payload []byte) {
	c.pump.Emit(transport.Event{
		Kind:    transport.EventMessage,
		Message: transport.Message{Topic: t, Payload: append([]byte(nil), payload...)},
	})
}

func complete(done transport.DoneFunc, err error) {
	if done != nil {
		done(err)
	}
}
