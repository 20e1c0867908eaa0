package rpc

import (
	"go.uber.org/zap"

	"github.com/mrjvadi/go-device-rpc/transport"
)

// handleLifecycle logs a transport lifecycle event and advances the
// connection state. It runs on the client's event loop.
func (c *Client) handleLifecycle(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnect:
		c.logger.Info("connected")
		// Subscribe first so callers that saw StateConnected can rely on it.
		if c.s.autoSubscribe {
			c.OnResponseTopic()
		}
		c.setState(StateConnected)
		c.mu.Lock()
		hooks := append([]func(){}, c.onConnect...)
		c.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
	case transport.EventReconnect:
		c.logger.Info("reconnecting")
		c.setState(StateReconnecting)
	case transport.EventClose:
		c.logger.Warn("connection closed", zap.Error(ev.Err))
		if c.s.reconnectInterval > 0 {
			c.setState(StateReconnecting)
		} else {
			c.setState(StateOffline)
		}
	case transport.EventOffline:
		c.logger.Warn("offline")
		c.setState(StateOffline)
	case transport.EventError:
		c.logger.Error("transport error", zap.Error(ev.Err))
	default:
		c.logger.Debug("ignoring transport event", zap.Stringer("kind", ev.Kind))
	}
}

// setState records s unless the client is already closed.
func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	if c.state != s {
		c.logger.Debug("connection state changed",
			zap.Stringer("from", c.state),
			zap.Stringer("to", s),
		)
	}
	c.state = s
}
