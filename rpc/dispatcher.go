package rpc

import (
	"go.uber.org/zap"
)

// Dispatcher turns inbound transport payloads into registry lookups. It is
// the only code that touches transport-supplied bytes, so it never panics
// and never returns an error: bad input is logged and dropped.
type Dispatcher struct {
	pending *Pending
	logger  *zap.Logger
	metrics *Collector
}

func NewDispatcher(p *Pending, logger *zap.Logger, metrics *Collector) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{pending: p, logger: logger, metrics: metrics}
}

// OnMessage decodes payload as a Response and resolves the matching request.
func (d *Dispatcher) OnMessage(topic string, payload []byte) {
	resp, err := DecodeResponse(payload)
	if err != nil {
		d.metrics.malformedResponse()
		d.logger.Error("invalid rpc response",
			zap.String("topic", topic),
			zap.Int("bytes", len(payload)),
			zap.Error(err),
		)
		return
	}
	if !d.pending.Resolve(resp.ID, resp) {
		d.metrics.unmatchedResponse()
		d.logger.Debug("rpc response matches no pending request",
			zap.String("topic", topic),
			zap.String("id", resp.ID),
		)
	}
}
