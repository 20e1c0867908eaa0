package transport

import "sync"

// Pump is the event channel shared by adapters. Emit after Close is a no-op,
// so broker callbacks racing with shutdown never write to a closed channel.
type Pump struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool

	quitOnce sync.Once
	quit     chan struct{}
}

// NewPump returns a pump with the given channel buffer.
func NewPump(size int) *Pump {
	return &Pump{ch: make(chan Event, size), quit: make(chan struct{})}
}

// Emit delivers ev, blocking while the buffer is full. A blocked Emit gives
// up and drops ev once Close is called.
func (p *Pump) Emit(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- ev:
	case <-p.quit:
	}
}

// Events returns the receive side of the pump.
func (p *Pump) Events() <-chan Event { return p.ch }

// Close closes the channel once. It does not wait for the consumer: emitters
// blocked on a full buffer are released first.
func (p *Pump) Close() {
	p.quitOnce.Do(func() { close(p.quit) })
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.ch)
}
