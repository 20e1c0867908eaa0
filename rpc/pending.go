package rpc

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// CompleteFunc receives the outcome of a pending request: a response, or the
// error that ended the wait. The registry calls it exactly once, outside its lock.
type CompleteFunc func(resp *Response, err error)

type pendingEntry struct {
	id        string
	complete  CompleteFunc
	timer     clock.Timer
	createdAt time.Time
	staleAt   time.Time
}

// Pending correlates responses with outstanding requests and bounds how long
// each may wait. An entry leaves the registry exactly once, by Resolve, Fail,
// its deadline, Sweep or CancelAll, and its timer is stopped on every path.
type Pending struct {
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *Collector
	staleAfter time.Duration

	mu      sync.Mutex
	entries map[string]*pendingEntry
}

// NewPending returns an empty registry. staleAfter is the minimum age at
// which Sweep force-expires an entry.
func NewPending(clk clock.Clock, logger *zap.Logger, staleAfter time.Duration, metrics *Collector) *Pending {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pending{
		clock:      clk,
		logger:     logger,
		metrics:    metrics,
		staleAfter: staleAfter,
		entries:    make(map[string]*pendingEntry),
	}
}

// Register adds a waiter for id and starts its deadline. A duplicate id is a
// caller bug: it is logged, the existing entry is left untouched, and an
// AlreadyExists error is returned.
func (p *Pending) Register(id string, complete CompleteFunc, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[id]; ok {
		p.logger.Error("rpc request id already pending", zap.String("id", id))
		return errors.AlreadyExistsf("pending request %q", id)
	}

	now := p.clock.Now()
	e := &pendingEntry{
		id:        id,
		complete:  complete,
		createdAt: now,
		staleAt:   now.Add(max(p.staleAfter, timeout)),
	}
	e.timer = p.clock.AfterFunc(timeout, func() {
		if p.removeEntry(e) {
			p.finish(e, outcomeTimeout, nil, ErrTimeout)
		}
	})
	p.entries[id] = e
	p.metrics.added()
	return nil
}

// Resolve completes the entry for id with resp. It returns false, doing
// nothing, when id is unknown, already resolved or already expired.
func (p *Pending) Resolve(id string, resp *Response) bool {
	e := p.remove(id)
	if e == nil {
		return false
	}
	p.finish(e, outcomeResolved, resp, nil)
	return true
}

// Fail completes the entry for id with err, as when its publish failed.
func (p *Pending) Fail(id string, err error) bool {
	e := p.remove(id)
	if e == nil {
		return false
	}
	p.finish(e, outcomePublishError, nil, err)
	return true
}

// Cancel completes the entry for id with err on behalf of a caller that
// stopped waiting.
func (p *Pending) Cancel(id string, err error) bool {
	e := p.remove(id)
	if e == nil {
		return false
	}
	p.finish(e, outcomeCancelled, nil, err)
	return true
}

// CancelAll fails every outstanding entry with reason and empties the registry.
func (p *Pending) CancelAll(reason error) {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*pendingEntry)
	p.mu.Unlock()

	for _, e := range entries {
		p.finish(e, outcomeCancelled, nil, reason)
	}
	if len(entries) > 0 {
		p.logger.Info("cancelled pending rpc requests", zap.Int("count", len(entries)), zap.Error(reason))
	}
}

// Sweep force-expires entries that outlived both their timeout and the
// staleness bound, catching deadlines whose timer never fired. It returns
// how many entries were expired.
func (p *Pending) Sweep() int {
	now := p.clock.Now()

	p.mu.Lock()
	var stale []*pendingEntry
	for id, e := range p.entries {
		if !now.Before(e.staleAt) {
			stale = append(stale, e)
			delete(p.entries, id)
		}
	}
	p.mu.Unlock()

	for _, e := range stale {
		p.logger.Warn("sweeping stale rpc request",
			zap.String("id", e.id),
			zap.Duration("age", now.Sub(e.createdAt)),
		)
		p.finish(e, outcomeStale, nil, errors.Annotate(ErrTimeout, "stale request swept"))
	}
	return len(stale)
}

// Len returns the number of outstanding entries.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Has reports whether id is outstanding.
func (p *Pending) Has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[id]
	return ok
}

func (p *Pending) remove(id string) *pendingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return nil
	}
	delete(p.entries, id)
	return e
}

// removeEntry deletes e only if it is still the entry registered under its id.
func (p *Pending) removeEntry(e *pendingEntry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.entries[e.id]; !ok || cur != e {
		return false
	}
	delete(p.entries, e.id)
	return true
}

func (p *Pending) finish(e *pendingEntry, outcome string, resp *Response, err error) {
	e.timer.Stop()
	p.metrics.removed(outcome, p.clock.Now().Sub(e.createdAt))
	if outcome == outcomeTimeout {
		p.logger.Warn("rpc request timed out", zap.String("id", e.id))
	}
	e.complete(resp, err)
}
