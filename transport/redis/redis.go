// Package redis carries transport.Conn over Redis pub/sub.
//
// Redis has no QoS levels, retained messages or wills: publishes are fire
// and forget, and Options.Will is ignored with a warning. Connectivity is
// derived from a periodic PING.
package redis

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-device-rpc/topic"
	"github.com/mrjvadi/go-device-rpc/transport"
)

const (
	defaultHealthInterval = 2 * time.Second
	pingTimeout           = time.Second
	eventBuffer           = 1024
)

// Dialer connects to Redis servers given redis:// or rediss:// URLs.
type Dialer struct {
	Logger *zap.Logger
	// PoolSize overrides go-redis's default connection pool size.
	PoolSize int
}

func (d Dialer) Dial(brokerURL string, opts transport.Options) (transport.Conn, error) {
	ro, err := redis.ParseURL(brokerURL)
	if err != nil {
		return nil, errors.Annotatef(err, "parse redis url")
	}
	// The token authenticates as Options.Username only when one is given;
	// credentials in the URL win.
	if opts.Password != "" && ro.Password == "" {
		ro.Username = opts.Username
		ro.Password = opts.Password
	}
	ro.ClientName = opts.ClientID
	if d.PoolSize > 0 {
		ro.PoolSize = d.PoolSize
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("addr", ro.Addr), zap.String("client_id", opts.ClientID))
	if opts.Will != nil {
		logger.Warn("redis transport has no last will, ignoring", zap.String("topic", opts.Will.Topic))
	}

	interval := opts.ReconnectInterval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	rdb := redis.NewClient(ro)
	c := &conn{
		rdb:      rdb,
		sub:      rdb.Subscribe(ctx),
		logger:   logger,
		pump:     transport.NewPump(eventBuffer),
		ctx:      ctx,
		cancel:   cancel,
		patterns: make(map[string]string),
	}
	c.wg.Add(2)
	go c.forward(c.sub.Channel(redis.WithChannelSize(eventBuffer)))
	go c.watch(interval)
	return c, nil
}

type conn struct {
	rdb    *redis.Client
	sub    *redis.PubSub
	logger *zap.Logger
	pump   *transport.Pump

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	connected atomic.Bool

	mu       sync.Mutex
	patterns map[string]string // redis pattern -> topic filter
}

// Publish ignores qos; Redis delivers at most once.
func (c *conn) Publish(t string, payload []byte, _ transport.QoS, done transport.DoneFunc) {
	go func() {
		err := c.rdb.Publish(c.ctx, t, payload).Err()
		if done != nil {
			done(errors.Trace(err))
		}
	}()
}

// Subscribe maps filters without wildcards to SUBSCRIBE and the rest to
// PSUBSCRIBE, checking each delivery against the original filter.
func (c *conn) Subscribe(filter string, _ transport.QoS, done transport.DoneFunc) {
	go func() {
		var err error
		if pattern, ok := patternFor(filter); ok {
			c.mu.Lock()
			c.patterns[pattern] = filter
			c.mu.Unlock()
			err = c.sub.PSubscribe(c.ctx, pattern)
		} else {
			err = c.sub.Subscribe(c.ctx, filter)
		}
		if done != nil {
			done(errors.Trace(err))
		}
	}()
}

func (c *conn) Events() <-chan transport.Event { return c.pump.Events() }

func (c *conn) IsConnected() bool { return c.connected.Load() }

// Close stops the health check and closes the subscription and the client.
// Pending publishes fail with the client closed error.
func (c *conn) Close(bool) error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.cancel()
		if e := c.sub.Close(); e != nil {
			err = errors.Annotate(e, "close subscription")
		}
		if e := c.rdb.Close(); e != nil && err == nil {
			err = errors.Annotate(e, "close client")
		}
		c.wg.Wait()
		c.pump.Close()
	})
	return err
}

func (c *conn) forward(ch <-chan *redis.Message) {
	defer c.wg.Done()
	for msg := range ch {
		if msg.Pattern != "" {
			c.mu.Lock()
			filter, ok := c.patterns[msg.Pattern]
			c.mu.Unlock()
			if ok && !topic.Match(filter, msg.Channel) {
				continue
			}
		}
		c.pump.Emit(transport.Event{
			Kind:    transport.EventMessage,
			Message: transport.Message{Topic: msg.Channel, Payload: []byte(msg.Payload)},
		})
	}
}

// watch pings the server every interval and turns reachability changes into
// lifecycle events.
func (c *conn) watch(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lost := false
	for {
		c.check(&lost)
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *conn) check(lost *bool) {
	ctx, cancel := context.WithTimeout(c.ctx, pingTimeout)
	err := c.rdb.Ping(ctx).Err()
	cancel()
	if c.ctx.Err() != nil {
		return
	}

	switch {
	case err == nil && !c.connected.Load():
		if *lost {
			c.pump.Emit(transport.Event{Kind: transport.EventReconnect})
		}
		c.connected.Store(true)
		c.pump.Emit(transport.Event{Kind: transport.EventConnect})
	case err != nil && c.connected.Load():
		c.connected.Store(false)
		*lost = true
		c.logger.Warn("redis unreachable", zap.Error(err))
		c.pump.Emit(transport.Event{Kind: transport.EventClose, Err: err})
		c.pump.Emit(transport.Event{Kind: transport.EventOffline})
	case err != nil && !*lost:
		*lost = true
		c.pump.Emit(transport.Event{Kind: transport.EventError, Err: err})
	}
}

// patternFor translates an MQTT filter into a Redis glob pattern. Redis
// globs also match across levels, so deliveries are rechecked with topic.Match.
func patternFor(filter string) (string, bool) {
	if !strings.ContainsAny(filter, "+#") {
		return "", false
	}
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `+`, `*`, `#`, `*`)
	pattern := r.Replace(filter)
	if strings.HasSuffix(filter, "/#") {
		// "a/#" also matches "a" itself.
		pattern = strings.TrimSuffix(pattern, "/*") + "*"
	}
	return pattern, true
}
