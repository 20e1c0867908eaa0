package rpc

import (
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mrjvadi/go-device-rpc/topic"
	"github.com/mrjvadi/go-device-rpc/transport"
)

const (
	DefaultTimeout           = 5 * time.Second
	DefaultReconnectInterval = 2 * time.Second
	DefaultSweepInterval     = time.Minute
	DefaultStaleAfter        = 2 * time.Minute
	DefaultUsername          = "jwt"
	DefaultQoS               = transport.AtLeastOnce
)

// Option configures a Client or a Responder.
type Option func(*settings)

type settings struct {
	logger  *zap.Logger
	clock   clock.Clock
	metrics *Collector

	clientID          string
	username          string
	token             string
	qos               transport.QoS
	willPayload       []byte
	reconnectInterval time.Duration

	defaultTimeout time.Duration
	sweepInterval  time.Duration
	staleAfter     time.Duration
	validate       Validator
	limiter        *rate.Limiter
	autoSubscribe  bool

	maxJobs int
}

func newSettings(options []Option) *settings {
	s := &settings{
		logger:            zap.NewNop(),
		clock:             clock.WallClock,
		username:          DefaultUsername,
		qos:               DefaultQoS,
		reconnectInterval: DefaultReconnectInterval,
		defaultTimeout:    DefaultTimeout,
		sweepInterval:     DefaultSweepInterval,
		staleAfter:        DefaultStaleAfter,
		maxJobs:           10,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.clientID == "" {
		s.clientID = nextClientID()
	}
	return s
}

func (s *settings) transportOptions(userID, deviceID string) transport.Options {
	opts := transport.Options{
		ClientID:          s.clientID,
		Username:          s.username,
		Password:          s.token,
		ReconnectInterval: s.reconnectInterval,
	}
	if len(s.willPayload) > 0 {
		opts.Will = &transport.Will{
			Topic:   topic.Status(userID, deviceID),
			Payload: s.willPayload,
			QoS:     s.qos,
			Retain:  true,
		}
	}
	return opts
}

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the wall clock driving deadlines and the sweep.
func WithClock(c clock.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithMetrics(c *Collector) Option {
	return func(s *settings) { s.metrics = c }
}

func WithClientID(id string) Option {
	return func(s *settings) { s.clientID = id }
}

// WithUsername overrides the "jwt" username sent alongside the token.
func WithUsername(u string) Option {
	return func(s *settings) {
		if u != "" {
			s.username = u
		}
	}
}

// WithToken sets the connection password.
func WithToken(t string) Option {
	return func(s *settings) { s.token = t }
}

// WithQoS sets the level used for publish, subscribe and the will. Values
// outside 0..2 are rejected when connecting.
func WithQoS(q transport.QoS) Option {
	return func(s *settings) { s.qos = q }
}

// WithWillPayload enables a retained last-will message on the status topic.
func WithWillPayload(p []byte) Option {
	return func(s *settings) { s.willPayload = p }
}

// WithReconnectInterval sets the delay between reconnect attempts. Zero
// disables reconnecting: a lost connection goes straight to StateOffline.
func WithReconnectInterval(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.reconnectInterval = d
		}
	}
}

// WithDefaultTimeout sets the deadline used when SendCommandAsync gets no timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

// WithSweepInterval sets how often stale pending entries are scanned for.
// Zero disables the sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.sweepInterval = d
		}
	}
}

// WithStaleAfter sets the minimum age at which the sweep force-expires an entry.
func WithStaleAfter(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithValidator replaces the method/params check applied by Client.Call.
// On a Responder it enables validation before handlers run.
func WithValidator(v Validator) Option {
	return func(s *settings) { s.validate = v }
}

// WithPublishRate limits outbound requests to r per second with the given burst.
func WithPublishRate(r float64, burst int) Option {
	return func(s *settings) {
		if r > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// WithAutoSubscribe subscribes to the response topic on every connect.
func WithAutoSubscribe() Option {
	return func(s *settings) { s.autoSubscribe = true }
}

// WithMaxJobs bounds concurrently running Responder handlers.
func WithMaxJobs(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxJobs = n
		}
	}
}
