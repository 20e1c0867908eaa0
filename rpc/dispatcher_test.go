package rpc

import (
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedDispatcher() (*Dispatcher, *Pending, *Collector, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	metrics := NewCollector()
	p := NewPending(testclock.NewClock(time.Time{}), logger, DefaultStaleAfter, metrics)
	return NewDispatcher(p, logger, metrics), p, metrics, logs
}

func TestDispatcherDropsMalformed(t *testing.T) {
	for _, payload := range []string{
		``,
		`not json`,
		`[]`,
		`"123"`,
		`{"result":true}`,
		`{"id":""}`,
		`{"id":123}`,
		`{"id":"1","error":"boom"}`,
	} {
		t.Run(payload, func(t *testing.T) {
			d, p, metrics, logs := newObservedDispatcher()
			done, ch := recorder()
			require.NoError(t, p.Register("1", done, time.Second))

			require.NotPanics(t, func() { d.OnMessage("users/u1/devices/d1/rpc/response", []byte(payload)) })

			require.Equal(t, 1.0, testutil.ToFloat64(metrics.malformed))
			entries := logs.FilterMessage("invalid rpc response").All()
			require.Len(t, entries, 1)
			require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
			require.True(t, p.Has("1"))
			requireNoOutcome(t, ch)
		})
	}
}

func TestDispatcherUnmatched(t *testing.T) {
	d, p, metrics, logs := newObservedDispatcher()
	done, ch := recorder()
	require.NoError(t, p.Register("1", done, time.Second))

	d.OnMessage("t", []byte(`{"id":"999","result":{}}`))

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.unmatched))
	require.Equal(t, 1, logs.FilterMessage("rpc response matches no pending request").
		FilterField(zap.String("id", "999")).Len())
	require.True(t, p.Has("1"))
	requireNoOutcome(t, ch)
}

func TestDispatcherResolves(t *testing.T) {
	d, p, metrics, _ := newObservedDispatcher()
	done, ch := recorder()
	require.NoError(t, p.Register("1", done, time.Second))

	d.OnMessage("t", []byte(`{"id":"1","result":{"temp":21.5},"extra":"ignored"}`))

	o := waitOutcome(t, ch)
	require.NoError(t, o.err)
	require.JSONEq(t, `{"temp":21.5}`, string(o.resp.Result))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.malformed))

	// The duplicate is unmatched, not a second completion.
	d.OnMessage("t", []byte(`{"id":"1","result":{"temp":21.5}}`))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.unmatched))
	requireNoOutcome(t, ch)
}
