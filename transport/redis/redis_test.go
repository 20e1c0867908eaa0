package redis

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrjvadi/go-device-rpc/transport"
)

func TestPatternFor(t *testing.T) {
	for _, tc := range []struct {
		filter  string
		pattern string
		ok      bool
	}{
		{filter: "users/u1/devices/d1/rpc/response"},
		{filter: "users/+/devices/+/status", pattern: "users/*/devices/*/status", ok: true},
		{filter: "users/u1/#", pattern: "users/u1*", ok: true},
		{filter: "#", pattern: "*", ok: true},
		{filter: "odd[name]/+", pattern: `odd\[name]/*`, ok: true},
	} {
		pattern, ok := patternFor(tc.filter)
		require.Equal(t, tc.ok, ok, tc.filter)
		require.Equal(t, tc.pattern, pattern, tc.filter)
	}
}

func TestDialInvalidURL(t *testing.T) {
	_, err := Dialer{}.Dial("tcp://localhost:6379", transport.Options{})
	require.Error(t, err)
}

// TestRedisRoundTrip needs a live server: REDIS_ADDR=localhost:6379.
func TestRedisRoundTrip(t *testing.T) {
	addr := getenv("REDIS_ADDR", "")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	url := fmt.Sprintf("redis://%s/%d", addr, getenvInt("REDIS_DB", 15))

	c, err := Dialer{}.Dial(url, transport.Options{ClientID: "devrpc-redis-test", ReconnectInterval: 100 * time.Millisecond})
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close(false)) }()

	next := func(kind transport.EventKind) transport.Event {
		timeout := time.After(10 * time.Second)
		for {
			select {
			case ev := <-c.Events():
				if ev.Kind == kind {
					return ev
				}
			case <-timeout:
				t.Fatalf("no %s event", kind)
			}
		}
	}
	next(transport.EventConnect)
	require.True(t, c.IsConnected())

	errc := make(chan error, 2)
	c.Subscribe("devrpc/+/ping", transport.AtLeastOnce, func(err error) { errc <- err })
	require.NoError(t, <-errc)

	// The glob matches across levels; the filter does not.
	c.Publish("devrpc/a/b/ping", []byte("deep"), transport.AtLeastOnce, nil)
	c.Publish("devrpc/a/ping", []byte("pong"), transport.AtLeastOnce, func(err error) { errc <- err })
	require.NoError(t, <-errc)

	ev := next(transport.EventMessage)
	require.Equal(t, "devrpc/a/ping", ev.Message.Topic)
	require.Equal(t, []byte("pong"), ev.Message.Payload)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n != 0 {
			return n
		}
	}
	return def
}
