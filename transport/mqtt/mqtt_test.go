package mqtt

import (
	"os"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/require"

	"github.com/mrjvadi/go-device-rpc/transport"
)

func TestClientOptions(t *testing.T) {
	co, err := Dialer{}.clientOptions("tcp://broker.local:1883", transport.Options{
		ClientID:          "devrpc-test",
		Username:          "jwt",
		Password:          "token",
		ReconnectInterval: 2 * time.Second,
		Will: &transport.Will{
			Topic:   "users/u1/devices/d1/status",
			Payload: []byte(`{"status":"offline"}`),
			QoS:     transport.AtLeastOnce,
			Retain:  true,
		},
	})
	require.NoError(t, err)

	require.Len(t, co.Servers, 1)
	require.Equal(t, "tcp://broker.local:1883", co.Servers[0].String())
	require.Equal(t, "devrpc-test", co.ClientID)
	require.Equal(t, "jwt", co.Username)
	require.Equal(t, "token", co.Password)
	require.True(t, co.CleanSession)
	require.True(t, co.AutoReconnect)
	require.True(t, co.ConnectRetry)
	require.Equal(t, 2*time.Second, co.ConnectRetryInterval)
	require.Equal(t, 2*time.Second, co.MaxReconnectInterval)
	require.Equal(t, defaultConnectTimeout, co.ConnectTimeout)

	require.True(t, co.WillEnabled)
	require.Equal(t, "users/u1/devices/d1/status", co.WillTopic)
	require.Equal(t, []byte(`{"status":"offline"}`), co.WillPayload)
	require.Equal(t, byte(1), co.WillQos)
	require.True(t, co.WillRetained)
}

func TestClientOptionsNoReconnect(t *testing.T) {
	co, err := Dialer{ConnectTimeout: time.Second}.clientOptions("ws://broker.local:8083/mqtt", transport.Options{})
	require.NoError(t, err)
	require.False(t, co.AutoReconnect)
	require.False(t, co.ConnectRetry)
	require.False(t, co.WillEnabled)
	require.Equal(t, time.Second, co.ConnectTimeout)
}

func TestClientOptionsInvalid(t *testing.T) {
	for _, tc := range []struct {
		url  string
		opts transport.Options
	}{
		{url: "http://broker.local"},
		{url: "broker.local:1883"},
		{url: "tcp://broker.local", opts: transport.Options{Will: &transport.Will{Topic: "t", QoS: 3}}},
	} {
		_, err := Dialer{}.clientOptions(tc.url, tc.opts)
		require.Error(t, err, tc.url)
	}

	_, err := Dialer{}.Dial("http://broker.local", transport.Options{})
	require.True(t, errors.Is(err, errors.NotValid), "%v", err)
}

// TestBrokerRoundTrip needs a live broker: MQTT_BROKER=tcp://localhost:1883.
func TestBrokerRoundTrip(t *testing.T) {
	broker := getenv("MQTT_BROKER", "")
	if broker == "" {
		t.Skip("MQTT_BROKER not set")
	}

	c, err := Dialer{}.Dial(broker, transport.Options{ClientID: "devrpc-mqtt-test", ReconnectInterval: time.Second})
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close(true)) }()

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
	c.Subscribe("devrpc/test/#", transport.AtLeastOnce, func(err error) { errc <- err })
	require.NoError(t, <-errc)
	c.Publish("devrpc/test/ping", []byte("pong"), transport.AtLeastOnce, func(err error) { errc <- err })
	require.NoError(t, <-errc)

	ev := next(transport.EventMessage)
	require.Equal(t, "devrpc/test/ping", ev.Message.Topic)
	require.Equal(t, []byte("pong"), ev.Message.Payload)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
