package simulator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"github.com/mrjvadi/go-device-rpc/methods"
	"github.com/mrjvadi/go-device-rpc/rpc"
	"github.com/mrjvadi/go-device-rpc/transport/memory"
)

// start serves d for u1/d1 on a fresh hub and returns a connected client.
func start(t *testing.T, d *Device) *rpc.Client {
	t.Helper()
	hub := memory.NewHub()

	r, err := rpc.NewResponder(hub, "mem://sim", "u1", "d1", rpc.WithValidator(methods.Default.Validate))
	require.NoError(t, err)
	d.Register(r)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-stopped)
	})
	<-r.Ready()

	c, err := rpc.Dial(hub, "mem://sim", "u1", "d1")
	require.NoError(t, err)
	t.Cleanup(func() { c.Disconnect(true) })
	require.Eventually(t, func() bool { return c.State() == rpc.StateConnected }, 5*time.Second, time.Millisecond)
	c.OnResponseTopic()
	return c
}

func call(t *testing.T, c *rpc.Client, method string, params any, out any) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Result, out))
	}
	return nil
}

func TestDevice(t *testing.T) {
	booted := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clk := testclock.NewClock(booted)
	d := New("greenhouse", WithClock(clk))
	c := start(t, d)

	var ack Ack
	require.NoError(t, call(t, c, "turnOnLed", map[string]any{"on": true}, &ack))
	require.True(t, ack.Success)
	require.NoError(t, call(t, c, "setThreshold", map[string]any{"threshold": 75}, &ack))

	var readings Readings
	require.NoError(t, call(t, c, "getSensors", nil, &readings))
	require.Equal(t, Readings{Temperature: 21.5, Humidity: 40}, readings)

	var state State
	require.NoError(t, call(t, c, "updateDevice", map[string]any{"firmwareVersion": "1.1.0", "status": "offline"}, &state))
	require.Equal(t, State{
		Name:            "greenhouse",
		FirmwareVersion: "1.1.0",
		Status:          "offline",
		LedOn:           true,
		Threshold:       75,
		BootedAt:        booted,
	}, state)

	clk.Advance(time.Hour)
	require.NoError(t, call(t, c, "reboot", nil, &ack))
	require.NoError(t, call(t, c, "getDeviceState", nil, &state))
	require.False(t, state.LedOn)
	require.Equal(t, booted.Add(time.Hour), state.BootedAt)
	require.Equal(t, state, d.State())
}

func TestDeviceRejectsBadParams(t *testing.T) {
	c := start(t, New("bench", WithReadings(func() Readings { return Readings{Temperature: -3} })))

	// Client side validation catches this before anything is published.
	err := call(t, c, "setThreshold", map[string]any{"threshold": 101}, nil)
	require.Error(t, err)

	var readings Readings
	require.NoError(t, call(t, c, "getSensors", nil, &readings))
	require.Equal(t, -3.0, readings.Temperature)
}

func TestDeviceRejectsBadParamsOnTheWire(t *testing.T) {
	c := start(t, New("unit"))

	// Bypass client side validation; the responder validates too.
	call := c.SendCommandAsync(&rpc.Request{
		ID:     "bad",
		Method: "updateDevice",
		Params: map[string]any{"status": "broken"},
	}, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := call.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	require.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)
}
