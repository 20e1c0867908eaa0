// Package simulator implements a software device answering the default
// method set, for demos and end-to-end tests.
package simulator

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-device-rpc/rpc"
)

// Readings are the values getSensors reports.
type Readings struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// State is what getDeviceState and updateDevice return.
type State struct {
	Name            string    `json:"name"`
	FirmwareVersion string    `json:"firmwareVersion"`
	Status          string    `json:"status"`
	LedOn           bool      `json:"ledOn"`
	Threshold       float64   `json:"threshold"`
	BootedAt        time.Time `json:"bootedAt"`
}

type Ack struct {
	Success bool `json:"success"`
}

// Device holds the simulated device's state. Its methods are safe for
// concurrent use by Responder handlers.
type Device struct {
	clock  clock.Clock
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	readings func() Readings
}

type Option func(*Device)

func WithLogger(l *zap.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(d *Device) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithReadings replaces the fixed sensor readings.
func WithReadings(fn func() Readings) Option {
	return func(d *Device) {
		if fn != nil {
			d.readings = fn
		}
	}
}

func New(name string, options ...Option) *Device {
	d := &Device{
		clock:    clock.WallClock,
		logger:   zap.NewNop(),
		readings: func() Readings { return Readings{Temperature: 21.5, Humidity: 40} },
	}
	for _, opt := range options {
		opt(d)
	}
	d.state = State{
		Name:            name,
		FirmwareVersion: "1.0.0",
		Status:          "online",
		Threshold:       50,
		BootedAt:        d.clock.Now().UTC(),
	}
	return d
}

// Register installs the device's handlers on r.
func (d *Device) Register(r *rpc.Responder) {
	r.OnRequest("turnOnLed", d.TurnOnLed)
	r.OnRequest("setThreshold", d.SetThreshold)
	r.OnRequest("reboot", d.Reboot)
	r.OnRequest("getSensors", d.GetSensors)
	r.OnRequest("getDeviceState", d.GetDeviceState)
	r.OnRequest("updateDevice", d.UpdateDevice)
}

// State returns a copy of the current state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) TurnOnLed(c *rpc.Context) (any, error) {
	var p struct {
		On bool `json:"on"`
	}
	if err := c.Bind(&p); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.state.LedOn = p.On
	d.mu.Unlock()
	d.logger.Info("led switched", zap.Bool("on", p.On))
	return Ack{Success: true}, nil
}

func (d *Device) SetThreshold(c *rpc.Context) (any, error) {
	var p struct {
		Threshold *float64 `json:"threshold"`
	}
	if err := c.Bind(&p); err != nil {
		return nil, err
	}
	if p.Threshold == nil || *p.Threshold < 0 || *p.Threshold > 100 {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "threshold must be between 0 and 100")
	}
	d.mu.Lock()
	d.state.Threshold = *p.Threshold
	d.mu.Unlock()
	return Ack{Success: true}, nil
}

func (d *Device) Reboot(*rpc.Context) (any, error) {
	d.mu.Lock()
	d.state.LedOn = false
	d.state.BootedAt = d.clock.Now().UTC()
	d.mu.Unlock()
	d.logger.Info("rebooted")
	return Ack{Success: true}, nil
}

func (d *Device) GetSensors(*rpc.Context) (any, error) {
	return d.readings(), nil
}

func (d *Device) GetDeviceState(*rpc.Context) (any, error) {
	return d.State(), nil
}

func (d *Device) UpdateDevice(c *rpc.Context) (any, error) {
	var p struct {
		Name            *string `json:"name"`
		FirmwareVersion *string `json:"firmwareVersion"`
		Status          *string `json:"status"`
	}
	if err := c.Bind(&p); err != nil {
		return nil, err
	}
	if p.Status != nil && *p.Status != "online" && *p.Status != "offline" {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "status must be online or offline")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if p.Name != nil {
		d.state.Name = *p.Name
	}
	if p.FirmwareVersion != nil {
		d.state.FirmwareVersion = *p.FirmwareVersion
	}
	if p.Status != nil {
		d.state.Status = *p.Status
	}
	return d.state, nil
}
