package main

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/mrjvadi/go-device-rpc/config"
	"github.com/mrjvadi/go-device-rpc/methods"
	"github.com/mrjvadi/go-device-rpc/rpc"
	"github.com/mrjvadi/go-device-rpc/simulator"
)

// demoCalls is the script the demo runs against the simulated device.
var demoCalls = []struct {
	method string
	params any
}{
	{"getDeviceState", nil},
	{"turnOnLed", map[string]any{"on": true}},
	{"setThreshold", map[string]any{"threshold": 42}},
	{"getSensors", nil},
	{"updateDevice", map[string]any{"firmwareVersion": "1.1.0"}},
	{"reboot", nil},
}

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a simulated device and a client in-process and call every default method",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			a.v.Set(config.KeyTransport, config.TransportMemory)
			a.v.Set(config.KeyBrokerURL, "memory://demo")
			a.v.SetDefault(config.KeyUserID, "demo-user")
			a.v.SetDefault(config.KeyDeviceID, "demo-device")
			return a.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			opts := append(a.cfg.Options(a.logger, a.metrics), rpc.WithValidator(methods.Default.Validate))
			r, err := rpc.NewResponder(a.dialer(), a.cfg.BrokerURL, a.cfg.UserID, a.cfg.DeviceID, opts...)
			if err != nil {
				return errors.Trace(err)
			}
			simulator.New("demo device", simulator.WithLogger(a.logger)).Register(r)

			stopped := make(chan error, 1)
			go func() { stopped <- r.Run(ctx) }()
			select {
			case <-r.Ready():
			case err := <-stopped:
				return errors.Annotate(err, "device stopped")
			}

			c, err := a.dialClient(ctx)
			if err != nil {
				return errors.Trace(err)
			}
			defer func() {
				c.Disconnect(false)
				cancel()
				<-stopped
			}()

			for _, call := range demoCalls {
				resp, err := c.Call(ctx, call.method, call.params)
				if err != nil {
					return errors.Annotatef(err, "call %s", call.method)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> ", call.method)
				if err := printJSON(cmd, resp.Result); err != nil {
					return errors.Trace(err)
				}
			}
			return nil
		},
	}
}
