package main

import (
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-device-rpc/config"
	"github.com/mrjvadi/go-device-rpc/methods"
	"github.com/mrjvadi/go-device-rpc/rpc"
	"github.com/mrjvadi/go-device-rpc/simulator"
)

func newServeCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulated device answering the default methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Transport == config.TransportMemory {
				return errors.NotSupportedf("serve over the memory transport")
			}
			ctx := cmd.Context()
			if a.cfg.MetricsAddr != "" {
				go func() {
					if err := serveMetrics(ctx, a.cfg.MetricsAddr, a.metrics); err != nil {
						a.logger.Error("metrics server failed", zap.Error(err))
					}
				}()
			}

			opts := append(a.cfg.Options(a.logger, a.metrics), rpc.WithValidator(methods.Default.Validate))
			r, err := rpc.NewResponder(a.dialer(), a.cfg.BrokerURL, a.cfg.UserID, a.cfg.DeviceID, opts...)
			if err != nil {
				return errors.Trace(err)
			}
			simulator.New(name, simulator.WithLogger(a.logger)).Register(r)

			a.logger.Info("serving simulated device",
				zap.String("user", a.cfg.UserID),
				zap.String("device", a.cfg.DeviceID),
				zap.Strings("methods", r.Methods()),
			)
			return errors.Trace(r.Run(ctx))
		},
	}
	cmd.Flags().StringVar(&name, "name", "simulated device", "device name reported by getDeviceState")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address, e.g. :9100")
	_ = a.v.BindPFlag(config.KeyMetricsAddr, cmd.Flags().Lookup("metrics-addr"))
	return cmd
}
