package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-device-rpc/config"
	"github.com/mrjvadi/go-device-rpc/rpc"
	"github.com/mrjvadi/go-device-rpc/transport"
	"github.com/mrjvadi/go-device-rpc/transport/memory"
	"github.com/mrjvadi/go-device-rpc/transport/mqtt"
	redistransport "github.com/mrjvadi/go-device-rpc/transport/redis"
)

// app is the state shared by the subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
	metrics *rpc.Collector

	// hub backs the memory transport for the lifetime of the process.
	hub *memory.Hub

	connectTimeout time.Duration
}

func newRootCmd() *cobra.Command {
	a := &app{
		v:       config.New(),
		hub:     memory.NewHub(),
		metrics: rpc.NewCollector(),
	}
	root := &cobra.Command{
		Use:               "devrpc",
		Short:             "Call RPC methods on devices over a pub/sub broker",
		Long:              longRoot,
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.load() },
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "config file (yaml)")
	f.DurationVar(&a.connectTimeout, "connect-timeout", 10*time.Second, "how long to wait for the broker")
	f.String("broker-url", "", "broker url, e.g. tcp://localhost:1883 or redis://localhost:6379/0")
	f.String("transport", "", "mqtt, redis or memory")
	f.StringP("user", "u", "", "user id owning the device")
	f.StringP("device", "d", "", "device id")
	f.String("token", "", "broker password, sent with username jwt")
	f.Int("qos", 0, "qos for publish and subscribe (0, 1 or 2)")
	f.Duration("timeout", 0, "rpc timeout")
	f.Bool("debug", false, "development logging at debug level")
	for key, flag := range map[string]string{
		config.KeyBrokerURL: "broker-url",
		config.KeyTransport: "transport",
		config.KeyUserID:    "user",
		config.KeyDeviceID:  "device",
		config.KeyToken:     "token",
		config.KeyQoS:       "qos",
		config.KeyTimeout:   "timeout",
		config.KeyDebug:     "debug",
	} {
		_ = a.v.BindPFlag(key, f.Lookup(flag))
	}

	root.AddCommand(
		newCallCmd(a),
		newSendCmd(a),
		newServeCmd(a),
		newDemoCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return errors.Trace(err)
	}
	a.cfg = cfg

	if cfg.Debug {
		a.logger, err = zap.NewDevelopment()
	} else {
		a.logger, err = zap.NewProduction()
	}
	if err != nil {
		return errors.Annotate(err, "build logger")
	}
	mqtt.RouteLogs(a.logger)
	return nil
}

func (a *app) dialer() transport.Dialer {
	switch a.cfg.Transport {
	case config.TransportRedis:
		return redistransport.Dialer{Logger: a.logger}
	case config.TransportMemory:
		return a.hub
	default:
		return mqtt.Dialer{Logger: a.logger}
	}
}

// dialClient connects a client that reads responses from the configured
// device's response topic and waits for the first connect.
func (a *app) dialClient(ctx context.Context) (*rpc.Client, error) {
	opts := append(a.cfg.Options(a.logger, a.metrics), rpc.WithAutoSubscribe())
	c, err := rpc.Dial(a.dialer(), a.cfg.BrokerURL, a.cfg.UserID, a.cfg.DeviceID, opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := a.waitConnected(ctx, c); err != nil {
		c.Disconnect(true)
		return nil, errors.Trace(err)
	}
	return c, nil
}

func (a *app) waitConnected(ctx context.Context, c *rpc.Client) error {
	ctx, cancel := context.WithTimeout(ctx, a.connectTimeout)
	defer cancel()

	connected := make(chan struct{}, 1)
	c.OnConnect(func() {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	if c.State() == rpc.StateConnected {
		return nil
	}
	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		return errors.Annotatef(ctx.Err(), "connect to %s", a.cfg.BrokerURL)
	}
}

// parseParams decodes the optional JSON params argument.
func parseParams(args []string) (any, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, nil
	}
	var params any
	if err := json.Unmarshal([]byte(args[0]), &params); err != nil {
		return nil, errors.NewNotValid(err, "params must be JSON")
	}
	return params, nil
}

var longRoot = `
devrpc sends JSON RPC requests to devices through an MQTT broker or Redis
and correlates their responses. Requests go to
users/{user}/devices/{device}/rpc/request and responses are read from
users/{user}/devices/{device}/rpc/response.

Settings come from --config, DEVRPC_* environment variables and flags.
`
