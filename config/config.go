// Package config loads client and device settings from a config file and
// DEVRPC_ environment variables.
package config

import (
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-device-rpc/rpc"
	"github.com/mrjvadi/go-device-rpc/transport"
)

const EnvPrefix = "DEVRPC"

// Keys understood in config files, as env vars (DEVRPC_BROKER_URL, ...) and flags.
const (
	KeyBrokerURL         = "broker_url"
	KeyTransport         = "transport"
	KeyUserID            = "user_id"
	KeyDeviceID          = "device_id"
	KeyUsername          = "username"
	KeyToken             = "token"
	KeyQoS               = "qos"
	KeyWillPayload       = "will_payload"
	KeyTimeout           = "timeout"
	KeyReconnectInterval = "reconnect_interval"
	KeySweepInterval     = "sweep_interval"
	KeyStaleAfter        = "stale_after"
	KeyPublishRate       = "publish_rate"
	KeyPublishBurst      = "publish_burst"
	KeyMaxJobs           = "max_jobs"
	KeyMetricsAddr       = "metrics_addr"
	KeyDebug             = "debug"
)

// Transport names.
const (
	TransportMQTT   = "mqtt"
	TransportRedis  = "redis"
	TransportMemory = "memory"
)

type Config struct {
	BrokerURL   string
	Transport   string
	UserID      string
	DeviceID    string
	Username    string
	Token       string
	QoS         int
	WillPayload string

	Timeout           time.Duration
	ReconnectInterval time.Duration
	SweepInterval     time.Duration
	StaleAfter        time.Duration

	PublishRate  float64
	PublishBurst int
	MaxJobs      int

	MetricsAddr string
	Debug       bool
}

// New returns a viper instance carrying the defaults and env bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBrokerURL, "tcp://localhost:1883")
	v.SetDefault(KeyTransport, TransportMQTT)
	v.SetDefault(KeyUserID, "")
	v.SetDefault(KeyDeviceID, "")
	v.SetDefault(KeyUsername, rpc.DefaultUsername)
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyQoS, int(rpc.DefaultQoS))
	v.SetDefault(KeyWillPayload, "")
	v.SetDefault(KeyTimeout, rpc.DefaultTimeout)
	v.SetDefault(KeyReconnectInterval, rpc.DefaultReconnectInterval)
	v.SetDefault(KeySweepInterval, rpc.DefaultSweepInterval)
	v.SetDefault(KeyStaleAfter, rpc.DefaultStaleAfter)
	v.SetDefault(KeyPublishRate, 0.0)
	v.SetDefault(KeyPublishBurst, 1)
	v.SetDefault(KeyMaxJobs, 10)
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault(KeyDebug, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file, when given, into v and returns the validated settings.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "read config %s", file)
		}
	}
	cfg := &Config{
		BrokerURL:         v.GetString(KeyBrokerURL),
		Transport:         strings.ToLower(v.GetString(KeyTransport)),
		UserID:            v.GetString(KeyUserID),
		DeviceID:          v.GetString(KeyDeviceID),
		Username:          v.GetString(KeyUsername),
		Token:             v.GetString(KeyToken),
		QoS:               v.GetInt(KeyQoS),
		WillPayload:       v.GetString(KeyWillPayload),
		Timeout:           v.GetDuration(KeyTimeout),
		ReconnectInterval: v.GetDuration(KeyReconnectInterval),
		SweepInterval:     v.GetDuration(KeySweepInterval),
		StaleAfter:        v.GetDuration(KeyStaleAfter),
		PublishRate:       v.GetFloat64(KeyPublishRate),
		PublishBurst:      v.GetInt(KeyPublishBurst),
		MaxJobs:           v.GetInt(KeyMaxJobs),
		MetricsAddr:       v.GetString(KeyMetricsAddr),
		Debug:             v.GetBool(KeyDebug),
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.BrokerURL == "":
		return errors.NotValidf("empty %s", KeyBrokerURL)
	case c.UserID == "":
		return errors.NotValidf("empty %s", KeyUserID)
	case c.DeviceID == "":
		return errors.NotValidf("empty %s", KeyDeviceID)
	case c.QoS < 0 || !transport.QoS(c.QoS).Valid():
		return errors.NotValidf("%s %d", KeyQoS, c.QoS)
	case c.Timeout <= 0:
		return errors.NotValidf("%s %v", KeyTimeout, c.Timeout)
	case c.ReconnectInterval < 0:
		return errors.NotValidf("%s %v", KeyReconnectInterval, c.ReconnectInterval)
	case c.SweepInterval < 0:
		return errors.NotValidf("%s %v", KeySweepInterval, c.SweepInterval)
	case c.PublishRate < 0:
		return errors.NotValidf("%s %v", KeyPublishRate, c.PublishRate)
	case c.PublishRate > 0 && c.PublishBurst < 1:
		return errors.NotValidf("%s %d", KeyPublishBurst, c.PublishBurst)
	}
	switch c.Transport {
	case TransportMQTT, TransportRedis, TransportMemory:
	default:
		return errors.NotValidf("%s %q", KeyTransport, c.Transport)
	}
	return nil
}

// Options translates c into client and responder options.
func (c *Config) Options(logger *zap.Logger, metrics *rpc.Collector) []rpc.Option {
	opts := []rpc.Option{
		rpc.WithLogger(logger),
		rpc.WithMetrics(metrics),
		rpc.WithUsername(c.Username),
		rpc.WithToken(c.Token),
		rpc.WithQoS(transport.QoS(c.QoS)),
		rpc.WithDefaultTimeout(c.Timeout),
		rpc.WithReconnectInterval(c.ReconnectInterval),
		rpc.WithSweepInterval(c.SweepInterval),
		rpc.WithStaleAfter(c.StaleAfter),
		rpc.WithMaxJobs(c.MaxJobs),
	}
	if c.WillPayload != "" {
		opts = append(opts, rpc.WithWillPayload([]byte(c.WillPayload)))
	}
	if c.PublishRate > 0 {
		opts = append(opts, rpc.WithPublishRate(c.PublishRate, c.PublishBurst))
	}
	return opts
}
