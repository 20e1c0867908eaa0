package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-device-rpc/rpc"
)

func TestLoadDefaults(t *testing.T) {
	v := New()
	v.Set(KeyUserID, "u1")
	v.Set(KeyDeviceID, "d1")

	cfg, err := Load(v, "")
	require.NoError(t, err)
	require.Equal(t, "tcp://localhost:1883", cfg.BrokerURL)
	require.Equal(t, TransportMQTT, cfg.Transport)
	require.Equal(t, "jwt", cfg.Username)
	require.Equal(t, 1, cfg.QoS)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.Equal(t, 2*time.Second, cfg.ReconnectInterval)
	require.Equal(t, time.Minute, cfg.SweepInterval)
	require.Equal(t, 2*time.Minute, cfg.StaleAfter)
	require.Equal(t, 10, cfg.MaxJobs)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("DEVRPC_USER_ID", "env-user")
	t.Setenv("DEVRPC_DEVICE_ID", "env-device")
	t.Setenv("DEVRPC_TRANSPORT", "Redis")
	t.Setenv("DEVRPC_BROKER_URL", "redis://localhost:6379/0")
	t.Setenv("DEVRPC_TIMEOUT", "750ms")
	t.Setenv("DEVRPC_QOS", "2")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, "env-user", cfg.UserID)
	require.Equal(t, "env-device", cfg.DeviceID)
	require.Equal(t, TransportRedis, cfg.Transport)
	require.Equal(t, "redis://localhost:6379/0", cfg.BrokerURL)
	require.Equal(t, 750*time.Millisecond, cfg.Timeout)
	require.Equal(t, 2, cfg.QoS)
}

func TestLoadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "devrpc.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
broker_url: tcp://broker.example:1883
user_id: u1
device_id: d1
token: secret
will_payload: '{"status":"offline"}'
timeout: 3s
publish_rate: 20
publish_burst: 5
`), 0o600))

	// Environment wins over the file.
	t.Setenv("DEVRPC_DEVICE_ID", "d2")

	cfg, err := Load(New(), file)
	require.NoError(t, err)
	require.Equal(t, "tcp://broker.example:1883", cfg.BrokerURL)
	require.Equal(t, "u1", cfg.UserID)
	require.Equal(t, "d2", cfg.DeviceID)
	require.Equal(t, "secret", cfg.Token)
	require.Equal(t, `{"status":"offline"}`, cfg.WillPayload)
	require.Equal(t, 3*time.Second, cfg.Timeout)
	require.Equal(t, 20.0, cfg.PublishRate)
	require.Equal(t, 5, cfg.PublishBurst)

	opts := cfg.Options(zap.NewNop(), rpc.NewCollector())
	require.Len(t, opts, 12)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			BrokerURL: "tcp://localhost:1883",
			Transport: TransportMQTT,
			UserID:    "u1",
			DeviceID:  "d1",
			QoS:       1,
			Timeout:   time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	for name, mutate := range map[string]func(*Config){
		"no broker":     func(c *Config) { c.BrokerURL = "" },
		"no user":       func(c *Config) { c.UserID = "" },
		"no device":     func(c *Config) { c.DeviceID = "" },
		"qos too high":  func(c *Config) { c.QoS = 3 },
		"negative qos":  func(c *Config) { c.QoS = -1 },
		"zero timeout":  func(c *Config) { c.Timeout = 0 },
		"bad transport": func(c *Config) { c.Transport = "amqp" },
		"bad sweep":     func(c *Config) { c.SweepInterval = -time.Second },
		"bad reconnect": func(c *Config) { c.ReconnectInterval = -time.Second },
		"bad burst":     func(c *Config) { c.PublishRate, c.PublishBurst = 5, 0 },
	} {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			err := c.Validate()
			require.True(t, errors.Is(err, errors.NotValid), "%v", err)
		})
	}
}
