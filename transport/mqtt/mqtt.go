// Package mqtt adapts github.com/eclipse/paho.mqtt.golang to transport.Conn.
package mqtt

import (
	"crypto/tls"
	"net/url"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mrjvadi/go-device-rpc/transport"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultKeepAlive      = 30 * time.Second
	eventBuffer           = 1024

	// gracefulQuiesce is how long a non-forced Close lets in-flight work finish, in ms.
	gracefulQuiesce = 250
)

var schemes = map[string]bool{
	"tcp": true, "mqtt": true, "ssl": true, "tls": true, "mqtts": true, "ws": true, "wss": true,
}

// Dialer connects to MQTT brokers. The zero value is ready to use.
type Dialer struct {
	Logger         *zap.Logger
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	TLSConfig      *tls.Config
}

// Dial starts connecting to brokerURL and returns at once. Progress is
// reported on the connection's event channel; with a positive
// ReconnectInterval the first attempt and every reconnect are retried at
// that interval.
func (d Dialer) Dial(brokerURL string, opts transport.Options) (transport.Conn, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &conn{
		logger: logger.With(zap.String("broker", brokerURL), zap.String("client_id", opts.ClientID)),
		pump:   transport.NewPump(eventBuffer),
	}
	co, err := d.clientOptions(brokerURL, opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	co.SetOnConnectHandler(c.onConnect)
	co.SetConnectionLostHandler(c.onConnectionLost)
	co.SetReconnectingHandler(c.onReconnecting)
	co.SetDefaultPublishHandler(c.onMessage)

	c.client = paho.NewClient(co)
	c.autoReconnect = co.AutoReconnect
	tok := c.client.Connect()
	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil {
			c.logger.Error("mqtt connect failed", zap.Error(err))
			c.pump.Emit(transport.Event{Kind: transport.EventError, Err: err})
			c.pump.Emit(transport.Event{Kind: transport.EventOffline})
		}
	}()
	return c, nil
}

func (d Dialer) clientOptions(brokerURL string, opts transport.Options) (*paho.ClientOptions, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, errors.Annotatef(err, "parse broker url")
	}
	if !schemes[u.Scheme] {
		return nil, errors.NotValidf("broker url scheme %q", u.Scheme)
	}
	if w := opts.Will; w != nil && !w.QoS.Valid() {
		return nil, errors.NotValidf("will qos %d", w.QoS)
	}

	connectTimeout := d.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	keepAlive := d.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}

	co := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)
	if d.TLSConfig != nil {
		co.SetTLSConfig(d.TLSConfig)
	}
	if opts.ReconnectInterval > 0 {
		co.SetAutoReconnect(true).
			SetConnectRetry(true).
			SetConnectRetryInterval(opts.ReconnectInterval).
			SetMaxReconnectInterval(opts.ReconnectInterval)
	} else {
		co.SetAutoReconnect(false)
	}
	if w := opts.Will; w != nil {
		co.SetBinaryWill(w.Topic, w.Payload, byte(w.QoS), w.Retain)
	}
	return co, nil
}

type conn struct {
	client        paho.Client
	logger        *zap.Logger
	pump          *transport.Pump
	autoReconnect bool
}

func (c *conn) Publish(topic string, payload []byte, qos transport.QoS, done transport.DoneFunc) {
	tok := c.client.Publish(topic, byte(qos), false, payload)
	go wait(tok, done)
}

func (c *conn) Subscribe(topic string, qos transport.QoS, done transport.DoneFunc) {
	tok := c.client.Subscribe(topic, byte(qos), nil)
	go func() {
		<-tok.Done()
		err := tok.Error()
		if err == nil {
			if st, ok := tok.(*paho.SubscribeToken); ok {
				if code := st.Result()[topic]; code == 0x80 {
					err = errors.Errorf("subscription to %q refused by broker", topic)
				}
			}
		}
		if done != nil {
			done(err)
		}
	}()
}

func (c *conn) Events() <-chan transport.Event { return c.pump.Events() }

func (c *conn) IsConnected() bool { return c.client.IsConnectionOpen() }

// Close disconnects and closes the event channel. A forced close does not
// wait for in-flight work.
func (c *conn) Close(force bool) error {
	quiesce := uint(gracefulQuiesce)
	if force {
		quiesce = 0
	}
	c.client.Disconnect(quiesce)
	c.pump.Close()
	return nil
}

func (c *conn) onConnect(paho.Client) {
	c.pump.Emit(transport.Event{Kind: transport.EventConnect})
}

func (c *conn) onConnectionLost(_ paho.Client, err error) {
	c.pump.Emit(transport.Event{Kind: transport.EventClose, Err: err})
	if !c.autoReconnect {
		c.pump.Emit(transport.Event{Kind: transport.EventOffline})
	}
}

func (c *conn) onReconnecting(paho.Client, *paho.ClientOptions) {
	c.pump.Emit(transport.Event{Kind: transport.EventReconnect})
}

func (c *conn) onMessage(_ paho.Client, m paho.Message) {
	c.pump.Emit(transport.Event{
		Kind:    transport.EventMessage,
		Message: transport.Message{Topic: m.Topic(), Payload: m.Payload()},
	})
}

func wait(tok paho.Token, done transport.DoneFunc) {
	<-tok.Done()
	if done != nil {
		done(tok.Error())
	}
}

// RouteLogs sends paho's package level diagnostics to l: errors and
// critical messages at error level, warnings at warn level.
func RouteLogs(l *zap.Logger) {
	l = l.Named("paho")
	paho.ERROR, _ = zap.NewStdLogAt(l, zapcore.ErrorLevel)
	paho.CRITICAL, _ = zap.NewStdLogAt(l, zapcore.ErrorLevel)
	paho.WARN, _ = zap.NewStdLogAt(l, zapcore.WarnLevel)
}
