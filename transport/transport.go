// Package transport defines the pub/sub connection contract the RPC core is built on.
//
// Adapters (mqtt, redis, memory) deliver lifecycle notifications and inbound
// messages on a single event channel; publish and subscribe report their
// outcome asynchronously through a completion callback.
package transport

import (
	"fmt"
	"time"
)

// QoS is the delivery guarantee requested for a publish or subscribe.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

// Valid reports whether q is one of the three MQTT levels.
func (q QoS) Valid() bool { return q <= ExactlyOnce }

// Will is published by the broker on the client's behalf after an unclean drop.
type Will struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// Options configures a connection.
type Options struct {
	ClientID          string
	Username          string
	Password          string
	ReconnectInterval time.Duration
	Will              *Will
}

// EventKind enumerates what a Conn reports on its event channel.
type EventKind int

const (
	EventConnect EventKind = iota
	EventReconnect
	EventError
	EventClose
	EventOffline
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventReconnect:
		return "reconnect"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	case EventOffline:
		return "offline"
	case EventMessage:
		return "message"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Message is an inbound publication.
type Message struct {
	Topic   string
	Payload []byte
}

// Event is a lifecycle notification or, for EventMessage, an inbound message.
type Event struct {
	Kind    EventKind
	Err     error
	Message Message
}

// DoneFunc receives the outcome of an asynchronous publish or subscribe.
// It may be called from any goroutine, including the caller's.
type DoneFunc func(err error)

// Conn is an open pub/sub connection.
type Conn interface {
	Publish(topic string, payload []byte, qos QoS, done DoneFunc)
	Subscribe(topic string, qos QoS, done DoneFunc)
	// Events is closed after Close returns.
	Events() <-chan Event
	IsConnected() bool
	Close(force bool) error
}

// Dialer opens connections to a broker URL.
type Dialer interface {
	Dial(brokerURL string, opts Options) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(brokerURL string, opts Options) (Conn, error)

func (f DialerFunc) Dial(brokerURL string, opts Options) (Conn, error) {
	return f(brokerURL, opts)
}
