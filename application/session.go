package application

import "time"

// QoS is the delivery guarantee requested for a published or subscribed
// message. QoS 2 (exactly once) is not supported.
type QoS byte

const (
	QoSAtMostOnce  QoS = 0
	QoSAtLeastOnce QoS = 1
)

// SessionState is the single source of truth for the broker connection.
// It is owned by the session engine; the reconnect controller moves it
// from Disconnected to Reconnecting between retry attempts.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// InboundMessage is an application message delivered to a subscription
// handler from within ProcessIncoming.
type InboundMessage struct {
	Topic   string
	Payload []byte
}

type MessageHandler func(msg InboundMessage)

// Session is a single-connection MQTT session. It is not safe for
// concurrent use: exactly one goroutine (the network-owning control
// loop) may call it. The session never retries on its own; any I/O or
// protocol failure degrades it to StateDisconnected and the caller
// decides when to reconnect.
type Session interface {
	// Connect opens the transport and performs the CONNECT/CONNACK
	// handshake. On any failure the transport is torn down and the
	// session returns to StateDisconnected.
	Connect() error

	// Publish sends an application message. QoSAtLeastOnce blocks,
	// bounded by the session's ack timeout, until the broker's PUBACK
	// arrives; QoSAtMostOnce returns as soon as the packet is written.
	Publish(topic string, payload []byte, qos QoS, retain bool) error

	// Subscribe registers a topic handler and sends the SUBSCRIBE
	// request. The handler runs later, inside ProcessIncoming.
	Subscribe(topic string, qos QoS, handler MessageHandler) error

	// ProcessIncoming reads and dispatches buffered inbound packets
	// within the given time budget, acknowledges QoS 1 deliveries, and
	// runs the keepalive check. After it returns the caller must poll
	// IsConnected to detect a degraded session.
	ProcessIncoming(timeout time.Duration) error

	// Disconnect sends a clean DISCONNECT if connected, then releases
	// the transport.
	Disconnect()

	// MarkReconnecting transitions Disconnected to Reconnecting. Called
	// by the reconnect controller at the start of a retry attempt.
	MarkReconnecting()

	State() SessionState
	IsConnected() bool
}

// Transport is a byte-stream connection to the broker with bounded-time
// read/write, so the single network-owning goroutine can never block
// indefinitely.
type Transport interface {
	Connect(host string, port int) error

	// Read fills buf, looping over partial reads, until the buffer is
	// full, the timeout expires (returns what was read so far with a
	// nil error), or the peer closes (returns 0 and an error).
	Read(buf []byte, timeout time.Duration) (int, error)

	// Write sends buf within the timeout. It may write fewer bytes than
	// requested; the caller retries for the remainder.
	Write(buf []byte, timeout time.Duration) (int, error)

	Disconnect()
}
