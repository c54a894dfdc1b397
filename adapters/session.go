package adapters

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"time"

	"telemetry-agent/application"

	mqtt "github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/rs/zerolog"
)

const (
	SessionDefaultKeepAlive      = 60 * time.Second
	SessionDefaultConnackTimeout = 5 * time.Second
	SessionDefaultAckTimeout     = 5 * time.Second
	SessionDefaultWriteTimeout   = 5 * time.Second
	SessionDefaultPingGrace      = 10 * time.Second

	// Budget for the remainder of a packet once its first header byte
	// has been read. A packet that stalls mid-frame desynchronizes the
	// stream and is treated as a protocol failure.
	packetContinuationTimeout = 2 * time.Second
)

var (
	ErrSessionNotConnected = fmt.Errorf("session not connected")
	ErrConnackTimeout      = fmt.Errorf("no CONNACK within handshake timeout")
	ErrAckTimeout          = fmt.Errorf("no acknowledgment within timeout")
	ErrPingTimeout         = fmt.Errorf("no PINGRESP within grace window")
	ErrPartialPacket       = fmt.Errorf("partial packet on stream")
	ErrUnexpectedPacket    = fmt.Errorf("unexpected packet type")
)

type MQTTSessionParams struct {
	BrokerHost string
	BrokerPort int
	ClientID   string

	KeepAlive      time.Duration
	ConnackTimeout time.Duration
	AckTimeout     time.Duration
	WriteTimeout   time.Duration
	PingGrace      time.Duration

	Transport application.Transport

	Log zerolog.Logger
}

func (p *MQTTSessionParams) EnsureDefaults() {
	if p.KeepAlive == 0 {
		p.KeepAlive = SessionDefaultKeepAlive
	}
	if p.ConnackTimeout == 0 {
		p.ConnackTimeout = SessionDefaultConnackTimeout
	}
	if p.AckTimeout == 0 {
		p.AckTimeout = SessionDefaultAckTimeout
	}
	if p.WriteTimeout == 0 {
		p.WriteTimeout = SessionDefaultWriteTimeout
	}
	if p.PingGrace == 0 {
		p.PingGrace = SessionDefaultPingGrace
	}
}

// MQTTSession is a single-connection MQTT 3.1.1 session over an owned
// Transport. Packet encoding and decoding use the paho packets codec;
// the state machine, keepalive tracking, acknowledgment matching, and
// handler dispatch live here.
//
// The session is driven from one goroutine. Only State and IsConnected
// may be read from elsewhere.
type MQTTSession struct {
	params MQTTSessionParams

	transport application.Transport
	state     atomic.Int32

	handlers map[string]application.MessageHandler

	// Inbound PUBLISH packets that arrive while a call is waiting for
	// its acknowledgment; dispatched on the next ProcessIncoming.
	backlog []*mqtt.PublishPacket

	// keepaliveDue restarts on every outbound packet. A PINGREQ goes
	// out when it expires, and pingDeadline then bounds the wait for
	// the PINGRESP.
	keepaliveDue    application.Timer
	pingDeadline    application.Timer
	pingOutstanding bool

	lastPacketID uint16

	log zerolog.Logger
}

func NewMQTTSession(params MQTTSessionParams) *MQTTSession {
	params.EnsureDefaults()

	return &MQTTSession{
		params:    params,
		transport: params.Transport,
		handlers:  make(map[string]application.MessageHandler),
		log:       params.Log,
	}
}

func (s *MQTTSession) State() application.SessionState {
	return application.SessionState(s.state.Load())
}

func (s *MQTTSession) IsConnected() bool {
	return s.State() == application.StateConnected
}

func (s *MQTTSession) setState(state application.SessionState) {
	s.state.Store(int32(state))
}

func (s *MQTTSession) MarkReconnecting() {
	if s.State() == application.StateDisconnected {
		s.setState(application.StateReconnecting)
	}
}

// Connect opens the transport and performs the CONNECT/CONNACK
// handshake: clean session, negotiated keepalive, no auth. On any
// failure the transport is torn down and the state returns to
// Disconnected; retry policy belongs to the caller.
func (s *MQTTSession) Connect() error {
	s.setState(application.StateConnecting)

	if err := s.transport.Connect(s.params.BrokerHost, s.params.BrokerPort); err != nil {
		s.setState(application.StateDisconnected)
		return err
	}

	cp := mqtt.NewControlPacket(mqtt.Connect).(*mqtt.ConnectPacket)
	cp.ProtocolName = "MQTT"
	cp.ProtocolVersion = 4
	cp.CleanSession = true
	cp.ClientIdentifier = s.params.ClientID
	cp.Keepalive = uint16(s.params.KeepAlive / time.Second)

	if err := s.send(cp); err != nil {
		s.teardown()
		return fmt.Errorf("send CONNECT: %w", err)
	}

	pkt, err := s.readPacket(s.params.ConnackTimeout)
	if err != nil {
		s.teardown()
		return fmt.Errorf("read CONNACK: %w", err)
	}
	if pkt == nil {
		s.teardown()
		return ErrConnackTimeout
	}

	ca, ok := pkt.(*mqtt.ConnackPacket)
	if !ok {
		s.teardown()
		return ErrUnexpectedPacket
	}
	if ca.ReturnCode != mqtt.Accepted {
		s.teardown()
		return fmt.Errorf("broker refused connection: %s", mqtt.ConnackReturnCodes[ca.ReturnCode])
	}

	s.pingOutstanding = false
	s.backlog = nil
	s.keepaliveDue.Countdown(s.params.KeepAlive)
	s.setState(application.StateConnected)

	s.log.Debug().
		Str("client_id", s.params.ClientID).
		Bool("session_present", ca.SessionPresent).
		Msg("session established")
	return nil
}

// Publish encodes and sends an application message. At-least-once
// blocks until the broker's PUBACK arrives or the ack timeout passes;
// at-most-once is fire and forget.
func (s *MQTTSession) Publish(topic string, payload []byte, qos application.QoS, retain bool) error {
	if !s.IsConnected() {
		return ErrSessionNotConnected
	}

	pp := mqtt.NewControlPacket(mqtt.Publish).(*mqtt.PublishPacket)
	pp.TopicName = topic
	pp.Payload = payload
	pp.Qos = byte(qos)
	pp.Retain = retain
	if qos == application.QoSAtLeastOnce {
		pp.MessageID = s.nextPacketID()
	}

	if err := s.send(pp); err != nil {
		s.degrade(err)
		return err
	}

	if qos == application.QoSAtMostOnce {
		return nil
	}
	return s.waitAck(mqtt.Puback, pp.MessageID)
}

// Subscribe registers the topic handler, sends the SUBSCRIBE request,
// and waits for the SUBACK. The handler fires during ProcessIncoming
// whenever a publication matching the topic arrives.
func (s *MQTTSession) Subscribe(topic string, qos application.QoS, handler application.MessageHandler) error {
	if !s.IsConnected() {
		return ErrSessionNotConnected
	}

	// Registered before the request goes out, so a publication racing
	// the SUBACK still finds its handler.
	s.handlers[topic] = handler

	sp := mqtt.NewControlPacket(mqtt.Subscribe).(*mqtt.SubscribePacket)
	sp.Topics = []string{topic}
	sp.Qoss = []byte{byte(qos)}
	sp.MessageID = s.nextPacketID()

	if err := s.send(sp); err != nil {
		s.degrade(err)
		return err
	}
	return s.waitAck(mqtt.Suback, sp.MessageID)
}

// ProcessIncoming is the single multiplexing call of the control loop.
// Within the time budget it dispatches queued and freshly read inbound
// publications to their handlers, acknowledges QoS 1 deliveries, and
// runs the keepalive round. The caller detects a degraded session by
// polling IsConnected afterwards.
func (s *MQTTSession) ProcessIncoming(timeout time.Duration) error {
	if !s.IsConnected() {
		return ErrSessionNotConnected
	}

	backlog := s.backlog
	s.backlog = nil
	for _, pp := range backlog {
		s.dispatch(pp)
		if !s.IsConnected() {
			return nil
		}
	}

	var budget application.Timer
	budget.Countdown(timeout)

	for !budget.Expired() && s.IsConnected() {
		pkt, err := s.readPacket(budget.Remaining())
		if err != nil {
			s.degrade(err)
			return err
		}
		if pkt == nil {
			break
		}
		s.handlePacket(pkt)
	}

	if !s.IsConnected() {
		return nil
	}
	return s.keepalive()
}

// Disconnect sends a clean DISCONNECT notification when connected,
// then releases the transport. Deterministic, not a retryable state
// transition.
func (s *MQTTSession) Disconnect() {
	if s.IsConnected() {
		dp := mqtt.NewControlPacket(mqtt.Disconnect).(*mqtt.DisconnectPacket)
		if err := s.send(dp); err != nil {
			s.log.Debug().Err(err).Msg("clean disconnect send failed")
		}
	}
	s.teardown()
}

func (s *MQTTSession) handlePacket(pkt mqtt.ControlPacket) {
	switch p := pkt.(type) {
	case *mqtt.PublishPacket:
		s.dispatch(p)
	case *mqtt.PingrespPacket:
		s.pingOutstanding = false
	case *mqtt.PubackPacket, *mqtt.SubackPacket:
		// Stale acknowledgment; its waiter already timed out.
	default:
		s.log.Debug().Str("packet", pkt.String()).Msg("ignoring packet")
	}
}

// dispatch delivers a publication to the handler registered for its
// topic, then acknowledges QoS 1 so the broker can retire it.
func (s *MQTTSession) dispatch(pp *mqtt.PublishPacket) {
	if handler, ok := s.handlers[pp.TopicName]; ok {
		handler(application.InboundMessage{Topic: pp.TopicName, Payload: pp.Payload})
	} else {
		s.log.Debug().Str("topic", pp.TopicName).Msg("no handler for topic")
	}

	if pp.Qos == 1 {
		pa := mqtt.NewControlPacket(mqtt.Puback).(*mqtt.PubackPacket)
		pa.MessageID = pp.MessageID
		if err := s.send(pa); err != nil {
			s.degrade(err)
		}
	}
}

// waitAck blocks until the acknowledgment with the wanted type and
// packet identifier arrives. Publications received while waiting are
// queued for the next ProcessIncoming; they are never dispatched from
// inside a publish or subscribe call.
func (s *MQTTSession) waitAck(wantType byte, wantID uint16) error {
	var deadline application.Timer
	deadline.Countdown(s.params.AckTimeout)

	for !deadline.Expired() {
		pkt, err := s.readPacket(deadline.Remaining())
		if err != nil {
			s.degrade(err)
			return err
		}
		if pkt == nil {
			continue
		}

		switch p := pkt.(type) {
		case *mqtt.PubackPacket:
			if wantType == mqtt.Puback && p.MessageID == wantID {
				return nil
			}
		case *mqtt.SubackPacket:
			if wantType == mqtt.Suback && p.MessageID == wantID {
				return nil
			}
		case *mqtt.PublishPacket:
			s.backlog = append(s.backlog, p)
		case *mqtt.PingrespPacket:
			s.pingOutstanding = false
		}
	}

	s.degrade(ErrAckTimeout)
	return ErrAckTimeout
}

// keepalive sends a PINGREQ once the keepalive interval has elapsed
// with no outbound traffic, and degrades the session when the broker
// fails to answer a probe within the grace window.
func (s *MQTTSession) keepalive() error {
	if s.pingOutstanding {
		if s.pingDeadline.Expired() {
			s.degrade(ErrPingTimeout)
			return ErrPingTimeout
		}
		return nil
	}

	if s.keepaliveDue.Expired() {
		ping := mqtt.NewControlPacket(mqtt.Pingreq).(*mqtt.PingreqPacket)
		if err := s.send(ping); err != nil {
			s.degrade(err)
			return err
		}
		s.pingOutstanding = true
		s.pingDeadline.Countdown(s.params.PingGrace)
	}
	return nil
}

// send encodes a control packet and writes it out fully, retrying
// partial writes. Every outbound packet restarts the keepalive clock.
func (s *MQTTSession) send(pkt mqtt.ControlPacket) error {
	var buf bytes.Buffer
	if err := pkt.Write(&buf); err != nil {
		return fmt.Errorf("encode packet: %w", err)
	}

	data := buf.Bytes()
	for written := 0; written < len(data); {
		n, err := s.transport.Write(data[written:], s.params.WriteTimeout)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrPartialPacket
		}
		written += n
	}

	s.keepaliveDue.Countdown(s.params.KeepAlive)
	return nil
}

// readPacket reads one complete control packet from the transport. The
// timeout bounds the wait for the first header byte; (nil, nil) means
// nothing was buffered within it. Once a packet has started, the rest
// of the frame must arrive within the continuation budget or the
// stream is considered desynchronized.
func (s *MQTTSession) readPacket(timeout time.Duration) (mqtt.ControlPacket, error) {
	var header [1]byte
	n, err := s.transport.Read(header[:], timeout)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	raw := []byte{header[0]}

	// Remaining length: up to four bytes, seven value bits each, high
	// bit as continuation flag.
	remaining := 0
	multiplier := 1
	for i := 0; ; i++ {
		if i >= 4 {
			return nil, fmt.Errorf("malformed remaining length")
		}
		var b [1]byte
		n, err := s.transport.Read(b[:], packetContinuationTimeout)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrPartialPacket
		}
		raw = append(raw, b[0])
		remaining += int(b[0]&0x7F) * multiplier
		if b[0]&0x80 == 0 {
			break
		}
		multiplier *= 128
	}

	if remaining > 0 {
		body := make([]byte, remaining)
		n, err := s.transport.Read(body, packetContinuationTimeout)
		if err != nil {
			return nil, err
		}
		if n != remaining {
			return nil, ErrPartialPacket
		}
		raw = append(raw, body...)
	}

	pkt, err := mqtt.ReadPacket(bytes.NewBuffer(raw))
	if err != nil {
		return nil, fmt.Errorf("decode packet: %w", err)
	}
	return pkt, nil
}

func (s *MQTTSession) degrade(err error) {
	s.log.Warn().Err(err).Msg("session degraded")
	s.teardown()
}

func (s *MQTTSession) teardown() {
	s.transport.Disconnect()
	s.pingOutstanding = false
	s.setState(application.StateDisconnected)
}

func (s *MQTTSession) nextPacketID() uint16 {
	s.lastPacketID++
	if s.lastPacketID == 0 {
		s.lastPacketID = 1
	}
	return s.lastPacketID
}

var _ application.Session = &MQTTSession{}
