package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"
)

const (
	AgentDefaultYieldTimeout   = 10 * time.Millisecond
	AgentDefaultLoopSleep      = 50 * time.Millisecond
	AgentDefaultStatusInterval = 30 * time.Second
	AgentDefaultTopicPrefix    = "switch"
)

type AgentService interface {
	Run(ctx context.Context) error
}

type AgentServiceParams struct {
	Session   Session
	Reconnect *ReconnectController
	Commands  *CommandHandler
	Sampler   *Sampler
	State     *SharedState

	TopicPrefix string

	// YieldTimeout is the per-iteration budget for draining inbound
	// packets; LoopSleep bounds the end-of-iteration pause.
	YieldTimeout   time.Duration
	LoopSleep      time.Duration
	StatusInterval time.Duration

	Log zerolog.Logger
}

func (p *AgentServiceParams) EnsureDefaults() {
	if p.TopicPrefix == "" {
		p.TopicPrefix = AgentDefaultTopicPrefix
	}
	if p.YieldTimeout == 0 {
		p.YieldTimeout = AgentDefaultYieldTimeout
	}
	if p.LoopSleep == 0 {
		p.LoopSleep = AgentDefaultLoopSleep
	}
	if p.StatusInterval == 0 {
		p.StatusInterval = AgentDefaultStatusInterval
	}
}

// agentService owns the network-side control loop. The session and
// transport are only ever touched from that loop: reconnection, command
// dispatch, and publishing all happen serially, in a fixed order, once
// per iteration.
type agentService struct {
	params AgentServiceParams

	telemetryTopic string
	cmdTopic       string
	responseTopic  string

	log zerolog.Logger
}

func NewAgentService(params AgentServiceParams) (AgentService, error) {
	params.EnsureDefaults()

	if params.Session == nil {
		return nil, fmt.Errorf("Session is nil")
	}
	if params.Reconnect == nil {
		return nil, fmt.Errorf("Reconnect is nil")
	}
	if params.Commands == nil {
		return nil, fmt.Errorf("Commands is nil")
	}
	if params.Sampler == nil {
		return nil, fmt.Errorf("Sampler is nil")
	}
	if params.State == nil {
		return nil, fmt.Errorf("State is nil")
	}

	return &agentService{
		params:         params,
		telemetryTopic: params.TopicPrefix + "/telemetry",
		cmdTopic:       params.TopicPrefix + "/cmd",
		responseTopic:  params.TopicPrefix + "/response",
		log:            params.Log,
	}, nil
}

func (t *agentService) Run(ctx context.Context) error {
	g := errgroup.Group{}

	// sensor sampling
	g.Go(func() error {
		return t.params.Sampler.Run(ctx)
	})

	// network-owning control loop
	g.Go(func() error {
		return t.controlLoop(ctx)
	})

	return g.Wait()
}

func (t *agentService) controlLoop(ctx context.Context) error {
	t.log.Info().
		Str("telemetry_topic", t.telemetryTopic).
		Str("cmd_topic", t.cmdTopic).
		Str("response_topic", t.responseTopic).
		Msg("control loop started")

	t.params.Reconnect.Register(t.cmdTopic, QoSAtLeastOnce, t.dispatchCommand)

	session := t.params.Session
	state := t.params.State

	var publishDue, statusDue, identifyUntil Timer
	publishDue.Countdown(state.Config().PublishInterval)
	forcePublish := false

ControlLoop:
	for {
		select {
		case <-ctx.Done():
			break ControlLoop
		default:
		}

		// 1. repair the connection if it is down and a retry is due
		t.params.Reconnect.Tick()

		// 2. drain inbound packets and send any staged response
		if session.IsConnected() {
			if err := session.ProcessIncoming(t.params.YieldTimeout); err != nil {
				t.log.Warn().Err(err).Msg("incoming dispatch failed")
			}
			t.sendStagedResponses()
		}

		if t.params.Commands.TakeIdentify() {
			identifyUntil.Countdown(IdentifyDuration)
			t.log.Info().Msg("identify signal on")
		}
		if t.params.Commands.TakePublishNow() {
			forcePublish = true
		}

		// 3. telemetry publish, due or forced
		if session.IsConnected() && (forcePublish || publishDue.Expired()) {
			forcePublish = false
			if err := t.publishTelemetry(); err != nil {
				t.log.Warn().Err(err).Msg("telemetry publish failed")
			} else {
				publishDue.Countdown(state.Config().PublishInterval)
			}
		}

		// 4. status refresh
		state.SetSessionState(session.State())
		if statusDue.Expired() {
			t.reportStatus(!identifyUntil.Expired())
			statusDue.Countdown(t.params.StatusInterval)
		}

		select {
		case <-ctx.Done():
			break ControlLoop
		case <-time.After(t.params.LoopSleep):
		}
	}

	// Clean shutdown: one deterministic disconnect, then Run waits for
	// the sampler to observe cancellation.
	session.Disconnect()
	t.log.Info().Msg("control loop stopped")
	return nil
}

// dispatchCommand shields the control loop from a panicking command
// handler; the session must keep running whatever arrives on the wire.
func (t *agentService) dispatchCommand(msg InboundMessage) {
	var catcher panics.Catcher
	catcher.Try(func() {
		t.params.Commands.Handle(msg)
	})
	if r := catcher.Recovered(); r != nil {
		t.log.Error().
			Interface("panic", r.Value).
			Bytes("stack", r.Stack).
			Msg("command handler panicked")
	}
}

func (t *agentService) sendStagedResponses() {
	for _, payload := range t.params.Commands.TakeResponses() {
		if err := t.params.Session.Publish(t.responseTopic, payload, QoSAtLeastOnce, false); err != nil {
			t.log.Warn().Err(err).Msg("response publish failed")
			return
		}
	}
}

// publishTelemetry builds a message from the latest shared snapshot and
// publishes it at least once. A failed publish degrades the session
// immediately so the reconnect controller can start backoff without
// waiting for the next keepalive round.
func (t *agentService) publishTelemetry() error {
	payload, err := BuildTelemetryPayload(t.params.State.Snapshot())
	if err != nil {
		return err
	}

	if err := t.params.Session.Publish(t.telemetryTopic, payload, QoSAtLeastOnce, false); err != nil {
		return err
	}

	t.params.State.IncPublishCount()
	t.log.Debug().Int("size", len(payload)).Msg("telemetry published")
	return nil
}

func (t *agentService) reportStatus(identify bool) {
	snap := t.params.State.Snapshot()

	event := t.log.Info().
		Str("session", snap.SessionState.String()).
		Uint32("publish_count", snap.PublishCount).
		Uint32("cmd_count", snap.CmdCount)

	if snap.LastCmd != "" {
		event = event.Str("last_cmd", snap.LastCmd)
	}
	if identify {
		event = event.Bool("identify", true)
	}

	event.Msg("status")
}
