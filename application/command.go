package application

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// MaxCommandPayload bounds the worst-case parse cost; larger payloads
// are dropped before any decode attempt.
const MaxCommandPayload = 512

// IdentifyDuration is how long the visual identification signal stays
// active after an identify command.
const IdentifyDuration = 3 * time.Second

type ackResponse struct {
	Cmd      string `json:"cmd"`
	Original string `json:"original"`
	Sensor   string `json:"sensor,omitempty"`
	Value    int64  `json:"value"`
}

type pongResponse struct {
	Cmd     string `json:"cmd"`
	UptimeS int64  `json:"uptime_s"`
}

type CommandHandlerParams struct {
	State *SharedState

	// NowFunc exists for tests.
	NowFunc func() time.Time

	Log zerolog.Logger
}

func (p *CommandHandlerParams) EnsureDefaults() {
	if p.NowFunc == nil {
		p.NowFunc = time.Now
	}
}

// CommandHandler parses inbound command messages, mutates the shared
// runtime configuration, and stages response payloads for the control
// loop to send on its next iteration. Responses are never sent from
// inside Handle, which runs within the session's dispatch call.
//
// Handle and the Take* accessors all run on the network-owning
// goroutine, so no internal locking is needed.
type CommandHandler struct {
	params CommandHandlerParams

	state *SharedState
	start time.Time

	staged     [][]byte
	identify   bool
	publishNow bool

	log zerolog.Logger
}

func NewCommandHandler(params CommandHandlerParams) *CommandHandler {
	params.EnsureDefaults()

	return &CommandHandler{
		params: params,
		state:  params.State,
		start:  params.NowFunc(),
		log:    params.Log,
	}
}

// Handle is the subscription handler for the command topic. Malformed
// input is inert: oversized payloads, invalid JSON, and envelopes with
// a missing or wrong-typed cmd field are discarded with no response and
// no state change.
func (h *CommandHandler) Handle(msg InboundMessage) {
	if len(msg.Payload) > MaxCommandPayload {
		h.log.Debug().Int("size", len(msg.Payload)).Msg("oversized command payload dropped")
		return
	}

	var env map[string]any
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		h.log.Debug().Msg("malformed command payload dropped")
		return
	}

	cmd, ok := env["cmd"].(string)
	if !ok {
		h.log.Debug().Msg("command envelope without cmd field dropped")
		return
	}

	// Any well-formed envelope counts, recognized or not.
	h.state.RecordCommand(cmd)

	switch cmd {
	case "set_interval":
		value, ok := env["value"].(float64)
		if !ok {
			return
		}
		applied := h.state.SetPublishInterval(time.Duration(value) * time.Millisecond)
		h.log.Info().Dur("interval", applied).Msg("publish interval set")
		h.stage(ackResponse{
			Cmd:      "ack",
			Original: cmd,
			Value:    applied.Milliseconds(),
		})

	case "set_poll_rate":
		sensor, ok := env["sensor"].(string)
		if !ok {
			return
		}
		value, ok := env["value"].(float64)
		if !ok {
			return
		}
		applied, ok := h.state.SetPollInterval(sensor, time.Duration(value)*time.Millisecond)
		if !ok {
			h.log.Debug().Str("sensor", sensor).Msg("set_poll_rate for unknown sensor ignored")
			return
		}
		h.log.Info().Str("sensor", sensor).Dur("interval", applied).Msg("poll interval set")
		h.stage(ackResponse{
			Cmd:      "ack",
			Original: cmd,
			Sensor:   sensor,
			Value:    applied.Milliseconds(),
		})

	case "ping":
		h.stage(pongResponse{
			Cmd:     "pong",
			UptimeS: int64(h.params.NowFunc().Sub(h.start).Seconds()),
		})

	case "identify":
		h.identify = true

	case "publish_now":
		h.publishNow = true

	default:
		h.log.Debug().Str("cmd", cmd).Msg("unrecognized command")
	}
}

func (h *CommandHandler) stage(resp any) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	h.staged = append(h.staged, payload)
}

// TakeResponses drains the staged response payloads.
func (h *CommandHandler) TakeResponses() [][]byte {
	out := h.staged
	h.staged = nil
	return out
}

// TakeIdentify reports and clears a pending identify request.
func (h *CommandHandler) TakeIdentify() bool {
	requested := h.identify
	h.identify = false
	return requested
}

// TakePublishNow reports and clears a pending immediate-publish request.
func (h *CommandHandler) TakePublishNow() bool {
	forced := h.publishNow
	h.publishNow = false
	return forced
}
