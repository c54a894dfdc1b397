package application

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommandHandler(t *testing.T) (*CommandHandler, *SharedState) {
	t.Helper()

	state := NewSharedState(testConfig())
	handler := NewCommandHandler(CommandHandlerParams{
		State: state,
		Log:   zerolog.Nop(),
	})
	return handler, state
}

func handleJSON(h *CommandHandler, payload string) {
	h.Handle(InboundMessage{Topic: "switch/cmd", Payload: []byte(payload)})
}

func TestCommandHandler_OversizedPayloadDropped(t *testing.T) {
	handler, state := newCommandHandler(t)

	// Valid JSON, but above the parse ceiling.
	payload := []byte(`{"cmd":"ping","pad":"` + string(bytes.Repeat([]byte("x"), MaxCommandPayload)) + `"}`)
	require.Greater(t, len(payload), MaxCommandPayload)

	handler.Handle(InboundMessage{Topic: "switch/cmd", Payload: payload})

	assert.Equal(t, uint32(0), state.Snapshot().CmdCount)
	assert.Empty(t, handler.TakeResponses())
}

func TestCommandHandler_MalformedPayloadDropped(t *testing.T) {
	handler, state := newCommandHandler(t)

	handleJSON(handler, `{not json`)
	handleJSON(handler, `[1,2,3]`)
	handleJSON(handler, `{"value":5000}`)
	handleJSON(handler, `{"cmd":42}`)

	assert.Equal(t, uint32(0), state.Snapshot().CmdCount)
	assert.Empty(t, handler.TakeResponses())
}

func TestCommandHandler_SetInterval_ClampsLow(t *testing.T) {
	handler, state := newCommandHandler(t)

	handleJSON(handler, `{"cmd":"set_interval","value":500}`)

	assert.Equal(t, MinPublishInterval, state.Config().PublishInterval)

	responses := handler.TakeResponses()
	require.Len(t, responses, 1)
	assert.JSONEq(t, `{"cmd":"ack","original":"set_interval","value":1000}`, string(responses[0]))
}

func TestCommandHandler_SetInterval_ClampsHigh(t *testing.T) {
	handler, state := newCommandHandler(t)

	handleJSON(handler, `{"cmd":"set_interval","value":90000}`)

	assert.Equal(t, MaxPublishInterval, state.Config().PublishInterval)

	responses := handler.TakeResponses()
	require.Len(t, responses, 1)
	assert.JSONEq(t, `{"cmd":"ack","original":"set_interval","value":60000}`, string(responses[0]))
}

func TestCommandHandler_SetInterval_MissingValue(t *testing.T) {
	handler, state := newCommandHandler(t)
	before := state.Config()

	handleJSON(handler, `{"cmd":"set_interval"}`)

	// The envelope is well-formed, so it still counts.
	assert.Equal(t, uint32(1), state.Snapshot().CmdCount)
	assert.Equal(t, before, state.Config())
	assert.Empty(t, handler.TakeResponses())
}

func TestCommandHandler_SetPollRate_ExactAck(t *testing.T) {
	handler, state := newCommandHandler(t)

	handleJSON(handler, `{"cmd":"set_poll_rate","sensor":"battery","value":500}`)

	assert.Equal(t, MinPollInterval, state.Config().PollBattery)

	responses := handler.TakeResponses()
	require.Len(t, responses, 1)
	assert.Equal(t,
		`{"cmd":"ack","original":"set_poll_rate","sensor":"battery","value":1000}`,
		string(responses[0]))
}

func TestCommandHandler_SetPollRate_UnknownSensor(t *testing.T) {
	handler, state := newCommandHandler(t)
	before := state.Config()

	handleJSON(handler, `{"cmd":"set_poll_rate","sensor":"gyro","value":2000}`)

	snap := state.Snapshot()
	assert.Equal(t, uint32(1), snap.CmdCount)
	assert.Equal(t, "set_poll_rate", snap.LastCmd)
	assert.Equal(t, before, state.Config())
	assert.Empty(t, handler.TakeResponses())
}

func TestCommandHandler_Ping_UptimeNonDecreasing(t *testing.T) {
	state := NewSharedState(testConfig())

	now := time.Unix(1000, 0)
	handler := NewCommandHandler(CommandHandlerParams{
		State:   state,
		NowFunc: func() time.Time { return now },
		Log:     zerolog.Nop(),
	})

	now = now.Add(1500 * time.Millisecond)
	handleJSON(handler, `{"cmd":"ping"}`)
	now = now.Add(2 * time.Second)
	handleJSON(handler, `{"cmd":"ping"}`)

	responses := handler.TakeResponses()
	require.Len(t, responses, 2)

	var first, second struct {
		Cmd     string `json:"cmd"`
		UptimeS int64  `json:"uptime_s"`
	}
	require.NoError(t, json.Unmarshal(responses[0], &first))
	require.NoError(t, json.Unmarshal(responses[1], &second))

	assert.Equal(t, "pong", first.Cmd)
	assert.Equal(t, "pong", second.Cmd)
	assert.Equal(t, int64(1), first.UptimeS)
	assert.Equal(t, int64(3), second.UptimeS)
	assert.GreaterOrEqual(t, second.UptimeS, first.UptimeS)
}

func TestCommandHandler_Identify(t *testing.T) {
	handler, state := newCommandHandler(t)

	handleJSON(handler, `{"cmd":"identify"}`)

	assert.Equal(t, uint32(1), state.Snapshot().CmdCount)
	assert.Empty(t, handler.TakeResponses())
	assert.True(t, handler.TakeIdentify())
	assert.False(t, handler.TakeIdentify())
}

func TestCommandHandler_PublishNow(t *testing.T) {
	handler, _ := newCommandHandler(t)

	handleJSON(handler, `{"cmd":"publish_now"}`)

	assert.Empty(t, handler.TakeResponses())
	assert.True(t, handler.TakePublishNow())
	assert.False(t, handler.TakePublishNow())
}

func TestCommandHandler_UnrecognizedCommandStillCounts(t *testing.T) {
	handler, state := newCommandHandler(t)
	before := state.Config()

	handleJSON(handler, `{"cmd":"reboot"}`)

	snap := state.Snapshot()
	assert.Equal(t, uint32(1), snap.CmdCount)
	assert.Equal(t, "reboot", snap.LastCmd)
	assert.Equal(t, before, state.Config())
	assert.Empty(t, handler.TakeResponses())
	assert.False(t, handler.TakeIdentify())
	assert.False(t, handler.TakePublishNow())
}
