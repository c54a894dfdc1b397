package application

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	ReconnectDefaultInitialDelay = 1 * time.Second
	ReconnectDefaultMaxDelay     = 30 * time.Second
)

type subscription struct {
	topic   string
	qos     QoS
	handler MessageHandler
}

type ReconnectControllerParams struct {
	Session Session

	InitialDelay time.Duration
	MaxDelay     time.Duration

	Log zerolog.Logger
}

func (p *ReconnectControllerParams) EnsureDefaults() {
	if p.InitialDelay == 0 {
		p.InitialDelay = ReconnectDefaultInitialDelay
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = ReconnectDefaultMaxDelay
	}
}

// ReconnectController drives connect attempts with exponential backoff.
// It is polled once per control-loop iteration and never blocks beyond
// the bounded duration of the connect attempt itself, so at most one
// attempt is ever outstanding.
type ReconnectController struct {
	params ReconnectControllerParams

	session Session
	subs    []subscription

	delay     time.Duration
	retry     Timer
	attempted bool

	log zerolog.Logger
}

func NewReconnectController(params ReconnectControllerParams) *ReconnectController {
	params.EnsureDefaults()

	return &ReconnectController{
		params:  params,
		session: params.Session,
		delay:   params.InitialDelay,
		log:     params.Log,
	}
}

// Register records a subscription to be issued after every successful
// connect. The broker forgets all subscriptions on disconnect (clean
// session), so reinstating them is part of every reconnect, not just
// the first.
func (c *ReconnectController) Register(topic string, qos QoS, handler MessageHandler) {
	c.subs = append(c.subs, subscription{topic: topic, qos: qos, handler: handler})
}

// Tick makes at most one connect attempt: only when the session is down
// and the scheduled retry time has passed. On success the backoff delay
// resets and every registered subscription is re-issued before Tick
// returns, so no message published right after the reconnect is lost to
// a missing subscription.
func (c *ReconnectController) Tick() {
	if c.session.IsConnected() {
		return
	}
	if !c.retry.Expired() {
		return
	}

	if c.attempted {
		c.session.MarkReconnecting()
	}
	c.attempted = true

	c.log.Info().
		Dur("next_delay", c.delay).
		Msg("attempting broker connection")

	if err := c.session.Connect(); err != nil {
		c.scheduleRetry(err)
		return
	}

	for _, sub := range c.subs {
		if err := c.session.Subscribe(sub.topic, sub.qos, sub.handler); err != nil {
			c.log.Warn().Err(err).Str("topic", sub.topic).Msg("resubscribe failed")
			c.scheduleRetry(err)
			return
		}
	}

	c.delay = c.params.InitialDelay
	c.log.Info().Msg("broker connection established")
}

func (c *ReconnectController) scheduleRetry(err error) {
	c.retry.Countdown(c.delay)
	c.log.Warn().Err(err).
		Dur("retry_in", c.delay).
		Msg("broker connection failed")

	c.delay *= 2
	if c.delay > c.params.MaxDelay {
		c.delay = c.params.MaxDelay
	}
}
