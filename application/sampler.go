package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const SamplerDefaultSleep = 100 * time.Millisecond

type SamplerParams struct {
	State *SharedState

	Battery     BatterySensor
	Temperature TemperatureSensor
	Wifi        WifiSensor

	// Sleep between poll checks; bounds both CPU usage and how quickly
	// shutdown is observed.
	Sleep time.Duration

	Log zerolog.Logger
}

func (p *SamplerParams) EnsureDefaults() {
	if p.Sleep == 0 {
		p.Sleep = SamplerDefaultSleep
	}
}

// Sampler is the producer side of the shared state: it polls each
// sensor on its own runtime-configured interval and copies the latest
// reading in under the lock. Sensor reads are potentially slow IPC and
// always happen outside the lock. The sampler never touches the
// network.
type Sampler struct {
	params SamplerParams

	state *SharedState

	log zerolog.Logger
}

func NewSampler(params SamplerParams) (*Sampler, error) {
	params.EnsureDefaults()

	if params.State == nil {
		return nil, fmt.Errorf("State is nil")
	}
	if params.Battery == nil || params.Temperature == nil || params.Wifi == nil {
		return nil, fmt.Errorf("sensor backend is nil")
	}

	return &Sampler{params: params, state: params.State, log: params.Log}, nil
}

// Run loops until ctx is cancelled, observing cancellation within one
// sleep interval. Zero-value timers make every sensor due on the first
// iteration. A failed read is non-fatal and leaves the corresponding
// validity flag untouched.
func (s *Sampler) Run(ctx context.Context) error {
	s.log.Info().Msg("sampler started")
	defer s.log.Info().Msg("sampler stopped")

	var batteryDue, tempDue, wifiDue Timer

	for {
		cfg := s.state.Config()

		if batteryDue.Expired() {
			if r, err := s.params.Battery.Read(); err == nil {
				s.state.SetBattery(r)
			} else {
				s.log.Debug().Err(err).Msg("battery read failed")
			}
			batteryDue.Countdown(cfg.PollBattery)
		}

		if tempDue.Expired() {
			if r, err := s.params.Temperature.Read(); err == nil {
				s.state.SetTemperature(r)
			} else {
				s.log.Debug().Err(err).Msg("temperature read failed")
			}
			tempDue.Countdown(cfg.PollTemp)
		}

		if wifiDue.Expired() {
			if r, err := s.params.Wifi.Read(); err == nil {
				s.state.SetWifi(r)
			} else {
				s.log.Debug().Err(err).Msg("wifi read failed")
			}
			wifiDue.Countdown(cfg.PollWifi)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.params.Sleep):
		}
	}
}
