package adapters

import (
	"math/rand"

	"telemetry-agent/application"
)

// Simulated sensor backends. The platform HAL (battery fuel gauge,
// thermal sensor, wifi radio) is an external collaborator; these
// stand-ins produce plausible drifting readings so the agent can run
// against a real broker on any machine.

type SimulatedBattery struct {
	percentage float64
	charging   bool
	rng        *rand.Rand
}

func NewSimulatedBattery(seed int64) *SimulatedBattery {
	return &SimulatedBattery{
		percentage: 87,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (b *SimulatedBattery) Read() (application.BatteryReading, error) {
	if b.charging {
		b.percentage += 0.5
		if b.percentage >= 95 {
			b.charging = false
		}
	} else {
		b.percentage -= 0.1
		if b.percentage <= 20 {
			b.charging = true
		}
	}

	charger := application.ChargerUnplugged
	if b.charging {
		charger = application.ChargerCharging
	}

	return application.BatteryReading{
		Percentage:   uint32(b.percentage),
		VoltageMV:    3300 + uint32(b.percentage*10),
		TemperatureC: 25 + int32(b.rng.Intn(4)),
		Charging:     b.charging,
		ChargerType:  charger,
	}, nil
}

type SimulatedTemperature struct {
	rng *rand.Rand
}

func NewSimulatedTemperature(seed int64) *SimulatedTemperature {
	return &SimulatedTemperature{rng: rand.New(rand.NewSource(seed))}
}

func (t *SimulatedTemperature) Read() (application.TemperatureReading, error) {
	return application.TemperatureReading{
		SoCCelsius: 42 + int32(t.rng.Intn(8)),
		PCBCelsius: 36 + int32(t.rng.Intn(5)),
	}, nil
}

type SimulatedWifi struct {
	rng *rand.Rand
}

func NewSimulatedWifi(seed int64) *SimulatedWifi {
	return &SimulatedWifi{rng: rand.New(rand.NewSource(seed))}
}

func (w *SimulatedWifi) Read() (application.WifiReading, error) {
	return application.WifiReading{
		Connected:  true,
		RSSIDBm:    -50 - int32(w.rng.Intn(15)),
		SignalBars: 3,
		IP:         "192.168.1.80",
	}, nil
}

var (
	_ application.BatterySensor     = &SimulatedBattery{}
	_ application.TemperatureSensor = &SimulatedTemperature{}
	_ application.WifiSensor        = &SimulatedWifi{}
)
