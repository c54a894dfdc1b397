package application

// ChargerType mirrors the platform's charger enumeration as the strings
// published in telemetry.
type ChargerType string

const (
	ChargerUnplugged   ChargerType = "Unplugged"
	ChargerCharging    ChargerType = "Charging"
	ChargerLowPower    ChargerType = "Low Power"
	ChargerUnsupported ChargerType = "Unsupported"
	ChargerUnknown     ChargerType = "Unknown"
)

type BatteryReading struct {
	Percentage   uint32
	VoltageMV    uint32
	TemperatureC int32
	Charging     bool
	ChargerType  ChargerType
}

type TemperatureReading struct {
	SoCCelsius int32
	PCBCelsius int32
}

type WifiReading struct {
	Connected  bool
	RSSIDBm    int32 // 0 when the platform cannot report dBm
	SignalBars uint32
	IP         string // empty when not connected
}

// Sensor backends are external collaborators; the sampler only needs a
// blocking read that either returns a fresh reading or an error.
type BatterySensor interface {
	Read() (BatteryReading, error)
}

type TemperatureSensor interface {
	Read() (TemperatureReading, error)
}

type WifiSensor interface {
	Read() (WifiReading, error)
}
