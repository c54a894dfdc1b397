package application

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTelemetryPayload_WifiOnly(t *testing.T) {
	snap := Snapshot{
		Wifi:      WifiReading{Connected: true, RSSIDBm: -55, SignalBars: 3, IP: "192.168.1.80"},
		WifiValid: true,
	}

	payload, err := BuildTelemetryPayload(snap)
	require.NoError(t, err)

	var root map[string]any
	require.NoError(t, json.Unmarshal(payload, &root))

	assert.Len(t, root, 1)
	assert.Contains(t, root, "wifi")
	assert.NotContains(t, root, "battery")
	assert.NotContains(t, root, "temperature")
}

func TestBuildTelemetryPayload_AllSensors(t *testing.T) {
	snap := Snapshot{
		Battery: BatteryReading{
			Percentage:   87,
			VoltageMV:    4170,
			TemperatureC: 27,
			Charging:     true,
			ChargerType:  ChargerCharging,
		},
		BatteryValid:     true,
		Temperature:      TemperatureReading{SoCCelsius: 46, PCBCelsius: 38},
		TemperatureValid: true,
		Wifi:             WifiReading{Connected: true, RSSIDBm: -61, SignalBars: 2, IP: "10.1.1.4"},
		WifiValid:        true,
	}

	payload, err := BuildTelemetryPayload(snap)
	require.NoError(t, err)

	var root map[string]map[string]any
	require.NoError(t, json.Unmarshal(payload, &root))

	assert.Equal(t, float64(87), root["battery"]["percentage"])
	assert.Equal(t, float64(4170), root["battery"]["voltage_mv"])
	assert.Equal(t, true, root["battery"]["charging"])
	assert.Equal(t, "Charging", root["battery"]["charger_type"])
	assert.Equal(t, float64(46), root["temperature"]["soc_celsius"])
	assert.Equal(t, float64(38), root["temperature"]["pcb_celsius"])
	assert.Equal(t, float64(-61), root["wifi"]["rssi_dbm"])
	assert.Equal(t, "10.1.1.4", root["wifi"]["ip"])
}

func TestBuildTelemetryPayload_WifiOptionalFields(t *testing.T) {
	// RSSI unavailable and not connected: both keys omitted, not zeroed.
	snap := Snapshot{
		Wifi:      WifiReading{Connected: false, RSSIDBm: 0, SignalBars: 1},
		WifiValid: true,
	}

	payload, err := BuildTelemetryPayload(snap)
	require.NoError(t, err)

	var root map[string]map[string]any
	require.NoError(t, json.Unmarshal(payload, &root))

	wifi := root["wifi"]
	assert.NotContains(t, wifi, "rssi_dbm")
	assert.NotContains(t, wifi, "ip")
	assert.Equal(t, false, wifi["connected"])
	assert.Equal(t, float64(1), wifi["signal_bars"])
}

func TestBuildTelemetryPayload_NothingValid(t *testing.T) {
	payload, err := BuildTelemetryPayload(Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(payload))
}
