package application

import "encoding/json"

// BuildTelemetryPayload serializes the current sensor snapshot. Sensors
// that have never been read successfully are omitted entirely rather
// than sent as null or zero values.
func BuildTelemetryPayload(snap Snapshot) ([]byte, error) {
	root := map[string]any{}

	if snap.BatteryValid {
		root["battery"] = map[string]any{
			"percentage":    snap.Battery.Percentage,
			"voltage_mv":    snap.Battery.VoltageMV,
			"temperature_c": snap.Battery.TemperatureC,
			"charging":      snap.Battery.Charging,
			"charger_type":  string(snap.Battery.ChargerType),
		}
	}

	if snap.TemperatureValid {
		root["temperature"] = map[string]any{
			"soc_celsius": snap.Temperature.SoCCelsius,
			"pcb_celsius": snap.Temperature.PCBCelsius,
		}
	}

	if snap.WifiValid {
		wifi := map[string]any{
			"connected":   snap.Wifi.Connected,
			"signal_bars": snap.Wifi.SignalBars,
		}
		if snap.Wifi.RSSIDBm != 0 {
			wifi["rssi_dbm"] = snap.Wifi.RSSIDBm
		}
		if snap.Wifi.Connected {
			wifi["ip"] = snap.Wifi.IP
		}
		root["wifi"] = wifi
	}

	return json.Marshal(root)
}
