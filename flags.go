package main

import "github.com/urfave/cli/v2"

var FlagLogLevel = &cli.StringFlag{
	Name:     "log-level",
	EnvVars:  []string{"LOG_LEVEL"},
	Value:    "info",
	Required: false,
}

var FlagLogWriter = &cli.StringFlag{
	Name:     "log-writer",
	EnvVars:  []string{"LOG_WRITER"},
	Value:    "console",
	Required: false,
}

var FlagBrokerHost = &cli.StringFlag{
	Name:     "broker-host",
	Usage:    "MQTT broker address",
	EnvVars:  []string{"BROKER_HOST"},
	Required: true,
}

var FlagBrokerPort = &cli.IntFlag{
	Name:     "broker-port",
	EnvVars:  []string{"BROKER_PORT"},
	Value:    1883,
	Required: false,
}

var FlagClientID = &cli.StringFlag{
	Name:     "client-id",
	EnvVars:  []string{"CLIENT_ID"},
	Value:    "switch-01",
	Required: false,
}

var FlagTopicPrefix = &cli.StringFlag{
	Name:     "topic-prefix",
	Usage:    "prefix for the telemetry/cmd/response topics",
	EnvVars:  []string{"TOPIC_PREFIX"},
	Value:    "switch",
	Required: false,
}

var FlagPublishInterval = &cli.IntFlag{
	Name:     "publish-interval-ms",
	Usage:    "telemetry publish interval, adjustable at runtime via set_interval",
	EnvVars:  []string{"PUBLISH_INTERVAL_MS"},
	Value:    5000,
	Required: false,
}

var FlagPollBattery = &cli.IntFlag{
	Name:     "poll-battery-ms",
	EnvVars:  []string{"POLL_BATTERY_MS"},
	Value:    30000,
	Required: false,
}

var FlagPollTemp = &cli.IntFlag{
	Name:     "poll-temp-ms",
	EnvVars:  []string{"POLL_TEMP_MS"},
	Value:    10000,
	Required: false,
}

var FlagPollWifi = &cli.IntFlag{
	Name:     "poll-wifi-ms",
	EnvVars:  []string{"POLL_WIFI_MS"},
	Value:    5000,
	Required: false,
}

var FlagKeepAlive = &cli.IntFlag{
	Name:     "keepalive-s",
	EnvVars:  []string{"KEEPALIVE_S"},
	Value:    60,
	Required: false,
}

var FlagReconnectInitial = &cli.IntFlag{
	Name:     "reconnect-initial-ms",
	Usage:    "initial reconnect backoff delay",
	EnvVars:  []string{"RECONNECT_INITIAL_MS"},
	Value:    1000,
	Required: false,
}

var FlagReconnectMax = &cli.IntFlag{
	Name:     "reconnect-max-ms",
	Usage:    "reconnect backoff cap",
	EnvVars:  []string{"RECONNECT_MAX_MS"},
	Value:    30000,
	Required: false,
}
