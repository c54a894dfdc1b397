package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telemetry-agent/adapters"
	"telemetry-agent/application"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var Flags = []cli.Flag{
	FlagLogLevel,
	FlagLogWriter,
	FlagBrokerHost,
	FlagBrokerPort,
	FlagClientID,
	FlagTopicPrefix,
	FlagPublishInterval,
	FlagPollBattery,
	FlagPollTemp,
	FlagPollWifi,
	FlagKeepAlive,
	FlagReconnectInitial,
	FlagReconnectMax,
}

func main() {
	var logger zerolog.Logger

	app := cli.App{
		Name:    "telemetry-agent",
		Version: "v0.1.0",
		Flags:   Flags,
		Before: func(ctx *cli.Context) error {
			var logWriter io.Writer
			if ctx.String(FlagLogWriter.Name) == "console" {
				logWriter = zerolog.ConsoleWriter{
					Out:        os.Stderr,
					TimeFormat: time.RFC3339Nano,
				}
			} else if ctx.String(FlagLogWriter.Name) == "json" {
				logWriter = os.Stderr
			}

			logger = zerolog.New(logWriter).With().Timestamp().
				Str("service", "telemetry-agent").
				Str("module", "main").
				Logger()

			level, err := zerolog.ParseLevel(ctx.String(FlagLogLevel.Name))
			if err != nil {
				return err
			}

			zerolog.SetGlobalLevel(level)

			return nil
		},
		Action: func(ctx *cli.Context) error {
			logger.Info().
				Str("broker", ctx.String(FlagBrokerHost.Name)).
				Int("port", ctx.Int(FlagBrokerPort.Name)).
				Str("client_id", ctx.String(FlagClientID.Name)).
				Str("topic_prefix", ctx.String(FlagTopicPrefix.Name)).
				Msg("agent starting...")

			appCtx, cancel := context.WithCancel(logger.WithContext(context.Background()))
			go func() {
				c := make(chan os.Signal, 1)
				signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

				<-c

				logger.Warn().Msg("interrupt signal received")
				cancel()
			}()

			state := application.NewSharedState(application.RuntimeConfig{
				PublishInterval: time.Duration(ctx.Int(FlagPublishInterval.Name)) * time.Millisecond,
				PollBattery:     time.Duration(ctx.Int(FlagPollBattery.Name)) * time.Millisecond,
				PollTemp:        time.Duration(ctx.Int(FlagPollTemp.Name)) * time.Millisecond,
				PollWifi:        time.Duration(ctx.Int(FlagPollWifi.Name)) * time.Millisecond,
			})

			transport := adapters.NewTCPTransport(adapters.TCPTransportParams{
				Log: logger.With().Str("module", "transport").Logger(),
			})

			session := adapters.NewMQTTSession(adapters.MQTTSessionParams{
				BrokerHost: ctx.String(FlagBrokerHost.Name),
				BrokerPort: ctx.Int(FlagBrokerPort.Name),
				ClientID:   ctx.String(FlagClientID.Name),
				KeepAlive:  time.Duration(ctx.Int(FlagKeepAlive.Name)) * time.Second,
				Transport:  transport,
				Log:        logger.With().Str("module", "session").Logger(),
			})

			reconnect := application.NewReconnectController(application.ReconnectControllerParams{
				Session:      session,
				InitialDelay: time.Duration(ctx.Int(FlagReconnectInitial.Name)) * time.Millisecond,
				MaxDelay:     time.Duration(ctx.Int(FlagReconnectMax.Name)) * time.Millisecond,
				Log:          logger.With().Str("module", "reconnect").Logger(),
			})

			commands := application.NewCommandHandler(application.CommandHandlerParams{
				State: state,
				Log:   logger.With().Str("module", "commands").Logger(),
			})

			seed := time.Now().UnixNano()
			sampler, err := application.NewSampler(application.SamplerParams{
				State:       state,
				Battery:     adapters.NewSimulatedBattery(seed),
				Temperature: adapters.NewSimulatedTemperature(seed + 1),
				Wifi:        adapters.NewSimulatedWifi(seed + 2),
				Log:         logger.With().Str("module", "sampler").Logger(),
			})
			if err != nil {
				return err
			}

			agent, err := application.NewAgentService(application.AgentServiceParams{
				Session:     session,
				Reconnect:   reconnect,
				Commands:    commands,
				Sampler:     sampler,
				State:       state,
				TopicPrefix: ctx.String(FlagTopicPrefix.Name),
				Log:         logger.With().Str("module", "agent").Logger(),
			})
			if err != nil {
				return err
			}

			logger.Info().Msg("agent started")
			err = agent.Run(appCtx)
			if err != nil {
				return err
			}

			logger.Info().Msg("agent terminating...")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Err(err).Msg("agent terminated")
	}
}
