// Command luxd runs the light controller without a UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/golux/pkg/board"
	"github.com/itohio/golux/pkg/config"
	"github.com/itohio/golux/pkg/logging"
	"github.com/itohio/golux/pkg/pipeline"
	"github.com/itohio/golux/pkg/telemetry"
)

const statsInterval = time.Minute

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., /dev/ttyACM0)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use simulated board instead of serial port")
		logLevelFlag = flag.String("log-level", "", "Log level override (error, warn, info, debug)")
		listenFlag   = flag.String("listen", "", "HTTP listen address override for /ws and /metrics")
		brokerFlag   = flag.String("mqtt", "", "MQTT broker override (e.g., tcp://localhost:1883)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *logLevelFlag != "" {
		cfg.Logging.Level = *logLevelFlag
	}
	if *listenFlag != "" {
		cfg.Telemetry.HTTP.Listen = *listenFlag
	}
	if *brokerFlag != "" {
		cfg.Telemetry.MQTT.Broker = *brokerFlag
	}

	logger, err := logging.Setup(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, newBoard(cfg, *mockFlag, logger), logger); err != nil {
		logger.Error("luxd failed", "error", err)
		os.Exit(1)
	}
}

func newBoard(cfg *config.Config, mock bool, logger *slog.Logger) board.Board {
	if mock {
		return board.NewMock(&cfg.Mock, cfg.ADC.MaxCode())
	}
	return board.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate, logging.Component(logger, "board"))
}

// run connects b, wires the optional inputs and outputs and runs the loop
// until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, b board.Board, logger *slog.Logger) error {
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect board: %w", err)
	}
	defer b.Close()

	l, err := pipeline.New(cfg, b, logger)
	if err != nil {
		return err
	}

	wire(l, cfg, logger)

	return l.Run(ctx)
}

// wire registers button sources and telemetry sinks enabled in cfg.
func wire(l *pipeline.Loop, cfg *config.Config, logger *slog.Logger) *telemetry.Latest {
	maxCode := cfg.ADC.MaxCode()
	latest := &telemetry.Latest{}
	sinks := []telemetry.Sink{latest}

	if len(cfg.Buttons.Evdev.Devices) > 0 {
		ev := board.NewEvdevButtons(cfg.Buttons.Evdev, logging.Component(logger, "evdev"))
		l.Go("evdev", func(ctx context.Context) error {
			return ev.Run(ctx, l.Buttons.HandleEdge)
		})
	}

	if cfg.Telemetry.MQTT.Broker != "" {
		m := telemetry.NewMQTT(cfg.Telemetry.MQTT, l.Buttons.HandleEdge, logging.Component(logger, "mqtt"))
		sinks = append(sinks, m)
		l.Go("mqtt", m.Run)
	}

	if cfg.Telemetry.HTTP.Listen != "" {
		metrics := telemetry.NewMetrics(l, maxCode)
		hub := telemetry.NewHub(logging.Component(logger, "ws"), latest.Load, 0, 0)
		srv := telemetry.NewServer(cfg.Telemetry.HTTP.Listen, hub, metrics, logging.Component(logger, "http"))
		sinks = append(sinks, metrics, hub)
		l.Go("ws-hub", hub.Run)
		l.Go("http", srv.Run)
	}

	telemetry.Attach(l, maxCode, sinks...)
	l.Go("stats", reportStats(l, statsInterval, logging.Component(logger, "stats")))

	return latest
}

// reportStats periodically logs the loop counters.
func reportStats(l *pipeline.Loop, interval time.Duration, logger *slog.Logger) pipeline.Task {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				st := l.Stats()
				logger.Info("stats",
					"samples", st.Sampler.Samples,
					"read_errors", st.Sampler.Errors,
					"out_of_range", st.Sampler.OutOfRange,
					"skipped_periods", st.Sampler.Skipped,
					"updates", st.Updates,
					"pwm_applied", st.Actuator.Applied,
					"pwm_errors", st.Actuator.Errors,
					"buttons", st.ButtonsHandled,
					"button_drops", st.ButtonDrops,
					"samples_coalesced", st.SamplesCoalesced,
					"actuations_coalesced", st.ActuationsCoalesced,
				)
			}
		}
	}
}
