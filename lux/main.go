package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/golux/pkg/board"
	"github.com/itohio/golux/pkg/config"
	"github.com/itohio/golux/pkg/logging"
	"github.com/itohio/golux/pkg/pipeline"
	"github.com/itohio/golux/pkg/sample"
	"github.com/itohio/golux/pkg/scope"
)

const traceWindow = 2 * time.Minute

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use simulated board instead of serial port")
		logLevelFlag = flag.String("log-level", "", "Log level override (error, warn, info, debug)")
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

	logger, err := logging.Setup(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	application := app.NewWithID("com.itohio.golux")

	window := application.NewWindow("Light Controller")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		logger:     logger,
		window:     window,
		useMock:    *mockFlag,
	}

	toolbar := createToolbar(state)

	state.scopeWidget = scope.New(traceWindow)

	window.SetContent(container.NewBorder(
		toolbar,
		nil,
		nil,
		nil,
		state.scopeWidget,
	))
	window.SetOnClosed(func() {
		stopControlLoop(state.session)
	})
	window.ShowAndRun()
}

// session tracks a running control loop for graceful shutdown.
type session struct {
	board  board.Board
	loop   *pipeline.Loop
	trace  *sample.Trace
	cancel context.CancelFunc
	done   chan struct{} // Closed when the loop exits
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	logger      *slog.Logger
	scopeWidget *scope.ScopeWidget
	window      fyne.Window
	connectBtn  *widget.Button
	panel       *buttonPanel
	useMock     bool
	session     *session // Current control loop (nil if not connected)

	// Throttling for scope updates
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

// createToolbar creates the application toolbar with Connect, Settings and
// the board button panel.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	state.panel = newButtonPanel(state)
	state.panel.setEnabled(false)

	return container.NewBorder(
		nil, // top
		nil, // bottom
		container.NewHBox(connectBtn, settingsBtn, state.panel.status), // left
		state.panel.buttons(), // right
		nil,                   // center (spacer)
	)
}

// stopControlLoop cancels the loop, waits for it to exit and closes the board.
func stopControlLoop(s *session) {
	if s == nil {
		return
	}

	s.cancel()
	<-s.done

	if err := s.board.Close(); err != nil {
		slog.Warn("board close failed", "error", err)
	}
}

func (state *appState) newBoard() board.Board {
	if state.useMock {
		return board.NewMock(&state.cfg.Mock, state.cfg.ADC.MaxCode())
	}
	return board.NewSerial(state.cfg.Serial.Port, state.cfg.Serial.BaudRate, logging.Component(state.logger, "board"))
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.session != nil {
		stopControlLoop(state.session)
		state.session = nil
		state.panel.setEnabled(false)
		state.logger.Info("disconnected", "mock", state.useMock)
		return
	}

	b := state.newBoard()
	if err := b.Connect(); err != nil {
		if state.useMock {
			dialog.ShowError(fmt.Errorf("failed to connect to simulated board: %w", err), state.window)
		} else {
			dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.cfg.Serial.Port, err), state.window)
		}
		return
	}

	l, err := pipeline.New(state.cfg, b, state.logger)
	if err != nil {
		b.Close()
		dialog.ShowError(err, state.window)
		return
	}

	s := &session{
		board: b,
		loop:  l,
		trace: sample.NewTrace(traceWindow),
		done:  make(chan struct{}),
	}

	// Registered before the loop starts so the first actuation is traced.
	maxCode := state.cfg.ADC.MaxCode()
	l.Actuator.OnApply(func(act pipeline.Actuation) {
		onActuation(state, s, act, maxCode)
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		if err := l.Run(ctx); err != nil {
			state.logger.Error("control loop failed", "error", err)
		}
	}()

	state.session = s
	state.panel.setEnabled(true)
	state.logger.Info("connected", "mock", state.useMock, "port", state.cfg.Serial.Port)
}
