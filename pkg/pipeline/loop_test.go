package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/golux/pkg/board"
	"github.com/itohio/golux/pkg/config"
	"github.com/itohio/golux/pkg/logging"
	"github.com/itohio/golux/pkg/state"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Sampler.Period = 5 * time.Millisecond
	cfg.Mock = config.MockConfig{Ambient: 0.1, LampGain: 0.8}
	return cfg
}

func TestNew_InvalidMode(t *testing.T) {
	cfg := testConfig()
	cfg.State.InitialMode = "turbo"

	_, err := New(cfg, &fakeBoard{}, logging.Discard())
	assert.Error(t, err)
}

func TestNew_InitialState(t *testing.T) {
	l, err := New(testConfig(), &fakeBoard{}, logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, state.ModeManual, l.State.Mode())
	assert.Equal(t, 10, l.State.Intensity())
	assert.Equal(t, 0, l.State.DutyCycle())
	assert.Equal(t, time.Duration(5*time.Millisecond), l.Sampler.Period())
	assert.Equal(t, uint32(1000), l.Actuator.PeriodUs())
}

func TestLoop_ButtonsWiredToBoard(t *testing.T) {
	b := &fakeBoard{}
	l, err := New(testConfig(), b, logging.Discard())
	require.NoError(t, err)

	b.press(board.ButtonUp)
	b.press(board.ButtonUp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return len(b.Writes()) > 0 && l.State.Intensity() == 12 },
		time.Second, time.Millisecond)
	assert.Equal(t, 0, b.Calls(), "manual mode does not sample")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoop_AutomaticWithMockBoard(t *testing.T) {
	cfg := testConfig()
	cfg.State.InitialMode = "automatic"
	cfg.State.InitialIntensity = 50

	mock := board.NewMock(&cfg.Mock, cfg.ADC.MaxCode())
	require.NoError(t, mock.Connect())
	defer mock.Close()

	l, err := New(cfg, mock, logging.Discard())
	require.NoError(t, err)

	var actuations []Actuation
	applied := make(chan struct{}, 1)
	l.Actuator.OnApply(func(a Actuation) {
		actuations = append(actuations, a)
		select {
		case applied <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return l.Stats().Actuator.Applied >= 5 }, 2*time.Second, time.Millisecond)
	assert.Greater(t, l.State.DutyCycle(), 0, "dark room drives the duty up")

	_, onTime := mock.PWM()
	assert.Less(t, onTime, uint32(1000), "lamp is lit")

	// Switching to manual stops sampling; the intensity buttons drive the lamp.
	mock.Press(board.ButtonManual)
	require.Eventually(t, func() bool { return l.State.Mode() == state.ModeManual }, time.Second, time.Millisecond)
	mock.Press(board.ButtonDown)
	require.Eventually(t, func() bool {
		_, on := mock.PWM()
		return on == OnTime(49, 1000)
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}

	stats := l.Stats()
	assert.Greater(t, stats.Sampler.Samples, uint64(0))
	assert.Greater(t, stats.Updates, uint64(0))
	assert.Equal(t, uint64(2), stats.ButtonsHandled)
	assert.Equal(t, uint64(0), stats.ButtonDrops)
	assert.NotEmpty(t, actuations)
}

func TestLoop_FailingTaskDoesNotStopLoop(t *testing.T) {
	l, err := New(testConfig(), &fakeBoard{}, logging.Discard())
	require.NoError(t, err)

	ran := make(chan struct{})
	l.Go("broken", func(ctx context.Context) error {
		close(ran)
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}

	// The control loop keeps serving buttons.
	l.Buttons.HandleEdge(board.ButtonUp)
	require.Eventually(t, func() bool { return l.State.Intensity() == 11 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}
