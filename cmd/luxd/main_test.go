package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/golux/pkg/board"
	"github.com/itohio/golux/pkg/config"
	"github.com/itohio/golux/pkg/logging"
	"github.com/itohio/golux/pkg/pipeline"
	"github.com/itohio/golux/pkg/state"
)

func TestNewBoard(t *testing.T) {
	cfg := config.Default()

	assert.IsType(t, &board.Mock{}, newBoard(cfg, true, logging.Discard()))
	assert.IsType(t, &board.Serial{}, newBoard(cfg, false, logging.Discard()))
}

func TestRun_ConnectFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Serial.Port = "/dev/golux-does-not-exist"

	err := run(context.Background(), cfg, newBoard(cfg, false, logging.Discard()), logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect board")
}

func TestRun_MockBoard(t *testing.T) {
	cfg := config.Default()
	cfg.Sampler.Period = 5 * time.Millisecond
	cfg.State.InitialMode = "automatic"
	cfg.State.InitialIntensity = 60

	b := board.NewMock(&cfg.Mock, cfg.ADC.MaxCode())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, b, logging.Discard()) }()

	require.Eventually(t, func() bool {
		_, on := b.PWM()
		return b.IsConnected() && on < cfg.PWM.PeriodUs
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
	assert.False(t, b.IsConnected())
}

func TestWire_Latest(t *testing.T) {
	cfg := config.Default()
	b := board.NewMock(&cfg.Mock, cfg.ADC.MaxCode())
	require.NoError(t, b.Connect())
	defer b.Close()

	l, err := pipeline.New(cfg, b, logging.Discard())
	require.NoError(t, err)

	latest := wire(l, cfg, logging.Discard())

	l.State.SetMode(state.ModeManual)
	_, err = l.Actuator.Apply(pipeline.Request{Origin: pipeline.OriginButton})
	require.NoError(t, err)

	snap := latest.Load()
	assert.Equal(t, "manual", snap.Mode)
	assert.Equal(t, uint32(900), snap.OnTimeUs)
}

func TestReportStats_StopsOnCancel(t *testing.T) {
	cfg := config.Default()
	b := board.NewMock(&cfg.Mock, cfg.ADC.MaxCode())
	l, err := pipeline.New(cfg, b, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.NoError(t, reportStats(l, time.Millisecond, logging.Discard())(ctx))
}
