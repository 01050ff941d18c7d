package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/golux/pkg/config"
	"github.com/itohio/golux/pkg/logging"
	"github.com/itohio/golux/pkg/pi"
	"github.com/itohio/golux/pkg/sample"
	"github.com/itohio/golux/pkg/signal"
	"github.com/itohio/golux/pkg/state"
)

func newTestRegulator(st *state.Shared) (*Regulator, *signal.Signal[sample.Reading], *signal.Signal[Request]) {
	cfg := config.Default()
	in := signal.New[sample.Reading]()
	out := signal.New[Request]()
	r := NewRegulator(st, in, out, cfg.Filter.Size, cfg.Filter.DeviationPercent,
		cfg.ADC.MaxCode(), pi.New(cfg.Controller), logging.Discard())
	return r, in, out
}

func reading(raw uint16) sample.Reading {
	return sample.Reading{Timestamp: time.Now(), Raw: raw}
}

func TestRegulator_Process_EndToEnd(t *testing.T) {
	st := state.New(state.ModeAutomatic, 10)
	r, _, out := newTestRegulator(st)

	// Until the history holds ten samples of 512 the zero slots pull the
	// band below 512 and the trimmed mean stays 0: nine steps of +5.
	var res Result
	for i := 0; i < 10; i++ {
		res = r.Process(reading(512))
	}

	assert.Equal(t, uint16(512), res.Filter.Value)
	assert.Equal(t, 10, res.Filter.Kept)
	assert.Equal(t, 50, res.Intensity)
	assert.Equal(t, 10, res.Target)
	assert.Equal(t, float32(-40), res.Controller.Error)
	assert.Equal(t, float32(-20), res.Controller.Proportional)
	assert.Equal(t, 25, res.DutyCycle, "45 - 20")

	assert.Equal(t, uint16(512), st.TrimmedMean())
	assert.Equal(t, 25, st.DutyCycle())

	req, ok := out.TryWait()
	require.True(t, ok)
	assert.Equal(t, OriginController, req.Origin)
	assert.Equal(t, uint64(9), out.Coalesced(), "unconsumed requests coalesce into one permit")
}

func TestRegulator_Process_WarmUp(t *testing.T) {
	st := state.New(state.ModeAutomatic, 10)
	r, _, _ := newTestRegulator(st)

	// One sample among nine zero slots: the band around mean 51 is empty.
	res := r.Process(reading(512))
	assert.Equal(t, uint16(0), res.Filter.Value)
	assert.Equal(t, 0, res.Intensity)

	// error = 10 => p = 5
	assert.Equal(t, 5, res.DutyCycle)
	assert.Equal(t, 5, st.DutyCycle())
	assert.Equal(t, []uint16{512, 0, 0, 0, 0, 0, 0, 0, 0, 0}, r.History())
}

func TestRegulator_Process_SetpointFollowsIntensity(t *testing.T) {
	st := state.New(state.ModeAutomatic, 60)
	r, _, _ := newTestRegulator(st)

	for i := 0; i < 10; i++ {
		r.Process(reading(0))
	}
	// Dark room, target 60: p = 30 every update until saturation.
	assert.Equal(t, 100, st.DutyCycle())

	st.StepIntensity(-60)
	res := r.Process(reading(0))
	assert.Equal(t, 0, res.Target)
	assert.Equal(t, 100, res.DutyCycle, "zero error leaves the duty unchanged")
}

func TestRegulator_OnUpdate(t *testing.T) {
	st := state.New(state.ModeAutomatic, 10)
	r, _, _ := newTestRegulator(st)

	var got []Result
	r.OnUpdate(func(res Result) { got = append(got, res) })
	r.OnUpdate(nil)

	r.Process(reading(100))
	r.Process(reading(200))

	require.Len(t, got, 2)
	assert.Equal(t, uint16(100), got[0].Reading.Raw)
	assert.Equal(t, uint16(200), got[1].Reading.Raw)
	assert.Equal(t, uint64(2), r.Updates())
}

func TestRegulator_Run(t *testing.T) {
	st := state.New(state.ModeAutomatic, 10)
	r, in, out := newTestRegulator(st)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	in.Raise(reading(512))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	req, err := out.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, OriginController, req.Origin)
	assert.Equal(t, uint64(1), r.Updates())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("regulator did not stop")
	}
}
