package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/itohio/golux/pkg/pi"
	"github.com/itohio/golux/pkg/sample"
	"github.com/itohio/golux/pkg/signal"
	"github.com/itohio/golux/pkg/state"
)

// Result is the outcome of one filter and control update.
type Result struct {
	Reading    sample.Reading
	Filter     sample.Trimmed
	Intensity  int // Measured intensity (%)
	Target     int // Setpoint (%)
	DutyCycle  int // Controller output (%)
	Controller pi.State
}

// Regulator filters published samples and runs the PI controller.
type Regulator struct {
	state     *state.Shared
	in        *signal.Signal[sample.Reading]
	out       *signal.Signal[Request]
	deviation int
	maxCode   uint16
	logger    *slog.Logger

	mu      sync.Mutex
	history *sample.History
	ctrl    *pi.Controller

	updates atomic.Uint64

	callbacks []func(Result)
	cbMu      sync.RWMutex
}

// NewRegulator creates a regulator over a history of historySize samples.
func NewRegulator(st *state.Shared, in *signal.Signal[sample.Reading], out *signal.Signal[Request], historySize, deviationPercent int, maxCode uint16, ctrl *pi.Controller, logger *slog.Logger) *Regulator {
	return &Regulator{
		state:     st,
		in:        in,
		out:       out,
		deviation: deviationPercent,
		maxCode:   maxCode,
		logger:    logger,
		history:   sample.NewHistory(historySize),
		ctrl:      ctrl,
	}
}

// Run processes one reading per signal permit until ctx is cancelled.
func (r *Regulator) Run(ctx context.Context) error {
	for {
		reading, err := r.in.Wait(ctx)
		if err != nil {
			return nil
		}
		r.Process(reading)
	}
}

// Process inserts reading into the history, updates the controller,
// publishes the trimmed mean and duty cycle and requests an actuation.
func (r *Regulator) Process(reading sample.Reading) Result {
	r.mu.Lock()
	r.history.Insert(reading.Raw)
	tm := r.history.TrimmedMean(r.deviation)

	intensity := sample.Percent(tm.Value, r.maxCode)
	target := r.state.Intensity()
	duty := r.ctrl.Step(target, intensity)

	res := Result{
		Reading:    reading,
		Filter:     tm,
		Intensity:  intensity,
		Target:     target,
		DutyCycle:  duty,
		Controller: r.ctrl.State(),
	}
	r.mu.Unlock()

	r.state.PublishTrimmedMean(tm.Value)
	r.state.PublishDutyCycle(duty)
	r.updates.Add(1)

	r.logger.Debug("regulated",
		"avg", tm.Value,
		"kept", tm.Kept,
		"target", target,
		"intensity", intensity,
		"error", res.Controller.Error,
		"duty", duty,
	)

	r.out.Raise(Request{Origin: OriginController, Time: reading.Timestamp})
	r.notifyCallbacks(res)

	return res
}

// History returns a copy of the sample history slots.
func (r *Regulator) History() []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.Values()
}

// Updates returns the number of processed readings.
func (r *Regulator) Updates() uint64 { return r.updates.Load() }

// OnUpdate registers a callback invoked after every Process.
// The callback should return quickly; it runs on the regulator goroutine.
func (r *Regulator) OnUpdate(callback func(Result)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

func (r *Regulator) notifyCallbacks(res Result) {
	r.cbMu.RLock()
	callbacks := make([]func(Result), len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(res)
		}
	}
}
