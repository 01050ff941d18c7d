package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/golux/pkg/mathx"
	"github.com/itohio/golux/pkg/signal"
	"github.com/itohio/golux/pkg/state"
)

// Actuation describes one PWM update.
type Actuation struct {
	Time     time.Time
	Origin   Origin
	Mode     state.Mode
	Percent  int // Duty cycle applied (%)
	PeriodUs uint32
	OnTimeUs uint32 // Output-high time; the lamp is lit for PeriodUs-OnTimeUs
	Err      error
}

// ActuatorStats counts actuator outcomes.
type ActuatorStats struct {
	Applied uint64
	Errors  uint64
}

// OnTime maps a duty cycle to the on-time of an active-low output:
// 100% yields 0 and 0% yields the whole period. percent is clamped to [0,100].
func OnTime(percent int, periodUs uint32) uint32 {
	pct := uint32(mathx.Clamp(percent, state.MinPercent, state.MaxPercent))
	return periodUs - pct*periodUs/100
}

// Actuator applies the active duty cycle to the PWM output whenever an
// actuation is requested.
type Actuator struct {
	pwm      PWMWriter
	state    *state.Shared
	in       *signal.Signal[Request]
	periodUs uint32
	logger   *slog.Logger

	applied atomic.Uint64
	errors  atomic.Uint64

	callbacks []func(Actuation)
	cbMu      sync.RWMutex
}

// NewActuator creates an actuator driving pwm with the given period.
func NewActuator(pwm PWMWriter, st *state.Shared, in *signal.Signal[Request], periodUs uint32, logger *slog.Logger) *Actuator {
	return &Actuator{
		pwm:      pwm,
		state:    st,
		in:       in,
		periodUs: periodUs,
		logger:   logger,
	}
}

// Run applies one update per signal permit until ctx is cancelled.
func (a *Actuator) Run(ctx context.Context) error {
	for {
		req, err := a.in.Wait(ctx)
		if err != nil {
			return nil
		}
		a.Apply(req)
	}
}

// Apply selects the duty source by mode and writes the PWM output.
// In manual mode the manual intensity is applied, in automatic mode the
// controller output. Board errors are logged and returned but never stop
// the actuator.
func (a *Actuator) Apply(req Request) (uint32, error) {
	mode := a.state.Mode()
	pct := a.state.Intensity()
	if mode == state.ModeAutomatic {
		pct = a.state.DutyCycle()
	}

	onTime := OnTime(pct, a.periodUs)
	err := a.pwm.SetPWM(a.periodUs, onTime)
	if err != nil {
		a.errors.Add(1)
		a.logger.Warn("pwm update failed", "percent", pct, "on_us", onTime, "error", err)
	} else {
		a.applied.Add(1)
		a.logger.Debug("pwm updated", "origin", req.Origin, "mode", mode, "percent", pct, "on_us", onTime)
	}

	ts := req.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	a.notifyCallbacks(Actuation{
		Time:     ts,
		Origin:   req.Origin,
		Mode:     mode,
		Percent:  pct,
		PeriodUs: a.periodUs,
		OnTimeUs: onTime,
		Err:      err,
	})

	return onTime, err
}

// PeriodUs returns the PWM period.
func (a *Actuator) PeriodUs() uint32 { return a.periodUs }

// Stats returns the actuator counters.
func (a *Actuator) Stats() ActuatorStats {
	return ActuatorStats{
		Applied: a.applied.Load(),
		Errors:  a.errors.Load(),
	}
}

// OnApply registers a callback invoked after every Apply.
func (a *Actuator) OnApply(callback func(Actuation)) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()
	a.callbacks = append(a.callbacks, callback)
}

func (a *Actuator) notifyCallbacks(act Actuation) {
	a.cbMu.RLock()
	callbacks := make([]func(Actuation), len(a.callbacks))
	copy(callbacks, a.callbacks)
	a.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(act)
		}
	}
}
