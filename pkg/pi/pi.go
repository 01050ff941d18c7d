// Package pi implements the incremental PI controller that turns the
// intensity error into a PWM duty cycle.
package pi

import (
	"github.com/chewxy/math32"

	"github.com/itohio/golux/pkg/config"
	"github.com/itohio/golux/pkg/mathx"
)

const (
	DutyMin = 0
	DutyMax = 100
)

// State is the controller's internal state after the last step.
type State struct {
	Error        float32
	Proportional float32
	Integral     float32
	Kp           float32
	Ti           float32
	IntegralLow  float32
	IntegralHigh float32
}

// Controller is an incremental PI controller. Each Step adds the
// proportional and integral terms to the previous duty cycle.
// It is not safe for concurrent use; the regulator owns it.
type Controller struct {
	state State
	duty  int
}

// New creates a controller from the configured gains and limits.
// A non-finite gain is replaced by zero.
func New(cfg config.ControllerConfig) *Controller {
	return &Controller{
		state: State{
			Kp:           finiteOrZero(cfg.Kp),
			Ti:           finiteOrZero(cfg.Ti),
			IntegralLow:  float32(cfg.IntegralLow),
			IntegralHigh: float32(cfg.IntegralHigh),
		},
	}
}

// Step runs one control update and returns the new duty cycle in
// [DutyMin, DutyMax]. target and measured are intensities in percent.
func (c *Controller) Step(target, measured int) int {
	s := &c.state

	s.Error = float32(target - measured)
	s.Proportional = s.Error * s.Kp
	s.Integral = mathx.Clamp(s.Integral+s.Error*s.Ti, s.IntegralLow, s.IntegralHigh)

	// Clamp in float32 before truncating; an overflowing term would make
	// the int conversion undefined.
	next := float32(c.duty) + s.Proportional + s.Integral
	next = math32.Max(DutyMin, math32.Min(DutyMax, next))
	c.duty = int(next)

	return c.duty
}

func finiteOrZero(f float32) float32 {
	if math32.IsNaN(f) || math32.IsInf(f, 0) {
		return 0
	}
	return f
}

// DutyCycle returns the duty cycle computed by the last Step.
func (c *Controller) DutyCycle() int { return c.duty }

// State returns a copy of the controller state.
func (c *Controller) State() State { return c.state }

// Reset clears the error terms and the accumulated duty cycle.
func (c *Controller) Reset() {
	c.state.Error = 0
	c.state.Proportional = 0
	c.state.Integral = 0
	c.duty = 0
}
