package pi

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/golux/pkg/config"
)

func defaultController() *Controller {
	return New(config.Default().Controller)
}

func TestStep_ProportionalTerm(t *testing.T) {
	c := defaultController()

	// Trimmed mean 512 => 50%; manual intensity 10 is the target.
	duty := c.Step(10, 50)
	s := c.State()

	assert.Equal(t, float32(-40), s.Error)
	assert.Equal(t, float32(-20), s.Proportional)
	assert.Equal(t, float32(0), s.Integral, "Ti = 0 keeps the integral at zero")
	assert.Equal(t, 0, duty, "duty is clamped at the lower bound")
	assert.Equal(t, 0, c.DutyCycle())
}

func TestStep_Incremental(t *testing.T) {
	c := defaultController()

	// error 20 => +10 per step
	assert.Equal(t, 10, c.Step(60, 40))
	assert.Equal(t, 20, c.Step(60, 40))
	assert.Equal(t, 30, c.Step(60, 40))

	// error -4 => -2
	assert.Equal(t, 28, c.Step(40, 44))
}

func TestStep_TruncatesTowardZero(t *testing.T) {
	c := defaultController()

	// error 3 => p = 1.5 => 0 + 1.5 truncates to 1
	assert.Equal(t, 1, c.Step(3, 0))
	// error 1 => 1 + 0.5 truncates to 1
	assert.Equal(t, 1, c.Step(1, 0))
	// error -1 => 1 - 0.5 truncates to 0
	assert.Equal(t, 0, c.Step(0, 1))
}

func TestStep_DutyClamp(t *testing.T) {
	c := defaultController()

	for i := 0; i < 20; i++ {
		duty := c.Step(100, 0)
		require.GreaterOrEqual(t, duty, DutyMin)
		require.LessOrEqual(t, duty, DutyMax)
	}
	assert.Equal(t, DutyMax, c.DutyCycle())

	for i := 0; i < 20; i++ {
		c.Step(0, 100)
	}
	assert.Equal(t, DutyMin, c.DutyCycle())
}

func TestStep_IntegralClamp(t *testing.T) {
	tests := []struct {
		name     string
		target   int
		measured int
		want     float32
	}{
		{name: "positive saturation", target: 100, measured: 0, want: 14},
		{name: "negative saturation", target: 0, measured: 100, want: -14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(config.ControllerConfig{Kp: 0.5, Ti: 0.5, IntegralLow: -14, IntegralHigh: 14})

			for i := 0; i < 10; i++ {
				c.Step(tt.target, tt.measured)
				s := c.State()
				require.GreaterOrEqual(t, s.Integral, s.IntegralLow)
				require.LessOrEqual(t, s.Integral, s.IntegralHigh)
			}
			assert.Equal(t, tt.want, c.State().Integral)
		})
	}
}

func TestStep_IntegralAccumulates(t *testing.T) {
	c := New(config.ControllerConfig{Kp: 0, Ti: 0.25, IntegralLow: -14, IntegralHigh: 14})

	// error 8 => integral 2, 4, 6; duty accumulates 2, 6, 12
	assert.Equal(t, 2, c.Step(8, 0))
	assert.Equal(t, 6, c.Step(8, 0))
	assert.Equal(t, 12, c.Step(8, 0))
	assert.Equal(t, float32(6), c.State().Integral)
}

func TestState_Gains(t *testing.T) {
	s := defaultController().State()

	assert.Equal(t, float32(0.5), s.Kp)
	assert.Equal(t, float32(0), s.Ti)
	assert.Equal(t, float32(-14), s.IntegralLow)
	assert.Equal(t, float32(14), s.IntegralHigh)
}

func TestReset(t *testing.T) {
	c := New(config.ControllerConfig{Kp: 0.5, Ti: 0.5, IntegralLow: -14, IntegralHigh: 14})
	c.Step(60, 0)
	require.NotZero(t, c.DutyCycle())

	c.Reset()
	s := c.State()
	assert.Equal(t, 0, c.DutyCycle())
	assert.Equal(t, float32(0), s.Integral)
	assert.Equal(t, float32(0.5), s.Kp, "gains survive a reset")
}

func TestStep_OverflowingGainSaturates(t *testing.T) {
	c := New(config.ControllerConfig{Kp: 3e38, IntegralLow: -14, IntegralHigh: 14})

	assert.Equal(t, DutyMax, c.Step(100, 0))
	assert.True(t, math32.IsInf(c.State().Proportional, 1))

	assert.Equal(t, DutyMin, c.Step(0, 100))
	assert.True(t, math32.IsInf(c.State().Proportional, -1))
}

func TestNew_NonFiniteGainsZeroed(t *testing.T) {
	c := New(config.ControllerConfig{
		Kp:           math32.NaN(),
		Ti:           math32.Inf(1),
		IntegralLow:  -14,
		IntegralHigh: 14,
	})

	s := c.State()
	assert.Equal(t, float32(0), s.Kp)
	assert.Equal(t, float32(0), s.Ti)

	assert.Equal(t, 0, c.Step(80, 10), "zero gains hold the duty cycle")
	assert.Equal(t, float32(0), c.State().Integral)
}
