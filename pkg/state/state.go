package state

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/itohio/golux/pkg/mathx"
)

// Mode is the operating mode of the controller.
type Mode int32

const (
	ModeManual Mode = iota
	ModeAutomatic
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeAutomatic:
		return "automatic"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual":
		return ModeManual, nil
	case "automatic", "auto":
		return ModeAutomatic, nil
	default:
		return 0, fmt.Errorf("invalid mode: %q (must be manual or automatic)", s)
	}
}

const (
	MinPercent = 0
	MaxPercent = 100
)

// Shared holds the process-wide values exchanged between the pipeline stages.
//
// Each value has exactly one writer:
//   - mode, intensity: button handler
//   - raw sample: sampler
//   - trimmed mean, duty cycle: regulator
//
// Readers may observe a stale value but never a torn one.
type Shared struct {
	mode      atomic.Int32
	intensity atomic.Int32

	sample      atomic.Uint32
	trimmedMean atomic.Uint32
	dutyCycle   atomic.Int32
}

// New creates the shared state with the given initial mode and manual intensity.
// The intensity is clamped to [0,100].
func New(mode Mode, intensity int) *Shared {
	s := &Shared{}
	s.mode.Store(int32(mode))
	s.intensity.Store(int32(mathx.Clamp(intensity, MinPercent, MaxPercent)))
	return s
}

// Mode returns the current operating mode.
func (s *Shared) Mode() Mode { return Mode(s.mode.Load()) }

// SetMode switches the operating mode and reports whether it changed.
// The manual intensity is left untouched.
func (s *Shared) SetMode(m Mode) bool {
	return Mode(s.mode.Swap(int32(m))) != m
}

// Intensity returns the manual intensity (%). It is also the setpoint used in
// automatic mode.
func (s *Shared) Intensity() int { return int(s.intensity.Load()) }

// StepIntensity adds delta to the manual intensity, clamps the result to
// [0,100] and returns it.
func (s *Shared) StepIntensity(delta int) int {
	for {
		cur := s.intensity.Load()
		next := int32(mathx.Clamp(int(cur)+delta, MinPercent, MaxPercent))
		if s.intensity.CompareAndSwap(cur, next) {
			return int(next)
		}
	}
}

// Sample returns the latest raw sample published by the sampler.
func (s *Shared) Sample() uint16 { return uint16(s.sample.Load()) }

// PublishSample stores the latest raw sample.
func (s *Shared) PublishSample(raw uint16) { s.sample.Store(uint32(raw)) }

// TrimmedMean returns the latest filtered sample.
func (s *Shared) TrimmedMean() uint16 { return uint16(s.trimmedMean.Load()) }

// PublishTrimmedMean stores the latest filtered sample.
func (s *Shared) PublishTrimmedMean(v uint16) { s.trimmedMean.Store(uint32(v)) }

// DutyCycle returns the duty cycle (%) computed by the controller.
func (s *Shared) DutyCycle() int { return int(s.dutyCycle.Load()) }

// PublishDutyCycle stores the controller output clamped to [0,100].
func (s *Shared) PublishDutyCycle(pct int) {
	s.dutyCycle.Store(int32(mathx.Clamp(pct, MinPercent, MaxPercent)))
}

// ActivePercent returns the duty cycle the actuator should apply: the manual
// intensity in manual mode, the controller output in automatic mode.
func (s *Shared) ActivePercent() int {
	if s.Mode() == ModeManual {
		return s.Intensity()
	}
	return s.DutyCycle()
}

// Snapshot is a point-in-time copy of the shared values.
type Snapshot struct {
	Mode        Mode
	Intensity   int
	Sample      uint16
	TrimmedMean uint16
	DutyCycle   int
}

// Snapshot copies all shared values. Values are read individually, so the
// copy is not atomic as a whole.
func (s *Shared) Snapshot() Snapshot {
	return Snapshot{
		Mode:        s.Mode(),
		Intensity:   s.Intensity(),
		Sample:      s.Sample(),
		TrimmedMean: s.TrimmedMean(),
		DutyCycle:   s.DutyCycle(),
	}
}
