package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/itohio/golux/pkg/sample"
	"github.com/itohio/golux/pkg/signal"
	"github.com/itohio/golux/pkg/state"
)

// SamplerStats counts sampler outcomes.
type SamplerStats struct {
	Cycles     uint64 // Periods elapsed
	Samples    uint64 // Samples published
	Errors     uint64 // Failed acquisitions
	OutOfRange uint64 // Discarded samples above the ADC range
	Skipped    uint64 // Periods dropped after an overrun
}

// Sampler periodically acquires one analog sample while the controller is
// in automatic mode and hands it to the regulator.
type Sampler struct {
	reader AnalogReader
	state  *state.Shared
	conv   sample.Converter
	out    *signal.Signal[sample.Reading]
	period time.Duration
	logger *slog.Logger

	cycles     atomic.Uint64
	samples    atomic.Uint64
	errors     atomic.Uint64
	outOfRange atomic.Uint64
	skipped    atomic.Uint64
}

// NewSampler creates a sampler firing every period. A non-positive period
// falls back to one second.
func NewSampler(reader AnalogReader, st *state.Shared, conv sample.Converter, out *signal.Signal[sample.Reading], period time.Duration, logger *slog.Logger) *Sampler {
	if period <= 0 {
		period = time.Second
	}
	return &Sampler{
		reader: reader,
		state:  st,
		conv:   conv,
		out:    out,
		period: period,
		logger: logger,
	}
}

// Run steps the sampler every period until ctx is cancelled. Release times
// are absolute (start + k*period) so the execution time of a step does not
// accumulate as drift. After a step overruns its period the next step runs
// immediately, once; the periods it missed are skipped and the sampler
// resumes on the period grid.
func (s *Sampler) Run(ctx context.Context) error {
	timer := time.NewTimer(s.period)
	defer timer.Stop()

	release := time.Now()
	for {
		s.Step(ctx)

		release = release.Add(s.period)
		wait := time.Until(release)
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
			continue
		}

		if ctx.Err() != nil {
			return nil
		}
		if missed := -wait / s.period; missed > 0 {
			release = release.Add(missed * s.period)
			s.skipped.Add(uint64(missed))
			s.logger.Debug("sampler overrun", "skipped", uint64(missed))
		}
	}
}

// Step runs one sampling cycle and reports whether a sample was published.
func (s *Sampler) Step(ctx context.Context) bool {
	s.cycles.Add(1)

	if s.state.Mode() != state.ModeAutomatic {
		return false
	}

	raw, err := s.reader.ReadAnalog(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.errors.Add(1)
		s.logger.Warn("adc read failed", "error", err)
		return false
	}

	r := s.conv.Convert(raw, time.Now())
	s.logger.Debug("adc reading", "raw", r.Raw, "mv", r.Millivolts)

	if !s.conv.InRange(raw) {
		s.outOfRange.Add(1)
		s.logger.Warn("adc reading out of range", "raw", raw, "max", s.conv.MaxCode())
		return false
	}

	s.state.PublishSample(raw)
	s.samples.Add(1)
	s.out.Raise(r)

	return true
}

// Period returns the sampling period.
func (s *Sampler) Period() time.Duration { return s.period }

// Stats returns the sampler counters.
func (s *Sampler) Stats() SamplerStats {
	return SamplerStats{
		Cycles:     s.cycles.Load(),
		Samples:    s.samples.Load(),
		Errors:     s.errors.Load(),
		OutOfRange: s.outOfRange.Load(),
		Skipped:    s.skipped.Load(),
	}
}
