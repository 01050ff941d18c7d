// Package telemetry publishes controller state to MQTT, WebSocket clients
// and Prometheus, and accepts remote button presses.
package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/itohio/golux/pkg/pipeline"
	"github.com/itohio/golux/pkg/sample"
	"github.com/itohio/golux/pkg/state"
)

// Snapshot is the externally visible state after one actuation.
type Snapshot struct {
	Time             time.Time `json:"time"`
	Mode             string    `json:"mode"`
	Intensity        int       `json:"intensity"`
	Raw              uint16    `json:"raw"`
	TrimmedMean      uint16    `json:"trimmed_mean"`
	IntensityPercent int       `json:"intensity_percent"`
	DutyCycle        int       `json:"duty_cycle"`
	OnTimeUs         uint32    `json:"on_time_us"`
	Origin           string    `json:"origin"`
}

// NewSnapshot combines the shared state with the actuation that produced it.
func NewSnapshot(st state.Snapshot, act pipeline.Actuation, maxCode uint16) Snapshot {
	return Snapshot{
		Time:             act.Time,
		Mode:             act.Mode.String(),
		Intensity:        st.Intensity,
		Raw:              st.Sample,
		TrimmedMean:      st.TrimmedMean,
		IntensityPercent: sample.Percent(st.TrimmedMean, maxCode),
		DutyCycle:        st.DutyCycle,
		OnTimeUs:         act.OnTimeUs,
		Origin:           act.Origin.String(),
	}
}

// Sink receives snapshots. Publish is called on the actuator goroutine and
// must not block.
type Sink interface {
	Publish(Snapshot)
}

// Attach publishes a snapshot to every sink after each actuation of l.
func Attach(l *pipeline.Loop, maxCode uint16, sinks ...Sink) {
	l.Actuator.OnApply(func(act pipeline.Actuation) {
		snap := NewSnapshot(l.State.Snapshot(), act, maxCode)
		for _, s := range sinks {
			s.Publish(snap)
		}
	})
}

// Latest keeps the most recent snapshot.
type Latest struct {
	v atomic.Pointer[Snapshot]
}

// Publish stores s.
func (l *Latest) Publish(s Snapshot) { l.v.Store(&s) }

// Load returns the stored snapshot, or the zero Snapshot before the first
// actuation.
func (l *Latest) Load() Snapshot {
	if s := l.v.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}
