package main

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"

	"github.com/itohio/golux/pkg/pipeline"
	"github.com/itohio/golux/pkg/sample"
)

// Throttle scope updates to ~60 FPS.
const updateInterval = 16 * time.Millisecond

// onActuation records a trace point and schedules a UI update.
// It runs on the actuator goroutine and must return quickly.
func onActuation(state *appState, s *session, act pipeline.Actuation, maxCode uint16) {
	st := s.loop.State.Snapshot()
	s.trace.Add(sample.Point{
		Timestamp: act.Time,
		Intensity: sample.Percent(st.TrimmedMean, maxCode),
		Setpoint:  st.Intensity,
		DutyCycle: act.Percent,
	})

	state.updateMu.Lock()
	now := time.Now()
	if now.Sub(state.lastUpdateTime) < updateInterval {
		state.updateMu.Unlock()
		return
	}
	state.lastUpdateTime = now
	state.updateMu.Unlock()

	points := s.trace.Points()
	status := statusText(act)
	fyne.Do(func() {
		state.scopeWidget.UpdateData(points, status)
		state.panel.update(act)
	})
}

// statusText summarizes an actuation for the scope overlay.
func statusText(act pipeline.Actuation) string {
	text := fmt.Sprintf("%s  %d%%  on %dµs/%dµs", act.Mode, act.Percent, act.OnTimeUs, act.PeriodUs)
	if act.Err != nil {
		text += "  (" + act.Err.Error() + ")"
	}
	return text
}
