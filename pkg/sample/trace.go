package sample

import (
	"sync"
	"time"
)

// Point is one control cycle as shown on a trace.
type Point struct {
	Timestamp time.Time
	Intensity int // Measured intensity (%)
	Setpoint  int // Target intensity (%)
	DutyCycle int // Applied duty cycle (%)
}

// Trace keeps the points of the last window, oldest first.
// Removal is based on timestamp, not number of points.
type Trace struct {
	mu     sync.RWMutex
	window time.Duration
	points []Point
}

// NewTrace creates a trace covering window. A non-positive window
// falls back to one minute.
func NewTrace(window time.Duration) *Trace {
	if window <= 0 {
		window = time.Minute
	}
	return &Trace{
		window: window,
		points: make([]Point, 0, 256),
	}
}

// Add appends p and drops points older than the window relative to p.
func (t *Trace) Add(p Point) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.points = append(t.points, p)

	cutoff := p.Timestamp.Add(-t.window)
	cutoffIndex := 0
	for i, q := range t.points {
		if q.Timestamp.After(cutoff) {
			cutoffIndex = i
			break
		}
	}
	if cutoffIndex > 0 {
		t.points = append(t.points[:0], t.points[cutoffIndex:]...)
	}
}

// Points returns a copy of the current points.
func (t *Trace) Points() []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]Point, len(t.points))
	copy(result, t.points)
	return result
}

// Window returns the trace duration.
func (t *Trace) Window() time.Duration { return t.window }
