// Package scope provides a Fyne widget plotting the control loop over time.
package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/golux/pkg/sample"
)

// All traces are percentages.
const (
	yMin = 0.0
	yMax = 100.0
)

// ScopeWidget is a custom Fyne widget that displays the measured intensity,
// the setpoint and the applied duty cycle as oscilloscope-style traces.
type ScopeWidget struct {
	widget.BaseWidget

	window time.Duration

	// Data (protected by mu)
	mu     sync.RWMutex
	points []sample.Point
	status string

	// Time axis
	xMin, xMax time.Time

	maxDisplayPoints int
}

// New creates a new ScopeWidget showing at least window of history.
func New(window time.Duration) *ScopeWidget {
	if window <= 0 {
		window = time.Minute
	}
	s := &ScopeWidget{
		window:           window,
		points:           make([]sample.Point, 0, 1000),
		maxDisplayPoints: 1000, // Limit points for efficient rendering
	}
	s.updateTimeAxis()
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// UpdateData replaces the plotted points and the status line.
// This should be called from the UI goroutine using fyne.Do().
func (s *ScopeWidget) UpdateData(points []sample.Point, status string) {
	s.mu.Lock()
	s.points = sample.DownsamplePoints(s.points, points, s.maxDisplayPoints)
	s.status = status
	s.updateTimeAxis()
	s.mu.Unlock()

	// Refresh outside the lock, the renderer takes a read lock.
	s.Refresh()
}

// updateTimeAxis spans the points, and at least the configured window.
func (s *ScopeWidget) updateTimeAxis() {
	if len(s.points) == 0 {
		s.xMin = time.Now()
		s.xMax = s.xMin.Add(s.window)
		return
	}

	s.xMin = s.points[0].Timestamp
	s.xMax = s.points[len(s.points)-1].Timestamp
	if s.xMax.Sub(s.xMin) < s.window {
		s.xMax = s.xMin.Add(s.window)
	}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255}) // Dark background
	return &scopeRenderer{
		scope:   s,
		grid:    grid,
		objects: []fyne.CanvasObject{grid},
	}
}
