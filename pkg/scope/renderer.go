package scope

import (
	"image/color"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/golux/pkg/sample"
)

var (
	gridColor      = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor     = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	intensityColor = color.RGBA{R: 255, G: 165, B: 0, A: 255}   // Orange
	setpointColor  = color.RGBA{R: 200, G: 200, B: 200, A: 255} // Light gray
	dutyColor      = color.RGBA{R: 100, G: 200, B: 255, A: 255} // Light blue
)

// plotArea maps values to canvas positions.
type plotArea struct {
	x, y, width, height float32
	xMin, xMax          time.Time
}

func newPlotArea(size fyne.Size, xMin, xMax time.Time) plotArea {
	const (
		marginLeft   = 50
		marginRight  = 20
		marginTop    = 20
		marginBottom = 40
	)
	return plotArea{
		x:      marginLeft,
		y:      marginTop,
		width:  size.Width - marginLeft - marginRight,
		height: size.Height - marginTop - marginBottom,
		xMin:   xMin,
		xMax:   xMax,
	}
}

func (p plotArea) pos(t time.Time, percent int) fyne.Position {
	span := p.xMax.Sub(p.xMin).Seconds()
	fx := float32(0)
	if span > 0 {
		fx = float32(t.Sub(p.xMin).Seconds() / span)
	}
	fy := float32((float64(percent) - yMin) / (yMax - yMin))
	return fyne.NewPos(p.x+fx*p.width, p.y+p.height-fy*p.height)
}

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh rebuilds the traces.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	points := r.scope.points
	status := r.scope.status
	xMin := r.scope.xMin
	xMax := r.scope.xMax
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.grid}
	area := newPlotArea(size, xMin, xMax)

	r.drawGrid(area)

	r.drawTrace(area, points, setpointColor, 1, func(p sample.Point) int { return p.Setpoint })
	r.drawTrace(area, points, dutyColor, 2.5, func(p sample.Point) int { return p.DutyCycle })
	r.drawTrace(area, points, intensityColor, 1.5, func(p sample.Point) int { return p.Intensity })

	if status != "" {
		text := canvas.NewText(status, setpointColor)
		text.TextSize = 11
		text.Move(fyne.NewPos(area.x+10, area.y+10))
		r.objects = append(r.objects, text)
	}
}

// drawGrid draws the oscilloscope-style grid with percent and time labels.
func (r *scopeRenderer) drawGrid(area plotArea) {
	const numHLines = 10
	for i := range numHLines + 1 {
		y := area.y + float32(i)*area.height/numHLines
		r.addLine(fyne.NewPos(area.x, y), fyne.NewPos(area.x+area.width, y), gridColor, 1)

		value := yMax - float64(i)*(yMax-yMin)/numHLines
		text := canvas.NewText(formatPercent(value), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(area.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	const numVLines = 10
	span := area.xMax.Sub(area.xMin)
	for i := range numVLines + 1 {
		x := area.x + float32(i)*area.width/numVLines
		r.addLine(fyne.NewPos(x, area.y), fyne.NewPos(x, area.y+area.height), gridColor, 1)

		offset := time.Duration(int64(span) * int64(i) / numVLines)
		text := canvas.NewText(formatTime(offset), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, area.y+area.height+5))
		r.objects = append(r.objects, text)
	}
}

// drawTrace connects consecutive points with line segments.
func (r *scopeRenderer) drawTrace(area plotArea, points []sample.Point, c color.Color, width float32, value func(sample.Point) int) {
	for i := 1; i < len(points); i++ {
		r.addLine(
			area.pos(points[i-1].Timestamp, value(points[i-1])),
			area.pos(points[i].Timestamp, value(points[i])),
			c, width)
	}
}

func (r *scopeRenderer) addLine(from, to fyne.Position, c color.Color, width float32) {
	line := canvas.NewLine(c)
	line.Position1 = from
	line.Position2 = to
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64) + "%"
}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return strconv.FormatFloat(d.Seconds(), 'f', 2, 64) + "s"
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 0, 64) + "s"
}
