package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace_DropsPointsOutsideWindow(t *testing.T) {
	tr := NewTrace(10 * time.Second)
	start := time.Now()

	for i := 0; i < 15; i++ {
		tr.Add(Point{Timestamp: start.Add(time.Duration(i) * time.Second), Intensity: i})
	}

	points := tr.Points()
	require.NotEmpty(t, points)
	assert.Equal(t, 14, points[len(points)-1].Intensity)
	// Points strictly newer than 14s-10s = 4s remain.
	assert.Equal(t, 5, points[0].Intensity)
	assert.Len(t, points, 10)
}

func TestTrace_NonPositiveWindowStaysBounded(t *testing.T) {
	for _, window := range []time.Duration{0, -time.Second} {
		tr := NewTrace(window)
		assert.Equal(t, time.Minute, tr.Window())

		start := time.Now()
		for i := 0; i < 180; i++ {
			tr.Add(Point{Timestamp: start.Add(time.Duration(i) * time.Second), Intensity: i})
		}

		points := tr.Points()
		assert.Len(t, points, 60)
		assert.Equal(t, 179, points[len(points)-1].Intensity)
	}
}

func TestTrace_PointsIsACopy(t *testing.T) {
	tr := NewTrace(time.Minute)
	tr.Add(Point{Timestamp: time.Now(), Intensity: 1})

	points := tr.Points()
	points[0].Intensity = 99

	assert.Equal(t, 1, tr.Points()[0].Intensity)
	assert.Equal(t, time.Minute, tr.Window())
}
