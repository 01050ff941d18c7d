package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsamplePoints_NoDownsampling(t *testing.T) {
	now := time.Now()
	points := []Point{
		{Timestamp: now, Intensity: 10, Setpoint: 50, DutyCycle: 0},
		{Timestamp: now.Add(time.Second), Intensity: 20, Setpoint: 50, DutyCycle: 20},
		{Timestamp: now.Add(2 * time.Second), Intensity: 30, Setpoint: 50, DutyCycle: 35},
	}

	// Test with nil dst
	result := DownsamplePoints(nil, points, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, points, result)

	// Test with sufficient capacity dst
	dst := make([]Point, 0, 10)
	result = DownsamplePoints(dst, points, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, points, result)
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsamplePoints_WithDownsampling(t *testing.T) {
	now := time.Now()
	points := make([]Point, 100)
	for i := 0; i < 100; i++ {
		points[i] = Point{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Intensity: i,
		}
	}

	dst := make([]Point, 0, 20)
	result := DownsamplePoints(dst, points, 10)
	require.Equal(t, 10, len(result))

	// Should always include first point
	assert.Equal(t, points[0], result[0])

	// Decimation keeps points from across the whole range
	assert.GreaterOrEqual(t, result[len(result)-1].Intensity, 80)
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsamplePoints_DestinationReuse(t *testing.T) {
	now := time.Now()
	points1 := []Point{
		{Timestamp: now, Intensity: 1},
		{Timestamp: now.Add(time.Second), Intensity: 2},
	}
	points2 := []Point{
		{Timestamp: now, Intensity: 3},
		{Timestamp: now.Add(time.Second), Intensity: 4},
		{Timestamp: now.Add(2 * time.Second), Intensity: 5},
	}

	dst := make([]Point, 0, 10)
	result1 := DownsamplePoints(dst, points1, 10)
	require.Equal(t, 2, len(result1))

	result2 := DownsamplePoints(result1, points2, 10)
	require.Equal(t, 3, len(result2))
	assert.Equal(t, cap(result1), cap(result2))
}

func TestDownsamplePoints_EmptyInput(t *testing.T) {
	result := DownsamplePoints(nil, []Point{}, 10)
	require.Equal(t, 0, len(result))
}
