package board

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/itohio/golux/pkg/config"
	"github.com/itohio/golux/pkg/mathx"
)

// DefaultMaxCode is the largest code of the 10-bit ADC.
const DefaultMaxCode = 1023

// Mock simulates a room with a dimmable lamp and a light sensor.
// The sensor follows the lamp output with a first-order lag on top of
// ambient light and noise. The lamp is driven active-low: it is lit while
// the PWM output is low, i.e. for period-onTime of every period.
type Mock struct {
	cfg     *config.MockConfig
	maxCode uint16

	mu        sync.RWMutex
	done      chan struct{}
	connected bool
	handler   func(ButtonMask)
	rng       *rand.Rand

	// Simulation state
	periodUs   uint32
	onTimeUs   uint32
	level      float64 // Sensor level (0..1 of full scale)
	lastUpdate time.Time
	reads      int
}

// NewMock creates a new simulated board. maxCode 0 selects DefaultMaxCode.
func NewMock(cfg *config.MockConfig, maxCode uint16) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			Ambient:     0.1,
			LampGain:    0.8,
			NoiseLevel:  0.01,
			Lag:         2 * time.Second,
			ReadLatency: time.Millisecond,
		}
	}
	if maxCode == 0 {
		maxCode = DefaultMaxCode
	}

	return &Mock{
		cfg:     cfg,
		maxCode: maxCode,
		rng:     rand.New(rand.NewSource(1)),
	}
}

// Connect simulates connecting to the board. The lamp starts dark.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return ErrAlreadyConnected
	}

	m.connected = true
	m.done = make(chan struct{})
	m.periodUs = 1000
	m.onTimeUs = 1000
	m.level = m.cfg.Ambient
	m.lastUpdate = time.Now()
	m.reads = 0

	return nil
}

// Close stops the simulated board and aborts pending reads.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.connected = false
	close(m.done)

	return nil
}

// IsConnected returns whether the board is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// OnButtons registers the button edge handler.
func (m *Mock) OnButtons(handler func(ButtonMask)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Press simulates a button interrupt carrying mask.
func (m *Mock) Press(mask ButtonMask) {
	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()

	if handler != nil {
		handler(mask)
	}
}

// SetPWM records the lamp output.
func (m *Mock) SetPWM(periodUs, onTimeUs uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	if periodUs == 0 || onTimeUs > periodUs {
		return fmt.Errorf("invalid pwm: period=%dus on=%dus", periodUs, onTimeUs)
	}

	m.periodUs = periodUs
	m.onTimeUs = onTimeUs

	return nil
}

// PWM returns the last applied period and on-time.
func (m *Mock) PWM() (periodUs, onTimeUs uint32) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.periodUs, m.onTimeUs
}

// ReadAnalog simulates one conversion.
func (m *Mock) ReadAnalog(ctx context.Context) (uint16, error) {
	m.mu.RLock()
	connected, done := m.connected, m.done
	m.mu.RUnlock()

	if !connected {
		return 0, ErrNotConnected
	}

	if m.cfg.ReadLatency > 0 {
		timer := time.NewTimer(m.cfg.ReadLatency)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-done:
			return 0, ErrNotConnected
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrNotConnected
	}

	m.reads++
	if m.cfg.FailEvery > 0 && m.reads%m.cfg.FailEvery == 0 {
		return 0, fmt.Errorf("%w: simulated failure on read %d", ErrReadFailed, m.reads)
	}

	return m.sample(time.Now()), nil
}

// sample advances the room model to now and converts the sensor level.
// Callers hold m.mu.
func (m *Mock) sample(now time.Time) uint16 {
	target := m.cfg.Ambient + m.cfg.LampGain*lampDuty(m.periodUs, m.onTimeUs)

	dt := now.Sub(m.lastUpdate)
	m.lastUpdate = now

	alpha := 1.0
	if m.cfg.Lag > 0 {
		alpha = 1 - math.Exp(-dt.Seconds()/m.cfg.Lag.Seconds())
	}
	m.level += alpha * (target - m.level)

	noise := (m.rng.Float64()*2 - 1) * m.cfg.NoiseLevel
	code := math.Round((m.level + noise) * float64(m.maxCode))

	return uint16(mathx.Clamp(code, 0, float64(m.maxCode)))
}

// lampDuty returns the fraction of the period the active-low lamp is lit.
func lampDuty(periodUs, onTimeUs uint32) float64 {
	if periodUs == 0 {
		return 0
	}
	return float64(periodUs-min(onTimeUs, periodUs)) / float64(periodUs)
}
