// Package board abstracts the hardware the controller runs against:
// one analog light sensor, one PWM light source and four push buttons.
package board

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotConnected     = errors.New("board not connected")
	ErrAlreadyConnected = errors.New("board already connected")
	ErrReadFailed       = errors.New("analog read failed")
	ErrTimeout          = errors.New("board response timeout")
)

// ButtonMask is a set of buttons pressed in one interrupt.
type ButtonMask uint8

const (
	ButtonAutomatic ButtonMask = 1 << iota // A
	ButtonManual                           // B
	ButtonUp                               // C
	ButtonDown                             // D

	ButtonsAll = ButtonAutomatic | ButtonManual | ButtonUp | ButtonDown
)

// Has reports whether every button in b is set in m.
func (m ButtonMask) Has(b ButtonMask) bool { return m&b == b && b != 0 }

func (m ButtonMask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m.Has(ButtonAutomatic) {
		parts = append(parts, "A")
	}
	if m.Has(ButtonManual) {
		parts = append(parts, "B")
	}
	if m.Has(ButtonUp) {
		parts = append(parts, "C")
	}
	if m.Has(ButtonDown) {
		parts = append(parts, "D")
	}
	if m&^ButtonsAll != 0 {
		parts = append(parts, "?")
	}
	return strings.Join(parts, "|")
}

// Board defines the interface for boards (real or mocked).
//
// OnButtons registers the edge handler. Boards call it from their own
// goroutine (interrupt context on real hardware), so it must not block.
type Board interface {
	Connect() error
	Close() error
	IsConnected() bool
	ReadAnalog(ctx context.Context) (uint16, error)
	SetPWM(periodUs, onTimeUs uint32) error
	OnButtons(handler func(ButtonMask))
}

// Ensure Serial implements Board.
var _ Board = (*Serial)(nil)

// Ensure Mock implements Board.
var _ Board = (*Mock)(nil)
