package board

import (
	"bytes"
	"encoding/binary"
	"log/slog"

	"github.com/itohio/golux/pkg/config"
)

const (
	evKey      = 0x01
	keyPressed = 1
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// EvdevButtons maps Linux keyboard keys to the four board buttons, so a
// host without button hardware can drive the controller.
type EvdevButtons struct {
	devices []string
	keys    map[uint16]ButtonMask
	logger  *slog.Logger
}

// NewEvdevButtons creates a button source for the configured input devices.
func NewEvdevButtons(cfg config.EvdevConfig, logger *slog.Logger) *EvdevButtons {
	if logger == nil {
		logger = slog.Default()
	}

	return &EvdevButtons{
		devices: cfg.Devices,
		keys: map[uint16]ButtonMask{
			cfg.AutomaticKey: ButtonAutomatic,
			cfg.ManualKey:    ButtonManual,
			cfg.UpKey:        ButtonUp,
			cfg.DownKey:      ButtonDown,
		},
		logger: logger,
	}
}

// Devices returns the configured input device paths.
func (e *EvdevButtons) Devices() []string { return e.devices }

// MaskFor returns the button bound to a key press event. Key releases and
// auto-repeat are ignored so that one physical press is one edge.
func (e *EvdevButtons) MaskFor(ev inputEvent) (ButtonMask, bool) {
	if ev.Type != evKey || ev.Value != keyPressed {
		return 0, false
	}
	mask, ok := e.keys[ev.Code]
	return mask, ok
}

// decodeEvent parses one raw input_event record.
func decodeEvent(buf []byte) (inputEvent, error) {
	var ev inputEvent
	err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &ev)
	return ev, err
}
