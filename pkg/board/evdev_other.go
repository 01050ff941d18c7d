//go:build !linux

package board

import (
	"context"
	"errors"
)

// Run is only supported on Linux.
func (e *EvdevButtons) Run(ctx context.Context, handler func(ButtonMask)) error {
	return errors.New("evdev buttons require linux")
}
