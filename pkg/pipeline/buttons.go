package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/itohio/golux/pkg/board"
	"github.com/itohio/golux/pkg/signal"
	"github.com/itohio/golux/pkg/state"
)

// DefaultQueueSize is the number of button edges buffered between the
// interrupt handler and the state owner.
const DefaultQueueSize = 16

// Buttons owns the mode and manual intensity. Edges arrive through
// HandleEdge, which is safe to call from interrupt context, and are applied
// in order by Run.
type Buttons struct {
	state  *state.Shared
	out    *signal.Signal[Request]
	logger *slog.Logger

	// Written by the interrupt handler; must not block it.
	isrQ  chan board.ButtonMask
	drops atomic.Uint64

	handled atomic.Uint64
}

// NewButtons creates the button handler. queueSize <= 0 selects DefaultQueueSize.
func NewButtons(st *state.Shared, out *signal.Signal[Request], queueSize int, logger *slog.Logger) *Buttons {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Buttons{
		state:  st,
		out:    out,
		logger: logger,
		isrQ:   make(chan board.ButtonMask, queueSize),
	}
}

// HandleEdge queues a button mask. It never blocks; when the queue is full
// the edge is dropped and counted.
func (b *Buttons) HandleEdge(mask board.ButtonMask) {
	select {
	case b.isrQ <- mask:
	default:
		b.drops.Add(1)
	}
}

// Run applies queued edges until ctx is cancelled.
func (b *Buttons) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case mask := <-b.isrQ:
			b.Apply(mask)
		}
	}
}

// Apply runs the mode/intensity transition for one mask and returns the
// number of actuation requests it raised. Buttons are evaluated in the
// order A, B, C, D, so A+B together ends in manual mode and C/D act on the
// mode left by A/B. C and D only change the intensity in manual mode.
func (b *Buttons) Apply(mask board.ButtonMask) int {
	b.handled.Add(1)

	if mask.Has(board.ButtonAutomatic) && b.state.SetMode(state.ModeAutomatic) {
		b.logger.Info("mode changed", "mode", state.ModeAutomatic)
	}
	if mask.Has(board.ButtonManual) && b.state.SetMode(state.ModeManual) {
		b.logger.Info("mode changed", "mode", state.ModeManual)
	}

	raised := 0
	if mask.Has(board.ButtonUp) && b.state.Mode() == state.ModeManual {
		b.step(+1)
		raised++
	}
	if mask.Has(board.ButtonDown) && b.state.Mode() == state.ModeManual {
		b.step(-1)
		raised++
	}

	return raised
}

func (b *Buttons) step(delta int) {
	intensity := b.state.StepIntensity(delta)
	b.logger.Info("intensity changed", "intensity", intensity)
	b.out.Raise(Request{Origin: OriginButton, Time: time.Now()})
}

// Drops returns the number of edges lost to a full queue.
func (b *Buttons) Drops() uint64 { return b.drops.Load() }

// Handled returns the number of masks applied.
func (b *Buttons) Handled() uint64 { return b.handled.Load() }
