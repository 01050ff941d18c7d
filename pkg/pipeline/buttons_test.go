package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/golux/pkg/board"
	"github.com/itohio/golux/pkg/logging"
	"github.com/itohio/golux/pkg/signal"
	"github.com/itohio/golux/pkg/state"
)

func newTestButtons(mode state.Mode, intensity, queueSize int) (*Buttons, *state.Shared, *signal.Signal[Request]) {
	st := state.New(mode, intensity)
	out := signal.New[Request]()
	return NewButtons(st, out, queueSize, logging.Discard()), st, out
}

func TestButtons_Apply_Transitions(t *testing.T) {
	tests := []struct {
		name          string
		mode          state.Mode
		intensity     int
		mask          board.ButtonMask
		wantMode      state.Mode
		wantIntensity int
		wantRaised    int
	}{
		{"A selects automatic", state.ModeManual, 10, board.ButtonAutomatic, state.ModeAutomatic, 10, 0},
		{"B selects manual", state.ModeAutomatic, 10, board.ButtonManual, state.ModeManual, 10, 0},
		{"C steps up in manual", state.ModeManual, 10, board.ButtonUp, state.ModeManual, 11, 1},
		{"D steps down in manual", state.ModeManual, 10, board.ButtonDown, state.ModeManual, 9, 1},
		{"C ignored in automatic", state.ModeAutomatic, 10, board.ButtonUp, state.ModeAutomatic, 10, 0},
		{"D ignored in automatic", state.ModeAutomatic, 10, board.ButtonDown, state.ModeAutomatic, 10, 0},
		{"C clamps at 100 and still actuates", state.ModeManual, 100, board.ButtonUp, state.ModeManual, 100, 1},
		{"D clamps at 0 and still actuates", state.ModeManual, 0, board.ButtonDown, state.ModeManual, 0, 1},
		{"A and B together end in manual", state.ModeManual, 10, board.ButtonAutomatic | board.ButtonManual, state.ModeManual, 10, 0},
		{"B then C in one mask", state.ModeAutomatic, 10, board.ButtonManual | board.ButtonUp, state.ModeManual, 11, 1},
		{"A then C in one mask ignores C", state.ModeManual, 10, board.ButtonAutomatic | board.ButtonUp, state.ModeAutomatic, 10, 0},
		{"C and D cancel out", state.ModeManual, 10, board.ButtonUp | board.ButtonDown, state.ModeManual, 10, 2},
		{"empty mask", state.ModeManual, 10, 0, state.ModeManual, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, st, out := newTestButtons(tt.mode, tt.intensity, 0)

			raised := b.Apply(tt.mask)

			assert.Equal(t, tt.wantMode, st.Mode())
			assert.Equal(t, tt.wantIntensity, st.Intensity())
			assert.Equal(t, tt.wantRaised, raised)
			assert.Equal(t, uint64(tt.wantRaised), out.Raised())
			if tt.wantRaised > 0 {
				req, ok := out.TryWait()
				require.True(t, ok)
				assert.Equal(t, OriginButton, req.Origin)
			}
		})
	}
}

// TestButtons_Sequence drives the initial state through the documented
// sequence: five C presses, A, C, B.
func TestButtons_Sequence(t *testing.T) {
	b, st, out := newTestButtons(state.ModeManual, 10, 0)
	pwm := &fakePWM{}
	a := NewActuator(pwm, st, out, 1000, logging.Discard())

	for i := 0; i < 5; i++ {
		require.Equal(t, 1, b.Apply(board.ButtonUp))
		req, ok := out.TryWait()
		require.True(t, ok)
		_, err := a.Apply(req)
		require.NoError(t, err)
	}
	assert.Equal(t, 15, st.Intensity())
	assert.Len(t, pwm.Writes(), 5)
	assert.Equal(t, pwmCall{1000, 850}, pwm.Writes()[4])

	b.Apply(board.ButtonAutomatic)
	assert.Equal(t, state.ModeAutomatic, st.Mode())
	assert.Equal(t, 15, st.Intensity())

	assert.Equal(t, 0, b.Apply(board.ButtonUp))
	assert.Equal(t, 15, st.Intensity())
	assert.False(t, out.Pending())

	b.Apply(board.ButtonManual)
	assert.Equal(t, state.ModeManual, st.Mode())
	assert.Equal(t, 15, st.Intensity(), "mode switches keep the manual intensity")
}

func TestButtons_HandleEdge_DropsWhenFull(t *testing.T) {
	b, _, _ := newTestButtons(state.ModeManual, 10, 2)

	for i := 0; i < 5; i++ {
		b.HandleEdge(board.ButtonUp)
	}

	assert.Equal(t, uint64(3), b.Drops())
}

func TestButtons_Run_AppliesInOrder(t *testing.T) {
	b, st, out := newTestButtons(state.ModeAutomatic, 10, 8)

	b.HandleEdge(board.ButtonUp) // ignored: automatic
	b.HandleEdge(board.ButtonManual)
	b.HandleEdge(board.ButtonUp)
	b.HandleEdge(board.ButtonUp)
	b.HandleEdge(board.ButtonDown)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return b.Handled() == 5 }, time.Second, time.Millisecond)
	assert.Equal(t, state.ModeManual, st.Mode())
	assert.Equal(t, 11, st.Intensity())
	assert.Equal(t, uint64(3), out.Raised())
	assert.Equal(t, uint64(0), b.Drops())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("button worker did not stop")
	}
}
