package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/itohio/golux/pkg/board"
)

var errFakeRead = errors.New("fake read failure")

// fakeReader returns queued readings; an exhausted queue repeats the last one.
// delays overrides latency for the first calls.
type fakeReader struct {
	mu      sync.Mutex
	values  []uint16
	errs    []error
	latency time.Duration
	delays  []time.Duration
	starts  []time.Time
	calls   int
}

func (f *fakeReader) ReadAnalog(ctx context.Context) (uint16, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.starts = append(f.starts, time.Now())
	delay := f.latency
	if i < len(f.delays) {
		delay = f.delays[i]
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	if i < len(f.errs) && f.errs[i] != nil {
		return 0, f.errs[i]
	}
	if len(f.values) == 0 {
		return 0, nil
	}
	if i >= len(f.values) {
		i = len(f.values) - 1
	}
	return f.values[i], nil
}

func (f *fakeReader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Starts returns the time each read began.
func (f *fakeReader) Starts() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.starts))
	copy(out, f.starts)
	return out
}

type pwmCall struct {
	periodUs uint32
	onTimeUs uint32
}

// fakePWM records every SetPWM call.
type fakePWM struct {
	mu    sync.Mutex
	calls []pwmCall
	err   error
}

func (f *fakePWM) SetPWM(periodUs, onTimeUs uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, pwmCall{periodUs: periodUs, onTimeUs: onTimeUs})
	return nil
}

func (f *fakePWM) Writes() []pwmCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pwmCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeBoard combines the fakes into a board.Board.
type fakeBoard struct {
	fakeReader
	fakePWM

	mu      sync.Mutex
	handler func(board.ButtonMask)
}

func (b *fakeBoard) Connect() error    { return nil }
func (b *fakeBoard) Close() error      { return nil }
func (b *fakeBoard) IsConnected() bool { return true }

func (b *fakeBoard) OnButtons(handler func(board.ButtonMask)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

func (b *fakeBoard) press(mask board.ButtonMask) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h != nil {
		h(mask)
	}
}

var _ board.Board = (*fakeBoard)(nil)
