//go:build linux

package board

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// epollTimeoutMs bounds each wait so cancellation is noticed.
const epollTimeoutMs = 100

// Run opens the input devices and calls handler for every mapped key press
// until ctx is cancelled. All devices are multiplexed with one epoll set.
func (e *EvdevButtons) Run(ctx context.Context, handler func(ButtonMask)) error {
	if len(e.devices) == 0 {
		return fmt.Errorf("no input devices provided")
	}

	files := make([]*os.File, 0, len(e.devices))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, path := range e.devices {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input device %s: %w", path, err)
		}
		files = append(files, f)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
		}
	}

	e.logger.Info("evdev buttons started", "devices", e.devices)

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, inputEventSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, epollEvents, epollTimeoutMs)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s (fd=%d)", f.Name(), fd)
			}

			if _, err := f.Read(buf); err != nil {
				return fmt.Errorf("read from %s: %w", f.Name(), err)
			}

			ev, err := decodeEvent(buf)
			if err != nil {
				continue
			}

			if mask, ok := e.MaskFor(ev); ok {
				e.logger.Debug("key press", "device", f.Name(), "code", ev.Code, "buttons", mask)
				handler(mask)
			}
		}
	}
}
