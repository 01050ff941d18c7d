package board

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the standard baud rate of the controller firmware.
	DefaultBaudRate = 115200
	// DefaultReadTimeout bounds the wait for an answer to a read request.
	DefaultReadTimeout = 500 * time.Millisecond
)

// MessageKind identifies a line sent by the MCU.
type MessageKind byte

const (
	MessageSample  MessageKind = 'S' // S,<unix_micros>,<raw>
	MessageError   MessageKind = 'E' // E,<code>
	MessageFault   MessageKind = 'F' // F,<code>
	MessageButtons MessageKind = 'B' // B,<mask>
)

// MCU fault codes reported in F lines.
const (
	FaultBadCommand = 1
	FaultBadPWM     = 2
)

// Message is one parsed line from the MCU.
type Message struct {
	Kind      MessageKind
	Timestamp time.Time
	Raw       uint16
	Code      int
	Buttons   ButtonMask
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

type readResult struct {
	raw uint16
	err error
}

// Serial is a board attached over a serial line running the golux firmware.
type Serial struct {
	port        string
	baudRate    int
	readTimeout time.Duration
	logger      *slog.Logger

	mu        sync.RWMutex
	conn      io.ReadWriteCloser
	cancel    context.CancelFunc
	connected bool
	handler   func(ButtonMask)

	readMu  sync.Mutex // one outstanding read request at a time
	pending atomic.Bool
	results chan readResult
}

// NewSerial creates a serial board for the given port and baud rate.
func NewSerial(port string, baudRate int, logger *slog.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Serial{
		port:        port,
		baudRate:    baudRate,
		readTimeout: DefaultReadTimeout,
		logger:      logger,
		results:     make(chan readResult, 1),
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// SetReadTimeout changes how long ReadAnalog waits for the MCU.
func (d *Serial) SetReadTimeout(timeout time.Duration) {
	d.readMu.Lock()
	defer d.readMu.Unlock()
	d.readTimeout = timeout
}

// Connect opens the serial port and starts reading MCU messages.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}

	port, err := serial.Open(d.port, &serial.Mode{
		BaudRate: d.baudRate,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.attach(port)
	d.logger.Info("serial board connected", "port", d.port, "baud", d.baudRate)

	return nil
}

// attach starts the reader on an open connection. Callers hold d.mu.
func (d *Serial) attach(conn io.ReadWriteCloser) {
	ctx, cancel := context.WithCancel(context.Background())
	d.conn = conn
	d.cancel = cancel
	d.connected = true

	go d.readMessages(ctx, conn)
}

// Close closes the connection and stops the reader.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.logger.Warn("error closing serial port", "error", err)
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// IsConnected returns whether the board is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// OnButtons registers the button edge handler.
func (d *Serial) OnButtons(handler func(ButtonMask)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
}

// ReadAnalog requests a single conversion and waits for the answer.
func (d *Serial) ReadAnalog(ctx context.Context) (uint16, error) {
	d.readMu.Lock()
	defer d.readMu.Unlock()

	d.pending.Store(true)
	defer d.pending.Store(false)

	// Drop an answer that arrived after a previous request timed out.
	select {
	case <-d.results:
	default:
	}

	if err := d.write("R\n"); err != nil {
		return 0, err
	}

	timer := time.NewTimer(d.readTimeout)
	defer timer.Stop()

	select {
	case res := <-d.results:
		return res.raw, res.err
	case <-timer.C:
		return 0, fmt.Errorf("read analog: %w", ErrTimeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SetPWM sends the PWM period and active-low on-time to the MCU.
func (d *Serial) SetPWM(periodUs, onTimeUs uint32) error {
	return d.write(fmt.Sprintf("P,%d,%d\n", periodUs, onTimeUs))
}

func (d *Serial) write(cmd string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}

	if _, err := io.WriteString(d.conn, cmd); err != nil {
		return fmt.Errorf("failed to send command %q: %w", strings.TrimSpace(cmd), err)
	}

	return nil
}

// readMessages reads lines from the serial port and dispatches them.
func (d *Serial) readMessages(ctx context.Context, conn io.Reader) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in serial reader", "panic", r)
		}
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg, err := parseLine(line)
		if err != nil {
			d.logger.Warn("failed to parse line", "line", line, "error", err)
			continue
		}

		d.dispatch(msg)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		d.logger.Error("error reading from serial port", "error", err)
	}
}

func (d *Serial) dispatch(msg Message) {
	var res readResult
	switch msg.Kind {
	case MessageButtons:
		d.mu.RLock()
		handler := d.handler
		d.mu.RUnlock()
		if handler != nil {
			handler(msg.Buttons)
		}
		return
	case MessageFault:
		d.logger.Warn("mcu rejected command", "code", msg.Code, "reason", faultReason(msg.Code))
		return
	case MessageSample:
		res = readResult{raw: msg.Raw}
	case MessageError:
		res = readResult{err: fmt.Errorf("%w: mcu error code %d", ErrReadFailed, msg.Code)}
	}

	if !d.pending.Load() {
		d.logger.Debug("dropping unsolicited answer", "kind", string(msg.Kind))
		return
	}

	// A late answer to a timed-out request may still sit in the slot;
	// keep only the latest.
	select {
	case d.results <- res:
	default:
		select {
		case <-d.results:
		default:
		}
		select {
		case d.results <- res:
		default:
		}
	}
}

func faultReason(code int) string {
	switch code {
	case FaultBadCommand:
		return "unknown command"
	case FaultBadPWM:
		return "invalid pwm setting"
	}
	return "unknown fault"
}

// parseLine parses a line from the MCU.
// Formats:
//
//	S,<unix_micros>,<raw>    conversion result
//	E,<code>                 conversion failure
//	F,<code>                 rejected command
//	B,<mask>                 button edges, decimal or 0x-prefixed hex
func parseLine(line string) (Message, error) {
	parts := strings.Split(line, ",")
	if len(parts[0]) != 1 {
		return Message{}, fmt.Errorf("invalid message kind %q", parts[0])
	}

	kind := MessageKind(parts[0][0])
	switch kind {
	case MessageSample:
		if len(parts) != 3 {
			return Message{}, fmt.Errorf("invalid sample: expected 3 comma-separated values, got %d", len(parts))
		}

		timestampMicros, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Message{}, fmt.Errorf("invalid timestamp: %w", err)
		}

		raw, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return Message{}, fmt.Errorf("invalid reading: %w", err)
		}

		return Message{
			Kind:      kind,
			Timestamp: time.UnixMicro(timestampMicros),
			Raw:       uint16(raw),
		}, nil

	case MessageError, MessageFault:
		if len(parts) != 2 {
			return Message{}, fmt.Errorf("invalid error: expected 2 comma-separated values, got %d", len(parts))
		}

		code, err := strconv.Atoi(parts[1])
		if err != nil {
			return Message{}, fmt.Errorf("invalid error code: %w", err)
		}

		return Message{Kind: kind, Code: code}, nil

	case MessageButtons:
		if len(parts) != 2 {
			return Message{}, fmt.Errorf("invalid buttons: expected 2 comma-separated values, got %d", len(parts))
		}

		mask, err := strconv.ParseUint(parts[1], 0, 8)
		if err != nil {
			return Message{}, fmt.Errorf("invalid button mask: %w", err)
		}

		return Message{Kind: kind, Buttons: ButtonMask(mask)}, nil
	}

	return Message{}, fmt.Errorf("unknown message kind %q", parts[0])
}
