package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/itohio/golux/pkg/board"
	"github.com/itohio/golux/pkg/config"
	"github.com/itohio/golux/pkg/signal"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"

	publishTimeout = 2 * time.Second
	quiesceMs      = 250
)

// ParseCommand converts a remote button payload to a mask. Accepted payloads
// are auto, manual, up, down (button letters a-d also work) or a numeric mask.
func ParseCommand(payload []byte) (board.ButtonMask, error) {
	cmd := strings.ToLower(strings.TrimSpace(string(payload)))
	switch cmd {
	case "auto", "automatic", "a":
		return board.ButtonAutomatic, nil
	case "manual", "b":
		return board.ButtonManual, nil
	case "up", "c", "+":
		return board.ButtonUp, nil
	case "down", "d", "-":
		return board.ButtonDown, nil
	}

	mask, err := strconv.ParseUint(cmd, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid button command %q", cmd)
	}
	if mask == 0 || board.ButtonMask(mask)&^board.ButtonsAll != 0 {
		return 0, fmt.Errorf("invalid button mask %#x", mask)
	}
	return board.ButtonMask(mask), nil
}

// MQTT publishes snapshots to a broker and forwards remote button presses.
// Snapshots are published retained, latest-wins: a snapshot raised while
// the previous one is still in flight replaces any queued one.
type MQTT struct {
	cfg       config.MQTTConfig
	onCommand func(board.ButtonMask)
	logger    *slog.Logger

	newClient func(*mqtt.ClientOptions) mqtt.Client
	client    mqtt.Client
	pending   *signal.Signal[Snapshot]

	published atomic.Uint64
	failed    atomic.Uint64
	commands  atomic.Uint64
}

// NewMQTT creates a publisher. onCommand receives remote button presses and
// may be nil to disable the command topic.
func NewMQTT(cfg config.MQTTConfig, onCommand func(board.ButtonMask), logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTT{
		cfg:       cfg,
		onCommand: onCommand,
		logger:    logger,
		newClient: mqtt.NewClient,
		pending:   signal.New[Snapshot](),
	}
}

// StatusTopic is where online/offline presence is published.
func (m *MQTT) StatusTopic() string { return m.cfg.Topic + "/status" }

func (m *MQTT) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(m.cfg.ClientID).
		SetKeepAlive(m.cfg.KeepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)

	// Last Will to signal unexpected disconnects
	opts.SetWill(m.StatusTopic(), statusOffline, m.cfg.QoS, true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		m.logger.Info("mqtt connected", "broker", m.cfg.Broker)
		c.Publish(m.StatusTopic(), m.cfg.QoS, true, statusOnline)
		if m.onCommand != nil && m.cfg.CommandTopic != "" {
			c.Subscribe(m.cfg.CommandTopic, m.cfg.QoS, m.handleCommand)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.logger.Warn("mqtt connection lost", "error", err)
	})

	return opts
}

// Publish queues s for publishing. It never blocks.
func (m *MQTT) Publish(s Snapshot) {
	m.pending.Raise(s)
}

// Run connects to the broker and publishes queued snapshots until ctx is
// cancelled, then marks the controller offline and disconnects.
func (m *MQTT) Run(ctx context.Context) error {
	m.client = m.newClient(m.clientOptions())

	token := m.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s: %w", m.cfg.Broker, err)
		}
	case <-ctx.Done():
		m.client.Disconnect(quiesceMs)
		return nil
	}

	defer func() {
		t := m.client.Publish(m.StatusTopic(), m.cfg.QoS, true, statusOffline)
		t.WaitTimeout(publishTimeout)
		m.client.Disconnect(quiesceMs)
		m.logger.Info("mqtt disconnected")
	}()

	for {
		snap, err := m.pending.Wait(ctx)
		if err != nil {
			return nil
		}
		m.publish(snap)
	}
}

func (m *MQTT) publish(s Snapshot) {
	payload, err := json.Marshal(s)
	if err != nil {
		m.failed.Add(1)
		m.logger.Error("failed to marshal snapshot", "error", err)
		return
	}

	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		m.failed.Add(1)
		m.logger.Warn("mqtt publish timed out", "topic", m.cfg.Topic)
		return
	}
	if err := token.Error(); err != nil {
		m.failed.Add(1)
		m.logger.Warn("mqtt publish failed", "topic", m.cfg.Topic, "error", err)
		return
	}
	m.published.Add(1)
}

func (m *MQTT) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	mask, err := ParseCommand(msg.Payload())
	if err != nil {
		m.logger.Warn("ignoring remote command", "topic", msg.Topic(), "error", err)
		return
	}

	m.commands.Add(1)
	m.logger.Info("remote button press", "buttons", mask)
	m.onCommand(mask)
}

// Published returns the number of snapshots delivered to the broker.
func (m *MQTT) Published() uint64 { return m.published.Load() }

// Failed returns the number of snapshots that could not be delivered.
func (m *MQTT) Failed() uint64 { return m.failed.Load() }

// Commands returns the number of accepted remote button presses.
func (m *MQTT) Commands() uint64 { return m.commands.Load() }
