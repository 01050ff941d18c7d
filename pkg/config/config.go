package config

import (
	"fmt"
	"os"
	"time"

	"github.com/chewxy/math32"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	ADC        ADCConfig        `yaml:"adc"`
	Sampler    SamplerConfig    `yaml:"sampler"`
	Filter     FilterConfig     `yaml:"filter"`
	Controller ControllerConfig `yaml:"controller"`
	PWM        PWMConfig        `yaml:"pwm"`
	State      StateConfig      `yaml:"state"`
	Buttons    ButtonsConfig    `yaml:"buttons"`
	Mock       MockConfig       `yaml:"mock"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// ADCConfig describes the analog input.
type ADCConfig struct {
	ResolutionBits int `yaml:"resolution_bits"` // 10-bit => codes 0..1023
	FullScaleMV    int `yaml:"full_scale_mv"`   // Input voltage at the maximum code (mV)
}

// SamplerConfig contains periodic sampling parameters.
type SamplerConfig struct {
	Period time.Duration `yaml:"period"`
}

// FilterConfig contains the trimmed mean parameters.
type FilterConfig struct {
	Size             int `yaml:"size"`              // Number of samples kept in history
	DeviationPercent int `yaml:"deviation_percent"` // Band around the raw mean kept by the trimmed mean
}

// ControllerConfig contains PI controller gains and limits.
// Omitted keys keep their defaults; an explicit zero gain is kept as is.
type ControllerConfig struct {
	Kp           float32 `yaml:"kp"`
	Ti           float32 `yaml:"ti"`
	IntegralLow  int     `yaml:"integral_low"`
	IntegralHigh int     `yaml:"integral_high"`
}

// PWMConfig contains PWM output configuration.
type PWMConfig struct {
	PeriodUs uint32 `yaml:"period_us"`
}

// StateConfig contains the state the controller boots with.
type StateConfig struct {
	InitialMode      string `yaml:"initial_mode"`      // "manual" or "automatic"
	InitialIntensity int    `yaml:"initial_intensity"` // Manual intensity (%)
}

// ButtonsConfig contains button input configuration.
type ButtonsConfig struct {
	QueueSize int         `yaml:"queue_size"` // Edge queue between the button handler and the state owner
	Evdev     EvdevConfig `yaml:"evdev"`
}

// EvdevConfig maps Linux input devices to the four board buttons.
// Empty Devices disables evdev input.
type EvdevConfig struct {
	Devices      []string `yaml:"devices"`
	AutomaticKey uint16   `yaml:"automatic_key"`
	ManualKey    uint16   `yaml:"manual_key"`
	UpKey        uint16   `yaml:"up_key"`
	DownKey      uint16   `yaml:"down_key"`
}

// MockConfig contains simulated board configuration.
type MockConfig struct {
	Ambient     float64       `yaml:"ambient"`      // Ambient light seen by the sensor (0..1 of full scale)
	LampGain    float64       `yaml:"lamp_gain"`    // Sensor response to a fully-on lamp (0..1 of full scale)
	NoiseLevel  float64       `yaml:"noise_level"`  // Noise amplitude (0..1 of full scale)
	Lag         time.Duration `yaml:"lag"`          // First-order time constant of the room
	ReadLatency time.Duration `yaml:"read_latency"` // Simulated conversion time
	FailEvery   int           `yaml:"fail_every"`   // Fail every Nth read (0 = never)
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // error, warn, info, debug
}

// TelemetryConfig contains optional telemetry outputs.
type TelemetryConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
	HTTP HTTPConfig `yaml:"http"`
}

// MQTTConfig contains MQTT publisher configuration. Empty Broker disables MQTT.
type MQTTConfig struct {
	Broker       string        `yaml:"broker"`
	ClientID     string        `yaml:"client_id"`
	Topic        string        `yaml:"topic"`         // State snapshots
	CommandTopic string        `yaml:"command_topic"` // Remote button presses
	QoS          byte          `yaml:"qos"`
	KeepAlive    time.Duration `yaml:"keep_alive"`
}

// HTTPConfig contains the WebSocket/metrics server configuration. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		ADC: ADCConfig{
			ResolutionBits: 10,
			FullScaleMV:    3000,
		},
		Sampler: SamplerConfig{
			Period: 1000 * time.Millisecond,
		},
		Filter: FilterConfig{
			Size:             10,
			DeviationPercent: 10,
		},
		Controller: ControllerConfig{
			Kp:           0.5,
			Ti:           0,
			IntegralLow:  -14,
			IntegralHigh: 14,
		},
		PWM: PWMConfig{
			PeriodUs: 1000,
		},
		State: StateConfig{
			InitialMode:      "manual",
			InitialIntensity: 10,
		},
		Buttons: ButtonsConfig{
			QueueSize: 16,
			Evdev: EvdevConfig{
				AutomaticKey: 30,  // KEY_A
				ManualKey:    48,  // KEY_B
				UpKey:        103, // KEY_UP
				DownKey:      108, // KEY_DOWN
			},
		},
		Mock: MockConfig{
			Ambient:     0.1,
			LampGain:    0.8,
			NoiseLevel:  0.01,
			Lag:         2 * time.Second,
			ReadLatency: time.Millisecond,
			FailEvery:   0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			MQTT: MQTTConfig{
				ClientID:     "golux",
				Topic:        "golux/state",
				CommandTopic: "golux/buttons",
				QoS:          1,
				KeepAlive:    30 * time.Second,
			},
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MaxCode returns the largest raw code the ADC can produce.
func (c ADCConfig) MaxCode() uint16 {
	return uint16(1<<c.ResolutionBits - 1)
}

// Validate reports values that cannot be used by the control loop.
func (c *Config) Validate() error {
	if c.ADC.ResolutionBits < 1 || c.ADC.ResolutionBits > 16 {
		return fmt.Errorf("adc.resolution_bits out of range: %d", c.ADC.ResolutionBits)
	}
	if c.Sampler.Period <= 0 {
		return fmt.Errorf("sampler.period must be positive: %s", c.Sampler.Period)
	}
	if c.Filter.Size <= 0 {
		return fmt.Errorf("filter.size must be positive: %d", c.Filter.Size)
	}
	if c.Filter.DeviationPercent <= 0 {
		return fmt.Errorf("filter.deviation_percent must be positive: %d", c.Filter.DeviationPercent)
	}
	if !finite(c.Controller.Kp) {
		return fmt.Errorf("controller.kp must be finite: %v", c.Controller.Kp)
	}
	if !finite(c.Controller.Ti) {
		return fmt.Errorf("controller.ti must be finite: %v", c.Controller.Ti)
	}
	if c.Controller.IntegralLow > c.Controller.IntegralHigh {
		return fmt.Errorf("controller integral limits inverted: %d > %d", c.Controller.IntegralLow, c.Controller.IntegralHigh)
	}
	if c.PWM.PeriodUs == 0 {
		return fmt.Errorf("pwm.period_us must be positive")
	}
	if c.State.InitialIntensity < 0 || c.State.InitialIntensity > 100 {
		return fmt.Errorf("state.initial_intensity out of range: %d", c.State.InitialIntensity)
	}
	switch c.State.InitialMode {
	case "manual", "automatic":
	default:
		return fmt.Errorf("state.initial_mode must be manual or automatic, got %q", c.State.InitialMode)
	}
	return nil
}

func finite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.ADC.ResolutionBits == 0 {
		c.ADC.ResolutionBits = def.ADC.ResolutionBits
	}
	if c.ADC.FullScaleMV == 0 {
		c.ADC.FullScaleMV = def.ADC.FullScaleMV
	}

	if c.Sampler.Period == 0 {
		c.Sampler.Period = def.Sampler.Period
	}

	if c.Filter.Size == 0 {
		c.Filter.Size = def.Filter.Size
	}
	if c.Filter.DeviationPercent == 0 {
		c.Filter.DeviationPercent = def.Filter.DeviationPercent
	}

	// Zero gains are valid settings. Only an all-zero limit pair is defaulted.
	if c.Controller.IntegralLow == 0 && c.Controller.IntegralHigh == 0 {
		c.Controller.IntegralLow = def.Controller.IntegralLow
		c.Controller.IntegralHigh = def.Controller.IntegralHigh
	}

	if c.PWM.PeriodUs == 0 {
		c.PWM.PeriodUs = def.PWM.PeriodUs
	}

	if c.State.InitialMode == "" {
		c.State.InitialMode = def.State.InitialMode
	}

	if c.Buttons.QueueSize == 0 {
		c.Buttons.QueueSize = def.Buttons.QueueSize
	}

	if c.Mock.Lag == 0 {
		c.Mock.Lag = def.Mock.Lag
	}

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}

	if c.Telemetry.MQTT.ClientID == "" {
		c.Telemetry.MQTT.ClientID = def.Telemetry.MQTT.ClientID
	}
	if c.Telemetry.MQTT.Topic == "" {
		c.Telemetry.MQTT.Topic = def.Telemetry.MQTT.Topic
	}
	if c.Telemetry.MQTT.KeepAlive == 0 {
		c.Telemetry.MQTT.KeepAlive = def.Telemetry.MQTT.KeepAlive
	}
}
