package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itohio/golux/pkg/pipeline"
	"github.com/itohio/golux/pkg/sample"
	"github.com/itohio/golux/pkg/state"
)

const namespace = "golux"

// Metrics exposes the controller state and pipeline counters to Prometheus.
// Gauges and counters read the loop on scrape; actuation metrics are fed
// through Publish.
type Metrics struct {
	registry *prometheus.Registry

	onTime      prometheus.Gauge
	actuations  *prometheus.CounterVec
	lastPercent prometheus.Gauge
}

// NewMetrics registers the metrics of l on a dedicated registry.
func NewMetrics(l *pipeline.Loop, maxCode uint16) *Metrics {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, fn)
	}
	counter := func(name, help string, labels prometheus.Labels, fn func() float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, fn)
	}

	m := &Metrics{
		registry: reg,
		onTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pwm_on_time_us",
			Help:      "Output-high time of the last PWM update (active-low lamp).",
		}),
		lastPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pwm_percent",
			Help:      "Duty cycle applied by the last PWM update.",
		}),
		actuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuations_total",
			Help:      "PWM updates by request origin.",
		}, []string{"origin"}),
	}

	reg.MustRegister(
		m.onTime,
		m.lastPercent,
		m.actuations,

		gauge("duty_cycle_percent", "Controller output.", func() float64 {
			return float64(l.State.DutyCycle())
		}),
		gauge("intensity_setpoint_percent", "Manual intensity, also the automatic setpoint.", func() float64 {
			return float64(l.State.Intensity())
		}),
		gauge("intensity_percent", "Measured intensity derived from the trimmed mean.", func() float64 {
			return float64(sample.Percent(l.State.TrimmedMean(), maxCode))
		}),
		gauge("trimmed_mean", "Filtered ADC code.", func() float64 {
			return float64(l.State.TrimmedMean())
		}),
		gauge("sample_raw", "Last published ADC code.", func() float64 {
			return float64(l.State.Sample())
		}),
		gauge("mode_automatic", "1 in automatic mode, 0 in manual mode.", func() float64 {
			if l.State.Mode() == state.ModeAutomatic {
				return 1
			}
			return 0
		}),

		counter("samples_total", "Samples published by the sampler.", nil, func() float64 {
			return float64(l.Sampler.Stats().Samples)
		}),
		counter("sample_errors_total", "Failed analog reads.", nil, func() float64 {
			return float64(l.Sampler.Stats().Errors)
		}),
		counter("sample_out_of_range_total", "Samples discarded for exceeding the ADC range.", nil, func() float64 {
			return float64(l.Sampler.Stats().OutOfRange)
		}),
		counter("regulator_updates_total", "Filter and controller updates.", nil, func() float64 {
			return float64(l.Regulator.Updates())
		}),
		counter("pwm_errors_total", "Failed PWM updates.", nil, func() float64 {
			return float64(l.Actuator.Stats().Errors)
		}),
		counter("button_drops_total", "Button edges lost to a full queue.", nil, func() float64 {
			return float64(l.Buttons.Drops())
		}),
		counter("signal_coalesced_total", "Signal raises merged into a pending permit.",
			prometheus.Labels{"signal": "samples"}, func() float64 {
				return float64(l.Samples.Coalesced())
			}),
		counter("signal_coalesced_total", "Signal raises merged into a pending permit.",
			prometheus.Labels{"signal": "actuations"}, func() float64 {
				return float64(l.Actuations.Coalesced())
			}),
	)

	return m
}

// Publish records one actuation.
func (m *Metrics) Publish(s Snapshot) {
	m.onTime.Set(float64(s.OnTimeUs))
	m.lastPercent.Set(float64(activePercent(s)))
	m.actuations.WithLabelValues(s.Origin).Inc()
}

// activePercent recovers the applied duty cycle from a snapshot.
func activePercent(s Snapshot) int {
	if s.Mode == state.ModeAutomatic.String() {
		return s.DutyCycle
	}
	return s.Intensity
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
