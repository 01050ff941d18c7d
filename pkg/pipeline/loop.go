package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/itohio/golux/pkg/board"
	"github.com/itohio/golux/pkg/config"
	"github.com/itohio/golux/pkg/logging"
	"github.com/itohio/golux/pkg/pi"
	"github.com/itohio/golux/pkg/sample"
	"github.com/itohio/golux/pkg/signal"
	"github.com/itohio/golux/pkg/state"
)

// Stats aggregates the counters of all stages.
type Stats struct {
	Sampler             SamplerStats
	Updates             uint64
	Actuator            ActuatorStats
	ButtonsHandled      uint64
	ButtonDrops         uint64
	SamplesRaised       uint64
	SamplesCoalesced    uint64
	ActuationsRaised    uint64
	ActuationsCoalesced uint64
}

type namedTask struct {
	name string
	fn   Task
}

// Loop wires the stages to a board and runs them together.
type Loop struct {
	State      *state.Shared
	Samples    *signal.Signal[sample.Reading]
	Actuations *signal.Signal[Request]

	Sampler   *Sampler
	Regulator *Regulator
	Actuator  *Actuator
	Buttons   *Buttons

	cfg    *config.Config
	logger *slog.Logger
	tasks  []namedTask
}

// New builds the pipeline for cfg on top of b and registers the button
// handler with the board.
func New(cfg *config.Config, b board.Board, logger *slog.Logger) (*Loop, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mode, err := state.ParseMode(cfg.State.InitialMode)
	if err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}

	l := &Loop{
		State:      state.New(mode, cfg.State.InitialIntensity),
		Samples:    signal.New[sample.Reading](),
		Actuations: signal.New[Request](),
		cfg:        cfg,
		logger:     logger,
	}

	conv := sample.NewConverter(cfg.ADC)
	l.Sampler = NewSampler(b, l.State, conv, l.Samples, cfg.Sampler.Period,
		logging.Component(logger, "sampler"))
	l.Regulator = NewRegulator(l.State, l.Samples, l.Actuations,
		cfg.Filter.Size, cfg.Filter.DeviationPercent, conv.MaxCode(),
		pi.New(cfg.Controller), logging.Component(logger, "regulator"))
	l.Actuator = NewActuator(b, l.State, l.Actuations, cfg.PWM.PeriodUs,
		logging.Component(logger, "actuator"))
	l.Buttons = NewButtons(l.State, l.Actuations, cfg.Buttons.QueueSize,
		logging.Component(logger, "buttons"))

	b.OnButtons(l.Buttons.HandleEdge)

	return l, nil
}

// Go registers an auxiliary task started by Run. A failing task is logged
// and does not stop the control loop.
func (l *Loop) Go(name string, task Task) {
	l.tasks = append(l.tasks, namedTask{name: name, fn: task})
}

// Run starts all stages and registered tasks and blocks until ctx is
// cancelled and every goroutine has returned.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("light controller started",
		"adc_bits", l.cfg.ADC.ResolutionBits,
		"input_range_mv", l.cfg.ADC.FullScaleMV,
		"period", l.cfg.Sampler.Period,
		"pwm_period_us", l.cfg.PWM.PeriodUs,
		"mode", l.State.Mode(),
		"intensity", l.State.Intensity(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.Sampler.Run(ctx) })
	g.Go(func() error { return l.Regulator.Run(ctx) })
	g.Go(func() error { return l.Actuator.Run(ctx) })
	g.Go(func() error { return l.Buttons.Run(ctx) })

	for _, t := range l.tasks {
		g.Go(func() error {
			if err := t.fn(ctx); err != nil && ctx.Err() == nil {
				l.logger.Error("task failed", "task", t.name, "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	l.logger.Info("light controller stopped")
	return err
}

// Stats returns a snapshot of all counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Sampler:             l.Sampler.Stats(),
		Updates:             l.Regulator.Updates(),
		Actuator:            l.Actuator.Stats(),
		ButtonsHandled:      l.Buttons.Handled(),
		ButtonDrops:         l.Buttons.Drops(),
		SamplesRaised:       l.Samples.Raised(),
		SamplesCoalesced:    l.Samples.Coalesced(),
		ActuationsRaised:    l.Actuations.Raised(),
		ActuationsCoalesced: l.Actuations.Coalesced(),
	}
}
