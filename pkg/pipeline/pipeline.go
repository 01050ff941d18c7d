// Package pipeline implements the sample -> filter/control -> actuate chain
// and the button handler that drives the operating mode.
//
// Stages hand work to each other through two coalescing signals: the sampler
// raises Samples for the regulator, and both the regulator and the button
// handler raise Actuations for the actuator.
package pipeline

import (
	"context"
	"time"
)

// Origin identifies the producer of an actuation request.
type Origin int

const (
	OriginController Origin = iota
	OriginButton
)

func (o Origin) String() string {
	switch o {
	case OriginController:
		return "controller"
	case OriginButton:
		return "button"
	default:
		return "unknown"
	}
}

// Request is the payload carried by the actuation signal.
type Request struct {
	Origin Origin
	Time   time.Time
}

// AnalogReader is the part of a board the sampler needs.
type AnalogReader interface {
	ReadAnalog(ctx context.Context) (uint16, error)
}

// PWMWriter is the part of a board the actuator needs.
type PWMWriter interface {
	SetPWM(periodUs, onTimeUs uint32) error
}

// Task is an auxiliary goroutine run alongside the pipeline stages.
type Task func(ctx context.Context) error
