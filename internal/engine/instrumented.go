package engine

import (
	"context"

	"github.com/refinery-dev/refinery/internal/metrics"
	"github.com/refinery-dev/refinery/internal/service"
)

// Instrumented wraps an engine so every failed call is counted, labelled by
// operation. The wrapped error is returned unchanged.
type Instrumented struct {
	next    service.Engine
	metrics *metrics.Metrics
}

// Instrument wraps the engine with failure counting.
func Instrument(next service.Engine, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (e *Instrumented) Start(ctx context.Context, p service.StartParams) error {
	return e.count("start", e.next.Start(ctx, p))
}

func (e *Instrumented) Signal(ctx context.Context, jobID, name string, payload any) error {
	return e.count("signal", e.next.Signal(ctx, jobID, name, payload))
}

func (e *Instrumented) Cancel(ctx context.Context, jobID string) error {
	return e.count("cancel", e.next.Cancel(ctx, jobID))
}

func (e *Instrumented) Terminate(ctx context.Context, jobID, reason string) error {
	return e.count("terminate", e.next.Terminate(ctx, jobID, reason))
}

func (e *Instrumented) count(op string, err error) error {
	if err != nil {
		e.metrics.EngineFailures.WithLabelValues(op).Inc()
	}
	return err
}
