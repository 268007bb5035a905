package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-dev/refinery/internal/metrics"
	"github.com/refinery-dev/refinery/internal/service"
)

type flakyEngine struct {
	err error
}

func (e *flakyEngine) Start(ctx context.Context, p service.StartParams) error { return e.err }
func (e *flakyEngine) Signal(ctx context.Context, jobID, name string, payload any) error {
	return e.err
}
func (e *flakyEngine) Cancel(ctx context.Context, jobID string) error            { return e.err }
func (e *flakyEngine) Terminate(ctx context.Context, jobID, reason string) error { return e.err }

func TestInstrumentedCountsFailures(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	next := &flakyEngine{err: errors.New("frontend unavailable")}
	eng := Instrument(next, m)

	err := eng.Start(ctx, service.StartParams{JobID: "j1"})
	require.Error(t, err)
	require.Error(t, eng.Signal(ctx, "j1", "specApproved", nil))
	require.Error(t, eng.Signal(ctx, "j1", "heartbeatReceived", nil))
	require.Error(t, eng.Cancel(ctx, "j1"))
	require.Error(t, eng.Terminate(ctx, "j1", "stop"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineFailures.WithLabelValues("start")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EngineFailures.WithLabelValues("signal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineFailures.WithLabelValues("cancel")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineFailures.WithLabelValues("terminate")))

	// The error reaches the caller untouched.
	assert.Equal(t, next.err, err)
}

func TestInstrumentedPassesSuccessesSilently(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	eng := Instrument(&flakyEngine{}, m)

	require.NoError(t, eng.Start(context.Background(), service.StartParams{JobID: "j1"}))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EngineFailures.WithLabelValues("start")))
}
