package service

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/refinery-dev/refinery/internal/domain"
)

// fakeLocker runs the unit of work directly; the store fakes ignore the
// queryer so no real transaction is needed.
type fakeLocker struct {
	keys []string
}

func (l *fakeLocker) WithExclusive(ctx context.Context, key string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	l.keys = append(l.keys, key)
	return fn(ctx, nil)
}

func (l *fakeLocker) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return fn(ctx, nil)
}

type signalCall struct {
	jobID   string
	name    string
	payload any
}

// fakeEngine records calls and returns the configured errors.
type fakeEngine struct {
	startErr     error
	signalErr    error
	cancelErr    error
	terminateErr error

	started    []StartParams
	signals    []signalCall
	cancelled  []string
	terminated []string
}

func (e *fakeEngine) Start(ctx context.Context, p StartParams) error {
	e.started = append(e.started, p)
	return e.startErr
}

func (e *fakeEngine) Signal(ctx context.Context, jobID, name string, payload any) error {
	e.signals = append(e.signals, signalCall{jobID: jobID, name: name, payload: payload})
	return e.signalErr
}

func (e *fakeEngine) Cancel(ctx context.Context, jobID string) error {
	e.cancelled = append(e.cancelled, jobID)
	return e.cancelErr
}

func (e *fakeEngine) Terminate(ctx context.Context, jobID, reason string) error {
	e.terminated = append(e.terminated, jobID)
	return e.terminateErr
}

// fakeJobReader serves jobs by id.
type fakeJobReader struct {
	jobs map[string]*domain.Job
}

func (r *fakeJobReader) FindByID(ctx context.Context, id string) (*domain.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}
