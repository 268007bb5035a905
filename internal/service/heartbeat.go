package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/refinery-dev/refinery/internal/domain"
)

// HeartbeatStore is the data access consumed by HeartbeatService.
type HeartbeatStore interface {
	Touch(ctx context.Context, jobID, sessionID, workflowRunID string) (*domain.HeartbeatSession, error)
}

// HeartbeatService keeps the durable client liveness record accurate. The
// send interval and grace window themselves are enforced by the execution
// engine's timers, informed by this record.
type HeartbeatService struct {
	store  HeartbeatStore
	jobs   JobReader
	engine Engine
}

// NewHeartbeatService creates a HeartbeatService.
func NewHeartbeatService(store HeartbeatStore, jobs JobReader, engine Engine) *HeartbeatService {
	return &HeartbeatService{store: store, jobs: jobs, engine: engine}
}

// Touch upserts the session to ACTIVE and forwards a liveness signal to the
// engine. Idempotent under retries and accepted at any job status; a stale
// heartbeat for a terminal job updates the record but the signal is a no-op
// because no run exists.
func (s *HeartbeatService) Touch(ctx context.Context, userID, jobID, sessionID string) (*domain.HeartbeatSession, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != userID {
		// The original surface reports a missing job rather than confirming
		// its existence to a non-owner.
		return nil, domain.ErrNotFound
	}

	session, err := s.store.Touch(ctx, jobID, sessionID, "job-"+jobID)
	if err != nil {
		return nil, err
	}

	if err := s.engine.Signal(ctx, jobID, SignalHeartbeatReceived, map[string]string{
		"sessionId": sessionID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		// The run may be terminal; the durable record is already updated.
		slog.Debug("heartbeat signal skipped", "job_id", jobID, "error", err)
	}

	return session, nil
}
