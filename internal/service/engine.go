package service

import (
	"context"

	"github.com/refinery-dev/refinery/internal/domain"
)

// Signal names understood by the execution engine's job workflow.
const (
	SignalHeartbeatReceived  = "heartbeatReceived"
	SignalSpecUpdated        = "specUpdatedDuringExecution"
	SignalProposalSelected   = "proposalSelected"
	SignalSpecApproved       = "specApproved"
	SignalInterventionAction = "interventionAction"
	SignalNLConvertRequested = "nlConvertRequested"
)

// StartParams carries everything the engine needs to begin a job run.
type StartParams struct {
	JobID         string               `json:"jobId"`
	UserID        string               `json:"userId"`
	Tier          domain.Tier          `json:"tier"`
	ExecutionMode domain.ExecutionMode `json:"executionMode"`
}

// Engine is the durable execution collaborator that performs the
// long-running refactoring work. Exactly one run exists per job at a time;
// the run is addressed by job id.
type Engine interface {
	Start(ctx context.Context, params StartParams) error
	Signal(ctx context.Context, jobID, name string, payload any) error
	Cancel(ctx context.Context, jobID string) error
	Terminate(ctx context.Context, jobID, reason string) error
}
