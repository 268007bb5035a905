package engine

import (
	"context"
	"fmt"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/refinery-dev/refinery/internal/service"
)

// RefactorWorkflowName is the workflow type registered by the worker fleet.
const RefactorWorkflowName = "RefactorJobWorkflow"

// TaskQueue is the task queue the worker fleet polls.
const TaskQueue = "refactor-jobs"

// workflowID derives the deterministic workflow id for a job, which also
// serves as the duplicate-start guard.
func workflowID(jobID string) string {
	return "job-" + jobID
}

// Temporal drives refactoring runs on a Temporal cluster. It implements
// service.Engine.
type Temporal struct {
	client client.Client
}

// NewTemporal wraps an established Temporal client.
func NewTemporal(c client.Client) *Temporal {
	return &Temporal{client: c}
}

// Dial connects to a Temporal frontend and returns the engine.
func Dial(hostPort, namespace string) (*Temporal, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", hostPort, err)
	}
	return &Temporal{client: c}, nil
}

// Close releases the underlying client connection.
func (t *Temporal) Close() {
	t.client.Close()
}

// Start launches the refactoring workflow for a job. The deterministic
// workflow id rejects a second start for the same job while a run is open.
func (t *Temporal) Start(ctx context.Context, p service.StartParams) error {
	_, err := t.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    workflowID(p.JobID),
		TaskQueue:             TaskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}, RefactorWorkflowName, p)
	if err != nil {
		return fmt.Errorf("start workflow for job %s: %w", p.JobID, err)
	}
	return nil
}

// Signal delivers a named signal to the job's running workflow.
func (t *Temporal) Signal(ctx context.Context, jobID, signal string, payload any) error {
	if err := t.client.SignalWorkflow(ctx, workflowID(jobID), "", signal, payload); err != nil {
		return fmt.Errorf("signal %s for job %s: %w", signal, jobID, err)
	}
	return nil
}

// Cancel requests cooperative cancellation, letting in-flight activities
// clean up.
func (t *Temporal) Cancel(ctx context.Context, jobID string) error {
	if err := t.client.CancelWorkflow(ctx, workflowID(jobID), ""); err != nil {
		return fmt.Errorf("cancel workflow for job %s: %w", jobID, err)
	}
	return nil
}

// Terminate stops the workflow immediately without waiting for cleanup.
func (t *Temporal) Terminate(ctx context.Context, jobID, reason string) error {
	if err := t.client.TerminateWorkflow(ctx, workflowID(jobID), "", reason); err != nil {
		return fmt.Errorf("terminate workflow for job %s: %w", jobID, err)
	}
	return nil
}
