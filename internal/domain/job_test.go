package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"pending starts analysis", JobStatusPending, JobStatusAnalyzing, true},
		{"pending cannot skip to refactoring", JobStatusPending, JobStatusRefactoring, false},
		{"analysis yields strategy wait", JobStatusAnalyzing, JobStatusWaitingStrategy, true},
		{"strategy choice leads to spec approval", JobStatusWaitingStrategy, JobStatusWaitingSpecApproval, true},
		{"refactoring can deliver", JobStatusRefactoring, JobStatusDelivered, true},
		{"refactoring can fall back", JobStatusRefactoring, JobStatusFallbackRequired, true},
		{"self healing can escalate to deep fix", JobStatusSelfHealing, JobStatusDeepFixActive, true},
		{"intervention can resume refactoring", JobStatusWaitingIntervention, JobStatusRefactoring, true},
		{"deep fix can deliver", JobStatusDeepFixActive, JobStatusDelivered, true},
		{"any active status may fail", JobStatusGeneratingTests, JobStatusFailed, true},
		{"pending may fail", JobStatusPending, JobStatusFailed, true},
		{"delivered is immutable", JobStatusDelivered, JobStatusFailed, false},
		{"failed is immutable", JobStatusFailed, JobStatusPending, false},
		{"fallback required is immutable", JobStatusFallbackRequired, JobStatusRefactoring, false},
		{"no backwards jump to pending", JobStatusRefactoring, JobStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusDelivered, JobStatusFailed, JobStatusFallbackRequired}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}

	active := []JobStatus{
		JobStatusPending, JobStatusAnalyzing, JobStatusWaitingStrategy,
		JobStatusWaitingSpecApproval, JobStatusGeneratingTests, JobStatusBaselineValidation,
		JobStatusRefactoring, JobStatusSelfHealing, JobStatusWaitingIntervention,
		JobStatusDeepFixActive,
	}
	for _, s := range active {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}
