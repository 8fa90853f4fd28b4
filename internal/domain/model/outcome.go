package model

import "time"

// OutcomeStatus is the terminal state of one command execution attempt.
type OutcomeStatus string

const (
	// OutcomeSucceeded indicates the command ran and succeeded.
	OutcomeSucceeded OutcomeStatus = "succeeded"
	// OutcomeFailed indicates the command ran but could not logically succeed
	// (e.g. the target PR was closed). Terminal for the command; not retried.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeSkipped indicates the command was never invoked in this attempt,
	// because an earlier command hit a transient error.
	OutcomeSkipped OutcomeStatus = "skipped"
)

// CommandOutcome is the result of executing a single command against a target
// during one delivery attempt.
type CommandOutcome struct {
	Command  Command       `json:"command"`
	Status   OutcomeStatus `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// JobResult aggregates the per-command outcomes of one delivery attempt, in
// submission order. It is owned exclusively by the dispatcher for the
// duration of the attempt and discarded after reporting.
type JobResult struct {
	TargetReference string           `json:"target_reference"`
	Attempt         int              `json:"attempt"`
	Outcomes        []CommandOutcome `json:"outcomes"`
	Permanent       bool             `json:"permanent,omitempty"` // true when a structurally invalid message was acked unprocessed
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     time.Time        `json:"completed_at"`
}

// Succeeded reports whether every command in the attempt succeeded.
func (r *JobResult) Succeeded() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if o.Status != OutcomeSucceeded {
			return false
		}
	}
	return true
}

// Counts tallies outcomes by status for logs and metrics.
func (r *JobResult) Counts() (succeeded, failed, skipped int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case OutcomeSucceeded:
			succeeded++
		case OutcomeFailed:
			failed++
		case OutcomeSkipped:
			skipped++
		}
	}
	return succeeded, failed, skipped
}
