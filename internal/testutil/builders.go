// Package testutil provides testing utilities and helpers for the relay delivery pipeline.
package testutil

import (
	"time"

	"github.com/reviewloop/relay/internal/domain/model"
)

// JobBuilder provides a fluent interface for building NormalizedJob objects for testing.
type JobBuilder struct {
	job *model.NormalizedJob
}

// NewJob creates a new JobBuilder with sensible defaults.
func NewJob() *JobBuilder {
	return &JobBuilder{
		job: &model.NormalizedJob{
			TargetReference: "https://github.com/acme/widgets/pull/42",
			Commands: []model.Command{
				{Name: model.CommandReview},
				{Name: model.CommandDescribe},
			},
			Origin: model.NewOrigin("pull_request", "opened", "octocat", TestTime()),
		},
	}
}

// WithTarget sets the target reference.
func (b *JobBuilder) WithTarget(target string) *JobBuilder {
	b.job.TargetReference = target
	return b
}

// WithCommands replaces the command list.
func (b *JobBuilder) WithCommands(commands ...model.Command) *JobBuilder {
	b.job.Commands = commands
	return b
}

// WithCommandNames replaces the command list with argument-free commands.
func (b *JobBuilder) WithCommandNames(names ...model.CommandName) *JobBuilder {
	commands := make([]model.Command, 0, len(names))
	for _, n := range names {
		commands = append(commands, model.Command{Name: n})
	}
	b.job.Commands = commands
	return b
}

// WithOrigin sets the origin metadata.
func (b *JobBuilder) WithOrigin(eventType, action, actor string, receivedAt time.Time) *JobBuilder {
	b.job.Origin = model.NewOrigin(eventType, action, actor, receivedAt)
	return b
}

// Build returns the built NormalizedJob.
func (b *JobBuilder) Build() *model.NormalizedJob {
	return b.job
}

// OutcomeBuilder provides a fluent interface for building JobResult objects for testing.
type OutcomeBuilder struct {
	result *model.JobResult
}

// NewJobResult creates a new OutcomeBuilder with sensible defaults.
func NewJobResult() *OutcomeBuilder {
	started := TestTime()
	return &OutcomeBuilder{
		result: &model.JobResult{
			TargetReference: "https://github.com/acme/widgets/pull/42",
			Attempt:         1,
			StartedAt:       started,
			CompletedAt:     started.Add(5 * time.Second),
		},
	}
}

// WithTarget sets the target reference.
func (b *OutcomeBuilder) WithTarget(target string) *OutcomeBuilder {
	b.result.TargetReference = target
	return b
}

// WithAttempt sets the attempt number.
func (b *OutcomeBuilder) WithAttempt(attempt int) *OutcomeBuilder {
	b.result.Attempt = attempt
	return b
}

// WithOutcome appends a command outcome.
func (b *OutcomeBuilder) WithOutcome(name model.CommandName, status model.OutcomeStatus, detail string) *OutcomeBuilder {
	b.result.Outcomes = append(b.result.Outcomes, model.CommandOutcome{
		Command: model.Command{Name: name},
		Status:  status,
		Detail:  detail,
	})
	return b
}

// Permanent marks the result as a terminal attempt.
func (b *OutcomeBuilder) Permanent() *OutcomeBuilder {
	b.result.Permanent = true
	return b
}

// Build returns the built JobResult.
func (b *OutcomeBuilder) Build() *model.JobResult {
	return b.result
}
