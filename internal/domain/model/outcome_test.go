package model_test

import (
	"testing"
	"time"

	"github.com/reviewloop/relay/internal/domain/model"
	"github.com/stretchr/testify/assert"
)

func TestJobResultSucceeded(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []model.CommandOutcome
		want     bool
	}{
		{
			name: "all succeeded",
			outcomes: []model.CommandOutcome{
				{Command: model.Command{Name: model.CommandReview}, Status: model.OutcomeSucceeded},
				{Command: model.Command{Name: model.CommandTest}, Status: model.OutcomeSucceeded},
			},
			want: true,
		},
		{
			name: "one failed",
			outcomes: []model.CommandOutcome{
				{Command: model.Command{Name: model.CommandReview}, Status: model.OutcomeSucceeded},
				{Command: model.Command{Name: model.CommandTest}, Status: model.OutcomeFailed},
			},
			want: false,
		},
		{
			name: "skipped tail after transient error",
			outcomes: []model.CommandOutcome{
				{Command: model.Command{Name: model.CommandReview}, Status: model.OutcomeSucceeded},
				{Command: model.Command{Name: model.CommandTest}, Status: model.OutcomeSkipped},
			},
			want: false,
		},
		{
			name:     "no outcomes",
			outcomes: nil,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := &model.JobResult{
				TargetReference: "https://github.com/acme/widgets/pull/3",
				Attempt:         1,
				Outcomes:        tt.outcomes,
			}
			assert.Equal(t, tt.want, result.Succeeded())
		})
	}
}

func TestJobResultCounts(t *testing.T) {
	result := &model.JobResult{
		Outcomes: []model.CommandOutcome{
			{Status: model.OutcomeSucceeded, Duration: 2 * time.Second},
			{Status: model.OutcomeSucceeded},
			{Status: model.OutcomeFailed, Detail: "target PR is closed"},
			{Status: model.OutcomeSkipped},
			{Status: model.OutcomeSkipped},
			{Status: model.OutcomeSkipped},
		},
	}

	succeeded, failed, skipped := result.Counts()
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, skipped)
}
