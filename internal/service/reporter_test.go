package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/reviewloop/relay/internal/domain/model"
	"github.com/reviewloop/relay/internal/mocks"
	"github.com/reviewloop/relay/internal/testutil"
)

func newTestReporter(t *testing.T, deps ReporterDeps) (*ReporterService, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	svc, err := NewReporterService(ReporterServiceOptions{Logger: logger, Deps: deps})
	require.NoError(t, err)
	return svc, &buf
}

func TestNewReporterService_RequiresLogger(t *testing.T) {
	svc, err := NewReporterService(ReporterServiceOptions{})
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "Logger is required")
}

func TestReporterService_LogsAttemptSummary(t *testing.T) {
	svc, buf := newTestReporter(t, ReporterDeps{})

	result := testutil.NewJobResult().
		WithAttempt(2).
		WithOutcome(model.CommandReview, model.OutcomeSucceeded, "review posted").
		WithOutcome(model.CommandDescribe, model.OutcomeFailed, "description rejected").
		Build()

	svc.Report(context.Background(), "delivery-1", result)

	out := buf.String()
	assert.Contains(t, out, "delivery attempt had failures")
	assert.Contains(t, out, `"delivery_id":"delivery-1"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, `"command":"review"`)
	assert.Contains(t, out, `"command":"describe"`)
	assert.Contains(t, out, "description rejected")
}

func TestReporterService_AllSucceededLogsInfo(t *testing.T) {
	svc, buf := newTestReporter(t, ReporterDeps{})

	result := testutil.NewJobResult().
		WithOutcome(model.CommandReview, model.OutcomeSucceeded, "").
		Build()

	svc.Report(context.Background(), "delivery-2", result)
	assert.Contains(t, buf.String(), "delivery attempt succeeded")
}

func TestReporterService_PermanentLogsError(t *testing.T) {
	svc, buf := newTestReporter(t, ReporterDeps{})

	result := testutil.NewJobResult().Permanent().Build()
	svc.Report(context.Background(), "delivery-3", result)
	assert.Contains(t, buf.String(), "delivery attempt terminal")
}

func TestReporterService_DuplicateAttemptSuppressed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	claims := mocks.NewMockClaimStore(ctrl)
	gomock.InOrder(
		claims.EXPECT().Claim(gomock.Any(), "report:delivery-4:1", gomock.Any()).Return(true, nil),
		claims.EXPECT().Claim(gomock.Any(), "report:delivery-4:1", gomock.Any()).Return(false, nil),
	)

	svc, buf := newTestReporter(t, ReporterDeps{Claims: claims})
	result := testutil.NewJobResult().
		WithAttempt(1).
		WithOutcome(model.CommandReview, model.OutcomeSucceeded, "").
		Build()

	svc.Report(context.Background(), "delivery-4", result)
	first := buf.Len()
	assert.Positive(t, first)

	svc.Report(context.Background(), "delivery-4", result)
	assert.Equal(t, first, buf.Len())
}

func TestReporterService_ClaimFailureReportsAnyway(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	claims := mocks.NewMockClaimStore(ctrl)
	claims.EXPECT().Claim(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))

	svc, buf := newTestReporter(t, ReporterDeps{Claims: claims})
	result := testutil.NewJobResult().
		WithOutcome(model.CommandReview, model.OutcomeSucceeded, "").
		Build()

	svc.Report(context.Background(), "delivery-5", result)

	out := buf.String()
	assert.Contains(t, out, "report claim failed")
	assert.Contains(t, out, "delivery attempt succeeded")
}

func TestReporterService_NilResultIgnored(t *testing.T) {
	svc, buf := newTestReporter(t, ReporterDeps{})
	svc.Report(context.Background(), "delivery-6", nil)
	assert.Zero(t, buf.Len())
}
