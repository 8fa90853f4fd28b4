package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/domain/model"
	"github.com/reviewloop/relay/internal/mocks"
	"github.com/reviewloop/relay/internal/observability/notify"
	"github.com/reviewloop/relay/internal/service/deadletternotifier"
	"github.com/reviewloop/relay/internal/testutil"
)

// capturingReporter records the last reported result for assertions.
type capturingReporter struct {
	deliveryID string
	result     *model.JobResult
}

func (r *capturingReporter) Report(_ context.Context, deliveryID string, result *model.JobResult) {
	r.deliveryID = deliveryID
	r.result = result
}

func publishAndReserve(t *testing.T, channel *testutil.FakeChannel, job *model.NormalizedJob) *model.Delivery {
	t.Helper()
	_, err := channel.Publish(context.Background(), job)
	require.NoError(t, err)
	delivery, err := channel.Reserve(context.Background(), time.Minute)
	require.NoError(t, err)
	return delivery
}

func TestNewDispatchService_RequiredDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, err := NewDispatchService(DispatchServiceOptions{
		Channel:  nil,
		Executor: mocks.NewMockExecutor(ctrl),
	})
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "Channel is required")

	svc, err = NewDispatchService(DispatchServiceOptions{
		Channel:  testutil.NewFakeChannel(3),
		Executor: nil,
	})
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "Executor is required")
}

func TestDispatchService_AllCommandsSucceedAcks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := testutil.NewFakeChannel(3)
	executor := mocks.NewMockExecutor(ctrl)
	reporter := &capturingReporter{}

	job := testutil.NewJob().Build()
	delivery := publishAndReserve(t, channel, job)

	gomock.InOrder(
		executor.EXPECT().
			Execute(gomock.Any(), job.TargetReference, job.Commands[0]).
			Return(model.CommandOutcome{Status: model.OutcomeSucceeded, Detail: "review posted"}, nil),
		executor.EXPECT().
			Execute(gomock.Any(), job.TargetReference, job.Commands[1]).
			Return(model.CommandOutcome{Status: model.OutcomeSucceeded}, nil),
	)

	svc, err := NewDispatchService(DispatchServiceOptions{
		Channel:  channel,
		Executor: executor,
		Deps:     DispatchDeps{Reporter: reporter},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), delivery))
	assert.Equal(t, 1, channel.AckedCount())
	assert.Zero(t, channel.PendingCount())

	require.NotNil(t, reporter.result)
	assert.Equal(t, delivery.ID, reporter.deliveryID)
	assert.True(t, reporter.result.Succeeded())
	assert.Equal(t, 1, reporter.result.Attempt)
	require.Len(t, reporter.result.Outcomes, 2)
	assert.Equal(t, job.Commands[0], reporter.result.Outcomes[0].Command)
	assert.Equal(t, "review posted", reporter.result.Outcomes[0].Detail)
}

func TestDispatchService_InvalidMessageAckedPermanent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := mocks.NewMockChannel(ctrl)
	executor := mocks.NewMockExecutor(ctrl)
	reporter := &capturingReporter{}

	delivery := &model.Delivery{
		ID:           "delivery-bad",
		Body:         []byte(`{"target_reference":"","commands":[]}`),
		ReceiveCount: 2,
		MaxReceives:  3,
	}
	channel.EXPECT().Ack(gomock.Any(), "delivery-bad").Return(true, nil)

	svc, err := NewDispatchService(DispatchServiceOptions{
		Channel:  channel,
		Executor: executor,
		Deps:     DispatchDeps{Reporter: reporter},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), delivery))
	require.NotNil(t, reporter.result)
	assert.True(t, reporter.result.Permanent)
	assert.Equal(t, 2, reporter.result.Attempt)
	assert.Empty(t, reporter.result.Outcomes)
}

func TestDispatchService_LogicalFailureRecordsAndContinues(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := testutil.NewFakeChannel(3)
	executor := mocks.NewMockExecutor(ctrl)
	reporter := &capturingReporter{}

	job := testutil.NewJob().
		WithCommandNames(model.CommandReview, model.CommandDescribe).
		Build()
	delivery := publishAndReserve(t, channel, job)

	gomock.InOrder(
		executor.EXPECT().
			Execute(gomock.Any(), job.TargetReference, job.Commands[0]).
			Return(model.CommandOutcome{}, core.NewLogicalError("review", "pull request is closed", nil)),
		executor.EXPECT().
			Execute(gomock.Any(), job.TargetReference, job.Commands[1]).
			Return(model.CommandOutcome{Status: model.OutcomeSucceeded}, nil),
	)

	svc, err := NewDispatchService(DispatchServiceOptions{
		Channel:  channel,
		Executor: executor,
		Deps:     DispatchDeps{Reporter: reporter},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), delivery))
	// Logical failures are terminal for the command, not the delivery.
	assert.Equal(t, 1, channel.AckedCount())

	require.NotNil(t, reporter.result)
	require.Len(t, reporter.result.Outcomes, 2)
	assert.Equal(t, model.OutcomeFailed, reporter.result.Outcomes[0].Status)
	assert.Contains(t, reporter.result.Outcomes[0].Detail, "pull request is closed")
	assert.Equal(t, model.OutcomeSucceeded, reporter.result.Outcomes[1].Status)
	assert.False(t, reporter.result.Succeeded())
}

func TestDispatchService_TransientFailureReleasesAndSkipsRemainder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := testutil.NewFakeChannel(3)
	executor := mocks.NewMockExecutor(ctrl)
	reporter := &capturingReporter{}

	job := testutil.NewJob().
		WithCommandNames(model.CommandReview, model.CommandDescribe, model.CommandTest).
		Build()
	delivery := publishAndReserve(t, channel, job)

	gomock.InOrder(
		executor.EXPECT().
			Execute(gomock.Any(), job.TargetReference, job.Commands[0]).
			Return(model.CommandOutcome{Status: model.OutcomeSucceeded}, nil),
		executor.EXPECT().
			Execute(gomock.Any(), job.TargetReference, job.Commands[1]).
			Return(model.CommandOutcome{}, core.NewTransientError("describe", "engine timeout", context.DeadlineExceeded)),
	)

	svc, err := NewDispatchService(DispatchServiceOptions{
		Channel:  channel,
		Executor: executor,
		Deps:     DispatchDeps{Reporter: reporter},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), delivery))
	// Back on the channel for redelivery, not acked, not dead-lettered.
	assert.Equal(t, 1, channel.PendingCount())
	assert.Zero(t, channel.AckedCount())
	assert.Zero(t, channel.DeadLetterCount())

	require.NotNil(t, reporter.result)
	assert.False(t, reporter.result.Permanent)
	require.Len(t, reporter.result.Outcomes, 3)
	assert.Equal(t, model.OutcomeSucceeded, reporter.result.Outcomes[0].Status)
	// The failing command keeps its own error text; only the commands that
	// were never reached carry the generic note.
	assert.Equal(t, model.OutcomeSkipped, reporter.result.Outcomes[1].Status)
	assert.Contains(t, reporter.result.Outcomes[1].Detail, "engine timeout")
	assert.Equal(t, model.OutcomeSkipped, reporter.result.Outcomes[2].Status)
	assert.Equal(t, "aborted by transient failure", reporter.result.Outcomes[2].Detail)
}

func TestDispatchService_UnclassifiedErrorTreatedAsTransient(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := testutil.NewFakeChannel(3)
	executor := mocks.NewMockExecutor(ctrl)

	job := testutil.NewJob().WithCommandNames(model.CommandReview).Build()
	delivery := publishAndReserve(t, channel, job)

	executor.EXPECT().
		Execute(gomock.Any(), job.TargetReference, job.Commands[0]).
		Return(model.CommandOutcome{}, errors.New("connection reset by peer"))

	svc, err := NewDispatchService(DispatchServiceOptions{
		Channel:  channel,
		Executor: executor,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), delivery))
	assert.Equal(t, 1, channel.PendingCount())
	assert.Zero(t, channel.AckedCount())
}

func TestDispatchService_ExhaustedReceivesDeadLettersAndNotifies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := testutil.NewFakeChannel(1)
	executor := mocks.NewMockExecutor(ctrl)
	reporter := &capturingReporter{}

	var notified []notify.DeadLetterPayload
	notifier := deadletternotifier.NewService(deadletternotifier.Options{
		Sinks: []deadletternotifier.SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(_ context.Context, payload notify.DeadLetterPayload) error {
				notified = append(notified, payload)
				return nil
			}),
		}},
	})

	job := testutil.NewJob().WithCommandNames(model.CommandReview).Build()
	delivery := publishAndReserve(t, channel, job)

	executor.EXPECT().
		Execute(gomock.Any(), job.TargetReference, job.Commands[0]).
		Return(model.CommandOutcome{}, core.NewTransientError("review", "engine unavailable", nil))

	svc, err := NewDispatchService(DispatchServiceOptions{
		Channel:  channel,
		Executor: executor,
		Deps:     DispatchDeps{Reporter: reporter, Notifier: notifier},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), delivery))
	assert.Equal(t, 1, channel.DeadLetterCount())
	assert.Zero(t, channel.PendingCount())

	require.Len(t, notified, 1)
	assert.Equal(t, delivery.ID, notified[0].DeliveryID)
	assert.Equal(t, job.TargetReference, notified[0].TargetReference)
	assert.Equal(t, []string{"review"}, notified[0].Commands)
	assert.Equal(t, 1, notified[0].ReceiveCount)
	assert.Equal(t, 1, notified[0].MaxReceives)
	assert.Contains(t, notified[0].Reason, "engine unavailable")
	assert.Equal(t, notify.SeverityCritical, notified[0].Severity)

	require.NotNil(t, reporter.result)
	assert.True(t, reporter.result.Permanent)
}

func TestDispatchService_AckFailureSurfaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := mocks.NewMockChannel(ctrl)
	executor := mocks.NewMockExecutor(ctrl)

	job := testutil.NewJob().WithCommandNames(model.CommandReview).Build()
	body, err := job.Marshal()
	require.NoError(t, err)
	delivery := &model.Delivery{ID: "delivery-1", Body: body, ReceiveCount: 1, MaxReceives: 3}

	executor.EXPECT().
		Execute(gomock.Any(), job.TargetReference, job.Commands[0]).
		Return(model.CommandOutcome{Status: model.OutcomeSucceeded}, nil)
	channel.EXPECT().Ack(gomock.Any(), "delivery-1").Return(false, errors.New("database unavailable"))

	svc, err := NewDispatchService(DispatchServiceOptions{Channel: channel, Executor: executor})
	require.NoError(t, err)

	err = svc.Process(context.Background(), delivery)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ack delivery")
}
