package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/domain/model"
	obserrors "github.com/reviewloop/relay/internal/observability/errors"
	"github.com/reviewloop/relay/internal/observability/metrics"
	"github.com/reviewloop/relay/internal/observability/notify"
	"github.com/reviewloop/relay/internal/observability/statsd"
)

// DeadLetterNotifier surfaces dead-lettered deliveries to alerting sinks.
type DeadLetterNotifier interface {
	NotifyDeadLetter(ctx context.Context, payload notify.DeadLetterPayload)
	Enabled() bool
}

// DispatchServiceOptions groups dependencies for DispatchService.
type DispatchServiceOptions struct {
	Channel  core.Channel  // Required: durable channel the dispatcher consumes
	Executor core.Executor // Required: command execution capability
	Deps     DispatchDeps  // Optional dependencies
}

// DispatchDeps holds the dispatcher's optional collaborators.
type DispatchDeps struct {
	Reporter core.Reporter      // Optional: attempt summary reporting
	Notifier DeadLetterNotifier // Optional: dead-letter alerting fan-out
	Logger   *slog.Logger       // Optional: structured logger
	Metrics  statsd.Sink        // Optional: metrics sink (StatsD-compatible)
}

// DispatchService processes one delivery at a time: it re-validates the job,
// runs its commands strictly in order, and settles the delivery exactly once.
//
// Settlement policy:
//   - Structurally invalid message: ack immediately, report a permanent failure.
//   - Transient command failure: stop the attempt, skip the remaining commands,
//     release the delivery for redelivery.
//   - Logical command failure: record a failed outcome and continue with the
//     next command.
//   - Otherwise: ack after the last command.
type DispatchService struct {
	channel  core.Channel
	executor core.Executor
	reporter core.Reporter
	notifier DeadLetterNotifier
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewDispatchService constructs a new DispatchService.
func NewDispatchService(opts DispatchServiceOptions) (*DispatchService, error) {
	if opts.Channel == nil {
		return nil, errors.New("Channel is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("Executor is required")
	}

	var logger *slog.Logger
	if opts.Deps.Logger != nil {
		logger = opts.Deps.Logger.With("component", "dispatch_service")
	}

	return &DispatchService{
		channel:  opts.Channel,
		executor: opts.Executor,
		reporter: opts.Deps.Reporter,
		notifier: opts.Deps.Notifier,
		logger:   logger,
		metrics:  opts.Deps.Metrics,
	}, nil
}

// MustNewDispatchService constructs a new DispatchService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewDispatchService(opts DispatchServiceOptions) *DispatchService {
	svc, err := NewDispatchService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create DispatchService: %v", err))
	}
	return svc
}

// Process handles one reserved delivery end to end. The caller owns the
// lease; Process settles the delivery (ack or release) exactly once.
func (s *DispatchService) Process(ctx context.Context, delivery *model.Delivery) error {
	if delivery == nil {
		return errors.New("delivery is required")
	}

	start := time.Now()

	job, err := model.ParseJob(delivery.Body)
	if err != nil {
		// The same bytes can never validate later: retrying burns receives
		// for nothing, so the delivery is acked and reported as permanent.
		return s.settleInvalid(ctx, delivery, start, err)
	}

	result := &model.JobResult{
		TargetReference: job.TargetReference,
		Attempt:         delivery.ReceiveCount,
		StartedAt:       start.UTC(),
	}

	transientErr := s.runCommands(ctx, job, result)
	result.CompletedAt = time.Now().UTC()

	if transientErr != nil {
		return s.settleTransient(ctx, delivery, result, transientErr)
	}
	return s.settleComplete(ctx, delivery, result, start)
}

// runCommands executes the job's commands in submission order. It returns
// the transient error that aborted the attempt, or nil when every command
// reached a terminal outcome. Logical failures are recorded and skipped over;
// a transient failure marks all remaining commands skipped.
func (s *DispatchService) runCommands(ctx context.Context, job *model.NormalizedJob, result *model.JobResult) error {
	for i, cmd := range job.Commands {
		cmdStart := time.Now()
		outcome, err := s.executor.Execute(ctx, job.TargetReference, cmd)
		elapsed := time.Since(cmdStart)

		if err == nil {
			outcome.Command = cmd
			if outcome.Status == "" {
				outcome.Status = model.OutcomeSucceeded
			}
			if outcome.Duration == 0 {
				outcome.Duration = elapsed
			}
			result.Outcomes = append(result.Outcomes, outcome)
			s.emitCommand(cmd, metrics.ResultSuccess, elapsed, nil)
			continue
		}

		if core.IsLogical(err) {
			result.Outcomes = append(result.Outcomes, model.CommandOutcome{
				Command:  cmd,
				Status:   model.OutcomeFailed,
				Detail:   err.Error(),
				Duration: elapsed,
			})
			s.emitCommand(cmd, metrics.ResultError, elapsed, err)
			if s.logger != nil {
				s.logger.WarnContext(ctx, "command failed",
					"target", job.TargetReference,
					"command", string(cmd.Name),
					"error", err,
				)
			}
			continue
		}

		// Transient: this command never completed, and running later
		// commands before an earlier one completes would break ordering on
		// redelivery. Record the failing command with its error so the
		// partial result keeps the cause, then mark the rest skipped.
		s.emitCommand(cmd, metrics.ResultError, elapsed, err)
		result.Outcomes = append(result.Outcomes, model.CommandOutcome{
			Command:  cmd,
			Status:   model.OutcomeSkipped,
			Detail:   err.Error(),
			Duration: elapsed,
		})
		for _, rest := range job.Commands[i+1:] {
			result.Outcomes = append(result.Outcomes, model.CommandOutcome{
				Command: rest,
				Status:  model.OutcomeSkipped,
				Detail:  "aborted by transient failure",
			})
		}
		return err
	}
	return nil
}

func (s *DispatchService) settleInvalid(ctx context.Context, delivery *model.Delivery, start time.Time, cause error) error {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "invalid job message acked unprocessed",
			"delivery_id", delivery.ID,
			"error", cause,
		)
	}

	if _, err := s.channel.Ack(ctx, delivery.ID); err != nil {
		return fmt.Errorf("ack invalid delivery: %w", err)
	}

	s.emitDelivery(metrics.StageAcked, metrics.ResultError, time.Since(start), cause)

	s.report(ctx, delivery.ID, &model.JobResult{
		Attempt:     delivery.ReceiveCount,
		Permanent:   true,
		StartedAt:   start.UTC(),
		CompletedAt: time.Now().UTC(),
	})
	return nil
}

func (s *DispatchService) settleTransient(ctx context.Context, delivery *model.Delivery, result *model.JobResult, cause error) error {
	res, err := s.channel.Release(ctx, delivery.ID, cause.Error())
	if err != nil {
		return fmt.Errorf("release delivery: %w", err)
	}

	stage := metrics.StageReleased
	if res.DeadLettered {
		stage = metrics.StageDeadLettered
		result.Permanent = true
		s.notifyDeadLetter(ctx, delivery, result, res, cause)
	}
	s.emitDelivery(stage, metrics.ResultError, result.CompletedAt.Sub(result.StartedAt), cause)

	if s.logger != nil {
		s.logger.WarnContext(ctx, "delivery released after transient failure",
			"delivery_id", delivery.ID,
			"target", result.TargetReference,
			"receive_count", res.ReceiveCount,
			"max_receives", res.MaxReceives,
			"dead_lettered", res.DeadLettered,
			"error", cause,
		)
	}

	s.report(ctx, delivery.ID, result)
	return nil
}

func (s *DispatchService) settleComplete(ctx context.Context, delivery *model.Delivery, result *model.JobResult, start time.Time) error {
	acked, err := s.channel.Ack(ctx, delivery.ID)
	if err != nil {
		return fmt.Errorf("ack delivery: %w", err)
	}
	if !acked && s.logger != nil {
		// Lease expired mid-attempt; another consumer may rerun the job.
		// At-least-once permits this, but it is worth a log line.
		s.logger.WarnContext(ctx, "ack lost: lease expired during processing",
			"delivery_id", delivery.ID,
			"target", result.TargetReference,
		)
	}

	succeeded, failed, skipped := result.Counts()
	outcome := metrics.ResultSuccess
	if failed > 0 {
		outcome = metrics.ResultError
	}
	s.emitDelivery(metrics.StageAcked, outcome, time.Since(start), nil)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "delivery processed",
			"delivery_id", delivery.ID,
			"target", result.TargetReference,
			"attempt", result.Attempt,
			"succeeded", succeeded,
			"failed", failed,
			"skipped", skipped,
		)
	}

	s.report(ctx, delivery.ID, result)
	return nil
}

func (s *DispatchService) notifyDeadLetter(ctx context.Context, delivery *model.Delivery, result *model.JobResult, res *core.ReleaseResult, cause error) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}

	commands := make([]string, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		commands = append(commands, string(o.Command.Name))
	}

	s.notifier.NotifyDeadLetter(ctx, notify.DeadLetterPayload{
		DeliveryID:      delivery.ID,
		TargetReference: result.TargetReference,
		Commands:        commands,
		ReceiveCount:    res.ReceiveCount,
		MaxReceives:     res.MaxReceives,
		Reason:          cause.Error(),
		ErrorClass:      obserrors.Classify(cause),
		Severity:        notify.SeverityCritical,
		OccurredAt:      result.CompletedAt,
	})
}

func (s *DispatchService) report(ctx context.Context, deliveryID string, result *model.JobResult) {
	if s.reporter == nil {
		return
	}
	s.reporter.Report(ctx, deliveryID, result)
}

func (s *DispatchService) emitDelivery(stage, result string, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	metrics.EmitDeliveryLifecycle(s.metrics, metrics.DeliveryMetric{
		Stage:    stage,
		Result:   result,
		Duration: elapsed,
		Err:      err,
	})
}

func (s *DispatchService) emitCommand(cmd model.Command, result string, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	metrics.EmitCommandExecution(s.metrics, metrics.CommandMetric{
		Command:  string(cmd.Name),
		Result:   result,
		Duration: elapsed,
		Err:      err,
	})
}
