package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/domain/model"
	"github.com/reviewloop/relay/internal/observability/statsd"
)

// ReporterServiceOptions groups dependencies for ReporterService.
type ReporterServiceOptions struct {
	Logger *slog.Logger // Required: attempt summaries are log lines first
	Deps   ReporterDeps // Optional dependencies
}

// ReporterDeps holds the reporter's optional collaborators.
type ReporterDeps struct {
	Claims   core.ClaimStore // Optional: suppresses duplicate summaries per (delivery, attempt)
	Metrics  statsd.Sink     // Optional: metrics sink (StatsD-compatible)
	DedupTTL time.Duration   // Optional: claim lifetime, defaults to an hour
}

// ReporterService surfaces one aggregated summary per delivery attempt.
// It implements core.Reporter and is strictly fire-and-forget: a reporting
// failure must never affect delivery settlement, so every error here is
// swallowed after logging.
type ReporterService struct {
	logger   *slog.Logger
	claims   core.ClaimStore
	metrics  statsd.Sink
	dedupTTL time.Duration
}

// NewReporterService constructs a new ReporterService.
func NewReporterService(opts ReporterServiceOptions) (*ReporterService, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("Logger is required")
	}

	dedupTTL := opts.Deps.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = time.Hour
	}

	return &ReporterService{
		logger:   opts.Logger.With("component", "reporter_service"),
		claims:   opts.Deps.Claims,
		metrics:  opts.Deps.Metrics,
		dedupTTL: dedupTTL,
	}, nil
}

// MustNewReporterService constructs a new ReporterService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewReporterService(opts ReporterServiceOptions) *ReporterService {
	svc, err := NewReporterService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ReporterService: %v", err))
	}
	return svc
}

// Report emits one summary for a delivery attempt. A redelivered attempt that
// was already reported (same delivery id and attempt number) is suppressed
// when a claim store is configured.
func (s *ReporterService) Report(ctx context.Context, deliveryID string, result *model.JobResult) {
	if result == nil {
		return
	}

	if !s.claimAttempt(ctx, deliveryID, result.Attempt) {
		return
	}

	succeeded, failed, skipped := result.Counts()
	duration := result.CompletedAt.Sub(result.StartedAt)

	attrs := []any{
		"delivery_id", deliveryID,
		"target", result.TargetReference,
		"attempt", result.Attempt,
		"succeeded", succeeded,
		"failed", failed,
		"skipped", skipped,
		"permanent", result.Permanent,
		"duration_ms", duration.Milliseconds(),
	}

	switch {
	case result.Permanent:
		s.logger.ErrorContext(ctx, "delivery attempt terminal", attrs...)
	case result.Succeeded():
		s.logger.InfoContext(ctx, "delivery attempt succeeded", attrs...)
	default:
		s.logger.WarnContext(ctx, "delivery attempt had failures", attrs...)
	}

	for _, outcome := range result.Outcomes {
		s.logger.InfoContext(ctx, "command outcome",
			"delivery_id", deliveryID,
			"command", string(outcome.Command.Name),
			"status", string(outcome.Status),
			"detail", outcome.Detail,
			"duration_ms", outcome.Duration.Milliseconds(),
		)
	}

	if s.metrics != nil {
		s.metrics.Count("report.attempt", 1, map[string]string{
			"permanent": fmt.Sprintf("%t", result.Permanent),
			"succeeded": fmt.Sprintf("%t", result.Succeeded()),
		})
		s.metrics.Timing("report.attempt_duration", duration, nil)
	}
}

// claimAttempt returns true when this (delivery, attempt) pair has not been
// reported yet. Claim store trouble degrades to reporting anyway: a duplicate
// log line beats a missing one.
func (s *ReporterService) claimAttempt(ctx context.Context, deliveryID string, attempt int) bool {
	if s.claims == nil || deliveryID == "" {
		return true
	}

	key := fmt.Sprintf("report:%s:%d", deliveryID, attempt)
	claimed, err := s.claims.Claim(ctx, key, s.dedupTTL)
	if err != nil {
		s.logger.WarnContext(ctx, "report claim failed, reporting anyway",
			"delivery_id", deliveryID,
			"attempt", attempt,
			"error", err,
		)
		return true
	}
	return claimed
}
