package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reviewloop/relay/config"
	"github.com/reviewloop/relay/internal/adapters/dispatchrunner"
	"github.com/reviewloop/relay/internal/adapters/reviewengine"
	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/observability/statsd"
	"github.com/reviewloop/relay/internal/service"
	"github.com/reviewloop/relay/internal/service/deadletternotifier"
)

// reportDedupTTL is how long an attempt summary claim lives. Longer than any
// plausible redelivery gap so duplicate summaries stay suppressed across
// dispatcher restarts.
const reportDedupTTL = time.Hour

// DispatcherRuntimeConfig contains configuration for the dispatcher service.
type DispatcherRuntimeConfig struct {
	Channel    core.Channel
	Claims     core.ClaimStore
	Logger     *slog.Logger
	Dispatcher config.DispatcherConfig
	Engine     config.EngineConfig
	Metrics    statsd.Sink
	Notifier   *deadletternotifier.Service
}

// RunDispatcher starts the dispatcher: engine client, attempt reporter,
// dispatch service, and the worker pool that drives them.
func RunDispatcher(ctx context.Context, cfg DispatcherRuntimeConfig) error {
	executor, err := reviewengine.NewClient(reviewengine.ClientOptions{
		Config: cfg.Engine,
		Logger: cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create engine client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reporter, err := service.NewReporterService(service.ReporterServiceOptions{
		Logger: logger,
		Deps: service.ReporterDeps{
			Claims:   cfg.Claims,
			Metrics:  cfg.Metrics,
			DedupTTL: reportDedupTTL,
		},
	})
	if err != nil {
		return fmt.Errorf("create reporter: %w", err)
	}

	// Assign through a nil check so a nil *Service never becomes a non-nil
	// interface inside the dispatch service.
	var notifier service.DeadLetterNotifier
	if cfg.Notifier != nil {
		notifier = cfg.Notifier
	}

	dispatch, err := service.NewDispatchService(service.DispatchServiceOptions{
		Channel:  cfg.Channel,
		Executor: executor,
		Deps: service.DispatchDeps{
			Reporter: reporter,
			Notifier: notifier,
			Logger:   cfg.Logger,
			Metrics:  cfg.Metrics,
		},
	})
	if err != nil {
		return fmt.Errorf("create dispatch service: %w", err)
	}

	runner, err := dispatchrunner.NewRunner(dispatchrunner.RunnerOptions{
		Channel:   cfg.Channel,
		Processor: dispatch,
		Config:    cfg.Dispatcher,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create dispatch runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperRuntimeConfig contains configuration for the reaper service.
type ReaperRuntimeConfig struct {
	Channel core.ReaperRepository
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the channel storage reaper.
func RunReaper(ctx context.Context, cfg ReaperRuntimeConfig) error {
	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    cfg.Channel,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper: %w", err)
	}

	return reaper.Run(ctx)
}
