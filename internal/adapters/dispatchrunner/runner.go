// Package dispatchrunner provides the worker pool that drains the durable
// channel and hands reserved deliveries to the dispatch service.
package dispatchrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reviewloop/relay/config"
	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/domain/model"
)

// Processor handles one reserved delivery end to end, settling it exactly once.
type Processor interface {
	Process(ctx context.Context, delivery *model.Delivery) error
}

// RunnerOptions configures the dispatch runner adapter.
type RunnerOptions struct {
	Channel   core.Channel            // Required: reservation source
	Processor Processor               // Required: delivery processor (the dispatch service)
	Config    config.DispatcherConfig // Worker count, lease, heartbeat cadence
	Logger    *slog.Logger            // Optional: structured logger
}

// Runner pulls deliveries off the channel and executes them with a bounded
// worker pool. While a worker processes a delivery, a heartbeat goroutine
// extends its lease so slow engine calls don't trigger spurious redelivery.
type Runner struct {
	channel    core.Channel
	processor  Processor
	logger     *slog.Logger
	lease      time.Duration
	heartbeat  time.Duration
	waitWindow time.Duration
	workers    int
}

// NewRunner constructs a dispatch runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Channel == nil {
		return nil, errors.New("Channel is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("Processor is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		channel:    opts.Channel,
		processor:  opts.Processor,
		logger:     logger.With("component", "dispatch_runner"),
		lease:      cfg.Lease,
		heartbeat:  cfg.HeartbeatInterval,
		waitWindow: cfg.WaitWindow,
		workers:    cfg.Concurrency,
	}, nil
}

// Run starts worker goroutines and processes deliveries until the context is
// cancelled. Returns nil on graceful shutdown; a worker error cancels the
// remaining workers and is returned.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting dispatch runner",
		"workers", r.workers,
		"lease", r.lease,
		"heartbeat", r.heartbeat,
	)

	group, gctx := errgroup.WithContext(ctx)
	for i := range r.workers {
		group.Go(func() error { return r.workerLoop(gctx, i) })
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Runner) workerLoop(ctx context.Context, worker int) error {
	for ctx.Err() == nil {
		delivery, err := r.channel.Reserve(ctx, r.lease)
		switch {
		case err == nil:
			r.processDelivery(ctx, worker, delivery)
		case errors.Is(err, model.ErrNoDeliveries):
			if waitErr := r.waitForDelivery(ctx); waitErr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("wait for delivery: %w", waitErr)
			}
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("reserve delivery: %w", err)
		}
	}
	return nil
}

// waitForDelivery blocks until a publish notification arrives or the wait
// window elapses. The window expiring is not an error: released deliveries
// and requeued expired leases become visible with no notification, so an
// idle worker must re-poll on a cadence or a quiet channel would never
// redeliver them.
func (r *Runner) waitForDelivery(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, r.waitWindow)
	defer cancel()

	err := r.channel.WaitForDelivery(waitCtx)
	if err != nil && ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (r *Runner) processDelivery(ctx context.Context, worker int, delivery *model.Delivery) {
	stopHeartbeat := r.startHeartbeat(ctx, delivery.ID)
	defer stopHeartbeat()

	if err := r.processor.Process(ctx, delivery); err != nil {
		// Settlement failed; the lease will expire and the channel will
		// redeliver, so the delivery is not lost.
		r.logger.ErrorContext(ctx, "process delivery error",
			"delivery_id", delivery.ID,
			"worker", worker,
			"error", err,
		)
	}
}

// startHeartbeat extends the delivery's lease on a fixed cadence until the
// returned stop function is called. Disabled when the configured interval is
// zero.
func (r *Runner) startHeartbeat(ctx context.Context, deliveryID string) func() {
	if r.heartbeat <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				extended, err := r.channel.ExtendLease(ctx, deliveryID, r.lease)
				if err != nil {
					r.logger.WarnContext(ctx, "extend lease failed",
						"delivery_id", deliveryID,
						"error", err,
					)
					continue
				}
				if !extended {
					// Not inflight anymore: settled by us or expired and
					// requeued. Either way heartbeating is pointless.
					return
				}
			}
		}
	}()

	return stop
}
