// Package core defines the ports between the relay services and their
// adapters (hexagonal architecture). Services depend on these interfaces,
// never on concrete implementations.
package core

import (
	"context"
	"time"

	"github.com/reviewloop/relay/internal/domain/model"
)

// Channel is the durable at-least-once transport between the webhook receiver
// and the dispatcher. Implementations guarantee a visibility window per
// reservation and bounded redelivery with dead-lettering; they guarantee no
// ordering across distinct deliveries.
type Channel interface {
	// Publish enqueues a job and returns the channel-assigned delivery id.
	Publish(ctx context.Context, job *model.NormalizedJob) (string, error)
	// Reserve leases the next available delivery for the given duration.
	// Returns model.ErrNoDeliveries when the channel is empty.
	Reserve(ctx context.Context, lease time.Duration) (*model.Delivery, error)
	// WaitForDelivery blocks until a delivery is likely available or ctx is done.
	WaitForDelivery(ctx context.Context) error
	// ExtendLease refreshes the visibility window on an inflight delivery.
	ExtendLease(ctx context.Context, deliveryID string, lease time.Duration) (bool, error)
	// Ack acknowledges an inflight delivery so it is never redelivered.
	Ack(ctx context.Context, deliveryID string) (bool, error)
	// Release returns an inflight delivery to the channel for redelivery, or
	// moves it to the dead-letter destination once receive_count reaches
	// max_receives.
	Release(ctx context.Context, deliveryID, reason string) (*ReleaseResult, error)
}

// ReleaseResult describes what happened to a released delivery.
type ReleaseResult struct {
	DeadLettered bool
	ReceiveCount int
	MaxReceives  int
}

// ChannelIntrospector exposes the operator-facing view of the channel.
type ChannelIntrospector interface {
	Stats(ctx context.Context) (*model.ChannelStats, error)
	ListDeadLetters(ctx context.Context, limit int) ([]*model.DeadLetter, error)
	RequeueDeadLetter(ctx context.Context, deliveryID string) (string, error)
}

// Executor is the external command-execution capability: run command C
// against target T, return success/failure and output. Implementations must
// distinguish transient failures (timeout, network) from logical ones via a
// typed error kind so the dispatcher can decide retry vs terminal.
type Executor interface {
	Execute(ctx context.Context, target string, cmd model.Command) (model.CommandOutcome, error)
}

// ClaimStore records short-lived idempotency claims. Used by the receiver to
// suppress duplicate webhook deliveries and by the reporter to suppress
// duplicate attempt summaries.
type ClaimStore interface {
	// Claim atomically claims the key for ttl. Returns false when the key is
	// already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// ReleaseClaim drops a claim early, allowing the origin to retry.
	ReleaseClaim(ctx context.Context, key string) error
}

// Reporter surfaces aggregated job results. Fire-and-forget: implementations
// must swallow their own failures rather than surface them into the dispatch
// path.
type Reporter interface {
	Report(ctx context.Context, deliveryID string, result *model.JobResult)
}

// ReaperRepository defines cleanup operations over channel storage.
type ReaperRepository interface {
	DeleteAckedOlderThan(ctx context.Context, age time.Duration, batchSize int) (int64, error)
	DeleteDeadLettersOlderThan(ctx context.Context, age time.Duration, batchSize int) (int64, error)
}
