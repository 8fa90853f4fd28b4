package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/domain/model"
)

// FakeChannel is an in-memory core.Channel implementation for tests. It
// applies the same receive-count and dead-letter rules as the Postgres
// adapter but keeps everything behind a mutex, so tests can drive redelivery
// without a database.
type FakeChannel struct {
	mu sync.Mutex

	MaxReceives int

	// RetryDelay delays visibility of released deliveries, mirroring the
	// Postgres adapter's next_visible_at. Zero means immediate redelivery.
	RetryDelay time.Duration

	pending      []*model.Delivery
	inflight     map[string]*model.Delivery
	acked        map[string]*model.Delivery
	deadLetters  []*model.DeadLetter
	visibleAfter map[string]time.Time

	nextID int

	// PublishErr, when set, is returned by Publish.
	PublishErr error
	// ReserveErr, when set, is returned by Reserve.
	ReserveErr error

	published chan struct{}
}

// NewFakeChannel creates a FakeChannel with the given redelivery limit.
func NewFakeChannel(maxReceives int) *FakeChannel {
	if maxReceives < 1 {
		maxReceives = 1
	}
	return &FakeChannel{
		MaxReceives:  maxReceives,
		inflight:     make(map[string]*model.Delivery),
		acked:        make(map[string]*model.Delivery),
		visibleAfter: make(map[string]time.Time),
		published:    make(chan struct{}, 16),
	}
}

// Publish enqueues a job and returns the assigned delivery id.
func (c *FakeChannel) Publish(_ context.Context, job *model.NormalizedJob) (string, error) {
	if c.PublishErr != nil {
		return "", c.PublishErr
	}
	if err := job.Validate(); err != nil {
		return "", err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.nextID++
	id := fmt.Sprintf("delivery-%d", c.nextID)
	now := time.Now().UTC()
	c.pending = append(c.pending, &model.Delivery{
		ID:          id,
		Body:        body,
		Status:      model.DeliveryStatusPending,
		MaxReceives: c.MaxReceives,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	})
	c.mu.Unlock()

	select {
	case c.published <- struct{}{}:
	default:
	}
	return id, nil
}

// Reserve leases the oldest pending delivery.
func (c *FakeChannel) Reserve(_ context.Context, lease time.Duration) (*model.Delivery, error) {
	if c.ReserveErr != nil {
		return nil, c.ReserveErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	idx := -1
	for i, candidate := range c.pending {
		if visible, ok := c.visibleAfter[candidate.ID]; ok && now.Before(visible) {
			continue
		}
		idx = i
		break
	}
	if idx < 0 {
		return nil, model.ErrNoDeliveries
	}

	d := c.pending[idx]
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
	delete(c.visibleAfter, d.ID)

	d.Status = model.DeliveryStatusInflight
	d.ReceiveCount++
	expires := time.Now().Add(lease).UTC()
	d.LeaseExpiresAt = &expires
	c.inflight[d.ID] = d

	cp := *d
	return &cp, nil
}

// WaitForDelivery blocks until something is published or ctx is done.
func (c *FakeChannel) WaitForDelivery(ctx context.Context) error {
	select {
	case <-c.published:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExtendLease refreshes the lease on an inflight delivery.
func (c *FakeChannel) ExtendLease(_ context.Context, deliveryID string, lease time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.inflight[deliveryID]
	if !ok {
		return false, nil
	}
	expires := time.Now().Add(lease).UTC()
	d.LeaseExpiresAt = &expires
	return true, nil
}

// Ack acknowledges an inflight delivery.
func (c *FakeChannel) Ack(_ context.Context, deliveryID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.inflight[deliveryID]
	if !ok {
		return false, nil
	}
	delete(c.inflight, deliveryID)
	d.Status = model.DeliveryStatusAcked
	now := time.Now().UTC()
	d.AckedAt = &now
	c.acked[deliveryID] = d
	return true, nil
}

// Release returns a delivery to pending or dead-letters it when receives
// are exhausted, mirroring the Postgres adapter's rules.
func (c *FakeChannel) Release(_ context.Context, deliveryID, reason string) (*core.ReleaseResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.inflight[deliveryID]
	if !ok {
		return nil, fmt.Errorf("delivery %s not inflight", deliveryID)
	}
	delete(c.inflight, deliveryID)

	result := &core.ReleaseResult{
		ReceiveCount: d.ReceiveCount,
		MaxReceives:  d.MaxReceives,
	}

	if d.ReceiveCount >= d.MaxReceives {
		result.DeadLettered = true
		c.deadLetters = append(c.deadLetters, &model.DeadLetter{
			DeliveryID:     d.ID,
			Body:           d.Body,
			ReceiveCount:   d.ReceiveCount,
			Reason:         reason,
			EnqueuedAt:     d.EnqueuedAt,
			DeadLetteredAt: time.Now().UTC(),
		})
		return result, nil
	}

	d.Status = model.DeliveryStatusPending
	d.LeaseExpiresAt = nil
	d.LastError = &reason
	if c.RetryDelay > 0 {
		c.visibleAfter[d.ID] = time.Now().Add(c.RetryDelay)
	}
	// No wakeup signal: like the Postgres adapter, Release does not notify.
	// Idle consumers discover the redelivery only by re-polling.
	c.pending = append(c.pending, d)
	return result, nil
}

// Stats reports counts of the in-memory state.
func (c *FakeChannel) Stats(_ context.Context) (*model.ChannelStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &model.ChannelStats{
		Pending:      len(c.pending),
		Inflight:     len(c.inflight),
		Acked:        len(c.acked),
		DeadLettered: len(c.deadLetters),
	}, nil
}

// ListDeadLetters returns up to limit dead letters, newest last.
func (c *FakeChannel) ListDeadLetters(_ context.Context, limit int) ([]*model.DeadLetter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 || limit > len(c.deadLetters) {
		limit = len(c.deadLetters)
	}
	out := make([]*model.DeadLetter, limit)
	copy(out, c.deadLetters[:limit])
	return out, nil
}

// RequeueDeadLetter moves a dead letter back to pending as a fresh delivery.
func (c *FakeChannel) RequeueDeadLetter(_ context.Context, deliveryID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, dl := range c.deadLetters {
		if dl.DeliveryID != deliveryID {
			continue
		}
		c.deadLetters = append(c.deadLetters[:i], c.deadLetters[i+1:]...)

		c.nextID++
		id := fmt.Sprintf("delivery-%d", c.nextID)
		now := time.Now().UTC()
		c.pending = append(c.pending, &model.Delivery{
			ID:          id,
			Body:        dl.Body,
			Status:      model.DeliveryStatusPending,
			MaxReceives: c.MaxReceives,
			EnqueuedAt:  now,
			UpdatedAt:   now,
		})
		return id, nil
	}
	return "", fmt.Errorf("dead letter %s: %w", deliveryID, model.ErrDeadLetterNotFound)
}

// PendingCount reports the number of pending deliveries.
func (c *FakeChannel) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// AckedCount reports the number of acked deliveries.
func (c *FakeChannel) AckedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acked)
}

// DeadLetterCount reports the number of dead-lettered deliveries.
func (c *FakeChannel) DeadLetterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deadLetters)
}
