package dispatchrunner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/relay/config"
	"github.com/reviewloop/relay/internal/domain/model"
	"github.com/reviewloop/relay/internal/testutil"
)

// ackingProcessor acks everything it sees and records the delivery ids.
type ackingProcessor struct {
	channel *testutil.FakeChannel

	mu   sync.Mutex
	seen []string
	errs int
}

func (p *ackingProcessor) Process(ctx context.Context, delivery *model.Delivery) error {
	p.mu.Lock()
	p.seen = append(p.seen, delivery.ID)
	p.mu.Unlock()
	_, err := p.channel.Ack(ctx, delivery.ID)
	return err
}

func (p *ackingProcessor) seenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func testDispatcherConfig() config.DispatcherConfig {
	return config.DispatcherConfig{
		Concurrency: 2,
		Lease:       10 * time.Second,
	}
}

func TestNewRunner_RequiredDependencies(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Processor: &ackingProcessor{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Channel is required")

	_, err = NewRunner(RunnerOptions{Channel: testutil.NewFakeChannel(3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Processor is required")
}

func TestRunner_ProcessesPublishedDeliveries(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	processor := &ackingProcessor{channel: channel}

	runner, err := NewRunner(RunnerOptions{
		Channel:   channel,
		Processor: processor,
		Config:    testDispatcherConfig(),
	})
	require.NoError(t, err)

	const published = 5
	for range published {
		_, err := channel.Publish(context.Background(), testutil.NewJob().Build())
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		return channel.AckedCount() == published
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case runErr := <-done:
		require.NoError(t, runErr)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}

	assert.Equal(t, published, processor.seenCount())
	assert.Zero(t, channel.PendingCount())
}

func TestRunner_WakesOnPublishAfterIdle(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	processor := &ackingProcessor{channel: channel}

	runner, err := NewRunner(RunnerOptions{
		Channel:   channel,
		Processor: processor,
		Config:    testDispatcherConfig(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	// Let workers drain into WaitForDelivery before publishing.
	time.Sleep(50 * time.Millisecond)
	_, err = channel.Publish(context.Background(), testutil.NewJob().Build())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return channel.AckedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunner_RedeliversReleasedDeliveryOnQuietChannel(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	channel.RetryDelay = 50 * time.Millisecond

	// First attempt fails transiently and releases; no publish follows, so
	// only the bounded wait window can surface the redelivery.
	var attempts atomic.Int32
	processor := processorFunc(func(ctx context.Context, delivery *model.Delivery) error {
		if attempts.Add(1) == 1 {
			if _, err := channel.Release(ctx, delivery.ID, "engine unreachable"); err != nil {
				return err
			}
			return errors.New("engine unreachable")
		}
		_, err := channel.Ack(ctx, delivery.ID)
		return err
	})

	runner, err := NewRunner(RunnerOptions{
		Channel:   channel,
		Processor: processor,
		Config: config.DispatcherConfig{
			Concurrency: 1,
			Lease:       10 * time.Second,
			WaitWindow:  25 * time.Millisecond,
		},
	})
	require.NoError(t, err)

	_, err = channel.Publish(context.Background(), testutil.NewJob().Build())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		return channel.AckedCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "released delivery was never redelivered")

	assert.GreaterOrEqual(t, attempts.Load(), int32(2))

	cancel()
	require.NoError(t, <-done)
}

func TestRunner_FatalReserveErrorStopsAllWorkers(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	channel.ReserveErr = errors.New("database unavailable")

	runner, err := NewRunner(RunnerOptions{
		Channel:   channel,
		Processor: &ackingProcessor{channel: channel},
		Config:    testDispatcherConfig(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	runErr := runner.Run(ctx)
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "reserve delivery")
}

func TestRunner_ProcessorErrorDoesNotStopRunner(t *testing.T) {
	channel := testutil.NewFakeChannel(3)

	var calls atomic.Int32
	processor := processorFunc(func(ctx context.Context, delivery *model.Delivery) error {
		if calls.Add(1) == 1 {
			return errors.New("settlement failed")
		}
		_, err := channel.Ack(ctx, delivery.ID)
		return err
	})

	runner, err := NewRunner(RunnerOptions{
		Channel:   channel,
		Processor: processor,
		Config:    config.DispatcherConfig{Concurrency: 1, Lease: 10 * time.Second},
	})
	require.NoError(t, err)

	for range 2 {
		_, err := channel.Publish(context.Background(), testutil.NewJob().Build())
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// processorFunc adapts a function to the Processor interface.
type processorFunc func(ctx context.Context, delivery *model.Delivery) error

func (f processorFunc) Process(ctx context.Context, delivery *model.Delivery) error {
	return f(ctx, delivery)
}
