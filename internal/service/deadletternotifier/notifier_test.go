package deadletternotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/reviewloop/relay/internal/observability/notify"
)

func TestServiceNotifyDeadLetter(t *testing.T) {
	ctx := context.Background()

	var received []notify.DeadLetterPayload
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "capture",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.DeadLetterPayload) error {
					received = append(received, payload)
					return nil
				}),
			},
		},
	})

	svc.NotifyDeadLetter(ctx, notify.DeadLetterPayload{
		DeliveryID:      "delivery-1",
		TargetReference: "https://github.com/acme/widgets/pull/42",
	})

	if len(received) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(received))
	}
	if received[0].Severity != notify.SeverityCritical {
		t.Fatalf("expected severity to default to critical, got %s", received[0].Severity)
	}
}

func TestServiceFansOutToAllSinks(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var names []string
	capture := func(name string) notify.Sink {
		return notify.SinkFunc(func(ctx context.Context, payload notify.DeadLetterPayload) error {
			mu.Lock()
			names = append(names, name)
			mu.Unlock()
			return nil
		})
	}

	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "slack", Sink: capture("slack")},
			{Name: "pagerduty", Sink: capture("pagerduty")},
		},
	})

	svc.NotifyDeadLetter(ctx, notify.DeadLetterPayload{DeliveryID: "delivery-2"})

	if len(names) != 2 {
		t.Fatalf("expected both sinks invoked, got %v", names)
	}
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{})
	if svc.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}
}

func TestServiceSkipsNilSinks(t *testing.T) {
	svc := NewService(Options{
		Sinks: []SinkRegistration{{Name: "nil", Sink: nil}},
	})
	if svc.Enabled() {
		t.Fatal("expected nil sinks to be dropped")
	}
}

func TestServiceLogsErrors(t *testing.T) {
	// Ensure we don't panic when sink returns an error.
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "fail",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.DeadLetterPayload) error {
					return errors.New("boom")
				}),
			},
		},
	})

	svc.NotifyDeadLetter(context.Background(), notify.DeadLetterPayload{DeliveryID: "delivery-3"})
}
