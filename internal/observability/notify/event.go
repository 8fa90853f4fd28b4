package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// DeadLetterPayload captures the canonical data we emit when a delivery
// exhausts its redeliveries and is parked in the dead-letter destination.
type DeadLetterPayload struct {
	DeliveryID      string
	TargetReference string
	Commands        []string
	ReceiveCount    int
	MaxReceives     int
	Reason          string
	ErrorClass      string
	Severity        string
	OccurredAt      time.Time
	Metadata        map[string]string
}

// Sink describes a destination capable of consuming dead-letter notifications.
type Sink interface {
	SendDeadLetter(ctx context.Context, payload DeadLetterPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload DeadLetterPayload) error

// SendDeadLetter implements the Sink interface.
func (f SinkFunc) SendDeadLetter(ctx context.Context, payload DeadLetterPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
