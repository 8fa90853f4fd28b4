package model

import (
	"encoding/json"
	"errors"
	"time"
)

// DeliveryStatus represents the channel-side state of a delivery.
type DeliveryStatus string

const (
	// DeliveryStatusPending indicates the delivery is waiting for a consumer.
	DeliveryStatusPending DeliveryStatus = "pending"
	// DeliveryStatusInflight indicates a consumer holds the delivery under lease.
	DeliveryStatusInflight DeliveryStatus = "inflight"
	// DeliveryStatusAcked indicates the delivery was acknowledged and will not redeliver.
	DeliveryStatusAcked DeliveryStatus = "acked"
)

// Valid returns true if the DeliveryStatus is valid.
func (s DeliveryStatus) Valid() bool {
	return s == DeliveryStatusPending || s == DeliveryStatusInflight || s == DeliveryStatusAcked
}

// ErrNoDeliveries is returned when no deliveries are available for reservation.
var ErrNoDeliveries = errors.New("no deliveries available")

// ErrDeadLetterNotFound is returned when a requeue names an unknown dead letter.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// Delivery is the channel-owned envelope handed to a consumer. All mutation
// (receive count, lease) is tracked here by the channel, never on the job
// payload itself.
type Delivery struct {
	ID             string          `json:"id"                         db:"id"`
	Body           json.RawMessage `json:"body"                       db:"body"`
	Status         DeliveryStatus  `json:"status"                     db:"status"`
	ReceiveCount   int             `json:"receive_count"              db:"receive_count"`
	MaxReceives    int             `json:"max_receives"               db:"max_receives"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	EnqueuedAt     time.Time       `json:"enqueued_at"                db:"enqueued_at"`
	AckedAt        *time.Time      `json:"acked_at,omitempty"         db:"acked_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// LastAttempt reports whether the current receive is the final one before
// a release would dead-letter the delivery.
func (d *Delivery) LastAttempt() bool {
	return d.ReceiveCount >= d.MaxReceives
}

// DeadLetter is a delivery that exhausted its redeliveries. The body is the
// verbatim NormalizedJob message; operators are expected to monitor these.
type DeadLetter struct {
	DeliveryID     string          `json:"delivery_id"      db:"delivery_id"`
	Body           json.RawMessage `json:"body"             db:"body"`
	ReceiveCount   int             `json:"receive_count"    db:"receive_count"`
	Reason         string          `json:"reason"           db:"reason"`
	EnqueuedAt     time.Time       `json:"enqueued_at"      db:"enqueued_at"`
	DeadLetteredAt time.Time       `json:"dead_lettered_at" db:"dead_lettered_at"`
}

// ChannelStats summarizes deliveries in each state.
type ChannelStats struct {
	Pending      int `json:"pending"`
	Inflight     int `json:"inflight"`
	Acked        int `json:"acked"`
	DeadLettered int `json:"dead_lettered"`
}
