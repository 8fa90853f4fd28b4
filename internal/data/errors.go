package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Channel repository sentinels.
	ErrDeliveryNotFound   = errors.New("delivery not found")
	ErrDeliveryIDRequired = errors.New("delivery_id is required")
)
