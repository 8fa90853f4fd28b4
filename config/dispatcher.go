package config

import "time"

// DispatcherConfig contains dispatcher worker configuration.
type DispatcherConfig struct {
	// Concurrency is the number of worker goroutines. Each worker processes
	// one delivery at a time; commands within a delivery always run
	// sequentially regardless of this setting.
	Concurrency int `env:"DISPATCHER_CONCURRENCY" envDefault:"2"`

	// Lease is the visibility window requested when reserving a delivery.
	Lease time.Duration `env:"DISPATCHER_LEASE" envDefault:"30s"`

	// HeartbeatInterval is how often the lease is extended while a delivery
	// is being processed. Zero disables heartbeating.
	HeartbeatInterval time.Duration `env:"DISPATCHER_HEARTBEAT_INTERVAL" envDefault:"10s"`

	// WaitWindow caps how long an idle worker blocks waiting for a wakeup
	// notification before re-polling the channel. Publish notifications cut
	// the wait short; the window guarantees deliveries that become visible
	// without one (retry delay elapsed, lease expired) are still picked up.
	WaitWindow time.Duration `env:"DISPATCHER_WAIT_WINDOW" envDefault:"1m"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	if d.Concurrency < 1 {
		d.Concurrency = 1
	}
	if d.Lease < 5*time.Second {
		d.Lease = 5 * time.Second
	}
	if d.HeartbeatInterval < 0 {
		d.HeartbeatInterval = 0
	}
	if d.HeartbeatInterval > 0 && d.HeartbeatInterval >= d.Lease {
		d.HeartbeatInterval = d.Lease / 2
	}
	if d.WaitWindow <= 0 {
		d.WaitWindow = time.Minute
	}
}

// ChannelConfig contains durable channel configuration. The redelivery
// threshold and retry delay are owned by the channel, not the dispatcher;
// they are injected into the adapter so retry policy stays testable without
// a real queue.
type ChannelConfig struct {
	// MaxReceives is the bounded redelivery limit: after this many receives
	// without acknowledgment a delivery moves to the dead-letter destination.
	MaxReceives int `env:"CHANNEL_MAX_RECEIVES" envDefault:"3"`

	// RetryDelay is how long a released delivery waits before redelivery.
	RetryDelay time.Duration `env:"CHANNEL_RETRY_DELAY" envDefault:"30s"`
}

// Sanitize applies guardrails to channel configuration values.
func (c *ChannelConfig) Sanitize() {
	if c.MaxReceives < 1 {
		c.MaxReceives = 1
	}
	if c.RetryDelay < time.Second {
		c.RetryDelay = time.Second
	}
}
