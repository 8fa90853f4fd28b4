package config

import (
	"strings"
	"time"
)

// EngineConfig contains review engine executor configuration. The engine is
// an external capability; relay only needs an endpoint, credentials, and a
// bounded timeout per command invocation.
type EngineConfig struct {
	// URL is the review engine's command endpoint.
	URL string `env:"ENGINE_URL"`

	// Token authenticates relay to the engine (bearer token via oauth2).
	Token string `env:"ENGINE_TOKEN"`

	// Timeout bounds a single command invocation. An invocation exceeding it
	// is a transient failure and releases the delivery for retry.
	Timeout time.Duration `env:"ENGINE_TIMEOUT" envDefault:"120s"`
}

// Sanitize applies guardrails to engine configuration values.
func (e *EngineConfig) Sanitize() {
	e.URL = strings.TrimSpace(e.URL)
	e.Token = strings.TrimSpace(e.Token)
	if e.Timeout < time.Second {
		e.Timeout = time.Second
	}
}
