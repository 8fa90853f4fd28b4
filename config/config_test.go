package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/reviewloop/relay/internal/domain/model"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - http",
			input: "http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP: true,
			},
		},
		{
			name:  "single service - dispatcher",
			input: "dispatcher",
			expected: map[ServiceMode]bool{
				ServiceModeDispatcher: true,
			},
		},
		{
			name:  "multiple services",
			input: "http,dispatcher",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:       true,
				ServiceModeDispatcher: true,
			},
		},
		{
			name:  "all services with whitespace",
			input: " http , dispatcher , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:       true,
				ServiceModeDispatcher: true,
				ServiceModeReaper:     true,
			},
		},
		{
			name:        "invalid service name",
			input:       "http,scanner",
			expectError: true,
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,,",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("ParseServices(%q) expected error, got none", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseServices(%q) unexpected error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ParseServices(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "http" {
		t.Errorf("Services default = %q, want %q", cfg.Services, "http")
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr default = %q, want %q", cfg.HTTP.Addr, ":8080")
	}
	if cfg.Channel.MaxReceives != 3 {
		t.Errorf("Channel.MaxReceives default = %d, want 3", cfg.Channel.MaxReceives)
	}
	if cfg.Postgres.MaxOpenConns != 25 || cfg.Postgres.MaxIdleConns != 5 {
		t.Errorf("Postgres pool defaults = %d/%d, want 25/5", cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns)
	}
	if cfg.Dispatcher.WaitWindow != time.Minute {
		t.Errorf("Dispatcher.WaitWindow default = %s, want 1m", cfg.Dispatcher.WaitWindow)
	}
	if cfg.Dispatcher.Lease != 30*time.Second {
		t.Errorf("Dispatcher.Lease default = %s, want 30s", cfg.Dispatcher.Lease)
	}
	if cfg.Webhook.SignatureHeader != "X-Hub-Signature-256" {
		t.Errorf("Webhook.SignatureHeader default = %q", cfg.Webhook.SignatureHeader)
	}
	wantCommands := []model.CommandName{model.CommandReview, model.CommandDescribe}
	if !reflect.DeepEqual(cfg.Webhook.DefaultCommands, wantCommands) {
		t.Errorf("Webhook.DefaultCommands default = %v, want %v", cfg.Webhook.DefaultCommands, wantCommands)
	}
}

func TestDispatcherSanitizeGuardrails(t *testing.T) {
	d := DispatcherConfig{Concurrency: 0, Lease: time.Second, HeartbeatInterval: time.Minute}
	d.Sanitize()

	if d.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", d.Concurrency)
	}
	if d.Lease != 5*time.Second {
		t.Errorf("Lease = %s, want 5s", d.Lease)
	}
	if d.HeartbeatInterval >= d.Lease {
		t.Errorf("HeartbeatInterval %s not clamped below lease %s", d.HeartbeatInterval, d.Lease)
	}
	if d.WaitWindow != time.Minute {
		t.Errorf("WaitWindow = %s, want default 1m", d.WaitWindow)
	}

	short := DispatcherConfig{Concurrency: 1, Lease: 10 * time.Second, WaitWindow: 50 * time.Millisecond}
	short.Sanitize()
	if short.WaitWindow != 50*time.Millisecond {
		t.Errorf("WaitWindow = %s, want explicit value preserved", short.WaitWindow)
	}
}

func TestChannelSanitizeGuardrails(t *testing.T) {
	c := ChannelConfig{MaxReceives: 0, RetryDelay: 0}
	c.Sanitize()

	if c.MaxReceives != 1 {
		t.Errorf("MaxReceives = %d, want 1", c.MaxReceives)
	}
	if c.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %s, want 1s", c.RetryDelay)
	}
}

func TestNotificationsSanitizeDisablesSinksWithoutTargets(t *testing.T) {
	n := ObservabilityNotificationsConfig{
		Enabled:   true,
		Slack:     SlackNotificationConfig{Enabled: true, WebhookURL: "   "},
		PagerDuty: PagerDutyNotificationConfig{Enabled: true, RoutingKey: ""},
	}
	n.Sanitize()

	if n.Slack.Enabled {
		t.Error("Slack sink should be disabled without a webhook URL")
	}
	if n.PagerDuty.Enabled {
		t.Error("PagerDuty sink should be disabled without a routing key")
	}
}
