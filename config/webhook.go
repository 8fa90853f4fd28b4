package config

import (
	"strings"
	"time"

	"github.com/reviewloop/relay/internal/domain/model"
)

// WebhookConfig contains webhook receiver configuration.
type WebhookConfig struct {
	// Secret is the shared secret used to verify the HMAC-SHA256 signature
	// over the raw request body. Required; the receiver refuses to start
	// without it.
	Secret string `env:"WEBHOOK_SECRET"`

	// SignatureHeader carries the hex signature, "sha256=<hex>".
	SignatureHeader string `env:"WEBHOOK_SIGNATURE_HEADER" envDefault:"X-Hub-Signature-256"`

	// EventHeader carries the event type (e.g. "pull_request", "issue_comment").
	EventHeader string `env:"WEBHOOK_EVENT_HEADER" envDefault:"X-GitHub-Event"`

	// DeliveryHeader carries the origin's delivery id, used by the ingest
	// claim store to suppress duplicate webhook redeliveries.
	DeliveryHeader string `env:"WEBHOOK_DELIVERY_HEADER" envDefault:"X-GitHub-Delivery"`

	// AllowedPRActions is the allow-list of pull_request actions that produce
	// a job. Other actions are acknowledged but ignored.
	AllowedPRActions []string `env:"WEBHOOK_ALLOWED_PR_ACTIONS" envDefault:"opened,reopened,ready_for_review,synchronize"`

	// DefaultCommands is the command set attached to jobs derived from
	// allow-listed pull_request events.
	DefaultCommands []model.CommandName `env:"WEBHOOK_DEFAULT_COMMANDS" envDefault:"review,describe"`

	// GitHost resolves "owner/repo#n" shorthand target references.
	GitHost string `env:"WEBHOOK_GIT_HOST" envDefault:"github.com"`

	// DedupTTL is how long a claimed delivery id blocks re-publication.
	DedupTTL time.Duration `env:"WEBHOOK_DEDUP_TTL" envDefault:"10m"`

	// Extraction JMESPath overrides; defaults match GitHub's payload shape.
	Extraction ExtractionConfig
}

// ExtractionConfig holds the JMESPath expressions the receiver uses to pull
// fields out of event-type-specific payloads.
type ExtractionConfig struct {
	PRTargetPath      string `env:"WEBHOOK_PR_TARGET_PATH"      envDefault:"pull_request.html_url"`
	CommentTargetPath string `env:"WEBHOOK_COMMENT_TARGET_PATH" envDefault:"issue.pull_request.html_url"`
	CommentBodyPath   string `env:"WEBHOOK_COMMENT_BODY_PATH"   envDefault:"comment.body"`
	ActorPath         string `env:"WEBHOOK_ACTOR_PATH"          envDefault:"sender.login"`
}

// Sanitize applies guardrails to webhook configuration values.
func (w *WebhookConfig) Sanitize() {
	w.Secret = strings.TrimSpace(w.Secret)
	if w.SignatureHeader == "" {
		w.SignatureHeader = "X-Hub-Signature-256"
	}
	if w.EventHeader == "" {
		w.EventHeader = "X-GitHub-Event"
	}
	if w.DeliveryHeader == "" {
		w.DeliveryHeader = "X-GitHub-Delivery"
	}
	if len(w.AllowedPRActions) == 0 {
		w.AllowedPRActions = []string{"opened", "reopened", "ready_for_review", "synchronize"}
	}
	if len(w.DefaultCommands) == 0 {
		w.DefaultCommands = []model.CommandName{model.CommandReview, model.CommandDescribe}
	}
	if w.GitHost == "" {
		w.GitHost = "github.com"
	}
	if w.DedupTTL <= 0 {
		w.DedupTTL = 10 * time.Minute
	}
	if w.Extraction.PRTargetPath == "" {
		w.Extraction.PRTargetPath = "pull_request.html_url"
	}
	if w.Extraction.CommentTargetPath == "" {
		w.Extraction.CommentTargetPath = "issue.pull_request.html_url"
	}
	if w.Extraction.CommentBodyPath == "" {
		w.Extraction.CommentBodyPath = "comment.body"
	}
	if w.Extraction.ActorPath == "" {
		w.Extraction.ActorPath = "sender.login"
	}
}
