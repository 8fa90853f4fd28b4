package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/reviewloop/relay/config"
	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/domain/model"
	"github.com/reviewloop/relay/internal/observability/metrics"
	"github.com/reviewloop/relay/internal/observability/statsd"
)

var (
	// ErrInvalidSignature is returned when the webhook signature does not match.
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	// ErrIgnoredEvent is returned when an authentic event produces no job.
	ErrIgnoredEvent = errors.New("event ignored")
	// ErrDuplicateDelivery is returned when the origin redelivered an already-claimed event.
	ErrDuplicateDelivery = errors.New("duplicate webhook delivery")
)

// ReceiverServiceOptions groups dependencies for ReceiverService.
type ReceiverServiceOptions struct {
	Channel core.Channel         // Required: durable channel for publishing jobs
	Config  config.WebhookConfig // Required: webhook receiver configuration
	Deps    ReceiverDeps         // Optional dependencies
}

// ReceiverDeps holds the receiver's optional collaborators.
type ReceiverDeps struct {
	Claims  core.ClaimStore // Optional: delivery id dedup; duplicates pass through when nil
	Logger  *slog.Logger    // Optional: structured logger
	Metrics statsd.Sink     // Optional: metrics sink (StatsD-compatible)
}

// ReceiverService turns authenticated webhook events into normalized jobs on
// the durable channel.
//
// This service manages:
// - HMAC-SHA256 signature verification over the raw body
// - Event allow-list filtering (pull_request actions, comment triggers)
// - Payload field extraction via configured JMESPath expressions
// - Delivery id dedup so origin redeliveries publish at most once.
type ReceiverService struct {
	channel core.Channel
	claims  core.ClaimStore
	cfg     config.WebhookConfig
	logger  *slog.Logger
	metrics statsd.Sink

	prTarget      jmespath.JMESPath
	commentTarget jmespath.JMESPath
	commentBody   jmespath.JMESPath
	actor         jmespath.JMESPath
}

// NewReceiverService constructs a new ReceiverService.
func NewReceiverService(opts ReceiverServiceOptions) (*ReceiverService, error) {
	if opts.Channel == nil {
		return nil, errors.New("Channel is required")
	}
	if strings.TrimSpace(opts.Config.Secret) == "" {
		return nil, errors.New("webhook secret is required")
	}

	prTarget, err := jmespath.Compile(opts.Config.Extraction.PRTargetPath)
	if err != nil {
		return nil, fmt.Errorf("compile pr target path: %w", err)
	}
	commentTarget, err := jmespath.Compile(opts.Config.Extraction.CommentTargetPath)
	if err != nil {
		return nil, fmt.Errorf("compile comment target path: %w", err)
	}
	commentBody, err := jmespath.Compile(opts.Config.Extraction.CommentBodyPath)
	if err != nil {
		return nil, fmt.Errorf("compile comment body path: %w", err)
	}
	actor, err := jmespath.Compile(opts.Config.Extraction.ActorPath)
	if err != nil {
		return nil, fmt.Errorf("compile actor path: %w", err)
	}

	var logger *slog.Logger
	if opts.Deps.Logger != nil {
		logger = opts.Deps.Logger.With("component", "receiver_service")
	}

	return &ReceiverService{
		channel:       opts.Channel,
		claims:        opts.Deps.Claims,
		cfg:           opts.Config,
		logger:        logger,
		metrics:       opts.Deps.Metrics,
		prTarget:      prTarget,
		commentTarget: commentTarget,
		commentBody:   commentBody,
		actor:         actor,
	}, nil
}

// MustNewReceiverService constructs a new ReceiverService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewReceiverService(opts ReceiverServiceOptions) *ReceiverService {
	svc, err := NewReceiverService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ReceiverService: %v", err))
	}
	return svc
}

// WebhookRequest is a received webhook event before authentication.
type WebhookRequest struct {
	// Body is the raw request body the signature was computed over.
	Body []byte
	// Signature is the value of the signature header, "sha256=<hex>".
	Signature string
	// EventType is the value of the event header (e.g. "pull_request").
	EventType string
	// DeliveryID is the origin's delivery id, used for dedup. Optional.
	DeliveryID string
	// ReceivedAt is when the request arrived.
	ReceivedAt time.Time
}

// Receive authenticates, filters, normalizes and publishes a webhook event.
// Returns the delivery id of the published job. Sentinel errors distinguish
// the no-job cases: ErrInvalidSignature (reject), ErrIgnoredEvent (accept,
// nothing to do), ErrDuplicateDelivery (accept, already published).
func (s *ReceiverService) Receive(ctx context.Context, req WebhookRequest) (string, error) {
	if err := s.verifySignature(req.Body, req.Signature); err != nil {
		s.emitReceived(metrics.ResultError, err)
		return "", err
	}

	job, err := s.normalize(req)
	if err != nil {
		if errors.Is(err, ErrIgnoredEvent) {
			s.emitReceived(metrics.ResultNoop, nil)
			if s.logger != nil {
				s.logger.DebugContext(ctx, "webhook event ignored",
					"event", req.EventType,
					"delivery_id", req.DeliveryID,
				)
			}
			return "", err
		}
		s.emitReceived(metrics.ResultError, err)
		return "", err
	}

	if claimed, claimErr := s.claimDelivery(ctx, req.DeliveryID); claimErr != nil {
		// Claim store failures degrade to at-least-once rather than dropping
		// the event.
		if s.logger != nil {
			s.logger.WarnContext(ctx, "delivery claim failed, publishing anyway",
				"delivery_id", req.DeliveryID,
				"error", claimErr,
			)
		}
	} else if !claimed {
		s.emitReceived(metrics.ResultNoop, nil)
		return "", ErrDuplicateDelivery
	}

	id, err := s.channel.Publish(ctx, job)
	if err != nil {
		// Free the claim so the origin's redelivery is not suppressed.
		s.releaseClaim(ctx, req.DeliveryID)
		s.emitReceived(metrics.ResultError, err)
		return "", fmt.Errorf("publish job: %w", err)
	}

	s.emitReceived(metrics.ResultSuccess, nil)
	if s.metrics != nil {
		metrics.EmitDeliveryLifecycle(s.metrics, metrics.DeliveryMetric{
			Stage:  metrics.StagePublished,
			Result: metrics.ResultSuccess,
		})
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job published",
			"delivery_id", id,
			"target", job.TargetReference,
			"commands", len(job.Commands),
			"event", req.EventType,
		)
	}
	return id, nil
}

// verifySignature checks the HMAC-SHA256 signature over the raw body using a
// constant-time comparison.
func (s *ReceiverService) verifySignature(body []byte, header string) error {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return ErrInvalidSignature
	}

	got, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
	mac.Write(body)
	want := mac.Sum(nil)

	if !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}
	return nil
}

// normalize maps an authenticated event onto a NormalizedJob, or
// ErrIgnoredEvent when the event carries no work.
func (s *ReceiverService) normalize(req WebhookRequest) (*model.NormalizedJob, error) {
	var payload any
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, &model.ValidationError{Reason: model.ReasonMalformed}
	}

	switch req.EventType {
	case "pull_request":
		return s.normalizePullRequest(payload, req)
	case "issue_comment":
		return s.normalizeComment(payload, req)
	default:
		return nil, ErrIgnoredEvent
	}
}

func (s *ReceiverService) normalizePullRequest(payload any, req WebhookRequest) (*model.NormalizedJob, error) {
	action := stringField(payload, "action")
	if !s.actionAllowed(action) {
		return nil, ErrIgnoredEvent
	}

	rawTarget, err := s.prTarget.Search(payload)
	if err != nil {
		return nil, fmt.Errorf("extract pr target: %w", err)
	}
	target, ok := rawTarget.(string)
	if !ok || strings.TrimSpace(target) == "" {
		return nil, model.NewMissingFieldError("target_reference")
	}

	canonical, err := model.CanonicalTarget(target, s.cfg.GitHost)
	if err != nil {
		return nil, err
	}

	commands := make([]model.Command, 0, len(s.cfg.DefaultCommands))
	for _, name := range s.cfg.DefaultCommands {
		commands = append(commands, model.Command{Name: name})
	}

	job := &model.NormalizedJob{
		TargetReference: canonical,
		Commands:        commands,
		Origin:          model.NewOrigin(req.EventType, action, s.extractActor(payload), req.ReceivedAt),
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *ReceiverService) normalizeComment(payload any, req WebhookRequest) (*model.NormalizedJob, error) {
	// Only comments on pull requests carry a pull_request link on the issue.
	rawTarget, err := s.commentTarget.Search(payload)
	if err != nil {
		return nil, fmt.Errorf("extract comment target: %w", err)
	}
	target, ok := rawTarget.(string)
	if !ok || strings.TrimSpace(target) == "" {
		return nil, ErrIgnoredEvent
	}

	rawBody, err := s.commentBody.Search(payload)
	if err != nil {
		return nil, fmt.Errorf("extract comment body: %w", err)
	}
	body, ok := rawBody.(string)
	if !ok {
		return nil, ErrIgnoredEvent
	}

	commands := ParseCommandLines(body)
	if len(commands) == 0 {
		return nil, ErrIgnoredEvent
	}

	canonical, err := model.CanonicalTarget(target, s.cfg.GitHost)
	if err != nil {
		return nil, err
	}

	job := &model.NormalizedJob{
		TargetReference: canonical,
		Commands:        commands,
		Origin:          model.NewOrigin(req.EventType, stringField(payload, "action"), s.extractActor(payload), req.ReceivedAt),
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// ParseCommandLines extracts slash-command lines from a comment body. Each
// line starting with "/" names one command; the rest of the line is the
// argument for commands that accept one. A line with an unknown command
// yields a job that fails validation, never a silently trimmed command list.
func ParseCommandLines(body string) []model.Command {
	var commands []model.Command
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "/") {
			continue
		}
		token, argument, _ := strings.Cut(line[1:], " ")
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		commands = append(commands, model.Command{
			Name:     model.CommandName(strings.ToLower(token)),
			Argument: strings.TrimSpace(argument),
		})
	}
	return commands
}

func (s *ReceiverService) actionAllowed(action string) bool {
	for _, allowed := range s.cfg.AllowedPRActions {
		if action == allowed {
			return true
		}
	}
	return false
}

func (s *ReceiverService) extractActor(payload any) string {
	raw, err := s.actor.Search(payload)
	if err != nil {
		return ""
	}
	actor, _ := raw.(string)
	return actor
}

func (s *ReceiverService) claimDelivery(ctx context.Context, deliveryID string) (bool, error) {
	if s.claims == nil || deliveryID == "" {
		return true, nil
	}
	return s.claims.Claim(ctx, "webhook:"+deliveryID, s.cfg.DedupTTL)
}

func (s *ReceiverService) releaseClaim(ctx context.Context, deliveryID string) {
	if s.claims == nil || deliveryID == "" {
		return
	}
	if err := s.claims.ReleaseClaim(ctx, "webhook:"+deliveryID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "release delivery claim failed",
			"delivery_id", deliveryID,
			"error", err,
		)
	}
}

func (s *ReceiverService) emitReceived(result string, err error) {
	if s.metrics == nil {
		return
	}
	metrics.EmitDeliveryLifecycle(s.metrics, metrics.DeliveryMetric{
		Stage:  metrics.StageReceived,
		Result: result,
		Err:    err,
	})
}

func stringField(payload any, key string) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	v, _ := m[key].(string)
	return v
}
