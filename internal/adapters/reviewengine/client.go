// Package reviewengine implements the command executor against the external
// review engine's HTTP API.
package reviewengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/reviewloop/relay/config"
	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/domain/model"
)

const maxResponseBodyBytes = 4 * 1024 // truncate engine error bodies kept in outcomes

// ClientOptions configures the review engine executor.
type ClientOptions struct {
	Config config.EngineConfig
	Logger *slog.Logger
	// HTTPClient overrides the oauth2-wrapped default, mainly for tests.
	HTTPClient *http.Client
}

// Client invokes review commands against the engine endpoint. It implements
// core.Executor and classifies every failure as transient or logical so the
// dispatcher can decide between retry and terminal outcome.
type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewClient constructs a review engine executor.
func NewClient(opts ClientOptions) (*Client, error) {
	url := strings.TrimSpace(opts.Config.URL)
	if url == "" {
		return nil, errors.New("engine URL is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "review_engine")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Config.Timeout}
		if token := strings.TrimSpace(opts.Config.Token); token != "" {
			src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
			hc = &http.Client{
				Timeout: opts.Config.Timeout,
				Transport: &oauth2.Transport{
					Source: src,
					Base:   http.DefaultTransport,
				},
			}
		}
	}

	return &Client{
		url:    url,
		client: hc,
		logger: logger,
	}, nil
}

// commandRequest is the engine's invocation payload.
type commandRequest struct {
	Target   string `json:"target"`
	Command  string `json:"command"`
	Argument string `json:"argument,omitempty"`
}

// commandResponse is the engine's result payload.
type commandResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Execute runs one command against a target. Transport errors, timeouts and
// retryable HTTP statuses come back as transient ExecutionErrors; engine
// rejections (other 4xx) come back as logical ones.
func (c *Client) Execute(ctx context.Context, target string, cmd model.Command) (model.CommandOutcome, error) {
	start := time.Now()
	name := string(cmd.Name)

	body, err := json.Marshal(commandRequest{
		Target:   target,
		Command:  name,
		Argument: cmd.Argument,
	})
	if err != nil {
		return model.CommandOutcome{}, core.NewLogicalError(name, "encode command request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return model.CommandOutcome{}, core.NewLogicalError(name, "create command request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.CommandOutcome{}, c.classifyTransportError(name, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.CommandOutcome{}, c.classifyStatusError(name, resp)
	}

	var result commandResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(&result); err != nil {
		// A 2xx with an unreadable body is indistinguishable from a dropped
		// connection; retrying is safe because the engine is idempotent per
		// (target, command).
		return model.CommandOutcome{}, core.NewTransientError(name, "decode engine response", err)
	}

	outcome := model.CommandOutcome{
		Command:  cmd,
		Status:   parseOutcomeStatus(result.Status),
		Detail:   result.Detail,
		Duration: time.Since(start),
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "command executed",
			"target", target,
			"command", name,
			"status", string(outcome.Status),
			"duration_ms", outcome.Duration.Milliseconds(),
		)
	}
	return outcome, nil
}

// parseOutcomeStatus maps the engine's status strings onto the outcome
// vocabulary, defaulting to succeeded for unrecognized success-ish values.
func parseOutcomeStatus(status string) model.OutcomeStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "failed", "failure", "error":
		return model.OutcomeFailed
	case "skipped":
		return model.OutcomeSkipped
	default:
		return model.OutcomeSucceeded
	}
}

func (c *Client) classifyTransportError(command string, err error) error {
	if errors.Is(err, context.Canceled) {
		return core.NewTransientError(command, "command canceled", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return core.NewTransientError(command, "engine request timed out", err)
	}

	return core.NewTransientError(command, "engine unreachable", err)
}

func (c *Client) classifyStatusError(command string, resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	msg := fmt.Sprintf("engine returned %s", resp.Status)
	if detail := strings.TrimSpace(string(respBody)); detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}

	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return core.NewTransientError(command, msg, nil)
	default:
		return core.NewLogicalError(command, msg, nil)
	}
}
