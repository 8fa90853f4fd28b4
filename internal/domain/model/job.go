// Package model defines the core data types for the relay command-dispatch pipeline.
package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// CommandName identifies one of the recognized review commands.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type CommandName string

const (
	// CommandReview requests a full code review of the target PR.
	CommandReview CommandName = "review"
	// CommandDescribe requests a generated PR description.
	CommandDescribe CommandName = "describe"
	// CommandImprove requests improvement suggestions.
	CommandImprove CommandName = "improve"
	// CommandAsk asks a free-text question about the PR; the only command that takes an argument.
	CommandAsk CommandName = "ask"
	// CommandTest requests test suggestions for the PR.
	CommandTest CommandName = "test"
)

// KnownCommands returns the closed command vocabulary in a stable order.
func KnownCommands() []CommandName {
	return []CommandName{CommandReview, CommandDescribe, CommandImprove, CommandAsk, CommandTest}
}

// Valid returns true if the CommandName is part of the recognized vocabulary.
func (n CommandName) Valid() bool {
	switch n {
	case CommandReview, CommandDescribe, CommandImprove, CommandAsk, CommandTest:
		return true
	default:
		return false
	}
}

// TakesArgument reports whether the command accepts a free-text argument.
func (n CommandName) TakesArgument() bool {
	return n == CommandAsk
}

// UnmarshalText implements encoding.TextUnmarshaler for CommandName to allow env parsing.
func (n *CommandName) UnmarshalText(text []byte) error {
	v := CommandName(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid CommandName: %q", string(text))
	}
	*n = v
	return nil
}

// Command is one command token plus its optional argument.
type Command struct {
	Name     CommandName `json:"name"`
	Argument string      `json:"argument,omitempty"`
}

// NormalizedJob is the canonical unit of work placed on the durable channel.
// It is immutable once published; redelivery bookkeeping lives on the
// Delivery envelope, never on the job payload.
type NormalizedJob struct {
	TargetReference string            `json:"target_reference"`
	Commands        []Command         `json:"commands"`
	Origin          map[string]string `json:"origin,omitempty"`
}

// ValidationReason categorizes why a job failed validation.
type ValidationReason string

const (
	// ReasonMissingField indicates a required field was empty or absent.
	ReasonMissingField ValidationReason = "missing_field"
	// ReasonUnknownCommand indicates a command token outside the recognized vocabulary.
	ReasonUnknownCommand ValidationReason = "unknown_command"
	// ReasonMalformed indicates the payload could not be decoded at all.
	ReasonMalformed ValidationReason = "malformed"
)

// ValidationError reports a structurally invalid job. Jobs failing validation
// are never retried: the same bytes cannot validate on a later attempt.
type ValidationError struct {
	Reason ValidationReason
	Field  string
	Token  string
	cause  error
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonMissingField:
		return fmt.Sprintf("validation: missing field %q", e.Field)
	case ReasonUnknownCommand:
		return fmt.Sprintf("validation: unknown command %q", e.Token)
	case ReasonMalformed:
		if e.cause != nil {
			return fmt.Sprintf("validation: malformed payload: %v", e.cause)
		}
		return "validation: malformed payload"
	default:
		return "validation: invalid job"
	}
}

func (e *ValidationError) Unwrap() error { return e.cause }

// NewMissingFieldError builds a ValidationError for an absent required field.
func NewMissingFieldError(field string) *ValidationError {
	return &ValidationError{Reason: ReasonMissingField, Field: field}
}

// NewUnknownCommandError builds a ValidationError for an unrecognized command token.
func NewUnknownCommandError(token string) *ValidationError {
	return &ValidationError{Reason: ReasonUnknownCommand, Token: token}
}

// Validate checks the job against the schema contract: a non-empty canonical
// target reference and at least one command, every command drawn from the
// closed vocabulary. An unknown command fails the whole job rather than being
// dropped, so operator intent is never partially honored.
func (j *NormalizedJob) Validate() error {
	if j == nil {
		return &ValidationError{Reason: ReasonMalformed}
	}
	if strings.TrimSpace(j.TargetReference) == "" {
		return NewMissingFieldError("target_reference")
	}
	if len(j.Commands) == 0 {
		return NewMissingFieldError("commands")
	}
	for _, cmd := range j.Commands {
		if !cmd.Name.Valid() {
			return NewUnknownCommandError(string(cmd.Name))
		}
		if cmd.Argument != "" && !cmd.Name.TakesArgument() {
			return NewUnknownCommandError(string(cmd.Name) + " " + cmd.Argument)
		}
	}
	return nil
}

// ParseJob decodes and validates a serialized NormalizedJob. It is a pure
// function over the input bytes: no network or execution side effects.
func ParseJob(data []byte) (*NormalizedJob, error) {
	var job NormalizedJob
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&job); err != nil {
		return nil, &ValidationError{Reason: ReasonMalformed, cause: err}
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// Marshal serializes the job for the channel. The inverse of ParseJob.
func (j *NormalizedJob) Marshal() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return data, nil
}

// shorthandTarget matches "owner/repo#123".
var shorthandTarget = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)#(\d+)$`)

// CanonicalTarget normalizes a target reference to a single PR URL form so
// downstream components never branch on the origin shape. Accepted inputs are
// a full PR URL or the "owner/repo#number" shorthand, which is resolved
// against the given git host (e.g. "github.com").
func CanonicalTarget(raw, host string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", NewMissingFieldError("target_reference")
	}

	if m := shorthandTarget.FindStringSubmatch(trimmed); m != nil {
		if host == "" {
			host = "github.com"
		}
		return fmt.Sprintf("https://%s/%s/%s/pull/%s", host, m[1], m[2], m[3]), nil
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", &ValidationError{Reason: ReasonMalformed, Field: "target_reference", cause: err}
	}
	// Strip query/fragment noise so equal PRs compare equal.
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

// NewOrigin builds the opaque attribution bag recorded alongside a job. The
// dispatcher never interprets these fields; they exist for logs and reports.
func NewOrigin(eventType, action, actor string, receivedAt time.Time) map[string]string {
	origin := map[string]string{
		"event":       eventType,
		"action":      action,
		"received_at": receivedAt.UTC().Format(time.RFC3339),
	}
	if actor != "" {
		origin["actor"] = actor
	}
	return origin
}
