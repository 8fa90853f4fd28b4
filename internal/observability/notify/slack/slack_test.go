package slack

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reviewloop/relay/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#alerts",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.DeadLetterPayload{
		DeliveryID:      "delivery-123",
		TargetReference: "https://github.com/acme/widgets/pull/42",
		Commands:        []string{"review", "describe"},
		ReceiveCount:    3,
		MaxReceives:     3,
		Reason:          "engine unavailable",
		ErrorClass:      "transport_error",
	})

	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#alerts" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	if !containsAll(
		text,
		[]string{"Delivery dead-lettered", "delivery-123", "review, describe", "3/3", "engine unavailable", "transport_error"},
	) {
		t.Fatalf("message text missing fields: %s", text)
	}
}

func TestFormatMessageTargetLink(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.DeadLetterPayload{
		TargetReference: "https://github.com/acme/widgets/pull/42",
	})

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}

	expected := "<https://github.com/acme/widgets/pull/42|https://github.com/acme/widgets/pull/42>"
	if !strings.Contains(text, expected) {
		t.Fatalf("expected target link %q in text: %s", expected, text)
	}
}

func TestFormatTargetPermutations(t *testing.T) {
	tcs := []struct {
		name   string
		target string
		want   string
	}{
		{
			name:   "https url becomes link",
			target: "https://github.com/acme/widgets/pull/42",
			want:   "<https://github.com/acme/widgets/pull/42|https://github.com/acme/widgets/pull/42>",
		},
		{
			name:   "plain text escaped",
			target: "acme & <widgets>",
			want:   "acme &amp; &lt;widgets&gt;",
		},
		{
			name:   "empty",
			target: "",
			want:   "",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got := formatTarget(tc.target)
			if got != tc.want {
				t.Fatalf("formatTarget(%q) = %q, want %q", tc.target, got, tc.want)
			}
		})
	}
}

func TestFormatMessageMetadataSorted(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.DeadLetterPayload{
		DeliveryID: "delivery-1",
		Metadata: map[string]string{
			"event": "pull_request",
			"actor": "octocat",
		},
	})

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	actorIdx := strings.Index(text, "actor: octocat")
	eventIdx := strings.Index(text, "event: pull_request")
	if actorIdx < 0 || eventIdx < 0 || actorIdx > eventIdx {
		t.Fatalf("expected metadata keys sorted, got: %s", text)
	}
}

func TestSendDeadLetterPostsToWebhook(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendDeadLetter(context.Background(), notify.DeadLetterPayload{
		DeliveryID: "delivery-9",
		Reason:     "engine unavailable",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bodies) != 1 {
		t.Fatalf("expected 1 webhook call, got %d", len(bodies))
	}
	if !strings.Contains(bodies[0], "delivery-9") {
		t.Fatalf("expected delivery id in body: %s", bodies[0])
	}
}

func TestSendDeadLetterRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendDeadLetter(context.Background(), notify.DeadLetterPayload{DeliveryID: "delivery-10"})
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func containsAll(text string, substrs []string) bool {
	for _, s := range substrs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}
