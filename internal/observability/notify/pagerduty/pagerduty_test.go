package pagerduty

import (
	"strings"
	"testing"
	"time"

	"github.com/reviewloop/relay/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{
		RoutingKey: "key",
		Source:     "",
		Component:  "",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := notify.DeadLetterPayload{
		DeliveryID:      "delivery-123",
		TargetReference: "https://github.com/acme/widgets/pull/42",
		Commands:        []string{"review", "describe"},
		ReceiveCount:    3,
		MaxReceives:     3,
		Reason:          "engine unavailable",
		ErrorClass:      "transport_error",
	}
	event := client.buildEvent(payload)

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	if payloadSection["severity"] != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %v", payloadSection["severity"])
	}
	if payloadSection["source"] != "relay" {
		t.Fatalf("expected default source, got %v", payloadSection["source"])
	}
	if payloadSection["component"] != "relay" {
		t.Fatalf("expected default component, got %v", payloadSection["component"])
	}

	summary, _ := payloadSection["summary"].(string)
	if !strings.Contains(summary, "delivery-123") || !strings.Contains(summary, "3 receives") {
		t.Fatalf("unexpected summary: %s", summary)
	}

	custom, ok := payloadSection["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}

	required := []string{"delivery_id", "target", "commands", "receive_count", "max_receives", "reason", "error_class"}
	for _, key := range required {
		if _, exists := custom[key]; !exists {
			t.Fatalf("expected key %s in custom details", key)
		}
	}

	dedup, _ := event["dedup_key"].(string)
	if dedup != "delivery-123" {
		t.Fatalf("expected dedup key to be the delivery id, got %s", dedup)
	}
}

func TestBuildEventMetadataMerged(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(notify.DeadLetterPayload{
		DeliveryID: "delivery-1",
		Reason:     "boom",
		Metadata: map[string]string{
			"actor": "octocat",
			// Must not shadow a canonical field.
			"reason": "shadow attempt",
		},
	})

	payloadSection := event["payload"].(map[string]any)
	custom := payloadSection["custom_details"].(map[string]any)

	if custom["actor"] != "octocat" {
		t.Fatalf("expected metadata merged, got %v", custom["actor"])
	}
	if custom["reason"] != "boom" {
		t.Fatalf("expected canonical reason kept, got %v", custom["reason"])
	}
}
