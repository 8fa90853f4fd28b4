package statsd

import (
	"net"
	"strings"
	"testing"
)

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" delivery/lifecycle ": "delivery_lifecycle",
		"foo..bar":             "foo.bar",
		"multi  space":         "multi__space",
		"cmd:review":           "cmd_review",
		"..dotted..":           "dotted",
		"":                     "",
	}

	for input, want := range tests {
		if got := normalizeMetricName(input); got != want {
			t.Fatalf("normalizeMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestQualifiedNameAppliesPrefix(t *testing.T) {
	t.Parallel()

	c := &Client{prefix: "relay"}
	if got := c.qualifiedName("delivery.acked"); got != "relay.delivery.acked" {
		t.Fatalf("qualifiedName = %q", got)
	}

	bare := &Client{}
	if got := bare.qualifiedName("delivery.acked"); got != "delivery.acked" {
		t.Fatalf("qualifiedName without prefix = %q", got)
	}
}

func TestAppendTagsMergesAndSorts(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env":       "prod",
		" service ": " relay ",
	}
	local := map[string]string{
		"result": " success ",
		"":       "ignored",
		"env":    "stage",
	}

	var line strings.Builder
	appendTags(&line, global, local)

	want := "|#env:stage,result:success,service:relay"
	if got := line.String(); got != want {
		t.Fatalf("appendTags mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestAppendTagsEmpty(t *testing.T) {
	t.Parallel()

	var line strings.Builder
	appendTags(&line, nil, nil)
	if line.Len() != 0 {
		t.Fatalf("appendTags(nil, nil) wrote %q, want nothing", line.String())
	}
}

func TestSanitizeTagValueStripsDelimiters(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"pg_unique_violation":       "pg_unique_violation",
		"engine timeout: retry":     "engine timeout_ retry",
		"a|b,c:d":                   "a_b_c_d",
		" timing out\nafter retry ": "timing out_after retry",
	}

	for input, want := range tests {
		if got := sanitizeTagValue(input); got != want {
			t.Fatalf("sanitizeTagValue(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSanitizeTagsCopiesAndDropsEmptyKeys(t *testing.T) {
	t.Parallel()

	original := map[string]string{
		"env": "prod",
		"":    "ignored",
	}

	cleaned := sanitizeTags(original)
	if _, ok := cleaned[""]; ok {
		t.Fatal("sanitizeTags kept empty key")
	}

	cleaned["env"] = "stage"
	if original["env"] != "prod" {
		t.Fatal("sanitizeTags did not copy values")
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{
		enabled: true,
		conn:    clientConn,
	}

	if !client.Enabled() {
		t.Fatal("expected client.Enabled to report true with active connection")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client.Enabled to report false after Close")
	}

	// Verify Close can be called again without error.
	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		Enabled: true,
		Address: "   ",
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{
		Enabled: true,
		Address: "bad address",
	})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}
