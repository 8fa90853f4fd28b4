package reviewengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/relay/config"
	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/domain/model"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{
		Config: config.EngineConfig{URL: url, Timeout: 2 * time.Second},
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine URL is required")
}

func TestExecuteSuccess(t *testing.T) {
	var got commandRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(commandResponse{Status: "succeeded", Detail: "review posted"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	outcome, err := client.Execute(context.Background(),
		"https://github.com/acme/widgets/pull/42",
		model.Command{Name: model.CommandAsk, Argument: "is this safe?"},
	)
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/widgets/pull/42", got.Target)
	assert.Equal(t, "ask", got.Command)
	assert.Equal(t, "is this safe?", got.Argument)

	assert.Equal(t, model.OutcomeSucceeded, outcome.Status)
	assert.Equal(t, "review posted", outcome.Detail)
	assert.Equal(t, model.CommandAsk, outcome.Command.Name)
	assert.Positive(t, outcome.Duration)
}

func TestExecuteEngineReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(commandResponse{Status: "failed", Detail: "pull request is closed"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	outcome, err := client.Execute(context.Background(), "https://github.com/acme/widgets/pull/42",
		model.Command{Name: model.CommandReview})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFailed, outcome.Status)
	assert.Equal(t, "pull request is closed", outcome.Detail)
}

func TestExecuteServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "engine overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Execute(context.Background(), "https://github.com/acme/widgets/pull/42",
		model.Command{Name: model.CommandReview})
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
	assert.Contains(t, err.Error(), "engine overloaded")
}

func TestExecuteTooManyRequestsIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Execute(context.Background(), "https://github.com/acme/widgets/pull/42",
		model.Command{Name: model.CommandReview})
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestExecuteClientErrorIsLogical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown command", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Execute(context.Background(), "https://github.com/acme/widgets/pull/42",
		model.Command{Name: model.CommandReview})
	require.Error(t, err)
	assert.True(t, core.IsLogical(err))
	assert.False(t, core.IsTransient(err))
}

func TestExecuteUnreachableEngineIsTransient(t *testing.T) {
	// Point at a closed port.
	client := newTestClient(t, "http://127.0.0.1:1")
	_, err := client.Execute(context.Background(), "https://github.com/acme/widgets/pull/42",
		model.Command{Name: model.CommandReview})
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestExecuteTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := NewClient(ClientOptions{
		Config: config.EngineConfig{URL: srv.URL, Timeout: 50 * time.Millisecond},
	})
	require.NoError(t, err)

	_, err = client.Execute(context.Background(), "https://github.com/acme/widgets/pull/42",
		model.Command{Name: model.CommandReview})
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}
