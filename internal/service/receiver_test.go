package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/reviewloop/relay/config"
	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/domain/model"
	"github.com/reviewloop/relay/internal/mocks"
	"github.com/reviewloop/relay/internal/testutil"
)

const testWebhookSecret = "test-webhook-secret"

// signBody computes the signature header value the origin would send.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func testWebhookConfig() config.WebhookConfig {
	cfg := config.WebhookConfig{Secret: testWebhookSecret}
	cfg.Sanitize()
	return cfg
}

func newTestReceiver(t *testing.T, channel core.Channel, claims core.ClaimStore) *ReceiverService {
	t.Helper()
	svc, err := NewReceiverService(ReceiverServiceOptions{
		Channel: channel,
		Config:  testWebhookConfig(),
		Deps:    ReceiverDeps{Claims: claims},
	})
	require.NoError(t, err)
	return svc
}

func signedRequest(eventType, deliveryID string, body []byte) WebhookRequest {
	return WebhookRequest{
		Body:       body,
		Signature:  signBody(testWebhookSecret, body),
		EventType:  eventType,
		DeliveryID: deliveryID,
		ReceivedAt: testutil.TestTime(),
	}
}

func pullRequestBody(action, htmlURL string) []byte {
	return fmt.Appendf(nil, `{
		"action": %q,
		"pull_request": {"html_url": %q},
		"sender": {"login": "octocat"}
	}`, action, htmlURL)
}

func commentBody(comment, htmlURL string) []byte {
	return fmt.Appendf(nil, `{
		"action": "created",
		"issue": {"pull_request": {"html_url": %q}},
		"comment": {"body": %q},
		"sender": {"login": "octocat"}
	}`, htmlURL, comment)
}

func TestNewReceiverService_RequiredDependencies(t *testing.T) {
	svc, err := NewReceiverService(ReceiverServiceOptions{
		Channel: nil,
		Config:  testWebhookConfig(),
	})
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "Channel is required")

	svc, err = NewReceiverService(ReceiverServiceOptions{
		Channel: testutil.NewFakeChannel(3),
		Config:  config.WebhookConfig{Secret: "   "},
	})
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "secret is required")
}

func TestReceiverService_PullRequestPublishesDefaultCommands(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	svc := newTestReceiver(t, channel, nil)

	body := pullRequestBody("opened", "https://github.com/acme/widgets/pull/42")
	id, err := svc.Receive(context.Background(), signedRequest("pull_request", "gh-delivery-1", body))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	delivery, err := channel.Reserve(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, id, delivery.ID)

	job, err := model.ParseJob(delivery.Body)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/pull/42", job.TargetReference)
	require.Len(t, job.Commands, 2)
	assert.Equal(t, model.CommandReview, job.Commands[0].Name)
	assert.Equal(t, model.CommandDescribe, job.Commands[1].Name)
	assert.Equal(t, "pull_request", job.Origin["event"])
	assert.Equal(t, "opened", job.Origin["action"])
	assert.Equal(t, "octocat", job.Origin["actor"])
}

func TestReceiverService_RejectsBadSignature(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	svc := newTestReceiver(t, channel, nil)

	body := pullRequestBody("opened", "https://github.com/acme/widgets/pull/42")

	tests := []struct {
		name      string
		signature string
	}{
		{"missing header", ""},
		{"wrong prefix", "sha1=deadbeef"},
		{"not hex", "sha256=zz-not-hex"},
		{"wrong secret", signBody("someone-elses-secret", body)},
		{"signature over different body", signBody(testWebhookSecret, []byte(`{}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := signedRequest("pull_request", "gh-delivery-1", body)
			req.Signature = tt.signature

			id, err := svc.Receive(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidSignature)
			assert.Empty(t, id)
			assert.Zero(t, channel.PendingCount())
		})
	}
}

func TestReceiverService_IgnoresUnlistedPRAction(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	svc := newTestReceiver(t, channel, nil)

	body := pullRequestBody("labeled", "https://github.com/acme/widgets/pull/42")
	_, err := svc.Receive(context.Background(), signedRequest("pull_request", "gh-delivery-1", body))
	require.ErrorIs(t, err, ErrIgnoredEvent)
	assert.Zero(t, channel.PendingCount())
}

func TestReceiverService_IgnoresUnknownEventType(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	svc := newTestReceiver(t, channel, nil)

	_, err := svc.Receive(context.Background(), signedRequest("push", "gh-delivery-1", []byte(`{"action":"created"}`)))
	require.ErrorIs(t, err, ErrIgnoredEvent)
	assert.Zero(t, channel.PendingCount())
}

func TestReceiverService_CommentCommands(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	svc := newTestReceiver(t, channel, nil)

	comment := "Looks close.\n/review\n/ask does the retry loop back off?"
	body := commentBody(comment, "https://github.com/acme/widgets/pull/42")

	id, err := svc.Receive(context.Background(), signedRequest("issue_comment", "gh-delivery-2", body))
	require.NoError(t, err)

	delivery, err := channel.Reserve(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, id, delivery.ID)

	job, err := model.ParseJob(delivery.Body)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/pull/42", job.TargetReference)
	require.Len(t, job.Commands, 2)
	assert.Equal(t, model.CommandReview, job.Commands[0].Name)
	assert.Empty(t, job.Commands[0].Argument)
	assert.Equal(t, model.CommandAsk, job.Commands[1].Name)
	assert.Equal(t, "does the retry loop back off?", job.Commands[1].Argument)
}

func TestReceiverService_CommentWithoutCommandsIgnored(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	svc := newTestReceiver(t, channel, nil)

	body := commentBody("nice work, merging now", "https://github.com/acme/widgets/pull/42")
	_, err := svc.Receive(context.Background(), signedRequest("issue_comment", "gh-delivery-3", body))
	require.ErrorIs(t, err, ErrIgnoredEvent)
	assert.Zero(t, channel.PendingCount())
}

func TestReceiverService_CommentOnPlainIssueIgnored(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	svc := newTestReceiver(t, channel, nil)

	// No issue.pull_request link: the comment is on a plain issue.
	body := []byte(`{
		"action": "created",
		"issue": {"number": 7},
		"comment": {"body": "/review"},
		"sender": {"login": "octocat"}
	}`)
	_, err := svc.Receive(context.Background(), signedRequest("issue_comment", "gh-delivery-4", body))
	require.ErrorIs(t, err, ErrIgnoredEvent)
	assert.Zero(t, channel.PendingCount())
}

func TestReceiverService_UnknownCommandFailsValidation(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	svc := newTestReceiver(t, channel, nil)

	body := commentBody("/review\n/deploy production", "https://github.com/acme/widgets/pull/42")
	_, err := svc.Receive(context.Background(), signedRequest("issue_comment", "gh-delivery-5", body))

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, model.ReasonUnknownCommand, verr.Reason)
	assert.Zero(t, channel.PendingCount())
}

func TestReceiverService_ArgumentOnNonAskCommandFailsValidation(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	svc := newTestReceiver(t, channel, nil)

	body := commentBody("/review the auth changes please", "https://github.com/acme/widgets/pull/42")
	_, err := svc.Receive(context.Background(), signedRequest("issue_comment", "gh-delivery-6", body))

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, model.ReasonUnknownCommand, verr.Reason)
}

func TestReceiverService_DuplicateDeliverySuppressed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := testutil.NewFakeChannel(3)
	claims := mocks.NewMockClaimStore(ctrl)
	gomock.InOrder(
		claims.EXPECT().Claim(gomock.Any(), "webhook:gh-delivery-7", gomock.Any()).Return(true, nil),
		claims.EXPECT().Claim(gomock.Any(), "webhook:gh-delivery-7", gomock.Any()).Return(false, nil),
	)

	svc := newTestReceiver(t, channel, claims)
	body := pullRequestBody("opened", "https://github.com/acme/widgets/pull/42")

	id, err := svc.Receive(context.Background(), signedRequest("pull_request", "gh-delivery-7", body))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = svc.Receive(context.Background(), signedRequest("pull_request", "gh-delivery-7", body))
	require.ErrorIs(t, err, ErrDuplicateDelivery)
	assert.Equal(t, 1, channel.PendingCount())
}

func TestReceiverService_ClaimStoreFailureDegradesToPublish(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := testutil.NewFakeChannel(3)
	claims := mocks.NewMockClaimStore(ctrl)
	claims.EXPECT().Claim(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))

	svc := newTestReceiver(t, channel, claims)
	body := pullRequestBody("opened", "https://github.com/acme/widgets/pull/42")

	id, err := svc.Receive(context.Background(), signedRequest("pull_request", "gh-delivery-8", body))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, channel.PendingCount())
}

func TestReceiverService_PublishFailureReleasesClaim(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	channel := testutil.NewFakeChannel(3)
	channel.PublishErr = errors.New("database unavailable")

	claims := mocks.NewMockClaimStore(ctrl)
	claims.EXPECT().Claim(gomock.Any(), "webhook:gh-delivery-9", gomock.Any()).Return(true, nil)
	claims.EXPECT().ReleaseClaim(gomock.Any(), "webhook:gh-delivery-9").Return(nil)

	svc := newTestReceiver(t, channel, claims)
	body := pullRequestBody("opened", "https://github.com/acme/widgets/pull/42")

	_, err := svc.Receive(context.Background(), signedRequest("pull_request", "gh-delivery-9", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish job")
}

func TestReceiverService_ShorthandTargetCanonicalized(t *testing.T) {
	channel := testutil.NewFakeChannel(3)
	svc := newTestReceiver(t, channel, nil)

	body := pullRequestBody("reopened", "acme/widgets#42")
	_, err := svc.Receive(context.Background(), signedRequest("pull_request", "gh-delivery-10", body))
	require.NoError(t, err)

	delivery, err := channel.Reserve(context.Background(), time.Minute)
	require.NoError(t, err)
	job, err := model.ParseJob(delivery.Body)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/pull/42", job.TargetReference)
}

func TestParseCommandLines(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []model.Command
	}{
		{
			name: "no commands",
			body: "just a regular comment",
			want: nil,
		},
		{
			name: "single command",
			body: "/review",
			want: []model.Command{{Name: model.CommandReview}},
		},
		{
			name: "leading whitespace tolerated",
			body: "  /improve  ",
			want: []model.Command{{Name: model.CommandImprove}},
		},
		{
			name: "uppercase token lowered",
			body: "/REVIEW",
			want: []model.Command{{Name: model.CommandReview}},
		},
		{
			name: "ask keeps argument",
			body: "/ask why is this flaky?",
			want: []model.Command{{Name: model.CommandAsk, Argument: "why is this flaky?"}},
		},
		{
			name: "multiple lines in order",
			body: "intro text\n/describe\nmore text\n/test\n",
			want: []model.Command{{Name: model.CommandDescribe}, {Name: model.CommandTest}},
		},
		{
			name: "slash mid-line not a command",
			body: "see /etc/passwd for details",
			want: nil,
		},
		{
			name: "unknown command passes through for validation",
			body: "/deploy",
			want: []model.Command{{Name: "deploy"}},
		},
		{
			name: "bare slash skipped",
			body: "/",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommandLines(tt.body))
		})
	}
}
