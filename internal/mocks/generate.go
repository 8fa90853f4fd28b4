// Package mocks provides mock implementations for testing the relay pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the core ports. The mocks are generated using go:generate directives and
// provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockChannel := mocks.NewMockChannel(ctrl)
//	mockChannel.EXPECT().Ack(gomock.Any(), gomock.Any()).Return(true, nil)
package mocks

// Generate mock for Channel interface from internal/core package.
// This creates MockChannel with methods for all Channel interface methods:
// Publish, Reserve, WaitForDelivery, ExtendLease, Ack, Release
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=channel_mock.go github.com/reviewloop/relay/internal/core Channel

// Generate mock for ChannelIntrospector interface from internal/core package.
// This creates MockChannelIntrospector with methods for all ChannelIntrospector interface methods:
// Stats, ListDeadLetters, RequeueDeadLetter
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=channel_introspector_mock.go github.com/reviewloop/relay/internal/core ChannelIntrospector

// Generate mock for Executor interface from internal/core package.
// This creates MockExecutor with methods for all Executor interface methods:
// Execute
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=executor_mock.go github.com/reviewloop/relay/internal/core Executor

// Generate mock for ClaimStore interface from internal/core package.
// This creates MockClaimStore with methods for all ClaimStore interface methods:
// Claim, ReleaseClaim
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=claim_store_mock.go github.com/reviewloop/relay/internal/core ClaimStore

// Generate mock for Reporter interface from internal/core package.
// This creates MockReporter with methods for all Reporter interface methods:
// Report
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reporter_mock.go github.com/reviewloop/relay/internal/core Reporter

// Generate mock for ReaperRepository interface from internal/core package.
// This creates MockReaperRepository with methods for all ReaperRepository interface methods:
// DeleteAckedOlderThan, DeleteDeadLettersOlderThan
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/reviewloop/relay/internal/core ReaperRepository
