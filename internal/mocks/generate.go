// Package mocks provides mock implementations for testing the jobstream services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the store and collaborator interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	queue := mocks.NewMockJobQueue(ctrl)
//	queue.EXPECT().QueueDepth(gomock.Any()).Return(int64(0), nil)
package mocks

// Generate mock for JobQueue interface from internal/core package.
// This creates MockJobQueue with methods for all JobQueue interface methods:
// Enqueue, Claim, QueueDepth
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_queue_mock.go github.com/target/jobstream/internal/core JobQueue

// Generate mock for ValidationQueue interface from internal/core package.
// This creates MockValidationQueue with methods for all ValidationQueue interface methods:
// Submit, Claim, QueueDepth, LoadInput, InputExists, DeleteInput, SaveResults, LoadResults
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=validation_queue_mock.go github.com/target/jobstream/internal/core ValidationQueue

// Generate mock for ValidationResultRepository interface from internal/core package.
// This creates MockValidationResultRepository with methods for all ValidationResultRepository interface methods:
// NextRequestID, InsertBatch, ListByRequestID
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=validation_result_repository_mock.go github.com/target/jobstream/internal/core ValidationResultRepository

// Generate mock for ItemCatalog interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=item_catalog_mock.go github.com/target/jobstream/internal/core ItemCatalog

// Generate mock for Reasoner interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reasoner_mock.go github.com/target/jobstream/internal/core Reasoner

// Generate mock for MessageRepository interface from internal/core package.
// This creates MockMessageRepository with methods for all MessageRepository interface methods:
// UpdateChatContent, UpdateWhatsAppBody
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=message_repository_mock.go github.com/target/jobstream/internal/core MessageRepository

// Generate mock for GatewayNotifier interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=gateway_notifier_mock.go github.com/target/jobstream/internal/core GatewayNotifier

// GRNRepository mock for testing performance reports
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=grn_repository_mock.go github.com/target/jobstream/internal/core GRNRepository
