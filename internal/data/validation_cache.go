package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domainjob "github.com/target/jobstream/internal/domain/job"
	"github.com/target/jobstream/internal/domain/model"
)

// ValidationCacheOptions configures a ValidationCache.
type ValidationCacheOptions struct {
	Store     *RedisStore
	QueueKey  string
	InputTTL  time.Duration
	ResultTTL time.Duration
}

// ValidationCache keeps the short-lived Redis side of batch validation: the
// request-id queue, the input snapshot and the result mirror.
type ValidationCache struct {
	store     *RedisStore
	queueKey  string
	inputTTL  time.Duration
	resultTTL time.Duration
}

// NewValidationCache creates a ValidationCache with defaults applied.
func NewValidationCache(opts ValidationCacheOptions) (*ValidationCache, error) {
	if opts.Store == nil {
		return nil, errors.New("RedisStore is required")
	}
	if opts.QueueKey == "" {
		opts.QueueKey = domainjob.ValidationQueueKey
	}
	if opts.InputTTL <= 0 {
		opts.InputTTL = 5 * time.Minute
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = time.Hour
	}
	return &ValidationCache{
		store:     opts.Store,
		queueKey:  opts.QueueKey,
		inputTTL:  opts.InputTTL,
		resultTTL: opts.ResultTTL,
	}, nil
}

// Submit stores the input snapshot and then queues the request id.
func (c *ValidationCache) Submit(ctx context.Context, requestID string, req model.ValidationRequest) error {
	if strings.TrimSpace(requestID) == "" {
		return ErrRequestIDRequired
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal validation input: %w", err)
	}
	if err := c.store.SetWithExpiry(ctx, domainjob.ValidationInputKey(requestID), raw, c.inputTTL); err != nil {
		return err
	}
	if err := c.store.PushQueue(ctx, c.queueKey, requestID); err != nil {
		// Without a queue entry the snapshot would report "processing" until it expires.
		_, _ = c.store.Delete(context.WithoutCancel(ctx), domainjob.ValidationInputKey(requestID))
		return err
	}
	return nil
}

// Claim blocks up to timeout for the next request id. It returns
// model.ErrQueueEmpty on timeout.
func (c *ValidationCache) Claim(ctx context.Context, timeout time.Duration) (string, error) {
	return c.store.BlockingPop(ctx, c.queueKey, timeout)
}

// QueueDepth returns the number of queued request ids.
func (c *ValidationCache) QueueDepth(ctx context.Context) (int64, error) {
	return c.store.ListLength(ctx, c.queueKey)
}

// LoadInput returns the input snapshot. found is false once it expired or was deleted.
func (c *ValidationCache) LoadInput(ctx context.Context, requestID string) (req model.ValidationRequest, found bool, err error) {
	raw, err := c.store.Get(ctx, domainjob.ValidationInputKey(requestID))
	if err != nil || raw == nil {
		return model.ValidationRequest{}, false, err
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return model.ValidationRequest{}, false, fmt.Errorf("decode validation input %s: %w", requestID, err)
	}
	return req, true, nil
}

// InputExists reports whether the request is still in flight.
func (c *ValidationCache) InputExists(ctx context.Context, requestID string) (bool, error) {
	return c.store.Exists(ctx, domainjob.ValidationInputKey(requestID))
}

// DeleteInput removes the input snapshot.
func (c *ValidationCache) DeleteInput(ctx context.Context, requestID string) error {
	_, err := c.store.Delete(ctx, domainjob.ValidationInputKey(requestID))
	return err
}

// SaveResults mirrors the result list with the result TTL.
func (c *ValidationCache) SaveResults(ctx context.Context, requestID string, results []model.ValidationResult) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal validation results: %w", err)
	}
	return c.store.SetWithExpiry(ctx, domainjob.ValidationResultKey(requestID), raw, c.resultTTL)
}

// LoadResults returns the mirrored result list. found is false on a miss.
func (c *ValidationCache) LoadResults(ctx context.Context, requestID string) (results []model.ValidationResult, found bool, err error) {
	raw, err := c.store.Get(ctx, domainjob.ValidationResultKey(requestID))
	if err != nil || raw == nil {
		return nil, false, err
	}
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false, fmt.Errorf("decode validation results %s: %w", requestID, err)
	}
	return results, true, nil
}
