package service

import (
	"context"
	"time"

	"github.com/target/jobstream/internal/core"
	domainjob "github.com/target/jobstream/internal/domain/job"
	"github.com/target/jobstream/internal/domain/model"
)

// ChunkWaiter blocks until a job stream grows past a cursor.
//
// WaitForChunks returns the stream length once it exceeds cursor, or the
// current length when timeout elapses first. Implementations must never
// report a length that the stream has not reached, so observers can rely on
// Chunks(cursor) returning at least n-cursor entries.
type ChunkWaiter interface {
	WaitForChunks(ctx context.Context, ref model.JobRef, cursor int64, timeout time.Duration) (int64, error)
}

// PollingChunkWaiter implements ChunkWaiter by polling the stream length.
type PollingChunkWaiter struct {
	chunks   core.ChunkStore
	interval time.Duration
}

var _ ChunkWaiter = (*PollingChunkWaiter)(nil)

// NewPollingChunkWaiter creates a waiter that checks the stream length every interval.
func NewPollingChunkWaiter(chunks core.ChunkStore, interval time.Duration) *PollingChunkWaiter {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &PollingChunkWaiter{chunks: chunks, interval: interval}
}

// WaitForChunks polls until the stream holds more than cursor chunks or timeout elapses.
func (w *PollingChunkWaiter) WaitForChunks(
	ctx context.Context,
	ref model.JobRef,
	cursor int64,
	timeout time.Duration,
) (int64, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		n, err := w.chunks.ChunkCount(ctx, ref)
		if err != nil {
			return 0, err
		}
		if n > cursor {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-deadline.C:
			return n, nil
		case <-ticker.C:
		}
	}
}

// ChannelNamer resolves the notification topic for a job stream.
type ChannelNamer interface {
	NotifyChannel(ref model.JobRef) string
}

// NotifyingChunkWaiter wakes on stream notifications and keeps polling at a
// slower fallback interval, so a lost notification only delays delivery.
type NotifyingChunkWaiter struct {
	chunks   core.ChunkStore
	channels ChannelNamer
	notifier domainjob.Notifier
	fallback time.Duration
}

var _ ChunkWaiter = (*NotifyingChunkWaiter)(nil)

// NotifyingChunkWaiterOptions configures a NotifyingChunkWaiter.
type NotifyingChunkWaiterOptions struct {
	Chunks   core.ChunkStore
	Channels ChannelNamer
	Notifier domainjob.Notifier
	Fallback time.Duration
}

// NewNotifyingChunkWaiter creates a waiter driven by notifier with a polling fallback.
func NewNotifyingChunkWaiter(opts NotifyingChunkWaiterOptions) *NotifyingChunkWaiter {
	if opts.Fallback <= 0 {
		opts.Fallback = time.Second
	}
	return &NotifyingChunkWaiter{
		chunks:   opts.Chunks,
		channels: opts.Channels,
		notifier: opts.Notifier,
		fallback: opts.Fallback,
	}
}

// WaitForChunks subscribes before reading the length so an append between the
// read and the wait still wakes the caller. A notification for a terminal
// transition may return a length equal to cursor; callers recheck state.
func (w *NotifyingChunkWaiter) WaitForChunks(
	ctx context.Context,
	ref model.JobRef,
	cursor int64,
	timeout time.Duration,
) (int64, error) {
	unsub, notified := w.notifier.Subscribe(w.channels.NotifyChannel(ref))
	defer unsub()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.fallback)
	defer ticker.Stop()

	for {
		n, err := w.chunks.ChunkCount(ctx, ref)
		if err != nil {
			return 0, err
		}
		if n > cursor {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-deadline.C:
			return n, nil
		case _, ok := <-notified:
			if !ok {
				// Notifier stopped; degrade to polling.
				notified = nil
				continue
			}
			n, err = w.chunks.ChunkCount(ctx, ref)
			if err != nil {
				return 0, err
			}
			return n, nil
		case <-ticker.C:
		}
	}
}
