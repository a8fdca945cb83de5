package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainjob "github.com/target/jobstream/internal/domain/job"
	"github.com/target/jobstream/internal/domain/model"
	"github.com/target/jobstream/internal/testutil"
)

func newTestJobStore(t *testing.T) (*JobStore, *miniredis.Miniredis, *FixedTimeProvider) {
	t.Helper()
	mr, client := testutil.NewMiniRedis(t)
	clock := NewFixedTimeProvider(testutil.TestTime())
	store, err := NewJobStore(JobStoreOptions{
		Store:     NewRedisStore(client, DefaultRetryPolicy()),
		Namespace: domainjob.DefaultNamespace(),
		TTL:       time.Hour,
		Clock:     clock,
	})
	require.NoError(t, err)
	return store, mr, clock
}

func newEnvelope(id string) (model.Envelope, model.State) {
	now := testutil.TestTime()
	env := model.Envelope{
		JobID:      id,
		Type:       model.JobTypeChat,
		Payload:    json.RawMessage(`{"message_id":1}`),
		EnqueuedAt: now,
	}
	return env, model.State{Status: model.JobStatusPending, MessageType: string(model.JobTypeChat), CreatedAt: now}
}

// startJob enqueues id and moves it to processing under workerID.
func startJob(t *testing.T, store *JobStore, id, workerID string) model.JobRef {
	t.Helper()
	ctx := context.Background()
	env, state := newEnvelope(id)
	require.NoError(t, store.Enqueue(ctx, env, state))
	_, err := store.Transition(ctx, env.Ref(), model.StatusUpdate{Status: model.JobStatusProcessing, WorkerID: workerID})
	require.NoError(t, err)
	return env.Ref()
}

func TestJobStore_EnqueueWritesStateBeforeQueue(t *testing.T) {
	store, mr, _ := newTestJobStore(t)
	ctx := context.Background()

	env, state := newEnvelope("J1")
	require.NoError(t, store.Enqueue(ctx, env, state))

	got, err := store.State(ctx, env.Ref())
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, "chat", got.MessageType)
	assert.True(t, got.CreatedAt.Equal(testutil.TestTime()))

	stateKey := "message:{chat:J1}:state"
	assert.True(t, mr.Exists(stateKey))
	assert.Equal(t, time.Hour, mr.TTL(stateKey))

	depth, err := store.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	stored, err := store.Envelope(ctx, env.Ref())
	require.NoError(t, err)
	assert.Equal(t, env.JobID, stored.JobID)
	assert.JSONEq(t, string(env.Payload), string(stored.Payload))
}

func TestJobStore_EnqueueDuplicateRejected(t *testing.T) {
	store, _, _ := newTestJobStore(t)
	ctx := context.Background()

	env, state := newEnvelope("J1")
	require.NoError(t, store.Enqueue(ctx, env, state))

	dup := env
	dup.EnqueuedAt = env.EnqueuedAt.Add(time.Second)
	err := store.Enqueue(ctx, dup, state)
	require.ErrorIs(t, err, ErrJobExists)

	depth, err := store.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth, "rejected enqueue must not push a second envelope")
}

func TestJobStore_ClaimAndTimeout(t *testing.T) {
	store, _, _ := newTestJobStore(t)
	ctx := context.Background()

	env, state := newEnvelope("J1")
	require.NoError(t, store.Enqueue(ctx, env, state))

	claimed, err := store.Claim(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "J1", claimed.JobID)
	assert.Equal(t, model.JobTypeChat, claimed.Type)

	_, err = store.Claim(ctx, 100*time.Millisecond)
	require.ErrorIs(t, err, model.ErrQueueEmpty)
}

func TestJobStore_ClaimMalformed(t *testing.T) {
	store, mr, _ := newTestJobStore(t)
	_, err := mr.Push(domainjob.DefaultQueueKey, "not json")
	require.NoError(t, err)

	_, err = store.Claim(context.Background(), 100*time.Millisecond)
	require.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestJobStore_TransitionLifecycle(t *testing.T) {
	store, _, clock := newTestJobStore(t)
	ctx := context.Background()

	env, state := newEnvelope("J1")
	require.NoError(t, store.Enqueue(ctx, env, state))
	ref := env.Ref()

	clock.AddTime(time.Second)
	prev, err := store.Transition(ctx, ref, model.StatusUpdate{Status: model.JobStatusProcessing, WorkerID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, prev)

	// A retried write by the same worker is idempotent.
	prev, err = store.Transition(ctx, ref, model.StatusUpdate{Status: model.JobStatusProcessing, WorkerID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, prev)

	// A second worker cannot claim the same job.
	_, err = store.Transition(ctx, ref, model.StatusUpdate{Status: model.JobStatusProcessing, WorkerID: "w2"})
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = store.Transition(ctx, ref, model.StatusUpdate{Status: model.JobStatusDone, WorkerID: "w1"})
	require.NoError(t, err)

	for _, next := range []model.JobStatus{model.JobStatusPending, model.JobStatusProcessing, model.JobStatusError} {
		_, err = store.Transition(ctx, ref, model.StatusUpdate{Status: next, Error: "late"})
		require.ErrorIs(t, err, model.ErrInvalidTransition, "done -> %s", next)
	}

	got, err := store.State(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, got.Status)
	assert.Empty(t, got.Error)
	assert.Equal(t, "w1", got.WorkerID)
	assert.True(t, got.UpdatedAt.Equal(testutil.TestTime().Add(time.Second)))
}

func TestJobStore_TransitionPendingToError(t *testing.T) {
	store, _, _ := newTestJobStore(t)
	ctx := context.Background()

	env, state := newEnvelope("J2")
	require.NoError(t, store.Enqueue(ctx, env, state))

	_, err := store.Transition(ctx, env.Ref(), model.StatusUpdate{Status: model.JobStatusError, Error: "bad input"})
	require.NoError(t, err)

	got, err := store.State(ctx, env.Ref())
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, got.Status)
	assert.Equal(t, "bad input", got.Error)
}

func TestJobStore_TransitionUnknownJob(t *testing.T) {
	store, _, _ := newTestJobStore(t)
	ref := model.JobRef{Type: model.JobTypeChat, ID: "missing"}

	_, err := store.Transition(context.Background(), ref, model.StatusUpdate{Status: model.JobStatusProcessing})
	require.ErrorIs(t, err, model.ErrJobNotFound)

	_, err = store.State(context.Background(), ref)
	require.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestJobStore_AppendChunkPrefixOrder(t *testing.T) {
	store, mr, _ := newTestJobStore(t)
	ctx := context.Background()
	ref := startJob(t, store, "J1", "w1")

	var appended []string
	for i := range 20 {
		chunk := fmt.Sprintf("chunk-%02d", i)
		require.NoError(t, store.AppendChunk(ctx, ref, "w1", int64(i), chunk))
		appended = append(appended, chunk)

		got, err := store.Chunks(ctx, ref, 0)
		require.NoError(t, err)
		require.Equal(t, appended, got, "stream must equal the appended prefix")
	}

	tail, err := store.Chunks(ctx, ref, 18)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk-18", "chunk-19"}, tail)

	n, err := store.ChunkCount(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)
	assert.Equal(t, time.Hour, mr.TTL("message:{chat:J1}:stream"))
}

func TestJobStore_AppendChunkIdempotentAndGapGuarded(t *testing.T) {
	store, _, _ := newTestJobStore(t)
	ctx := context.Background()
	ref := startJob(t, store, "J1", "w1")

	require.NoError(t, store.AppendChunk(ctx, ref, "w1", 0, "Hello"))
	// Replaying index 0 (a retried append) must not duplicate the chunk.
	require.NoError(t, store.AppendChunk(ctx, ref, "w1", 0, "Hello"))
	require.ErrorIs(t, store.AppendChunk(ctx, ref, "w1", 0, "Howdy"), ErrChunkConflict)
	require.ErrorIs(t, store.AppendChunk(ctx, ref, "w1", 5, "gap"), ErrChunkGap)
	require.NoError(t, store.AppendChunk(ctx, ref, "w1", 1, " world"))

	got, err := store.Chunks(ctx, ref, 0)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", strings.Join(got, ""))
}

func TestJobStore_AppendChunkFencedToOwner(t *testing.T) {
	store, mr, _ := newTestJobStore(t)
	ctx := context.Background()

	t.Run("missing state", func(t *testing.T) {
		ref := model.JobRef{Type: model.JobTypeChat, ID: "ghost"}
		require.ErrorIs(t, store.AppendChunk(ctx, ref, "w1", 0, "x"), model.ErrJobNotFound)
		assert.False(t, mr.Exists("message:{chat:ghost}:stream"))
	})

	t.Run("pending job", func(t *testing.T) {
		env, state := newEnvelope("P1")
		require.NoError(t, store.Enqueue(ctx, env, state))
		require.ErrorIs(t, store.AppendChunk(ctx, env.Ref(), "w1", 0, "x"), model.ErrNotJobOwner)
	})

	t.Run("other worker", func(t *testing.T) {
		ref := startJob(t, store, "O1", "w1")
		require.ErrorIs(t, store.AppendChunk(ctx, ref, "w2", 0, "x"), model.ErrNotJobOwner)
		n, err := store.ChunkCount(ctx, ref)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("terminal job", func(t *testing.T) {
		ref := startJob(t, store, "T1", "w1")
		require.NoError(t, store.AppendChunk(ctx, ref, "w1", 0, "a"))
		_, err := store.Transition(ctx, ref, model.StatusUpdate{Status: model.JobStatusDone, WorkerID: "w1"})
		require.NoError(t, err)

		require.ErrorIs(t, store.AppendChunk(ctx, ref, "w1", 1, "b"), model.ErrJobFinished)
		got, err := store.Chunks(ctx, ref, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, got)
	})
}

func TestJobStore_FailAppendsLastChunkAtomically(t *testing.T) {
	store, mr, _ := newTestJobStore(t)
	ctx := context.Background()
	ref := startJob(t, store, "J1", "w1")
	require.NoError(t, store.AppendChunk(ctx, ref, "w1", 0, "partial"))

	_, _, err := store.Fail(ctx, ref, "w2", "boom", "Error: boom")
	require.ErrorIs(t, err, model.ErrNotJobOwner)

	prev, chunks, err := store.Fail(ctx, ref, "w1", "boom", "Error: boom")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, prev)
	assert.Equal(t, int64(1), chunks)

	st, err := store.State(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, st.Status)
	assert.Equal(t, "boom", st.Error)

	// A second failure, from anyone, never adds a chunk after the terminal state.
	_, _, err = store.Fail(ctx, ref, "", "again", "Error: again")
	require.ErrorIs(t, err, model.ErrJobFinished)
	got, err := store.Chunks(ctx, ref, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"partial", "Error: boom"}, got)
	assert.Equal(t, time.Hour, mr.TTL("message:{chat:J1}:stream"))

	_, _, err = store.Fail(ctx, model.JobRef{Type: model.JobTypeChat, ID: "ghost"}, "", "x", "Error: x")
	require.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestJobStore_FailPendingJobWithoutOwner(t *testing.T) {
	store, _, _ := newTestJobStore(t)
	ctx := context.Background()
	env, state := newEnvelope("J1")
	require.NoError(t, store.Enqueue(ctx, env, state))

	// A pending job has no owner yet, so any worker may fail it.
	prev, chunks, err := store.Fail(ctx, env.Ref(), "w1", "no executor", "Error: no executor")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, prev)
	assert.Zero(t, chunks)
}

func TestJobStore_Leases(t *testing.T) {
	store, mr, clock := newTestJobStore(t)
	ctx := context.Background()
	ref := model.JobRef{Type: model.JobTypeChat, ID: "J1"}

	require.NoError(t, store.AcquireLease(ctx, ref, "w1", 30*time.Second))
	held, err := store.LeaseHeld(ctx, ref)
	require.NoError(t, err)
	assert.True(t, held)

	ok, err := store.RenewLease(ctx, ref, "w2", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "another worker cannot renew")

	expired, err := store.ExpiredClaims(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, expired)

	clock.AddTime(31 * time.Second)
	expired, err = store.ExpiredClaims(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []model.JobRef{ref}, expired)

	// Renewal pushes the deadline forward again.
	ok, err = store.RenewLease(ctx, ref, "w1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	expired, err = store.ExpiredClaims(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, expired)

	require.NoError(t, store.ReleaseLease(ctx, ref, "w1"))
	held, err = store.LeaseHeld(ctx, ref)
	require.NoError(t, err)
	assert.False(t, held)
	assert.False(t, mr.Exists(domainjob.DefaultProcessingKey))
}

func TestJobStore_ExpiredClaimsDropsMalformedMembers(t *testing.T) {
	store, mr, _ := newTestJobStore(t)
	_, err := mr.ZAdd(domainjob.DefaultProcessingKey, 0, "garbage")
	require.NoError(t, err)

	refs, err := store.ExpiredClaims(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.False(t, mr.Exists(domainjob.DefaultProcessingKey))
}

func TestJobStore_AppendChunkNotifiesSubscribers(t *testing.T) {
	store, _, _ := newTestJobStore(t)
	ctx := context.Background()
	ref := startJob(t, store, "J1", "w1")
	assert.Equal(t, "message:{chat:J1}:notify", store.NotifyChannel(ref))

	notifier, err := domainjob.NewNotifier(domainjob.NotifierOptions{Listener: store})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe(store.NotifyChannel(ref))
	defer unsub()

	// The first signal confirms the subscription is live.
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a signal once subscribed")
	}

	// Every append lands on the same long-lived subscription.
	for i := range int64(3) {
		require.NoError(t, store.AppendChunk(ctx, ref, "w1", i, fmt.Sprintf("c%d", i)))
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected a notification for chunk %d", i)
		}
	}
}

func TestJobStore_ListenHonoursContext(t *testing.T) {
	store, _, _ := newTestJobStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	ready := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- store.Listen(ctx, "message:{chat:quiet}:notify", func() { ready <- struct{}{} }, func() {})
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was never confirmed")
	}
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancellation")
	}
}
