package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	domainjob "github.com/target/jobstream/internal/domain/job"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

// State hash fields.
const (
	fieldStatus       = "status"
	fieldMessageType  = "message_type"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
	fieldError        = "error"
	fieldWorkerID     = "worker_id"
	fieldEnvelope     = "envelope"
	fieldEnqueueToken = "enqueue_token"
)

// Scripts only touch keys of one job, which share a hash tag, so the store
// also works against Redis Cluster.
var (
	// createStateScript creates the state hash unless it exists and returns the
	// enqueue token stored on it. A retried call with the same token is a no-op.
	createStateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.call('HGET', KEYS[1], 'enqueue_token') or ''
end
redis.call('HSET', KEYS[1], 'enqueue_token', ARGV[1], unpack(ARGV, 3))
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return ARGV[1]
`)

	// transitionScript applies a status write only when the current status is in
	// the allowed set (ARGV[6..]). Replies {code, current}: 0 missing, 1 applied,
	// 2 rejected, 3 already applied by the same worker.
	transitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then return {0, ''} end
if cur == ARGV[1] and ARGV[5] ~= '' and redis.call('HGET', KEYS[1], 'worker_id') == ARGV[5] then
  return {3, cur}
end
for i = 6, #ARGV do
  if cur == ARGV[i] then
    redis.call('HSET', KEYS[1], 'status', ARGV[1], 'updated_at', ARGV[3])
    if ARGV[4] ~= '' then redis.call('HSET', KEYS[1], 'error', ARGV[4]) end
    if ARGV[5] ~= '' then redis.call('HSET', KEYS[1], 'worker_id', ARGV[5]) end
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
    return {1, cur}
  end
end
return {2, cur}
`)

	// appendChunkScript appends ARGV[2] at index ARGV[1] of the stream KEYS[2]
	// while the state KEYS[1] is processing and owned by ARGV[4]. A retried
	// append of the same chunk is a no-op. Replies are the new stream length or
	// a negative code: -1 gap, -2 missing, -3 terminal, -4 not owner, -5 conflict.
	appendChunkScript = redis.NewScript(`
local st = redis.call('HGET', KEYS[1], 'status')
if not st then return -2 end
if st == 'done' or st == 'error' then return -3 end
if st ~= 'processing' or redis.call('HGET', KEYS[1], 'worker_id') ~= ARGV[4] then return -4 end
local n = redis.call('LLEN', KEYS[2])
local idx = tonumber(ARGV[1])
if n == idx then
  redis.call('RPUSH', KEYS[2], ARGV[2])
  n = n + 1
elseif n < idx then
  return -1
elseif redis.call('LINDEX', KEYS[2], idx) ~= ARGV[2] then
  return -5
end
redis.call('PEXPIRE', KEYS[2], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return n
`)

	// failScript appends the error chunk ARGV[1] and moves the job to error in
	// one step, so nothing can follow it on the stream. A non-empty ARGV[5]
	// fences the write to that worker once the job is processing. Replies
	// {code, previous, chunks}: 0 missing, 1 applied, 2 terminal, 4 not owner.
	failScript = redis.NewScript(`
local st = redis.call('HGET', KEYS[1], 'status')
if not st then return {0, '', 0} end
if st == 'done' or st == 'error' then return {2, st, 0} end
if st == 'processing' and ARGV[5] ~= '' and redis.call('HGET', KEYS[1], 'worker_id') ~= ARGV[5] then
  return {4, st, 0}
end
local n = redis.call('LLEN', KEYS[2])
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'status', 'error', 'error', ARGV[2], 'updated_at', ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {1, st, n}
`)

	renewLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

	releaseLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
)

// JobStoreOptions configures a JobStore.
type JobStoreOptions struct {
	Store         *RedisStore
	Namespace     domainjob.Namespace
	QueueKey      string
	ProcessingKey string
	TTL           time.Duration
	Clock         TimeProvider
}

// JobStore persists envelopes, lifecycle state, chunk streams and claim leases in Redis.
type JobStore struct {
	store         *RedisStore
	ns            domainjob.Namespace
	queueKey      string
	processingKey string
	ttl           time.Duration
	clock         TimeProvider
}

// NewJobStore creates a JobStore with defaults applied.
func NewJobStore(opts JobStoreOptions) (*JobStore, error) {
	if opts.Store == nil {
		return nil, errors.New("RedisStore is required")
	}
	if opts.QueueKey == "" {
		opts.QueueKey = domainjob.DefaultQueueKey
	}
	if opts.ProcessingKey == "" {
		opts.ProcessingKey = domainjob.DefaultProcessingKey
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = RealTimeProvider{}
	}
	return &JobStore{
		store:         opts.Store,
		ns:            opts.Namespace,
		queueKey:      opts.QueueKey,
		processingKey: opts.ProcessingKey,
		ttl:           opts.TTL,
		clock:         opts.Clock,
	}, nil
}

// Now returns the store clock's current time.
func (s *JobStore) Now() time.Time {
	return s.clock.Now()
}

// TTL returns the retention window applied to state and stream keys.
func (s *JobStore) TTL() time.Duration {
	return s.ttl
}

// Enqueue writes the initial state record and then pushes the envelope, so a
// worker can never observe an envelope without state. It returns ErrJobExists
// when the id is already in use.
func (s *JobStore) Enqueue(ctx context.Context, env model.Envelope, state model.State) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	ref := env.Ref()
	token := env.JobID + "@" + strconv.FormatInt(env.EnqueuedAt.UnixNano(), 10)

	args := []any{
		token,
		s.ttl.Milliseconds(),
		fieldStatus, string(state.Status),
		fieldMessageType, state.MessageType,
		fieldCreatedAt, formatStateTime(state.CreatedAt),
		fieldUpdatedAt, formatStateTime(state.CreatedAt),
		fieldEnvelope, string(raw),
	}

	var got string
	err = s.store.retry.Do(ctx, "create state", func(ctx context.Context) error {
		var err error
		got, err = createStateScript.Run(ctx, s.store.client, []string{s.ns.StateKey(ref)}, args...).Text()
		return err
	})
	if err != nil {
		return err
	}
	if got != token {
		return apperrors.Wrapf(ErrJobExists, apperrors.ErrCodeConflict, "job %s", ref)
	}

	if err := s.store.PushQueue(ctx, s.queueKey, string(raw)); err != nil {
		// Best effort: do not leave a pending record that no worker will ever claim.
		_, _ = s.Transition(context.WithoutCancel(ctx), ref, model.StatusUpdate{
			Status: model.JobStatusError,
			Error:  "enqueue failed: " + err.Error(),
		})
		return err
	}
	return nil
}

// Claim blocks up to timeout for the next envelope. It returns model.ErrQueueEmpty
// on timeout and ErrMalformedEnvelope for entries that cannot be decoded.
func (s *JobStore) Claim(ctx context.Context, timeout time.Duration) (model.Envelope, error) {
	raw, err := s.store.BlockingPop(ctx, s.queueKey, timeout)
	if err != nil {
		return model.Envelope{}, err
	}
	var env model.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return model.Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if env.JobID == "" || !env.Type.Valid() {
		return model.Envelope{}, fmt.Errorf("%w: missing job id or type", ErrMalformedEnvelope)
	}
	return env, nil
}

// QueueDepth returns the number of envelopes waiting to be claimed.
func (s *JobStore) QueueDepth(ctx context.Context) (int64, error) {
	return s.store.ListLength(ctx, s.queueKey)
}

// ProcessingCount returns the number of claims currently indexed by lease deadline.
func (s *JobStore) ProcessingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.retry.Do(ctx, "zcard", func(ctx context.Context) error {
		var err error
		n, err = s.store.client.ZCard(ctx, s.processingKey).Result()
		return err
	})
	return n, err
}

// Transition applies a lifecycle write if the current status allows it and
// returns the status it replaced. It returns model.ErrJobNotFound when no state
// exists and model.ErrInvalidTransition when the lifecycle forbids the move.
func (s *JobStore) Transition(ctx context.Context, ref model.JobRef, upd model.StatusUpdate) (model.JobStatus, error) {
	if !upd.Status.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", model.ErrInvalidTransition, upd.Status)
	}

	args := []any{
		string(upd.Status),
		s.ttl.Milliseconds(),
		formatStateTime(s.clock.Now()),
		upd.Error,
		upd.WorkerID,
	}
	for _, from := range []model.JobStatus{
		model.JobStatusPending, model.JobStatusProcessing, model.JobStatusDone, model.JobStatusError,
	} {
		if from.CanTransition(upd.Status) {
			args = append(args, string(from))
		}
	}

	var reply []any
	err := s.store.retry.Do(ctx, "transition", func(ctx context.Context) error {
		var err error
		reply, err = transitionScript.Run(ctx, s.store.client, []string{s.ns.StateKey(ref)}, args...).Slice()
		return err
	})
	if err != nil {
		return "", err
	}
	if len(reply) != 2 {
		return "", fmt.Errorf("transition %s: unexpected reply %v", ref, reply)
	}

	code, _ := reply[0].(int64)
	current, _ := reply[1].(string)
	prev := model.JobStatus(current)
	switch code {
	case 0:
		return "", fmt.Errorf("%w: %s", model.ErrJobNotFound, ref)
	case 1, 3:
		if code == 1 && upd.Status.Terminal() {
			s.publish(ctx, ref)
		}
		return prev, nil
	default:
		return prev, fmt.Errorf("%w: %s %s -> %s", model.ErrInvalidTransition, ref, prev, upd.Status)
	}
}

// State returns the lifecycle record for ref or model.ErrJobNotFound.
func (s *JobStore) State(ctx context.Context, ref model.JobRef) (model.State, error) {
	fields, err := s.store.HashGetAll(ctx, s.ns.StateKey(ref))
	if err != nil {
		return model.State{}, err
	}
	if len(fields) == 0 || fields[fieldStatus] == "" {
		return model.State{}, fmt.Errorf("%w: %s", model.ErrJobNotFound, ref)
	}
	return model.State{
		Status:      model.JobStatus(fields[fieldStatus]),
		MessageType: fields[fieldMessageType],
		CreatedAt:   parseStateTime(fields[fieldCreatedAt]),
		UpdatedAt:   parseStateTime(fields[fieldUpdatedAt]),
		Error:       fields[fieldError],
		WorkerID:    fields[fieldWorkerID],
	}, nil
}

// Envelope returns the envelope copy kept on the state record.
func (s *JobStore) Envelope(ctx context.Context, ref model.JobRef) (model.Envelope, error) {
	fields, err := s.store.HashGetAll(ctx, s.ns.StateKey(ref))
	if err != nil {
		return model.Envelope{}, err
	}
	raw, ok := fields[fieldEnvelope]
	if !ok {
		return model.Envelope{}, fmt.Errorf("%w: %s", model.ErrJobNotFound, ref)
	}
	var env model.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return model.Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return env, nil
}

// AppendChunk stores chunk at position index of the job's stream on behalf of
// workerID. Appends are idempotent per index. It returns ErrChunkGap for an
// index past the end, ErrChunkConflict when the index holds other content,
// model.ErrJobFinished once the job is terminal and model.ErrNotJobOwner when
// another worker holds the job.
func (s *JobStore) AppendChunk(ctx context.Context, ref model.JobRef, workerID string, index int64, chunk string) error {
	var n int64
	err := s.store.retry.Do(ctx, "append chunk", func(ctx context.Context) error {
		var err error
		n, err = appendChunkScript.Run(ctx, s.store.client,
			[]string{s.ns.StateKey(ref), s.ns.StreamKey(ref)},
			index, chunk, s.ttl.Milliseconds(), workerID).Int64()
		return err
	})
	if err != nil {
		return err
	}
	switch n {
	case -1:
		return fmt.Errorf("%w: %s index %d", ErrChunkGap, ref, index)
	case -2:
		return fmt.Errorf("%w: %s", model.ErrJobNotFound, ref)
	case -3:
		return fmt.Errorf("%w: %s", model.ErrJobFinished, ref)
	case -4:
		return fmt.Errorf("%w: %s is not held by %s", model.ErrNotJobOwner, ref, workerID)
	case -5:
		return fmt.Errorf("%w: %s index %d", ErrChunkConflict, ref, index)
	}
	s.publish(ctx, ref)
	return nil
}

// Fail appends chunk as the final stream entry and moves the job to error in
// one atomic write. When workerID is set, a processing job must be held by it.
// It returns the replaced status and the number of chunks preceding chunk, or
// model.ErrJobFinished when the job already ended.
func (s *JobStore) Fail(ctx context.Context, ref model.JobRef, workerID, message, chunk string) (model.JobStatus, int64, error) {
	var reply []any
	err := s.store.retry.Do(ctx, "fail job", func(ctx context.Context) error {
		var err error
		reply, err = failScript.Run(ctx, s.store.client,
			[]string{s.ns.StateKey(ref), s.ns.StreamKey(ref)},
			chunk, message, formatStateTime(s.clock.Now()), s.ttl.Milliseconds(), workerID).Slice()
		return err
	})
	if err != nil {
		return "", 0, err
	}
	if len(reply) != 3 {
		return "", 0, fmt.Errorf("fail %s: unexpected reply %v", ref, reply)
	}

	code, _ := reply[0].(int64)
	current, _ := reply[1].(string)
	chunks, _ := reply[2].(int64)
	prev := model.JobStatus(current)
	switch code {
	case 0:
		return "", 0, fmt.Errorf("%w: %s", model.ErrJobNotFound, ref)
	case 1:
		s.publish(ctx, ref)
		return prev, chunks, nil
	case 2:
		return prev, 0, fmt.Errorf("%w: %s is %s", model.ErrJobFinished, ref, prev)
	default:
		return prev, 0, fmt.Errorf("%w: %s is not held by %s", model.ErrNotJobOwner, ref, workerID)
	}
}

// NotifyChannel returns the pub/sub channel signalled when ref's stream grows or ends.
func (s *JobStore) NotifyChannel(ref model.JobRef) string {
	return s.ns.NotifyChannel(ref)
}

// publish signals live observers. Observers also poll, so a lost publish only adds latency.
func (s *JobStore) publish(ctx context.Context, ref model.JobRef) {
	_ = s.store.client.Publish(ctx, s.ns.NotifyChannel(ref), "1").Err()
}

// Listen holds one SUBSCRIBE on topic until ctx ends or the connection fails.
// ready runs on every subscription confirmation and onSignal on every message.
func (s *JobStore) Listen(ctx context.Context, topic string, ready, onSignal func()) error {
	sub := s.store.client.Subscribe(ctx, topic)
	// Receive does not observe cancellation on its own; closing unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	defer func() {
		stop()
		_ = sub.Close()
	}()

	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		switch msg.(type) {
		case *redis.Subscription:
			ready()
		case *redis.Message:
			onSignal()
		}
	}
}

// Chunks returns the chunks from index from (inclusive) to the end of the stream.
func (s *JobStore) Chunks(ctx context.Context, ref model.JobRef, from int64) ([]string, error) {
	if from < 0 {
		from = 0
	}
	return s.store.ListRange(ctx, s.ns.StreamKey(ref), from, -1)
}

// ChunkCount returns the number of chunks appended so far.
func (s *JobStore) ChunkCount(ctx context.Context, ref model.JobRef) (int64, error) {
	return s.store.ListLength(ctx, s.ns.StreamKey(ref))
}

// AcquireLease records workerID as the claim holder and indexes the claim by deadline.
func (s *JobStore) AcquireLease(ctx context.Context, ref model.JobRef, workerID string, lease time.Duration) error {
	deadline := s.clock.Now().Add(lease)
	return s.store.retry.Do(ctx, "acquire lease", func(ctx context.Context) error {
		if err := s.store.client.Set(ctx, s.ns.LeaseKey(ref), workerID, lease).Err(); err != nil {
			return err
		}
		return s.store.client.ZAdd(ctx, s.processingKey, redis.Z{
			Score:  float64(deadline.UnixMilli()),
			Member: ref.String(),
		}).Err()
	})
}

// RenewLease extends the lease if workerID still holds it. It reports false when the lease was lost.
func (s *JobStore) RenewLease(ctx context.Context, ref model.JobRef, workerID string, lease time.Duration) (bool, error) {
	var held int64
	err := s.store.retry.Do(ctx, "renew lease", func(ctx context.Context) error {
		var err error
		held, err = renewLeaseScript.Run(ctx, s.store.client,
			[]string{s.ns.LeaseKey(ref)}, workerID, lease.Milliseconds()).Int64()
		return err
	})
	if err != nil || held == 0 {
		return false, err
	}
	deadline := s.clock.Now().Add(lease)
	err = s.store.retry.Do(ctx, "index lease", func(ctx context.Context) error {
		return s.store.client.ZAddXX(ctx, s.processingKey, redis.Z{
			Score:  float64(deadline.UnixMilli()),
			Member: ref.String(),
		}).Err()
	})
	return err == nil, err
}

// ReleaseLease drops the lease held by workerID and removes the claim from the index.
func (s *JobStore) ReleaseLease(ctx context.Context, ref model.JobRef, workerID string) error {
	return s.store.retry.Do(ctx, "release lease", func(ctx context.Context) error {
		if err := releaseLeaseScript.Run(ctx, s.store.client, []string{s.ns.LeaseKey(ref)}, workerID).Err(); err != nil &&
			!errors.Is(err, redis.Nil) {
			return err
		}
		return s.store.client.ZRem(ctx, s.processingKey, ref.String()).Err()
	})
}

// LeaseHeld reports whether any worker currently holds a lease on ref.
func (s *JobStore) LeaseHeld(ctx context.Context, ref model.JobRef) (bool, error) {
	return s.store.Exists(ctx, s.ns.LeaseKey(ref))
}

// ExpiredClaims returns up to limit claims whose lease deadline has passed.
// Malformed index members are dropped from the index.
func (s *JobStore) ExpiredClaims(ctx context.Context, limit int) ([]model.JobRef, error) {
	now := s.clock.Now().UnixMilli()
	var members []string
	err := s.store.retry.Do(ctx, "expired claims", func(ctx context.Context) error {
		var err error
		members, err = s.store.client.ZRangeByScore(ctx, s.processingKey, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(now, 10),
			Count: int64(limit),
		}).Result()
		return err
	})
	if err != nil {
		return nil, err
	}

	refs := make([]model.JobRef, 0, len(members))
	for _, m := range members {
		ref, perr := model.ParseJobRef(m)
		if perr != nil {
			_ = s.store.client.ZRem(ctx, s.processingKey, m).Err()
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ForgetClaim removes ref from the claim index.
func (s *JobStore) ForgetClaim(ctx context.Context, ref model.JobRef) error {
	return s.store.retry.Do(ctx, "forget claim", func(ctx context.Context) error {
		return s.store.client.ZRem(ctx, s.processingKey, ref.String()).Err()
	})
}
