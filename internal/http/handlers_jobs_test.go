package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/jobstream/internal/data"
	domainjob "github.com/target/jobstream/internal/domain/job"
	"github.com/target/jobstream/internal/domain/model"
	"github.com/target/jobstream/internal/service"
	"github.com/target/jobstream/internal/testutil"
)

type jobsFixture struct {
	store   *data.JobStore
	handler http.Handler
}

func newJobsFixture(t *testing.T) *jobsFixture {
	t.Helper()
	return newJobsFixtureWithGrace(t, 0)
}

func newJobsFixtureWithGrace(t *testing.T, grace time.Duration) *jobsFixture {
	t.Helper()
	_, client := testutil.NewMiniRedis(t)
	store, err := data.NewJobStore(data.JobStoreOptions{
		Store:     data.NewRedisStore(client, data.DefaultRetryPolicy()),
		Namespace: domainjob.DefaultNamespace(),
		TTL:       time.Hour,
		Clock:     data.RealTimeProvider{},
	})
	require.NoError(t, err)

	producer := service.MustNewProducerService(service.ProducerServiceOptions{Queue: store})
	delivery, err := service.NewDeliveryService(service.DeliveryServiceOptions{
		Store:        store,
		PollInterval: 10 * time.Millisecond,
		WaitTimeout:  50 * time.Millisecond,
		AttachGrace:  grace,
	})
	require.NoError(t, err)

	h := NewRouter(RouterServices{Producer: producer, Delivery: delivery})
	return &jobsFixture{store: store, handler: h}
}

func (f *jobsFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func (f *jobsFixture) seed(t *testing.T, id string) model.JobRef {
	t.Helper()
	w := f.do(t, http.MethodPost, "/jobs", `{"job_type":"chat","job_id":"`+id+`","payload":{"message_id":7,"prompt":"hi"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return model.JobRef{Type: model.JobTypeChat, ID: id}
}

func (f *jobsFixture) start(t *testing.T, ref model.JobRef) {
	t.Helper()
	_, err := f.store.Transition(context.Background(), ref, model.StatusUpdate{
		Status:   model.JobStatusProcessing,
		WorkerID: "worker-test",
	})
	require.NoError(t, err)
}

func (f *jobsFixture) appendChunks(t *testing.T, ref model.JobRef, from int64, chunks ...string) {
	t.Helper()
	for i, c := range chunks {
		require.NoError(t, f.store.AppendChunk(context.Background(), ref, "worker-test", from+int64(i), c))
	}
}

func (f *jobsFixture) finish(t *testing.T, ref model.JobRef, status model.JobStatus, msg string) {
	t.Helper()
	_, err := f.store.Transition(context.Background(), ref, model.StatusUpdate{Status: status, Error: msg})
	require.NoError(t, err)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestCreateJob_Success(t *testing.T) {
	f := newJobsFixture(t)

	w := f.do(t, http.MethodPost, "/jobs", `{"job_type":"chat","payload":{"message_id":7,"prompt":"hello"}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got createJobResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.NotEmpty(t, got.JobID)
	assert.Equal(t, model.JobTypeChat, got.JobType)
	assert.Equal(t, model.JobStatusPending, got.Status)

	st, err := f.store.State(context.Background(), model.JobRef{Type: model.JobTypeChat, ID: got.JobID})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, st.Status)
}

func TestCreateJob_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		errCode string
	}{
		{name: "invalid json", body: "{bad", status: http.StatusBadRequest, errCode: "invalid_json"},
		{name: "unknown field", body: `{"job_type":"chat","extra":1}`, status: http.StatusBadRequest, errCode: "invalid_json"},
		{name: "unknown type", body: `{"job_type":"fax","payload":{}}`, status: http.StatusBadRequest, errCode: "invalid_json"},
		{name: "missing type", body: `{"payload":{"message_id":1}}`, status: http.StatusBadRequest, errCode: "validation"},
		{name: "missing message id", body: `{"job_type":"chat","payload":{"prompt":"x"}}`, status: http.StatusBadRequest, errCode: "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newJobsFixture(t)
			w := f.do(t, http.MethodPost, "/jobs", tt.body)
			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.errCode, decodeError(t, w).Error)

			depth, err := f.store.QueueDepth(context.Background())
			require.NoError(t, err)
			assert.Zero(t, depth)
		})
	}
}

func TestCreateJob_DuplicateID(t *testing.T) {
	f := newJobsFixture(t)
	f.seed(t, "J1")

	w := f.do(t, http.MethodPost, "/jobs", `{"job_type":"chat","job_id":"J1","payload":{"message_id":7}}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decodeError(t, w).Error)
}

func TestResult(t *testing.T) {
	f := newJobsFixture(t)
	ref := f.seed(t, "J1")

	w := f.do(t, http.MethodGet, "/jobs/J1/result?type=chat", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	f.start(t, ref)
	f.appendChunks(t, ref, 0, "Hello", " world")
	f.finish(t, ref, model.JobStatusDone, "")

	w = f.do(t, http.MethodGet, "/jobs/J1/result", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res service.JobResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, service.JobResult{
		JobID:   "J1",
		JobType: model.JobTypeChat,
		Status:  model.JobStatusDone,
		Text:    "Hello world",
		Chunks:  2,
	}, res)
}

func TestResult_NotFound(t *testing.T) {
	f := newJobsFixture(t)
	w := f.do(t, http.MethodGet, "/jobs/nope/result", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Error)
}

func TestResult_RejectsNonStreamingType(t *testing.T) {
	f := newJobsFixture(t)
	w := f.do(t, http.MethodGet, "/jobs/J1/result?type=so_validation", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "type", decodeError(t, w).Field)
}

func TestStream_ReplaysFinishedJob(t *testing.T) {
	f := newJobsFixture(t)
	ref := f.seed(t, "J1")
	f.start(t, ref)
	f.appendChunks(t, ref, 0, "Hello", " world")
	f.finish(t, ref, model.JobStatusDone, "")

	w := f.do(t, http.MethodGet, "/jobs/J1/stream?type=chat", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t,
		"id: 0\nevent: message\ndata: Hello\n\n"+
			"id: 1\nevent: message\ndata:  world\n\n"+
			"event: done\ndata: Stream finished\n\n",
		w.Body.String())
}

func TestStream_ErrorEventCarriesMessage(t *testing.T) {
	f := newJobsFixture(t)
	ref := f.seed(t, "J2")
	f.start(t, ref)
	f.appendChunks(t, ref, 0, "partial", "Error: bad input")
	f.finish(t, ref, model.JobStatusError, "bad input")

	w := f.do(t, http.MethodGet, "/jobs/J2/stream?cursor=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		"id: 1\nevent: message\ndata: Error: bad input\n\n"+
			"event: error\ndata: bad input\n\n",
		w.Body.String())
}

func TestStream_MultilineChunkAndLastEventID(t *testing.T) {
	f := newJobsFixture(t)
	ref := f.seed(t, "J3")
	f.start(t, ref)
	f.appendChunks(t, ref, 0, "first", "line one\r\nline two")
	f.finish(t, ref, model.JobStatusDone, "")

	r := httptest.NewRequest(http.MethodGet, "/jobs/J3/stream", nil)
	r.Header.Set("Last-Event-ID", "0")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		"id: 1\nevent: message\ndata: line one\ndata: line two\n\n"+
			"event: done\ndata: Stream finished\n\n",
		w.Body.String())
}

func TestStream_UnknownJobIs404BeforeHeaders(t *testing.T) {
	f := newJobsFixture(t)
	w := f.do(t, http.MethodGet, "/jobs/missing/stream", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotContains(t, w.Body.String(), "event:")
}

func TestStream_FollowsLiveJob(t *testing.T) {
	f := newJobsFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ref := f.seed(t, "J1")
	f.start(t, ref)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/jobs/J1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	go func() {
		time.Sleep(30 * time.Millisecond)
		f.appendChunks(t, ref, 0, "Hello")
		time.Sleep(30 * time.Millisecond)
		f.appendChunks(t, ref, 1, " world")
		f.finish(t, ref, model.JobStatusDone, "")
	}()

	var events, data []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			events = append(events, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
		if len(events) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"message", "message", "done"}, events)
	assert.Equal(t, []string{"Hello", " world", streamFinishedData}, data)
}

func TestStream_ObserverAttachedBeforeEnqueue(t *testing.T) {
	f := newJobsFixtureWithGrace(t, 3*time.Second)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/jobs/J1/stream", nil)
	require.NoError(t, err)

	type result struct {
		resp *http.Response
		err  error
	}
	respCh := make(chan result, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		respCh <- result{resp, err}
	}()

	// The job does not exist yet when the observer connects.
	time.Sleep(50 * time.Millisecond)
	ref := f.seed(t, "J1")
	f.start(t, ref)
	f.appendChunks(t, ref, 0, "Hello", " world")
	f.finish(t, ref, model.JobStatusDone, "")

	var res result
	select {
	case res = <-respCh:
	case <-ctx.Done():
		t.Fatal("observer never attached")
	}
	require.NoError(t, res.err)
	defer res.resp.Body.Close()
	require.Equal(t, http.StatusOK, res.resp.StatusCode)

	var events, data []string
	sc := bufio.NewScanner(res.resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			events = append(events, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, []string{"message", "message", "done"}, events)
	assert.Equal(t, []string{"Hello", " world", streamFinishedData}, data)
}

func TestResult_NeverWaitsForMissingJob(t *testing.T) {
	f := newJobsFixtureWithGrace(t, 3*time.Second)
	start := time.Now()
	w := f.do(t, http.MethodGet, "/jobs/late/result", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStreamWebSocket(t *testing.T) {
	f := newJobsFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ref := f.seed(t, "J1")
	f.start(t, ref)
	f.appendChunks(t, ref, 0, "Hello")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/jobs/J1/ws?type=chat"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	go func() {
		time.Sleep(30 * time.Millisecond)
		f.appendChunks(t, ref, 1, " world")
		f.finish(t, ref, model.JobStatusDone, "")
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got []service.DeliveryEvent
	for len(got) < 3 {
		var ev service.DeliveryEvent
		require.NoError(t, conn.ReadJSON(&ev))
		got = append(got, ev)
	}
	assert.Equal(t, []service.DeliveryEvent{
		{Kind: service.EventMessage, Index: 0, Data: "Hello"},
		{Kind: service.EventMessage, Index: 1, Data: " world"},
		{Kind: service.EventDone, Index: 2},
	}, got)

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}

func TestStreamWebSocket_UnknownJob(t *testing.T) {
	f := newJobsFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/jobs/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSSEWriter_Ping(t *testing.T) {
	w := httptest.NewRecorder()
	sw := newSSEWriter(w)
	require.NoError(t, sw.open())
	require.NoError(t, sw.ping())
	assert.Equal(t, ": keepalive\n\n", w.Body.String())
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
}

func TestStartKeepAlive(t *testing.T) {
	pings := make(chan struct{}, 10)
	stop := startKeepAlive(context.Background(), 5*time.Millisecond, func() error {
		pings <- struct{}{}
		return nil
	})
	select {
	case <-pings:
	case <-time.After(time.Second):
		t.Fatal("expected a keepalive ping")
	}
	stop()

	// A zero interval never pings.
	startKeepAlive(context.Background(), 0, func() error {
		t.Fatal("unexpected ping")
		return nil
	})()
}

func TestRecoverMiddleware(t *testing.T) {
	var logs bytes.Buffer
	h := Recover(newTestLogger(&logs))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, logs.String(), "boom")
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	var logs bytes.Buffer
	h := Logging(newTestLogger(&logs))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))
	assert.Contains(t, logs.String(), `"status":418`)
	assert.Contains(t, logs.String(), `"path":"/brew"`)
}
