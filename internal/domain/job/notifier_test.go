package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubListener confirms the subscription, then fires onSignal for every value
// sent on signals until ctx ends.
type stubListener struct {
	calls      chan string
	signals    chan struct{}
	err        error
	subscribes atomic.Int32
}

func newStubListener() *stubListener {
	return &stubListener{calls: make(chan string, 16), signals: make(chan struct{}, 16)}
}

func (s *stubListener) Listen(ctx context.Context, topic string, ready, onSignal func()) error {
	s.subscribes.Add(1)
	select {
	case s.calls <- topic:
	default:
	}
	if s.err != nil {
		return s.err
	}
	ready()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.signals:
			onSignal()
		}
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(200 * time.Millisecond):
		t.Fatal(msg)
	}
}

func TestNewNotifierRequiresListener(t *testing.T) {
	notifier, err := NewNotifier(NotifierOptions{})
	require.ErrorIs(t, err, ErrListenerRequired)
	assert.Nil(t, notifier)
}

func TestNotifier_SubscribeReceivesNotifications(t *testing.T) {
	listener := newStubListener()
	notifier, err := NewNotifier(NotifierOptions{Listener: listener})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe("message:{chat:J1}:notify")
	defer unsub()

	select {
	case topic := <-listener.calls:
		assert.Equal(t, "message:{chat:J1}:notify", topic)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected listener to be invoked")
	}
	// The confirmed subscription itself wakes subscribers once.
	waitSignal(t, ch, "expected a signal when the subscription became live")

	listener.signals <- struct{}{}
	waitSignal(t, ch, "expected notification to be delivered")
}

func TestNotifier_KeepsOneSubscriptionAcrossSignals(t *testing.T) {
	listener := newStubListener()
	notifier, err := NewNotifier(NotifierOptions{Listener: listener})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe("t1")
	defer unsub()
	waitSignal(t, ch, "expected ready signal")

	for range 5 {
		listener.signals <- struct{}{}
		waitSignal(t, ch, "expected every publish to be delivered")
	}
	assert.Equal(t, int32(1), listener.subscribes.Load(), "signals must not resubscribe")
}

func TestNotifier_SharesListenerPerTopic(t *testing.T) {
	listener := newStubListener()
	notifier, err := NewNotifier(NotifierOptions{Listener: listener})
	require.NoError(t, err)

	unsubA, chA := notifier.Subscribe("t1")
	unsubB, chB := notifier.Subscribe("t1")
	assert.Equal(t, 1, notifier.Topics())

	listener.signals <- struct{}{}
	for _, ch := range []<-chan struct{}{chA, chB} {
		waitSignal(t, ch, "expected both subscribers to be signalled")
	}
	assert.Equal(t, int32(1), listener.subscribes.Load())

	unsubC, _ := notifier.Subscribe("t2")
	assert.Equal(t, 2, notifier.Topics())

	unsubA()
	assert.Equal(t, 2, notifier.Topics(), "topic stays while a subscriber remains")
	unsubB()
	unsubB() // idempotent
	assert.Equal(t, 1, notifier.Topics())
	unsubC()
	assert.Zero(t, notifier.Topics())
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	listener := newStubListener()
	notifier, err := NewNotifier(NotifierOptions{Listener: listener})
	require.NoError(t, err)

	unsub, ch := notifier.Subscribe("t1")
	select {
	case <-listener.calls:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected listener to be invoked")
	}

	unsub()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected channel to close after unsubscribe")
	}
}

func TestNotifier_StopAllClosesChannels(t *testing.T) {
	listener := newStubListener()
	listener.err = errors.New("boom")
	notifier, err := NewNotifier(NotifierOptions{Listener: listener})
	require.NoError(t, err)

	unsubA, chA := notifier.Subscribe("t1")
	unsubB, chB := notifier.Subscribe("t2")

	for range 2 {
		select {
		case <-listener.calls:
		case <-time.After(200 * time.Millisecond):
			t.Fatal("expected listener to be invoked")
		}
	}

	notifier.StopAll()

	for _, ch := range []<-chan struct{}{chA, chB} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channels should be closed after StopAll")
		case <-time.After(200 * time.Millisecond):
			t.Fatal("expected channel to close after StopAll")
		}
	}

	// Unsubscribes should remain safe post-stop.
	unsubA()
	unsubB()
}

func TestNotifier_UpstreamErrorsResubscribeWithoutSignalling(t *testing.T) {
	listener := newStubListener()
	listener.err = errors.New("connection refused")
	notifier, err := NewNotifier(NotifierOptions{Listener: listener, Backoff: time.Millisecond})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe("t1")
	defer unsub()

	select {
	case <-ch:
		t.Fatal("failed subscriptions must not signal subscribers")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Greater(t, listener.subscribes.Load(), int32(1), "listener retries after backoff")
}

func TestNotifier_LingerReusesSubscription(t *testing.T) {
	listener := newStubListener()
	notifier, err := NewNotifier(NotifierOptions{Listener: listener, Linger: 50 * time.Millisecond})
	require.NoError(t, err)
	defer notifier.StopAll()

	unsub, ch := notifier.Subscribe("t1")
	waitSignal(t, ch, "expected ready signal")
	unsub()

	// Resubscribing within the linger joins the live subscription.
	unsub, ch = notifier.Subscribe("t1")
	listener.signals <- struct{}{}
	waitSignal(t, ch, "expected publish on the reused subscription")
	unsub()
	assert.Equal(t, int32(1), listener.subscribes.Load())

	require.Eventually(t, func() bool { return notifier.Topics() == 0 },
		time.Second, 5*time.Millisecond, "idle topic is released after the linger")
}
