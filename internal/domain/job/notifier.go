package job

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrListenerRequired indicates a notifier cannot be constructed without a listener.
var ErrListenerRequired = errors.New("notifier listener is required")

// Listener holds one upstream subscription on topic until ctx ends or the
// transport fails. ready is called each time the subscription is confirmed and
// onSignal once per message received while it is held.
type Listener interface {
	Listen(ctx context.Context, topic string, ready, onSignal func()) error
}

// Notifier multiplexes topic signals onto local subscriber channels. Each
// topic with at least one subscriber holds exactly one upstream subscription.
type Notifier interface {
	Subscribe(topic string) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the behaviour of the default notifier implementation.
type NotifierOptions struct {
	Listener Listener
	// Backoff is the pause before resubscribing after an upstream failure.
	Backoff time.Duration
	// Linger keeps a topic subscribed after its last subscriber leaves, so an
	// observer that resubscribes between waits reuses the live subscription.
	// Zero tears the subscription down immediately.
	Linger time.Duration
}

type topicState struct {
	subs   map[chan struct{}]struct{}
	cancel context.CancelFunc
	idle   *time.Timer
}

// DefaultNotifier is the default implementation of Notifier.
type DefaultNotifier struct {
	listener Listener
	backoff  time.Duration
	linger   time.Duration

	mu     sync.Mutex
	topics map[string]*topicState
}

var _ Notifier = (*DefaultNotifier)(nil)

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Listener == nil {
		return nil, ErrListenerRequired
	}

	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	return &DefaultNotifier{
		listener: opts.Listener,
		backoff:  backoff,
		linger:   max(opts.Linger, 0),
		topics:   make(map[string]*topicState),
	}, nil
}

// Subscribe registers a channel that receives a coalesced signal whenever the
// topic fires. The returned func unsubscribes and closes the channel; the
// topic listener stops once its last subscriber has been gone for the linger.
func (n *DefaultNotifier) Subscribe(topic string) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ts, ok := n.topics[topic]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		ts = &topicState{subs: make(map[chan struct{}]struct{}), cancel: cancel}
		n.topics[topic] = ts
		go n.listenLoop(ctx, topic)
	} else if ts.idle != nil {
		ts.idle.Stop()
		ts.idle = nil
	}

	ch := make(chan struct{}, 1)
	ts.subs[ch] = struct{}{}

	var once sync.Once
	unsub := func() {
		once.Do(func() { n.unsubscribe(topic, ch) })
	}
	return unsub, ch
}

func (n *DefaultNotifier) unsubscribe(topic string, ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ts, ok := n.topics[topic]
	if !ok {
		return
	}
	if _, ok := ts.subs[ch]; !ok {
		return
	}
	delete(ts.subs, ch)
	drainAndClose(ch)
	if len(ts.subs) > 0 {
		return
	}
	if n.linger == 0 {
		ts.cancel()
		delete(n.topics, topic)
		return
	}
	ts.idle = time.AfterFunc(n.linger, func() { n.reapIdle(topic, ts) })
}

func (n *DefaultNotifier) reapIdle(topic string, ts *topicState) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.topics[topic] != ts || len(ts.subs) > 0 {
		return
	}
	ts.cancel()
	delete(n.topics, topic)
}

// StopAll stops every listener and closes every subscriber channel.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for topic, ts := range n.topics {
		if ts.idle != nil {
			ts.idle.Stop()
		}
		ts.cancel()
		for ch := range ts.subs {
			drainAndClose(ch)
		}
		delete(n.topics, topic)
	}
}

// Topics reports how many topics currently hold a listener, lingering ones included.
func (n *DefaultNotifier) Topics() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.topics)
}

// listenLoop keeps one subscription open for the topic's lifetime. Every
// confirmed (re)subscribe is broadcast as well, so a subscriber that read the
// store before the subscription was live re-reads it and no append is missed.
func (n *DefaultNotifier) listenLoop(ctx context.Context, topic string) {
	signal := func() { n.broadcast(topic) }
	for {
		_ = n.listener.Listen(ctx, topic, signal, signal)
		if ctx.Err() != nil {
			return
		}
		// Subscribers fall back to their own polling while the upstream is down.
		timer := time.NewTimer(n.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (n *DefaultNotifier) broadcast(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ts, ok := n.topics[topic]
	if !ok {
		return
	}
	for ch := range ts.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose removes any buffered notifications before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
