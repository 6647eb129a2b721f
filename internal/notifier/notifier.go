// Package notifier pushes job progress to at most one subscriber per
// sender identity. Publishing is fire-and-forget and never blocks the
// caller: events are queued per subscription and written by a dedicated
// goroutine, so a stalled or failing subscriber is dropped without
// disturbing the job that published.
package notifier

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"SendFlow/internal/models"
)

// EventSink is where a subscriber's events are written. Sends come from
// the subscription's writer goroutine; Close may be called concurrently
// with an in-flight Send.
type EventSink interface {
	Send(ev models.Event) error
	Close()
}

// Snapshot reports the current progress of an active job for an identity,
// if one exists. It is consulted once per new subscription so a client that
// connects mid-job immediately sees where the job stands.
type Snapshot func(identity string) (models.Event, bool)

// eventBuffer is the per-subscription queue depth. A subscriber that falls
// this far behind is treated as stalled and dropped.
const eventBuffer = 64

// Subscription is a handle on one live subscriber. Done is closed when the
// subscription is dropped or replaced.
type Subscription struct {
	sink   EventSink
	events chan models.Event
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() {
	s.once.Do(func() {
		close(s.done)
		s.sink.Close()
	})
}

// enqueue queues ev without blocking. It reports false only when the
// queue is full on a live subscription; a closed subscription swallows
// the event.
func (s *Subscription) enqueue(ev models.Event) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return true
	default:
		return false
	}
}

type Notifier struct {
	mu   sync.Mutex
	subs map[string]*Subscription

	heartbeat time.Duration
	snapshot  Snapshot
	log       *zap.Logger
}

func New(heartbeat time.Duration, snapshot Snapshot, logger *zap.Logger) *Notifier {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Notifier{
		subs:      make(map[string]*Subscription),
		heartbeat: heartbeat,
		snapshot:  snapshot,
		log:       logger,
	}
}

// Subscribe registers sink for identity, silently replacing any prior
// subscription (last-writer-wins). The new subscriber receives a connected
// event and, when a job is already active, one progress snapshot. Both are
// queued before the subscription becomes publishable, so they precede any
// job event.
func (n *Notifier) Subscribe(identity string, sink EventSink) *Subscription {
	sub := &Subscription{
		sink:   sink,
		events: make(chan models.Event, eventBuffer),
		done:   make(chan struct{}),
	}

	sub.enqueue(models.ConnectedEvent())
	if n.snapshot != nil {
		if ev, ok := n.snapshot(identity); ok {
			sub.enqueue(ev)
		}
	}

	n.mu.Lock()
	if old := n.subs[identity]; old != nil {
		old.close()
	}
	n.subs[identity] = sub
	n.mu.Unlock()

	go n.writeLoop(identity, sub)
	go n.heartbeatLoop(identity, sub)
	return sub
}

// writeLoop drains the subscription's queue into the sink. A failed write
// drops the subscriber; the publishing side never sees the error.
func (n *Notifier) writeLoop(identity string, sub *Subscription) {
	for {
		select {
		case <-sub.done:
			return
		case ev := <-sub.events:
			if err := sub.sink.Send(ev); err != nil {
				n.log.Warn("dropping progress subscriber",
					zap.String("identity", identity),
					zap.Error(err),
				)
				n.Drop(identity, sub)
				return
			}
		}
	}
}

// heartbeatLoop keeps the subscriber's transport alive. It stops as soon as
// the subscription is no longer the identity's current one.
func (n *Notifier) heartbeatLoop(identity string, sub *Subscription) {
	ticker := time.NewTicker(n.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			n.mu.Lock()
			current := n.subs[identity] == sub
			n.mu.Unlock()
			if !current {
				sub.close()
				return
			}
			if !sub.enqueue(models.HeartbeatEvent()) {
				n.log.Warn("progress subscriber stalled on heartbeat",
					zap.String("identity", identity),
				)
				n.Drop(identity, sub)
				return
			}
		}
	}
}

// Publish queues ev for the identity's subscriber and returns immediately.
// No subscriber means the event is dropped; a subscriber whose queue is
// full is treated as stalled and dropped.
func (n *Notifier) Publish(identity string, ev models.Event) {
	n.mu.Lock()
	sub := n.subs[identity]
	n.mu.Unlock()

	if sub == nil {
		return
	}
	if !sub.enqueue(ev) {
		n.log.Warn("progress subscriber not draining, dropping",
			zap.String("identity", identity),
		)
		n.Drop(identity, sub)
	}
}

// Unsubscribe removes the identity's current subscription, whatever it is.
func (n *Notifier) Unsubscribe(identity string) {
	n.mu.Lock()
	sub := n.subs[identity]
	delete(n.subs, identity)
	n.mu.Unlock()

	if sub != nil {
		sub.close()
	}
}

// Drop removes sub only if it is still the identity's current subscription,
// so a stale handle cannot tear down its replacement.
func (n *Notifier) Drop(identity string, sub *Subscription) {
	n.mu.Lock()
	if n.subs[identity] == sub {
		delete(n.subs, identity)
	}
	n.mu.Unlock()
	sub.close()
}
