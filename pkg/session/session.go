// Package session implements the per-document runtime: a bounded input
// queue feeding a single serializer task that is the sole mutator of the
// Document, and a bounded fan-out that republishes committed operations to
// every subscriber. Cancellation is checked ahead of new input on every
// serializer iteration; an input item that becomes ready at the same moment
// as cancellation can still be committed once more.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/shiv248/otrelay/pkg/document"
	"github.com/shiv248/otrelay/pkg/logger"
	"github.com/shiv248/otrelay/pkg/metrics"
	"github.com/shiv248/otrelay/pkg/ot"
)

const (
	// DefaultInputCapacity is the recommended input queue size.
	DefaultInputCapacity = 128
	// DefaultFanoutCapacity is the recommended per-subscriber buffer size.
	DefaultFanoutCapacity = 64
)

type inputItem struct {
	op     ot.Operation
	result chan error
}

// Session is one per document id. It owns a Document and multiplexes many
// producers (client submissions) into the single ordered commit stream the
// serializer produces, fanning that stream out to many subscribers.
type Session struct {
	docID string
	doc   *document.Document

	input chan inputItem
	fan   *fanout

	mu              sync.Mutex
	subscriberCount int
	running         bool
	cancel          context.CancelFunc

	onFatal func()
}

// New returns a Session for docID with the given queue capacities. The
// serializer is not started until the first Manager.Connect for docID.
func New(docID string, inputCapacity, fanoutCapacity int) *Session {
	if inputCapacity <= 0 {
		inputCapacity = DefaultInputCapacity
	}
	if fanoutCapacity <= 0 {
		fanoutCapacity = DefaultFanoutCapacity
	}
	return &Session{
		docID: docID,
		doc:   document.New(),
		input: make(chan inputItem, inputCapacity),
		fan:   newFanout(fanoutCapacity),
	}
}

// Submit hands op to the serializer and blocks until it has been committed
// and published to subscribers, or rejected, or ctx is done. A full input queue back-pressures the caller
// rather than dropping anything.
func (s *Session) Submit(ctx context.Context, op ot.Operation) error {
	item := inputItem{op: op, result: make(chan error, 1)}
	select {
	case s.input <- item:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-item.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscription is a single subscriber's view of the committed-operation
// stream. Only operations committed after the subscription was registered
// (by Manager.Connect) are delivered; there is no history replay.
type Subscription struct {
	id uint64
	ch <-chan ot.Operation
	s  *Session
}

// C returns the channel to range over. It is closed either by Close or by
// the fan-out dropping this subscriber for lagging.
func (sub *Subscription) C() <-chan ot.Operation {
	return sub.ch
}

// Close detaches the subscription. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.s.unsubscribe(sub.id)
}

// join registers a new subscriber and reports whether the caller must call
// startListen (i.e. the serializer was not already running). Subscriber
// registration and the running check happen atomically under the
// Session's own lock.
func (s *Session) join() (*Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ch := s.fan.subscribe()
	s.subscriberCount++
	metrics.Subscribers.WithLabelValues(s.docID).Set(float64(s.subscriberCount))
	needStart := !s.running
	return &Subscription{id: id, ch: ch, s: s}, needStart
}

// unsubscribe decrements the subscriber count and, if it reaches zero,
// signals the serializer to cancel.
func (s *Session) unsubscribe(id uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fan.unsubscribe(id)
	if s.subscriberCount > 0 {
		s.subscriberCount--
	}
	metrics.Subscribers.WithLabelValues(s.docID).Set(float64(s.subscriberCount))
	if s.subscriberCount == 0 && s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.running = false
	}
	return s.subscriberCount
}

// ListenerRunning reports whether a serializer task has been started and
// not yet signalled to stop. It turns false as soon as cancellation is
// signalled, which can be before the task itself has observed it and
// returned.
func (s *Session) ListenerRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// startListen spawns the serializer task if one is not already running. It
// is idempotent: a second call while one is active is a no-op. Manager
// calls this outside the Session lock; the guard below re-checks under
// lock to cover two concurrent connects racing on the same "not running"
// observation.
func (s *Session) startListen() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	go s.serialize(ctx)
}

// serialize is the sole mutator of s.doc. Each iteration first checks for
// cancellation on its own, then waits for either cancellation or the next
// input item, then commits the item and publishes the result. When both
// are ready in that wait, Go's select picks one of them at random.
func (s *Session) serialize(ctx context.Context) {
	defer s.recoverFatal()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case item := <-s.input:
			committed, err := s.doc.Apply(item.op)
			if err != nil {
				item.result <- err
				continue
			}
			metrics.OperationsCommitted.WithLabelValues(s.docID).Inc()
			if dropped := s.fan.publish(committed); dropped > 0 {
				metrics.SubscribersDropped.WithLabelValues(s.docID).Add(float64(dropped))
				logger.Warn("session: dropped lagging subscribers", "document", s.docID, "count", dropped)
			}
			item.result <- nil
		}
	}
}

// recoverFatal turns an internal invariant violation into a clean
// serializer shutdown instead of crashing the process. The onFatal hook,
// set by the Manager, removes this Session from the registry so a later
// connect starts fresh.
func (s *Session) recoverFatal() {
	if r := recover(); r != nil {
		logger.Error("session: serializer panicked, session will not restart automatically", "document", s.docID, "panic", fmt.Sprint(r))
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
		if s.onFatal != nil {
			s.onFatal()
		}
	}
}
