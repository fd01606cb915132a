package session

import (
	"sync"

	"github.com/shiv248/otrelay/pkg/ot"
)

// fanout delivers committed operations to many subscribers in server-commit
// order. Publish never blocks: a subscriber whose buffer is full is dropped
// (its channel closed) rather than slowing the serializer. The whole
// subscriber is cut loose on overflow rather than just the oldest queued
// message, so a lagging reader never silently skips a revision.
type fanout struct {
	mu         sync.Mutex
	subs       map[uint64]chan ot.Operation
	nextID     uint64
	bufferSize int
}

func newFanout(bufferSize int) *fanout {
	return &fanout{
		subs:       make(map[uint64]chan ot.Operation),
		bufferSize: bufferSize,
	}
}

// subscribe registers a new subscriber and returns its id and receive-only
// channel. The channel is closed either by unsubscribe or by publish when
// the subscriber lags.
func (f *fanout) subscribe() (id uint64, ch <-chan ot.Operation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id = f.nextID
	f.nextID++
	c := make(chan ot.Operation, f.bufferSize)
	f.subs[id] = c
	return id, c
}

// unsubscribe removes and closes a subscriber's channel. Safe to call more
// than once for the same id.
func (f *fanout) unsubscribe(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(c)
	}
}

// publish delivers op to every current subscriber without blocking. A
// subscriber whose buffer is already full is dropped and reports the
// number of subscribers dropped this call (for metrics).
func (f *fanout) publish(op ot.Operation) (dropped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.subs {
		select {
		case c <- op:
		default:
			delete(f.subs, id)
			close(c)
			dropped++
		}
	}
	return dropped
}

// count returns the current number of live subscribers.
func (f *fanout) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
