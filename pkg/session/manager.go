package session

import (
	"sync"

	"github.com/shiv248/otrelay/pkg/logger"
	"github.com/shiv248/otrelay/pkg/metrics"
)

// Manager is the process-wide registry of sessions keyed by document id.
// The registry lock is held only for lookup/insert; all subscriber-count
// and listener-state bookkeeping happens under the Session's own lock, and
// startListen is always called after releasing both, so spawning a
// serializer never happens while either lock is held.
type Manager struct {
	mu             sync.Mutex
	sessions       map[string]*Session
	inputCapacity  int
	fanoutCapacity int
}

// NewManager returns an empty Manager. Capacities of 0 fall back to
// DefaultInputCapacity / DefaultFanoutCapacity per Session.
func NewManager(inputCapacity, fanoutCapacity int) *Manager {
	return &Manager{
		sessions:       make(map[string]*Session),
		inputCapacity:  inputCapacity,
		fanoutCapacity: fanoutCapacity,
	}
}

// Connect looks up or lazily creates the Session for documentID, subscribes
// a new client to it, and starts its serializer if it was not already
// running. clientID is opaque — accepted for logging only; it never
// participates in routing.
func (m *Manager) Connect(clientID, documentID string) (*Session, *Subscription) {
	m.mu.Lock()
	sess, ok := m.sessions[documentID]
	if !ok {
		sess = New(documentID, m.inputCapacity, m.fanoutCapacity)
		sess.onFatal = func() { m.evict(documentID, sess) }
		m.sessions[documentID] = sess
		metrics.ActiveSessions.Inc()
	}
	m.mu.Unlock()

	sub, needStart := sess.join()
	if needStart {
		sess.startListen()
	}

	logger.Info("manager: client connected", "document", documentID, "client", clientID)
	return sess, sub
}

// Disconnect detaches the client's subscription. The Session itself is
// retained in the registry even after its subscriber count reaches zero;
// a later Connect to the same document id finds it and restarts its
// serializer.
func (m *Manager) Disconnect(clientID, documentID string, sub *Subscription) {
	sub.Close()
	logger.Info("manager: client disconnected", "document", documentID, "client", clientID)
}

// evict removes sess from the registry if it is still the entry registered
// for documentID. Called only when a Session's serializer terminates on an
// internal invariant violation: the Session is unusable going forward, so
// a later Connect must build a fresh one instead of reusing it.
func (m *Manager) evict(documentID string, sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[documentID]; ok && cur == sess {
		delete(m.sessions, documentID)
		metrics.ActiveSessions.Dec()
	}
}

// SessionCount returns the number of registered sessions. Used by tests and
// the /api/stats-equivalent surface, if one is ever added.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
