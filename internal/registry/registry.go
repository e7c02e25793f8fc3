// Package registry tracks live sessions and fans frames out to them.
// Delivery is fire-and-forget: a session whose outbound queue is full drops
// the frame, and a missing session is not an error to the caller.
package registry

import (
	"sync"
	"time"

	"relaychat/internal/metrics"
	"relaychat/internal/protocol"
)

// Session is one live connection. Out is drained by the connection's writer
// goroutine; the registry only enqueues.
type Session struct {
	ID          string
	ConnectedAt time.Time
	Out         chan []byte
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	queueSize int
}

func New(queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Registry{
		sessions:  make(map[string]*Session),
		queueSize: queueSize,
	}
}

// Register creates and stores a session. If the id is already present the
// existing session is kept and returned.
func (r *Registry) Register(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := &Session{
		ID:          id,
		ConnectedAt: time.Now(),
		Out:         make(chan []byte, r.queueSize),
	}
	r.sessions[id] = s
	return s
}

// Unregister removes the session and closes its outbound queue. No-op if
// the id is absent. The close happens under the write lock so enqueues,
// which hold the read lock, never race a closed channel.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		close(s.Out)
	}
}

// SendTo delivers to exactly one session. Returns false if the session is
// absent; a full queue counts as delivered (the frame is dropped).
func (r *Registry) SendTo(id string, f *protocol.Frame) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	r.enqueue(s, protocol.Encode(f))
	return true
}

// BroadcastAll delivers to every registered session.
func (r *Registry) BroadcastAll(f *protocol.Frame) {
	b := protocol.Encode(f)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		r.enqueue(s, b)
	}
}

// BroadcastExcept delivers to every session except originID. If originID is
// not registered nothing is sent.
func (r *Registry) BroadcastExcept(originID string, f *protocol.Frame) {
	b := protocol.Encode(f)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.sessions[originID]; !ok {
		return
	}
	for id, s := range r.sessions {
		if id == originID {
			continue
		}
		r.enqueue(s, b)
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) enqueue(s *Session, b []byte) {
	select {
	case s.Out <- b:
	default:
		metrics.SendBackpressure.Inc()
	}
}
