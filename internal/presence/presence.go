// Package presence relays typing state between sessions. State is ephemeral:
// a per-user flag on this side only, never persisted.
package presence

import (
	"sync"

	"relaychat/internal/metrics"
	"relaychat/internal/protocol"
	"relaychat/internal/registry"
)

type Tracker struct {
	mu     sync.Mutex
	typing map[string]string // user -> origin session id
	reg    *registry.Registry
}

func NewTracker(reg *registry.Registry) *Tracker {
	return &Tracker{
		typing: make(map[string]string),
		reg:    reg,
	}
}

// Update records the user's typing state and relays the transition to every
// session except the origin. Repeated signals with no state change are not
// re-relayed.
func (t *Tracker) Update(user, originID string, isTyping bool) {
	if user == "" {
		return
	}
	t.mu.Lock()
	_, was := t.typing[user]
	if isTyping == was {
		t.mu.Unlock()
		return
	}
	if isTyping {
		t.typing[user] = originID
	} else {
		delete(t.typing, user)
	}
	t.mu.Unlock()

	t.relay(user, originID, isTyping)
}

// SessionClosed clears typing state owned by a departing session and tells
// the others the user stopped.
func (t *Tracker) SessionClosed(originID string) {
	t.mu.Lock()
	var stopped []string
	for user, owner := range t.typing {
		if owner == originID {
			delete(t.typing, user)
			stopped = append(stopped, user)
		}
	}
	t.mu.Unlock()

	// The origin is already unregistered, so broadcast-except would send
	// nothing; everyone left should see the stop.
	for _, user := range stopped {
		t.relay(user, "", false)
	}
}

// IsTyping reports whether the user is currently marked typing.
func (t *Tracker) IsTyping(user string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[user]
	return ok
}

func (t *Tracker) relay(user, originID string, isTyping bool) {
	f := &protocol.Frame{
		Type:     protocol.TypeUserTyping,
		User:     user,
		IsTyping: isTyping,
	}
	if originID != "" {
		t.reg.BroadcastExcept(originID, f)
	} else {
		t.reg.BroadcastAll(f)
	}
	metrics.TypingRelayed.Inc()
}
