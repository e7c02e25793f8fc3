package client

import (
	"sync"
	"time"
)

// EmitFunc sends a typing transition to the server: true for typing-start,
// false for typing-stop.
type EmitFunc func(start bool)

// Typing debounces local input activity into at most one start per burst and
// one stop after the debounce interval, or immediately on send.
type Typing struct {
	mu       sync.Mutex
	typing   bool
	timer    *time.Timer
	debounce time.Duration
	emit     EmitFunc
}

func NewTyping(debounce time.Duration, emit EmitFunc) *Typing {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Typing{debounce: debounce, emit: emit}
}

// Activity marks a keystroke: emits typing-start once per burst and re-arms
// the stop timer.
func (t *Typing) Activity() {
	t.mu.Lock()
	started := false
	if !t.typing {
		t.typing = true
		started = true
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.debounce, t.expire)
	t.mu.Unlock()

	if started {
		t.emit(true)
	}
}

// MessageSent stops typing immediately: a sent message implies typing ended.
// The pending timer is cancelled so it cannot emit a second stop.
func (t *Typing) MessageSent() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	stopped := t.typing
	t.typing = false
	t.mu.Unlock()

	if stopped {
		t.emit(false)
	}
}

// IsTyping reports the current local flag.
func (t *Typing) IsTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

func (t *Typing) expire() {
	t.mu.Lock()
	stopped := t.typing
	t.typing = false
	t.timer = nil
	t.mu.Unlock()

	if stopped {
		t.emit(false)
	}
}

// RemoteTypers tracks which remote users are composing, at most one
// indicator per user. Signals from the local identity are ignored.
type RemoteTypers struct {
	mu        sync.Mutex
	users     map[string]bool
	localUser string
	onChange  func(users []string)
}

func NewRemoteTypers(localUser string, onChange func(users []string)) *RemoteTypers {
	return &RemoteTypers{
		users:     make(map[string]bool),
		localUser: localUser,
		onChange:  onChange,
	}
}

func (r *RemoteTypers) Update(user string, isTyping bool) {
	if user == "" || user == r.localUser {
		return
	}
	r.mu.Lock()
	if isTyping {
		r.users[user] = true
	} else {
		delete(r.users, user)
	}
	users := make([]string, 0, len(r.users))
	for u := range r.users {
		users = append(users, u)
	}
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(users)
	}
}
