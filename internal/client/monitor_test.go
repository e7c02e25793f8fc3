package client

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type transition struct {
	state   ConnState
	attempt int
}

type recListener struct {
	mu          sync.Mutex
	transitions []transition
	notices     []string
	connected   chan struct{}
	dead        chan struct{}
}

func newRecListener() *recListener {
	return &recListener{
		connected: make(chan struct{}, 4),
		dead:      make(chan struct{}, 4),
	}
}

func (l *recListener) OnStateChange(s ConnState, attempt int) {
	l.mu.Lock()
	l.transitions = append(l.transitions, transition{s, attempt})
	l.mu.Unlock()
	switch s {
	case StateConnected:
		l.connected <- struct{}{}
	case StateDisconnected:
		l.dead <- struct{}{}
	}
}

func (l *recListener) OnNotice(text string) {
	l.mu.Lock()
	l.notices = append(l.notices, text)
	l.mu.Unlock()
}

func (l *recListener) OnServerHealth(bool) {}

func (l *recListener) snapshot() []transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]transition, len(l.transitions))
	copy(out, l.transitions)
	return out
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for monitor")
	}
}

func fastOpts() MonitorOptions {
	return MonitorOptions{MaxAttempts: 3, Base: time.Millisecond, Cap: 5 * time.Millisecond}
}

func TestMonitor_ConnectsFirstTry(t *testing.T) {
	req := require.New(t)
	l := newRecListener()
	m := NewMonitor(func() error { return nil }, l, fastOpts())
	defer m.Close()

	m.Start()
	waitFor(t, l.connected)

	tr := l.snapshot()
	req.Equal(transition{StateConnecting, 1}, tr[0])
	req.Equal(StateConnected, tr[len(tr)-1].state)
}

func TestMonitor_RetriesThenConnects(t *testing.T) {
	req := require.New(t)
	l := newRecListener()
	var mu sync.Mutex
	fails := 2
	m := NewMonitor(func() error {
		mu.Lock()
		defer mu.Unlock()
		if fails > 0 {
			fails--
			return errors.New("refused")
		}
		return nil
	}, l, fastOpts())
	defer m.Close()

	m.Start()
	waitFor(t, l.connected)

	tr := l.snapshot()
	req.Equal([]transition{
		{StateConnecting, 1},
		{StateConnecting, 2},
		{StateConnecting, 3},
		{StateConnected, 0},
	}, tr)
}

func TestMonitor_ExhaustionStaysDisconnectedUntilReconnect(t *testing.T) {
	req := require.New(t)
	l := newRecListener()
	var mu sync.Mutex
	failing := true
	m := NewMonitor(func() error {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return errors.New("refused")
		}
		return nil
	}, l, fastOpts())
	defer m.Close()

	m.Start()
	waitFor(t, l.dead)

	st, _ := m.State()
	req.Equal(StateDisconnected, st)
	req.Len(l.snapshot(), 4) // 3 attempts + disconnected

	// Manual reconnect restarts from attempt 1.
	mu.Lock()
	failing = false
	mu.Unlock()
	m.Reconnect()
	waitFor(t, l.connected)

	tr := l.snapshot()
	req.Equal(transition{StateConnecting, 1}, tr[4])
	req.Equal(StateConnected, tr[len(tr)-1].state)
}

func TestMonitor_DropTransitionsToConnectingOne(t *testing.T) {
	req := require.New(t)
	l := newRecListener()
	m := NewMonitor(func() error { return nil }, l, fastOpts())
	defer m.Close()

	m.Start()
	waitFor(t, l.connected)

	m.ConnectionLost(errors.New("eof"))
	waitFor(t, l.connected)

	tr := l.snapshot()
	req.Equal([]transition{
		{StateConnecting, 1},
		{StateConnected, 0},
		{StateConnecting, 1},
		{StateConnected, 0},
	}, tr)

	l.mu.Lock()
	defer l.mu.Unlock()
	req.Contains(l.notices[0], "connection lost")
	req.Contains(l.notices, "reconnected")
}

func TestMonitor_ConnectionLostIgnoredWhileNotConnected(t *testing.T) {
	l := newRecListener()
	m := NewMonitor(func() error { return errors.New("refused") }, l, fastOpts())
	defer m.Close()

	// Never connected; a spurious drop must not start a cycle.
	m.ConnectionLost(errors.New("eof"))

	require.Empty(t, l.snapshot())
}

func TestMonitor_Backoff(t *testing.T) {
	req := require.New(t)
	m := NewMonitor(nil, newRecListener(), MonitorOptions{Base: 500 * time.Millisecond, Cap: 8 * time.Second})

	req.Equal(500*time.Millisecond, m.backoff(1))
	req.Equal(time.Second, m.backoff(2))
	req.Equal(4*time.Second, m.backoff(4))
	req.Equal(8*time.Second, m.backoff(5))
	req.Equal(8*time.Second, m.backoff(30))
}
