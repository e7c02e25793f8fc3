package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type emitLog struct {
	mu     sync.Mutex
	events []bool
}

func (l *emitLog) emit(start bool) {
	l.mu.Lock()
	l.events = append(l.events, start)
	l.mu.Unlock()
}

func (l *emitLog) snapshot() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]bool, len(l.events))
	copy(out, l.events)
	return out
}

func TestTyping_StartOncePerBurst(t *testing.T) {
	req := require.New(t)
	log := &emitLog{}
	ty := NewTyping(50*time.Millisecond, log.emit)

	ty.Activity()
	ty.Activity()
	ty.Activity()

	req.Equal([]bool{true}, log.snapshot())
	req.True(ty.IsTyping())
}

func TestTyping_StopAfterDebounce(t *testing.T) {
	req := require.New(t)
	log := &emitLog{}
	ty := NewTyping(30*time.Millisecond, log.emit)

	ty.Activity()

	req.Eventually(func() bool {
		ev := log.snapshot()
		return len(ev) == 2 && !ev[1]
	}, time.Second, 5*time.Millisecond)
	req.False(ty.IsTyping())
}

func TestTyping_KeystrokeResetsTimer(t *testing.T) {
	req := require.New(t)
	log := &emitLog{}
	ty := NewTyping(60*time.Millisecond, log.emit)

	ty.Activity()
	time.Sleep(40 * time.Millisecond)
	ty.Activity()
	time.Sleep(40 * time.Millisecond)

	// 80ms elapsed but the timer was re-armed at 40ms; no stop yet.
	req.Equal([]bool{true}, log.snapshot())
	req.True(ty.IsTyping())
}

func TestTyping_SendStopsImmediately(t *testing.T) {
	req := require.New(t)
	log := &emitLog{}
	ty := NewTyping(time.Hour, log.emit)

	ty.Activity()
	ty.MessageSent()

	req.Equal([]bool{true, false}, log.snapshot())
	req.False(ty.IsTyping())

	// The cancelled timer must not emit a second stop.
	time.Sleep(20 * time.Millisecond)
	req.Equal([]bool{true, false}, log.snapshot())
}

func TestTyping_SendWhileNotTypingEmitsNothing(t *testing.T) {
	log := &emitLog{}
	ty := NewTyping(time.Hour, log.emit)

	ty.MessageSent()

	require.Empty(t, log.snapshot())
}

func TestRemoteTypers_SingleIndicatorPerUser(t *testing.T) {
	req := require.New(t)
	var mu sync.Mutex
	var last []string
	rt := NewRemoteTypers("Ann", func(users []string) {
		mu.Lock()
		last = users
		mu.Unlock()
	})

	rt.Update("Bob", true)
	rt.Update("Bob", true)
	mu.Lock()
	req.Equal([]string{"Bob"}, last)
	mu.Unlock()

	rt.Update("Bob", false)
	mu.Lock()
	req.Empty(last)
	mu.Unlock()
}

func TestRemoteTypers_IgnoresLocalIdentity(t *testing.T) {
	called := false
	rt := NewRemoteTypers("Ann", func(users []string) { called = true })

	rt.Update("Ann", true)

	require.False(t, called)
}
