package dedupe

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	msgID    string
	expireAt time.Time
}

// Memory keeps dedupe entries in-process. Suitable for a single broker node;
// use the redis guard when the broker is fronted by more than one process.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

func (m *Memory) key(sender, clientMsgID string) string {
	return sender + ":" + clientMsgID
}

func (m *Memory) Get(ctx context.Context, sender, clientMsgID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[m.key(sender, clientMsgID)]
	if !ok {
		return "", false, nil
	}
	if !e.expireAt.IsZero() && time.Now().After(e.expireAt) {
		delete(m.entries, m.key(sender, clientMsgID))
		return "", false, nil
	}
	return e.msgID, true, nil
}

func (m *Memory) Set(ctx context.Context, sender, clientMsgID, msgID string, ttlSeconds int64) error {
	var exp time.Time
	if ttlSeconds > 0 {
		exp = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	m.mu.Lock()
	m.entries[m.key(sender, clientMsgID)] = entry{msgID: msgID, expireAt: exp}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
