package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is the in-process store used for tests and single-node demos.
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	records []Record

	// FailCreate forces Create to return this error while set (tests).
	FailCreate error
}

func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

func (m *Memory) Create(ctx context.Context, username, text string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return Record{}, m.FailCreate
	}
	now := time.Now()
	r := Record{
		ID:        strconv.FormatInt(m.nextID, 10),
		Username:  username,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.nextID++
	m.records = append(m.records, r)
	return r, nil
}

func (m *Memory) List(ctx context.Context, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, n)
	copy(out, m.records[:n])
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return m.FailCreate
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Len reports the number of persisted records (tests).
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
