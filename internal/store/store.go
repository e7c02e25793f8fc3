package store

import (
	"context"
	"time"
)

// Record is a persisted message. Immutable once created; the id is assigned
// by the store.
type Record struct {
	ID        string
	Username  string
	Text      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists messages. Create assigns the id; List returns records in
// ascending creation order.
type Store interface {
	Create(ctx context.Context, username, text string) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	Ping(ctx context.Context) error
	Close() error
}
