// Package dedupe guards against duplicate sends. A retry after an ambiguous
// failure (ack lost, connection dropped) may re-submit a message the server
// already persisted; the guard maps (sender, client msg id) to the stored
// message id so the second attempt returns the original record instead of
// persisting twice.
package dedupe

import "context"

type Guard interface {
	// Get returns the stored message id for a prior identical send, if any.
	Get(ctx context.Context, sender, clientMsgID string) (msgID string, ok bool, err error)
	// Set records a completed send. Best-effort; entries may expire.
	Set(ctx context.Context, sender, clientMsgID, msgID string, ttlSeconds int64) error
	Close() error
}
