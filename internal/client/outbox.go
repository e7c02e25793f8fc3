// Package client implements the client half of the relay protocol: the
// outbox that tracks unacknowledged sends, the typing debouncer and the
// connection monitor.
package client

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaychat/internal/protocol"
)

type PendingState int

const (
	StatePending PendingState = iota + 1
	StateDelivered
	StateFailed
)

var (
	ErrEmptyText     = errors.New("message text cannot be empty")
	ErrUnknownEntry  = errors.New("no such pending message")
	ErrRetryInFlight = errors.New("retry already in flight")
	ErrNotFailed     = errors.New("message is not in a failed state")
)

// Message is a server-confirmed message for display.
type Message struct {
	ID        string
	Sender    string
	Text      string
	CreatedAt time.Time
	Own       bool
}

// Renderer receives UI updates. Entries are keyed by temp id so a delivered
// or failed update mutates the element rendered at send time, preserving its
// position in the list.
type Renderer interface {
	RenderPending(tempID, sender, text string)
	RenderDelivered(tempID string, msg Message)
	RenderFailed(tempID, errMsg, code string)
	RenderIncoming(msg Message)
	Notice(text string)
}

// SendFunc pushes a frame onto the channel. It fails fast when the
// connection is down; it does not wait for the ack.
type SendFunc func(f *protocol.Frame) error

type pendingSend struct {
	tempID string
	// sender/text are the original values; a retry re-issues exactly these.
	sender string
	text   string
	state  PendingState
	timer  *time.Timer
}

// Outbox tracks messages sent but not yet confirmed and matches asynchronous
// acks back to their originating attempt. Each pending entry has exactly one
// outstanding ack waiter; a retry replaces it, never duplicates it.
type Outbox struct {
	mu      sync.Mutex
	pending map[string]*pendingSend

	send       SendFunc
	render     Renderer
	ackTimeout time.Duration
	localUser  string
}

func NewOutbox(localUser string, send SendFunc, render Renderer, ackTimeout time.Duration) *Outbox {
	if ackTimeout <= 0 {
		ackTimeout = 10 * time.Second
	}
	return &Outbox{
		pending:    make(map[string]*pendingSend),
		send:       send,
		render:     render,
		ackTimeout: ackTimeout,
		localUser:  localUser,
	}
}

// Send renders the message optimistically and issues it with an ack waiter
// keyed by a fresh temp id. Empty text is rejected with no state created.
func (o *Outbox) Send(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		o.render.Notice("cannot send an empty message")
		return "", ErrEmptyText
	}

	tempID := uuid.NewString()
	p := &pendingSend{
		tempID: tempID,
		sender: o.localUser,
		text:   text,
		state:  StatePending,
	}

	o.mu.Lock()
	o.pending[tempID] = p
	o.armTimeout(p)
	o.mu.Unlock()

	o.render.RenderPending(tempID, o.localUser, text)
	o.issue(p)
	return tempID, nil
}

// Retry re-issues a failed entry under the same temp id and UI element.
// Rejected while a prior attempt is still pending.
func (o *Outbox) Retry(tempID string) error {
	o.mu.Lock()
	p, ok := o.pending[tempID]
	if !ok {
		o.mu.Unlock()
		return ErrUnknownEntry
	}
	if p.state == StatePending {
		o.mu.Unlock()
		return ErrRetryInFlight
	}
	if p.state != StateFailed {
		o.mu.Unlock()
		return ErrNotFailed
	}
	p.state = StatePending
	o.armTimeout(p)
	o.mu.Unlock()

	o.render.RenderPending(tempID, p.sender, p.text)
	o.issue(p)
	return nil
}

// HandleAck resolves the waiter for the ack's correlation id, at most once.
// Acks for unknown or already-resolved ids are dropped.
func (o *Outbox) HandleAck(f *protocol.Frame) {
	o.mu.Lock()
	p, ok := o.pending[f.AckID]
	if !ok || p.state != StatePending {
		o.mu.Unlock()
		return
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}

	if f.Status == protocol.StatusSuccess {
		p.state = StateDelivered
		delete(o.pending, f.AckID)
		o.mu.Unlock()
		o.render.RenderDelivered(f.AckID, Message{
			ID:        f.MessageID,
			Sender:    f.Sender,
			Text:      f.Text,
			CreatedAt: time.UnixMilli(f.CreatedAt),
			Own:       true,
		})
		return
	}

	p.state = StateFailed
	o.mu.Unlock()
	o.render.RenderFailed(f.AckID, f.Error, f.Code)
	o.render.Notice("message failed: " + f.Error)
}

// HandleBroadcast renders a message from another participant. There is no
// dedupe against the pending map: a broadcast whose sender matches the local
// identity is a distinct message, only flagged for display.
func (o *Outbox) HandleBroadcast(f *protocol.Frame) {
	o.render.RenderIncoming(Message{
		ID:        f.ID,
		Sender:    f.Sender,
		Text:      f.Text,
		CreatedAt: time.UnixMilli(f.CreatedAt),
		Own:       f.Sender == o.localUser,
	})
}

// PendingCount reports entries awaiting resolution or retry.
func (o *Outbox) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// State reports the entry's current state, if it is still tracked.
func (o *Outbox) State(tempID string) (PendingState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[tempID]
	if !ok {
		return 0, false
	}
	return p.state, true
}

func (o *Outbox) issue(p *pendingSend) {
	err := o.send(&protocol.Frame{
		Type:        protocol.TypeChat,
		AckID:       p.tempID,
		Username:    p.sender,
		Text:        p.text,
		ClientMsgID: p.tempID,
	})
	if err == nil {
		return
	}
	o.fail(p.tempID, "connection unavailable: "+err.Error(), protocol.CodeInternalError)
}

// armTimeout replaces the entry's ack waiter timer. Caller holds o.mu.
func (o *Outbox) armTimeout(p *pendingSend) {
	if p.timer != nil {
		p.timer.Stop()
	}
	tempID := p.tempID
	p.timer = time.AfterFunc(o.ackTimeout, func() {
		o.fail(tempID, "no acknowledgement from server", protocol.CodeAckTimeout)
	})
}

func (o *Outbox) fail(tempID, errMsg, code string) {
	o.mu.Lock()
	p, ok := o.pending[tempID]
	if !ok || p.state != StatePending {
		o.mu.Unlock()
		return
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.state = StateFailed
	o.mu.Unlock()
	o.render.RenderFailed(tempID, errMsg, code)
	o.render.Notice("message failed: " + errMsg)
}
