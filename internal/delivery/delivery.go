// Package delivery validates an inbound message, persists it and drives the
// session registry: acknowledgement to the sender, broadcast to everyone else.
package delivery

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"relaychat/internal/dedupe"
	"relaychat/internal/metrics"
	"relaychat/internal/protocol"
	"relaychat/internal/registry"
	"relaychat/internal/store"
)

const defaultSender = "Anonymous"

var errStoreUnavailable = errors.New("message store unavailable")

// Inbound is a raw chat frame from a client.
type Inbound struct {
	Username    string
	Text        string
	ClientMsgID string
}

// Result of a successful send: the stored record plus the frames that went
// out (ack to the sender, broadcast to everyone else).
type Result struct {
	Record    store.Record
	Ack       *protocol.Frame
	Broadcast *protocol.Frame
	Duplicate bool
}

type Service struct {
	store   store.Store
	reg     *registry.Registry
	guard   dedupe.Guard
	breaker *Breaker
	log     *zap.Logger

	opTimeout time.Duration
}

type Options struct {
	Guard     dedupe.Guard // optional
	Breaker   *Breaker     // optional
	OpTimeout time.Duration
}

func New(st store.Store, reg *registry.Registry, log *zap.Logger, opt Options) *Service {
	if opt.OpTimeout <= 0 {
		opt.OpTimeout = 3 * time.Second
	}
	return &Service{
		store:     st,
		reg:       reg,
		guard:     opt.Guard,
		breaker:   opt.Breaker,
		log:       log,
		opTimeout: opt.OpTimeout,
	}
}

// Send runs one message to completion: validate, persist, broadcast, ack.
// originID is the sender's session id; when it is empty (a non-socket path
// injected the message) the broadcast goes to every session.
func (s *Service) Send(ctx context.Context, raw Inbound, originID string) (Result, error) {
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		metrics.ValidationFail.Inc()
		return Result{}, validationErr("message text cannot be empty")
	}
	sender := strings.TrimSpace(raw.Username)
	if sender == "" {
		sender = defaultSender
	}

	rec, dup, err := s.persist(ctx, sender, text, raw.ClientMsgID)
	if err != nil {
		metrics.PersistFail.Inc()
		s.log.Warn("persist failed", zap.String("sender", sender), zap.Error(err))
		return Result{}, persistenceErr(err)
	}

	broadcast := &protocol.Frame{
		Type:        protocol.TypeChat,
		ID:          rec.ID,
		Sender:      rec.Username,
		Text:        rec.Text,
		CreatedAt:   rec.CreatedAt.UnixMilli(),
		IsBroadcast: true,
	}
	ack := &protocol.Frame{
		Type:         protocol.TypeAck,
		Status:       protocol.StatusSuccess,
		Code:         protocol.CodeMessageSent,
		MessageID:    rec.ID,
		Sender:       rec.Username,
		Text:         rec.Text,
		CreatedAt:    rec.CreatedAt.UnixMilli(),
		ServerTime:   time.Now().UnixMilli(),
		IsOwnMessage: true,
	}

	// Duplicates were already broadcast on the first attempt.
	if !dup {
		if originID != "" {
			s.reg.BroadcastExcept(originID, broadcast)
		} else {
			s.reg.BroadcastAll(broadcast)
		}
		metrics.MessagesSent.Inc()
	}

	return Result{Record: rec, Ack: ack, Broadcast: broadcast, Duplicate: dup}, nil
}

func (s *Service) persist(ctx context.Context, sender, text, clientMsgID string) (store.Record, bool, error) {
	if s.guard != nil && clientMsgID != "" {
		gctx, cancel := context.WithTimeout(ctx, s.opTimeout)
		msgID, ok, err := s.guard.Get(gctx, sender, clientMsgID)
		cancel()
		if err == nil && ok && msgID != "" {
			metrics.Duplicates.Inc()
			return store.Record{ID: msgID, Username: sender, Text: text, CreatedAt: time.Now()}, true, nil
		}
	}

	if s.breaker != nil && !s.breaker.Allow() {
		return store.Record{}, false, errStoreUnavailable
	}

	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	rec, err := s.store.Create(cctx, sender, text)
	cancel()
	if err != nil {
		if s.breaker != nil && s.breaker.Failure() {
			metrics.BreakerOpen.Inc()
			s.log.Warn("store breaker opened", zap.Error(err))
		}
		return store.Record{}, false, err
	}
	if s.breaker != nil {
		s.breaker.Success()
	}

	if s.guard != nil && clientMsgID != "" {
		gctx, cancel := context.WithTimeout(ctx, s.opTimeout)
		_ = s.guard.Set(gctx, sender, clientMsgID, rec.ID, 600)
		cancel()
	}
	return rec, false, nil
}

// AckError builds the failure ack for a send error, mapping the taxonomy to
// wire codes. Unknown errors surface as a generic internal failure.
func AckError(ackID string, err error) *protocol.Frame {
	f := &protocol.Frame{
		Type:   protocol.TypeAck,
		AckID:  ackID,
		Status: protocol.StatusError,
		Code:   protocol.CodeInternalError,
		Error:  "internal server error",
	}
	var de *Error
	if errors.As(err, &de) {
		f.Error = de.Error()
		switch de.Kind {
		case KindValidation:
			f.Code = protocol.CodeValidationError
		case KindPersistence:
			f.Code = protocol.CodePersistenceError
		}
	}
	return f
}
