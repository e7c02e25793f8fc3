package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"relaychat/internal/delivery"
	"relaychat/internal/metrics"
	"relaychat/internal/presence"
	"relaychat/internal/protocol"
	"relaychat/internal/registry"
	"relaychat/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	log      *zap.Logger
	store    store.Store
	reg      *registry.Registry
	svc      *delivery.Service
	presence *presence.Tracker

	writeTimeout   time.Duration
	requestTimeout time.Duration
	defaultLimit   int
	maxLimit       int
}

type Options struct {
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	DefaultLimit   int
	MaxLimit       int
}

func New(log *zap.Logger, st store.Store, reg *registry.Registry, svc *delivery.Service, pt *presence.Tracker, opt Options) *Server {
	if opt.WriteTimeout <= 0 {
		opt.WriteTimeout = 5 * time.Second
	}
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = 3 * time.Second
	}
	if opt.DefaultLimit <= 0 {
		opt.DefaultLimit = 50
	}
	if opt.MaxLimit <= 0 {
		opt.MaxLimit = 500
	}
	return &Server{
		log:            log,
		store:          st,
		reg:            reg,
		svc:            svc,
		presence:       pt,
		writeTimeout:   opt.WriteTimeout,
		requestTimeout: opt.RequestTimeout,
		defaultLimit:   opt.DefaultLimit,
		maxLimit:       opt.MaxLimit,
	}
}

func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	id := uuid.NewString()
	sess := s.reg.Register(id)
	metrics.OnlineSessions.Set(float64(s.reg.Count()))
	s.log.Info("session opened", zap.String("session", id), zap.String("username", username))

	go s.writeLoop(ws, sess)
	s.readLoop(r.Context(), ws, id, username)
}

// readLoop dispatches inbound frames until the connection drops. Closing
// unregisters the session synchronously, so the next event observes it gone.
func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, id, username string) {
	defer func() {
		s.reg.Unregister(id)
		s.presence.SessionClosed(id)
		metrics.OnlineSessions.Set(float64(s.reg.Count()))
		_ = ws.Close()
		s.log.Info("session closed", zap.String("session", id))
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := protocol.Decode(raw)
		if err != nil {
			s.log.Warn("bad frame", zap.String("session", id), zap.Error(err))
			continue
		}
		s.dispatch(ctx, f, id, username)
	}
}

func (s *Server) dispatch(ctx context.Context, f *protocol.Frame, id, username string) {
	// A panic while handling one frame must not take down the connection.
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("frame handler panic", zap.String("session", id), zap.Any("panic", rec))
			if f.Type == protocol.TypeChat {
				s.reg.SendTo(id, &protocol.Frame{
					Type:   protocol.TypeAck,
					AckID:  f.AckID,
					Status: protocol.StatusError,
					Code:   protocol.CodeInternalError,
					Error:  "internal server error",
				})
			}
		}
	}()

	switch f.Type {
	case protocol.TypeChat:
		sender := f.Username
		if sender == "" {
			sender = username
		}
		res, err := s.svc.Send(ctx, delivery.Inbound{
			Username:    sender,
			Text:        f.Text,
			ClientMsgID: f.ClientMsgID,
		}, id)
		if err != nil {
			s.reg.SendTo(id, delivery.AckError(f.AckID, err))
			return
		}
		ack := res.Ack
		ack.AckID = f.AckID
		s.reg.SendTo(id, ack)

	case protocol.TypeTyping:
		s.presence.Update(s.presenceUser(f, username), id, true)

	case protocol.TypeStopTyping:
		s.presence.Update(s.presenceUser(f, username), id, false)

	default:
		s.log.Warn("unknown frame type", zap.String("session", id), zap.String("type", f.Type))
	}
}

func (s *Server) presenceUser(f *protocol.Frame, username string) string {
	if f.Username != "" {
		return f.Username
	}
	return username
}

func (s *Server) writeLoop(ws *websocket.Conn, sess *registry.Session) {
	defer ws.Close()
	for b := range sess.Out {
		_ = ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
	_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	recs, err := s.store.List(ctx, limit)
	if err != nil {
		s.log.Error("list messages failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type msg struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		Text      string `json:"text"`
		CreatedAt int64  `json:"createdAt"`
	}
	out := make([]msg, 0, len(recs))
	for _, rec := range recs {
		out = append(out, msg{
			ID:        rec.ID,
			Username:  rec.Username,
			Text:      rec.Text,
			CreatedAt: rec.CreatedAt.UnixMilli(),
		})
	}
	writeJSON(w, map[string]any{"messages": out})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	dbStatus := "up"
	status := "ok"
	if err := s.store.Ping(ctx); err != nil {
		dbStatus = "down"
		status = "degraded"
	}
	writeJSON(w, map[string]any{
		"status": status,
		"services": map[string]any{
			"database":  dbStatus,
			"websocket": s.reg.Count(),
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
