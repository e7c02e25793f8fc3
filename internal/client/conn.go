package client

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"relaychat/internal/protocol"
)

var ErrNotConnected = errors.New("not connected")

// Conn is the client side of the channel: one websocket, a read loop that
// dispatches inbound frames and a locked writer. Sends are gated on the
// connection being up; queueing while down is the outbox's problem.
type Conn struct {
	url          string
	log          *zap.Logger
	writeTimeout time.Duration

	mu sync.Mutex
	ws *websocket.Conn

	// Dispatch hooks, wired before Dial.
	OnAck        func(f *protocol.Frame)
	OnBroadcast  func(f *protocol.Frame)
	OnUserTyping func(user string, isTyping bool)
	OnDrop       func(err error)
}

func NewConn(url string, log *zap.Logger, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Conn{url: url, log: log, writeTimeout: writeTimeout}
}

// Dial establishes the websocket and starts the read loop. Satisfies the
// monitor's DialFunc.
func (c *Conn) Dial() error {
	ws, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	go c.readLoop(ws)
	return nil
}

// Send writes one frame. Fails fast when the connection is down.
func (c *Conn) Send(f *protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, protocol.Encode(f))
}

func (c *Conn) Close() {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	var dropErr error
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			dropErr = err
			break
		}
		f, err := protocol.Decode(raw)
		if err != nil {
			c.log.Warn("bad frame from server", zap.Error(err))
			continue
		}
		c.dispatch(f)
	}

	c.mu.Lock()
	// A stale loop from a replaced connection must not report a drop.
	current := c.ws == ws
	if current {
		c.ws = nil
	}
	c.mu.Unlock()
	_ = ws.Close()

	if current && c.OnDrop != nil {
		c.OnDrop(dropErr)
	}
}

func (c *Conn) dispatch(f *protocol.Frame) {
	switch f.Type {
	case protocol.TypeAck:
		if c.OnAck != nil {
			c.OnAck(f)
		}
	case protocol.TypeChat:
		if c.OnBroadcast != nil {
			c.OnBroadcast(f)
		}
	case protocol.TypeUserTyping:
		if c.OnUserTyping != nil {
			c.OnUserTyping(f.User, f.IsTyping)
		}
	default:
		c.log.Warn("unknown frame type from server", zap.String("type", f.Type))
	}
}
