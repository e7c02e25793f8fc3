package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"relaychat/internal/dedupe"
	"relaychat/internal/delivery"
	"relaychat/internal/presence"
	"relaychat/internal/protocol"
	"relaychat/internal/registry"
	"relaychat/internal/store"
)

type testRelay struct {
	ts  *httptest.Server
	mem *store.Memory
	reg *registry.Registry
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	mem := store.NewMemory()
	reg := registry.New(16)
	svc := delivery.New(mem, reg, zap.NewNop(), delivery.Options{Guard: dedupe.NewMemory()})
	tracker := presence.NewTracker(reg)
	srv := New(zap.NewNop(), mem, reg, svc, tracker, Options{})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return &testRelay{ts: ts, mem: mem, reg: reg}
}

// waitSessions blocks until n sessions are registered; registration happens
// in the handler goroutine after the dial handshake returns.
func (r *testRelay) waitSessions(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.reg.Count() == n }, time.Second, 5*time.Millisecond)
}

func (r *testRelay) dial(t *testing.T, username string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.ts.URL, "http") + "/ws?username=" + username
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, f *protocol.Frame) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, protocol.Encode(f)))
}

func readFrame(t *testing.T, ws *websocket.Conn) *protocol.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := ws.ReadMessage()
	require.NoError(t, err)
	f, err := protocol.Decode(b)
	require.NoError(t, err)
	return f
}

func TestSendFlow_AckAndBroadcast(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ann := relay.dial(t, "Ann")
	bob := relay.dial(t, "Bob")
	relay.waitSessions(t, 2)

	sendFrame(t, ann, &protocol.Frame{
		Type:     protocol.TypeChat,
		AckID:    "tmp-1",
		Username: "Ann",
		Text:     "hi",
	})

	ack := readFrame(t, ann)
	req.Equal(protocol.TypeAck, ack.Type)
	req.Equal("tmp-1", ack.AckID)
	req.Equal(protocol.StatusSuccess, ack.Status)
	req.Equal(protocol.CodeMessageSent, ack.Code)
	req.True(ack.IsOwnMessage)
	req.NotEmpty(ack.MessageID)
	req.NotZero(ack.ServerTime)

	bc := readFrame(t, bob)
	req.Equal(protocol.TypeChat, bc.Type)
	req.Equal("Ann", bc.Sender)
	req.Equal("hi", bc.Text)
	req.True(bc.IsBroadcast)
	req.Equal(ack.MessageID, bc.ID)

	req.Equal(1, relay.mem.Len())
}

func TestSendFlow_ValidationFailure(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	bob := relay.dial(t, "Bob")
	carol := relay.dial(t, "Carol")
	relay.waitSessions(t, 2)

	sendFrame(t, bob, &protocol.Frame{
		Type:     protocol.TypeChat,
		AckID:    "tmp-2",
		Username: "Bob",
		Text:     "   ",
	})

	ack := readFrame(t, bob)
	req.Equal(protocol.StatusError, ack.Status)
	req.Equal(protocol.CodeValidationError, ack.Code)
	req.Equal("tmp-2", ack.AckID)
	req.Equal(0, relay.mem.Len())

	// No broadcast reached anyone: the next frame Carol sees is her own ack.
	sendFrame(t, carol, &protocol.Frame{Type: protocol.TypeChat, AckID: "tmp-3", Text: "ping"})
	next := readFrame(t, carol)
	req.Equal(protocol.TypeAck, next.Type)
	req.Equal("tmp-3", next.AckID)
}

func TestSendFlow_PersistenceFailureThenRetry(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ann := relay.dial(t, "Ann")

	relay.mem.FailCreate = errors.New("store unreachable")
	sendFrame(t, ann, &protocol.Frame{
		Type: protocol.TypeChat, AckID: "tmp-4", Username: "Ann", Text: "hi", ClientMsgID: "tmp-4",
	})
	ack := readFrame(t, ann)
	req.Equal(protocol.StatusError, ack.Status)
	req.Equal(protocol.CodePersistenceError, ack.Code)
	req.Contains(ack.Error, "store unreachable")
	req.Equal(0, relay.mem.Len())

	// Store recovers; the retry reuses the same correlation id and succeeds
	// with exactly one persisted record.
	relay.mem.FailCreate = nil
	sendFrame(t, ann, &protocol.Frame{
		Type: protocol.TypeChat, AckID: "tmp-4", Username: "Ann", Text: "hi", ClientMsgID: "tmp-4",
	})
	ack = readFrame(t, ann)
	req.Equal(protocol.StatusSuccess, ack.Status)
	req.Equal(1, relay.mem.Len())
}

func TestTypingRelay(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ann := relay.dial(t, "Ann")
	bob := relay.dial(t, "Bob")
	relay.waitSessions(t, 2)

	sendFrame(t, ann, &protocol.Frame{Type: protocol.TypeTyping, Username: "Ann"})

	f := readFrame(t, bob)
	req.Equal(protocol.TypeUserTyping, f.Type)
	req.Equal("Ann", f.User)
	req.True(f.IsTyping)

	sendFrame(t, ann, &protocol.Frame{Type: protocol.TypeStopTyping, Username: "Ann"})
	f = readFrame(t, bob)
	req.False(f.IsTyping)

	// Typing is never echoed to its origin: Ann's next frame is her own ack.
	sendFrame(t, ann, &protocol.Frame{Type: protocol.TypeChat, AckID: "tmp-5", Text: "done"})
	next := readFrame(t, ann)
	req.Equal(protocol.TypeAck, next.Type)
	req.Equal("tmp-5", next.AckID)
}

func TestSessionLifecycle(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)

	ws := relay.dial(t, "Ann")
	req.Eventually(func() bool { return relay.reg.Count() == 1 }, time.Second, 10*time.Millisecond)

	ws.Close()
	req.Eventually(func() bool { return relay.reg.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestMessagesEndpoint(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ann := relay.dial(t, "Ann")

	for _, text := range []string{"one", "two", "three"} {
		sendFrame(t, ann, &protocol.Frame{Type: protocol.TypeChat, AckID: text, Text: text, Username: "Ann"})
		readFrame(t, ann)
	}

	resp, err := http.Get(relay.ts.URL + "/api/messages?limit=2")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Messages []struct {
			ID        string `json:"id"`
			Username  string `json:"username"`
			Text      string `json:"text"`
			CreatedAt int64  `json:"createdAt"`
		} `json:"messages"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.Len(body.Messages, 2)
	req.Equal("one", body.Messages[0].Text)
	req.Equal("two", body.Messages[1].Text)
}

func TestHealthEndpoint_StoreDown(t *testing.T) {
	relay := newTestRelay(t)
	relay.mem.FailCreate = errors.New("down")

	resp, err := http.Get(relay.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status   string `json:"status"`
		Services struct {
			Database  string `json:"database"`
			Websocket int    `json:"websocket"`
		} `json:"services"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "degraded", body.Status)
	require.Equal(t, "down", body.Services.Database)
}

func TestHealthEndpoint(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	relay.dial(t, "Ann")
	relay.dial(t, "Bob")

	// Sessions register asynchronously with the dial returning.
	req.Eventually(func() bool { return relay.reg.Count() == 2 }, time.Second, 10*time.Millisecond)

	resp, err := http.Get(relay.ts.URL + "/health")
	req.NoError(err)
	defer resp.Body.Close()

	var body struct {
		Status   string `json:"status"`
		Services struct {
			Database  string `json:"database"`
			Websocket int    `json:"websocket"`
		} `json:"services"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.Equal("ok", body.Status)
	req.Equal("up", body.Services.Database)
	req.Equal(2, body.Services.Websocket)
}
