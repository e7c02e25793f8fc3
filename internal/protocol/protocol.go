package protocol

import "encoding/json"

// Frame types exchanged over the websocket. Treat this as a contract
// (version it when breaking changes are required).
const (
	TypeChat       = "chat"
	TypeAck        = "ack"
	TypeTyping     = "typing"
	TypeStopTyping = "stop_typing"
	TypeUserTyping = "user_typing"
)

// Ack status values and codes.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	CodeMessageSent      = "MESSAGE_SENT"
	CodeValidationError  = "VALIDATION_ERROR"
	CodePersistenceError = "PERSISTENCE_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeAckTimeout       = "ACK_TIMEOUT"
)

// Frame is the envelope for every packet on the channel. Only the fields
// relevant to a given Type are populated; the rest stay at their zero value
// and are omitted from the wire form.
type Frame struct {
	Type string `json:"type"`

	// AckID correlates a client chat frame with its ack. It is the client's
	// temp id and is never persisted server-side.
	AckID string `json:"ack_id,omitempty"`

	// chat (client -> server)
	Username    string `json:"username,omitempty"`
	Text        string `json:"text,omitempty"`
	ClientMsgID string `json:"client_msg_id,omitempty"`

	// chat (server -> clients) / ack success payload
	ID           string `json:"id,omitempty"`
	Sender       string `json:"sender,omitempty"`
	CreatedAt    int64  `json:"created_at,omitempty"` // unix millis
	IsBroadcast  bool   `json:"is_broadcast,omitempty"`
	IsOwnMessage bool   `json:"is_own_message,omitempty"`

	// ack
	Status     string `json:"status,omitempty"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	ServerTime int64  `json:"server_time,omitempty"`

	// typing / user_typing
	User     string `json:"user,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

func Encode(f *Frame) []byte {
	b, _ := json.Marshal(f)
	return b
}

func Decode(b []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
