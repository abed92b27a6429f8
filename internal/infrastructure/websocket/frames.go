package websocket

import (
	"encoding/json"
	"strings"
	"time"
)

// State is the lifecycle of one gateway connection.
type State int32

// A rejected handshake never creates a Client, so it has no state here.
const (
	StateAuthenticating State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type InboundFrame struct {
	Message string `json:"message"`
}

type OutboundFrame struct {
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	SenderID  string `json:"sender_id"`
	Timestamp string `json:"timestamp"`
	MessageID string `json:"message_id"`
}

// DecodeInbound returns the chat line of a frame, or false when the frame
// is not JSON or carries no text.
func DecodeInbound(raw []byte) (string, bool) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", false
	}
	if strings.TrimSpace(frame.Message) == "" {
		return "", false
	}
	return frame.Message, true
}

func EncodeOutbound(messageID, content, sender, senderID string, at time.Time) ([]byte, error) {
	return json.Marshal(OutboundFrame{
		Message:   content,
		Sender:    sender,
		SenderID:  senderID,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		MessageID: messageID,
	})
}
