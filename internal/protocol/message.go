package protocol

import (
	"fmt"
	"strings"
)

// Limits applied to client-supplied strings.
const (
	MaxNameLength = 50  // max UTF-8 bytes for room names and usernames
	MaxChatLength = 500 // max bytes for a single chat message body
)

// SystemUsername is the sentinel author of moderation notices.
const SystemUsername = "SYSTEM"

// Message types used by the websocket protocol.
const (
	TypeHello    = "hello"
	TypeSnapshot = "snapshot"
	TypeChat     = "chat"      // broadcast user or system message
	TypeSendText = "send_text" // client → server submit
	TypeNotice   = "notice"    // private, caller-only system text (not persisted)
	TypeError    = "error"
	TypePing     = "ping"
	TypePong     = "pong"
)

// Message is the JSON envelope exchanged over websocket.
type Message struct {
	Type     string      `json:"type"`
	Token    string      `json:"token,omitempty"`    // hello: session token
	RoomID   string      `json:"room_id,omitempty"`  // hello/send_text: target room
	Body     string      `json:"body,omitempty"`     // send_text/notice: message text
	Error    string      `json:"error,omitempty"`    // error: rejection reason
	TS       int64       `json:"ts,omitempty"`       // ping/pong unix ms
	Chat     *ChatEntry  `json:"chat,omitempty"`     // chat: full persisted entry
	Snapshot []ChatEntry `json:"snapshot,omitempty"` // snapshot: recent messages, oldest first
}

// ChatEntry is one persisted chat message as delivered to clients.
type ChatEntry struct {
	ID        int64  `json:"id"`
	RoomID    string `json:"room_id"`
	UID       string `json:"uid"`
	Username  string `json:"username"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"` // unix ms
	System    bool   `json:"system,omitempty"`
}

// ValidateName trims whitespace from s and returns the trimmed string, or an
// error if the result is empty or exceeds maxLen bytes.
func ValidateName(s string, maxLen int) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", fmt.Errorf("name must not be empty")
	case len(s) > maxLen:
		return "", fmt.Errorf("name must not exceed %d characters", maxLen)
	}
	return s, nil
}

// ValidateBody trims a chat body and enforces the length limit.
func ValidateBody(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", fmt.Errorf("message must not be empty")
	case len(s) > MaxChatLength:
		return "", fmt.Errorf("message must not exceed %d bytes", MaxChatLength)
	}
	return s, nil
}
