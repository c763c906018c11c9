package bridge

import (
	"encoding/json"

	"github.com/msto63/krishisaathi/internal/history"
	"github.com/msto63/krishisaathi/internal/language"
)

// Client message types
const (
	TypePing     = "ping"
	TypeSubmit   = "submit"
	TypeListen   = "listen"
	TypeStop     = "stop"
	TypeLanguage = "language"
	TypeReset    = "reset"
)

// Server message types not shared with the client
const (
	TypePong     = "pong"
	TypeSnapshot = "snapshot"
	TypeState    = "state"
	TypeMessage  = "message"
	TypeNotice   = "notice"
	TypeError    = "error"
)

// Error codes sent in ErrorPayload
const (
	CodeBusy            = "busy"
	CodeUnknownLanguage = "unknown_language"
	CodeInvalidPayload  = "invalid_payload"
	CodeUnknownType     = "unknown_type"
	CodeUnavailable     = "unavailable"
	CodeClosed          = "closed"
)

// Inbound is a client message
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is a server message
type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// SubmitPayload carries typed user input
type SubmitPayload struct {
	Text string `json:"text"`
}

// LanguagePayload names a language id
type LanguagePayload struct {
	ID string `json:"id"`
}

// SnapshotPayload is sent once per connection
type SnapshotPayload struct {
	State     string              `json:"state"`
	Language  string              `json:"language"`
	Languages []language.Language `json:"languages"`
	Messages  []history.Message   `json:"messages"`
	CanListen bool                `json:"canListen"`
}

// StatePayload reports an interaction state change
type StatePayload struct {
	State    string `json:"state"`
	Previous string `json:"previous"`
	Label    string `json:"label"`
}

// MessagePayload carries one appended history message
type MessagePayload struct {
	Message history.Message `json:"message"`

	// EnglishQuestion is set on translated replies
	EnglishQuestion string `json:"englishQuestion,omitempty"`
}

// ResetPayload carries the conversation after a reset
type ResetPayload struct {
	Messages []history.Message `json:"messages"`
}

// NoticePayload carries a transient user-facing notice
type NoticePayload struct {
	Text string `json:"text"`
}

// ErrorPayload describes a rejected client command
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
