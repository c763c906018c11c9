package voicechat

import (
	"github.com/msto63/krishisaathi/internal/session"
)

// Message types for tea.Cmd async operations

// sessionEventMsg carries one session event into the update loop
type sessionEventMsg struct {
	event session.Event
}

// sessionClosedMsg is sent once the session has shut down
type sessionClosedMsg struct{}

// commandResultMsg reports the outcome of a session command
type commandResultMsg struct {
	action string
	err    error
}
