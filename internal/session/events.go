package session

import (
	"fmt"
	"slices"
	"sync"

	"github.com/msto63/krishisaathi/internal/history"
	"github.com/msto63/krishisaathi/pkg/core/logging"
)

// EventType identifies what changed in a session
type EventType string

const (
	EventStateChanged    EventType = "state"
	EventMessageAppended EventType = "message"
	EventHistoryReset    EventType = "reset"
	EventLanguageChanged EventType = "language"
	EventNotice          EventType = "notice"
)

// Event is published to subscribers after every observable change.
// Only the fields matching Type are set.
type Event struct {
	Type     EventType
	State    State
	Previous State
	Message  history.Message
	Messages []history.Message
	Language string
	Notice   string

	// EnglishQuestion accompanies an assistant message answered through
	// translation: the backend's English reading of the user's question
	EnglishQuestion string
}

// Listener receives session events. It runs on the session goroutine
// and must not block or call back into the controller synchronously.
// A panicking listener is logged and skipped.
type Listener func(Event)

type subscribers struct {
	mu     sync.RWMutex
	next   int
	fns    map[int]Listener
	logger *logging.Logger
}

func (s *subscribers) add(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]Listener)
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) publish(ev Event) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.fns))
	for id := range s.fns {
		ids = append(ids, id)
	}
	fns := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.fns[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		s.deliver(fn, ev)
	}
}

func (s *subscribers) deliver(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("Session listener panicked", "event", string(ev.Type), "panic", fmt.Sprint(r))
		}
	}()
	fn(ev)
}
