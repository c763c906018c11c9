package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/msto63/krishisaathi/pkg/core/logging"
)

// Options configures a Store
type Options struct {
	// ConversationID keys the persisted record
	ConversationID string

	// Greeting seeds new and reset conversations (default DefaultGreeting)
	Greeting string

	// Language recorded on the greeting message
	GreetingLanguage string

	Logger *logging.Logger

	// Now is the clock used for ids and timestamps (default time.Now)
	Now func() time.Time
}

// Store is the in-memory conversation log with write-through persistence.
// It is safe for concurrent readers; the session controller is its only writer.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	lastID   int64

	persister Persister
	convID    string
	greeting  string
	greetLang string
	now       func() time.Time
	logger    *logging.Logger
}

// Open loads the conversation from p. A missing or unreadable record is
// replaced by a single greeting; Open never fails.
func Open(ctx context.Context, p Persister, opts Options) *Store {
	if p == nil {
		p = NewMemoryPersister()
	}
	s := &Store{
		persister: p,
		convID:    opts.ConversationID,
		greeting:  opts.Greeting,
		greetLang: opts.GreetingLanguage,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if s.convID == "" {
		s.convID = "default"
	}
	if s.greeting == "" {
		s.greeting = DefaultGreeting
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}

	msgs, err := p.Load(ctx, s.convID)
	switch {
	case err == nil && len(msgs) > 0:
		s.messages = msgs
		s.lastID = msgs[len(msgs)-1].ID
		s.logger.Debug("History loaded", "conversation", s.convID, "messages", len(msgs))
		return s
	case err != nil && !errors.Is(err, ErrNotFound):
		s.logger.Warn("History unreadable, starting fresh", "conversation", s.convID, "error", err)
	}

	greeting := s.newMessage(SenderAssistant, s.greeting, "", s.greetLang)
	s.messages = []Message{greeting}
	if err := p.Replace(ctx, s.convID, s.messages); err != nil {
		s.logger.Warn("Failed to persist greeting", "conversation", s.convID, "error", err)
	}
	return s
}

// ConversationID returns the persisted record key
func (s *Store) ConversationID() string {
	return s.convID
}

// List returns a copy of the log in chronological order
func (s *Store) List() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the newest message
func (s *Store) Last() Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages[len(s.messages)-1]
}

// Add creates a message from the given fields and appends it
func (s *Store) Add(ctx context.Context, sender Sender, text, originalText, lang string) (Message, error) {
	return s.insert(ctx, Message{
		Sender:         sender,
		Text:           text,
		OriginalText:   originalText,
		SourceLanguage: lang,
	})
}

// Append adds msg to the end of the log and persists it. A zero ID or
// timestamp is filled in. A *PersistError means the message was kept in
// memory but could not be stored.
func (s *Store) Append(ctx context.Context, msg Message) error {
	_, err := s.insert(ctx, msg)
	return err
}

func (s *Store) insert(ctx context.Context, msg Message) (Message, error) {
	if !msg.Sender.Valid() {
		return Message{}, fmt.Errorf("invalid sender %q", msg.Sender)
	}

	s.mu.Lock()
	if msg.ID == 0 {
		msg.ID = s.nextID()
	} else if msg.ID <= s.lastID {
		s.mu.Unlock()
		return Message{}, fmt.Errorf("message id %d not after %d", msg.ID, s.lastID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.lastID = msg.ID
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	if err := s.persister.Append(ctx, s.convID, msg); err != nil {
		s.logger.Warn("Failed to persist message", "conversation", s.convID, "id", msg.ID, "error", err)
		return msg, &PersistError{Op: "append", Err: err}
	}
	return msg, nil
}

// Reset replaces the log with a single fresh greeting. The in-memory log
// is reset even when persisting fails.
func (s *Store) Reset(ctx context.Context) (Message, error) {
	s.mu.Lock()
	greeting := s.newMessage(SenderAssistant, s.greeting, "", s.greetLang)
	s.messages = []Message{greeting}
	msgs := append([]Message(nil), s.messages...)
	s.mu.Unlock()

	if err := s.persister.Replace(ctx, s.convID, msgs); err != nil {
		s.logger.Warn("Failed to persist reset", "conversation", s.convID, "error", err)
		return greeting, &PersistError{Op: "reset", Err: err}
	}
	s.logger.Info("History reset", "conversation", s.convID)
	return greeting, nil
}

// NextID returns the id the next message would receive
func (s *Store) NextID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID()
}

// Close releases the persister
func (s *Store) Close() error {
	return s.persister.Close()
}

// newMessage must be called with s.mu held
func (s *Store) newMessage(sender Sender, text, originalText, lang string) Message {
	id := s.nextID()
	s.lastID = id
	return Message{
		ID:             id,
		Sender:         sender,
		Text:           text,
		OriginalText:   originalText,
		SourceLanguage: lang,
		CreatedAt:      s.now(),
	}
}

// nextID must be called with s.mu held
func (s *Store) nextID() int64 {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	return id
}
