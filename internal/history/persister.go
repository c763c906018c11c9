package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Persister.Load when nothing is stored yet
var ErrNotFound = errors.New("conversation not found")

// Persister stores conversations durably, keyed by conversation id
type Persister interface {
	Load(ctx context.Context, conversationID string) ([]Message, error)
	Append(ctx context.Context, conversationID string, msg Message) error
	// Replace swaps the whole conversation atomically
	Replace(ctx context.Context, conversationID string, msgs []Message) error
	Close() error
}

// PersistError reports a storage failure. The in-memory log is still
// updated when it is returned.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// IsPersistError reports whether err is a non-fatal storage failure
func IsPersistError(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}

// MemoryPersister keeps conversations in process memory
type MemoryPersister struct {
	mu    sync.Mutex
	convs map[string][]Message
}

// NewMemoryPersister creates an empty in-memory persister
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{convs: make(map[string][]Message)}
}

// Load returns a copy of the stored conversation
func (p *MemoryPersister) Load(ctx context.Context, conversationID string) ([]Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs, ok := p.convs[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]Message(nil), msgs...), nil
}

// Append adds msg to the stored conversation
func (p *MemoryPersister) Append(ctx context.Context, conversationID string, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.convs[conversationID] = append(p.convs[conversationID], msg)
	return nil
}

// Replace overwrites the stored conversation
func (p *MemoryPersister) Replace(ctx context.Context, conversationID string, msgs []Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.convs[conversationID] = append([]Message(nil), msgs...)
	return nil
}

// Close is a no-op
func (p *MemoryPersister) Close() error {
	return nil
}

// OpenPersister creates the persister named by driver
func OpenPersister(driver, path string) (Persister, error) {
	switch driver {
	case "sqlite":
		return NewSQLitePersister(path)
	case "file":
		return NewFilePersister(path)
	case "memory", "":
		return NewMemoryPersister(), nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", driver)
	}
}
