package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// document is the on-disk JSON layout of one conversation
type document struct {
	ConversationID string    `json:"conversationId"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Messages       []Message `json:"messages"`
}

// FilePersister stores each conversation as a JSON document in a directory
type FilePersister struct {
	dir string
	mu  sync.Mutex
}

// NewFilePersister creates the directory if needed
func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FilePersister{dir: dir}, nil
}

func (p *FilePersister) path(conversationID string) (string, error) {
	if conversationID == "" || strings.ContainsAny(conversationID, `/\`) || strings.HasPrefix(conversationID, ".") {
		return "", fmt.Errorf("invalid conversation id %q", conversationID)
	}
	return filepath.Join(p.dir, conversationID+".json"), nil
}

// Load reads the conversation document
func (p *FilePersister) Load(ctx context.Context, conversationID string) ([]Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := p.read(conversationID)
	if err != nil {
		return nil, err
	}
	return doc.Messages, nil
}

// Append rewrites the document with msg added
func (p *FilePersister) Append(ctx context.Context, conversationID string, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := p.read(conversationID)
	if errors.Is(err, ErrNotFound) {
		doc = &document{ConversationID: conversationID}
	} else if err != nil {
		return err
	}
	doc.Messages = append(doc.Messages, msg)
	return p.write(doc)
}

// Replace writes a fresh document
func (p *FilePersister) Replace(ctx context.Context, conversationID string, msgs []Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(&document{ConversationID: conversationID, Messages: msgs})
}

// Close is a no-op
func (p *FilePersister) Close() error {
	return nil
}

func (p *FilePersister) read(conversationID string) (*document, error) {
	path, err := p.path(conversationID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	for _, m := range doc.Messages {
		if err := m.validate(); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

// write replaces the document via a temp file so readers never see a
// partially written conversation
func (p *FilePersister) write(doc *document) error {
	path, err := p.path(doc.ConversationID)
	if err != nil {
		return err
	}
	doc.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tmp, err := os.CreateTemp(p.dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close history: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace history: %w", err)
	}
	return nil
}
