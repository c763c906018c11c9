package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLitePersister implements Persister using SQLite
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister opens (and if needed creates) the database at path
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	p := &SQLitePersister{db: db}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return p, nil
}

func (p *SQLitePersister) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		original_text TEXT NOT NULL DEFAULT '',
		source_language TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY (conversation_id, id),
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	`
	_, err := p.db.Exec(schema)
	return err
}

// Load returns the conversation ordered by message id
func (p *SQLitePersister) Load(ctx context.Context, conversationID string) ([]Message, error) {
	var updated string
	err := p.db.QueryRowContext(ctx,
		`SELECT updated_at FROM conversations WHERE id = ?`, conversationID,
	).Scan(&updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, sender, text, original_text, source_language, created_at
		FROM messages WHERE conversation_id = ? ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m       Message
			sender  string
			created string
		)
		if err := rows.Scan(&m.ID, &sender, &m.Text, &m.OriginalText, &m.SourceLanguage, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Sender = Sender(sender)
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("message %d: bad timestamp: %w", m.ID, err)
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Append inserts one message
func (p *SQLitePersister) Append(ctx context.Context, conversationID string, msg Message) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := touchConversation(ctx, tx, conversationID); err != nil {
		return err
	}
	if err := insertMessage(ctx, tx, conversationID, msg); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace deletes the stored messages and writes msgs in one transaction
func (p *SQLitePersister) Replace(ctx context.Context, conversationID string, msgs []Message) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if err := touchConversation(ctx, tx, conversationID); err != nil {
		return err
	}
	for _, m := range msgs {
		if err := insertMessage(ctx, tx, conversationID, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close closes the database
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

func touchConversation(ctx context.Context, tx *sql.Tx, conversationID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, updated_at) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		conversationID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, conversationID string, m Message) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, id, sender, text, original_text, source_language, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conversationID, m.ID, string(m.Sender), m.Text, m.OriginalText, m.SourceLanguage,
		m.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}
