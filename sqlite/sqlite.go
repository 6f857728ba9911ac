// Package sqlite implements [eka.ConversationStore] on SQLite using the
// pure Go modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/eka"
	ekajson "github.com/fwojciec/eka/json"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	position   INTEGER NOT NULL,
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	data       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const activeKey = "active"

// Interface compliance check.
var _ eka.ConversationStore = (*Store)(nil)

// Store keeps one row per conversation. The message list is stored as the
// JSON document written by [ekajson.MarshalConversation].
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("sqlite: create directories: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=1000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads all conversations in saved order.
func (s *Store) Load() ([]eka.Conversation, error) {
	rows, err := s.db.Query(`SELECT data FROM conversations ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	convs := []eka.Conversation{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		c, err := ekajson.UnmarshalConversation([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return convs, nil
}

// Save replaces all stored conversations in one transaction.
func (s *Store) Save(convs []eka.Conversation) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO conversations (position, id, title, created_at, data) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	defer stmt.Close()

	for i, c := range convs {
		var data []byte
		data, err = ekajson.MarshalConversation(c)
		if err != nil {
			return fmt.Errorf("sqlite: conversation %s: %w", c.ID, err)
		}
		if _, err = stmt.Exec(i, c.ID, c.Title, c.CreatedAt.UTC().Format(time.RFC3339Nano), string(data)); err != nil {
			return fmt.Errorf("sqlite: conversation %s: %w", c.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

// LoadActiveID reads the active conversation ID, or "" if none was saved.
func (s *Store) LoadActiveID() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, activeKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: %w", err)
	}
	return id, nil
}

// SaveActiveID replaces the active conversation ID.
func (s *Store) SaveActiveID(id string) error {
	_, err := s.db.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, activeKey, id)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}
