package json

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fwojciec/eka"
)

// File names used by Store inside its directory.
const (
	ConversationsFile = "conversations.json"
	ActiveFile        = "active"
)

// Interface compliance check.
var _ eka.ConversationStore = (*Store)(nil)

// Store keeps conversations in a single JSON file and the active
// conversation ID in a plain text file next to it.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on the
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads all conversations. A missing file yields an empty list.
func (s *Store) Load() ([]eka.Conversation, error) {
	convs, err := Load(filepath.Join(s.dir, ConversationsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return []eka.Conversation{}, nil
	}
	return convs, err
}

// Save replaces the stored conversations.
func (s *Store) Save(convs []eka.Conversation) error {
	return Save(filepath.Join(s.dir, ConversationsFile), convs)
}

// LoadActiveID reads the active conversation ID, or "" if none was saved.
func (s *Store) LoadActiveID() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, ActiveFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveActiveID replaces the active conversation ID.
func (s *Store) SaveActiveID(id string) error {
	return writeFile(filepath.Join(s.dir, ActiveFile), []byte(id+"\n"))
}

// Save writes conversations to a JSON file, creating parent directories as
// needed.
func Save(path string, convs []eka.Conversation) error {
	data, err := MarshalConversations(convs)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return writeFile(path, data)
}

// Load reads conversations from a JSON file.
func Load(path string) ([]eka.Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalConversations(data)
}

// writeFile replaces path atomically so readers never see a partial write.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
