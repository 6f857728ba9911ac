// Package bolt implements [eka.ConversationStore] on a bbolt database.
package bolt

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/eka"
	ekajson "github.com/fwojciec/eka/json"
	bolt "go.etcd.io/bbolt"
)

var (
	conversationsBucket = []byte("conversations")
	metaBucket          = []byte("meta")
	activeKey           = []byte("active")
)

// Interface compliance check.
var _ eka.ConversationStore = (*Store)(nil)

// Store keeps each conversation as a JSON value keyed by its position in
// the list, so iteration order is list order.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("bolt: create directories: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads all conversations in saved order. Entries that fail to decode
// are skipped.
func (s *Store) Load() ([]eka.Conversation, error) {
	convs := []eka.Conversation{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			c, err := ekajson.UnmarshalConversation(v)
			if err != nil {
				return nil
			}
			convs = append(convs, c)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	return convs, nil
}

// Save replaces the stored conversations with convs.
func (s *Store) Save(convs []eka.Conversation) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		// Recreate the bucket so it mirrors the snapshot exactly.
		if tx.Bucket(conversationsBucket) != nil {
			if err := tx.DeleteBucket(conversationsBucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(conversationsBucket)
		if err != nil {
			return err
		}
		for i, c := range convs {
			data, err := ekajson.MarshalConversation(c)
			if err != nil {
				return fmt.Errorf("conversation %s: %w", c.ID, err)
			}
			if err := b.Put(positionKey(i), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bolt: %w", err)
	}
	return nil
}

// LoadActiveID reads the active conversation ID, or "" if none was saved.
func (s *Store) LoadActiveID() (string, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(metaBucket); b != nil {
			id = string(b.Get(activeKey))
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("bolt: %w", err)
	}
	return id, nil
}

// SaveActiveID replaces the active conversation ID.
func (s *Store) SaveActiveID(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		return b.Put(activeKey, []byte(id))
	})
	if err != nil {
		return fmt.Errorf("bolt: %w", err)
	}
	return nil
}

func positionKey(i int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(i))
	return k
}
