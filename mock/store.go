package mock

import "github.com/fwojciec/eka"

// Interface compliance check.
var _ eka.ConversationStore = (*ConversationStore)(nil)

// ConversationStore is a test double for eka.ConversationStore.
// LoadFn and SaveFn panic when nil to catch missing setup. The active ID
// functions are nil-safe (empty ID and no-op) because most tests never
// look at the active conversation.
type ConversationStore struct {
	LoadFn         func() ([]eka.Conversation, error)
	SaveFn         func(convs []eka.Conversation) error
	LoadActiveIDFn func() (string, error)
	SaveActiveIDFn func(id string) error
}

// Load delegates to LoadFn.
func (s *ConversationStore) Load() ([]eka.Conversation, error) {
	return s.LoadFn()
}

// Save delegates to SaveFn.
func (s *ConversationStore) Save(convs []eka.Conversation) error {
	return s.SaveFn(convs)
}

// LoadActiveID delegates to LoadActiveIDFn. Returns "" when not set.
func (s *ConversationStore) LoadActiveID() (string, error) {
	if s.LoadActiveIDFn == nil {
		return "", nil
	}
	return s.LoadActiveIDFn()
}

// SaveActiveID delegates to SaveActiveIDFn. Returns nil when not set.
func (s *ConversationStore) SaveActiveID(id string) error {
	if s.SaveActiveIDFn == nil {
		return nil
	}
	return s.SaveActiveIDFn(id)
}
