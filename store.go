package eka

// ConversationStore persists the conversation list and the active
// conversation ID. Writes replace the previous state; the last write wins.
// Load returns an empty list, and LoadActiveID an empty string, when nothing
// has been saved yet.
type ConversationStore interface {
	Load() ([]Conversation, error)
	Save(convs []Conversation) error
	LoadActiveID() (string, error)
	SaveActiveID(id string) error
}
