package eka

import "time"

// DefaultTitle is the title of a conversation that has not received a
// question yet. The first question replaces it.
const DefaultTitle = "New chat"

// WelcomeText is the system message every new conversation starts with.
const WelcomeText = "EKA Brain is running local-first. Upload documents under Documents, then ask questions here."

// Conversation is an ordered exchange of messages. Messages are append-only;
// only the assistant message of an active session changes in place.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	Messages  []Message
}

// Message is a single entry in a conversation.
type Message struct {
	ID      string
	Role    Role
	Content string
	// Citations is attached once, when a streamed answer finalizes.
	Citations []Citation
	// Thinking is true while an assistant message waits for its first delta.
	Thinking bool
}

// Citation references source material backing an assistant answer.
type Citation struct {
	Ref         int
	DocID       string
	ChunkID     string
	Title       string
	Source      string
	HeadingPath []string
	Page        *int
	Score       *float64
	Snippet     string
}

// Label returns the best human-readable name for the cited source.
func (c Citation) Label() string {
	switch {
	case c.Title != "":
		return c.Title
	case c.Source != "":
		return c.Source
	case c.DocID != "":
		return c.DocID
	default:
		return "Source"
	}
}

// NewConversation returns a conversation with the default title and the
// welcome system message.
func NewConversation(id, welcomeID string, now time.Time) Conversation {
	return Conversation{
		ID:        id,
		Title:     DefaultTitle,
		CreatedAt: now,
		Messages: []Message{
			{ID: welcomeID, Role: RoleSystem, Content: WelcomeText},
		},
	}
}

// Message returns the message with the given ID.
func (c Conversation) Message(id string) (Message, bool) {
	for _, m := range c.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// WithMessages returns a copy of c with msgs appended. The receiver's
// message slice is never written to.
func (c Conversation) WithMessages(msgs ...Message) Conversation {
	next := make([]Message, 0, len(c.Messages)+len(msgs))
	next = append(next, c.Messages...)
	next = append(next, msgs...)
	c.Messages = next
	return c
}

// WithMessage returns a copy of c where the message with msg.ID is replaced
// by msg. If no message matches, c is returned unchanged.
func (c Conversation) WithMessage(msg Message) Conversation {
	for i, m := range c.Messages {
		if m.ID != msg.ID {
			continue
		}
		next := make([]Message, len(c.Messages))
		copy(next, c.Messages)
		next[i] = msg
		c.Messages = next
		return c
	}
	return c
}

// Settle clears Thinking on every message. A stored conversation cannot have
// an active session, so a set flag means a process exited mid-stream.
func (c Conversation) Settle() Conversation {
	for i, m := range c.Messages {
		if !m.Thinking {
			continue
		}
		next := make([]Message, len(c.Messages))
		copy(next, c.Messages)
		for j := i; j < len(next); j++ {
			next[j].Thinking = false
		}
		c.Messages = next
		return c
	}
	return c
}
