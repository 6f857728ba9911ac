// Package json persists conversations as versioned JSON documents.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fwojciec/eka"
)

const version = 1

// envelope is the v1 wire format for a list of conversations.
type envelope struct {
	Version       int               `json:"version"`
	Conversations []conversationDTO `json:"conversations"`
}

// conversationEnvelope is the v1 wire format for a single conversation.
type conversationEnvelope struct {
	Version int `json:"version"`
	conversationDTO
}

type conversationDTO struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	CreatedAt time.Time    `json:"created_at"`
	Messages  []messageDTO `json:"messages"`
}

// MarshalConversations serializes conversations to JSON in v1 envelope
// format, keeping their order.
func MarshalConversations(convs []eka.Conversation) ([]byte, error) {
	env := envelope{
		Version:       version,
		Conversations: make([]conversationDTO, len(convs)),
	}
	for i, c := range convs {
		dto, err := marshalConversation(c)
		if err != nil {
			return nil, fmt.Errorf("conversation %d: %w", i, err)
		}
		env.Conversations[i] = dto
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalConversations deserializes conversations from JSON in v1
// envelope format.
func UnmarshalConversations(data []byte) ([]eka.Conversation, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != version {
		return nil, fmt.Errorf("%w: %d", eka.ErrUnsupportedVersion, env.Version)
	}
	convs := make([]eka.Conversation, len(env.Conversations))
	for i, dto := range env.Conversations {
		c, err := unmarshalConversation(dto)
		if err != nil {
			return nil, fmt.Errorf("conversation %d: %w", i, err)
		}
		convs[i] = c
	}
	return convs, nil
}

// MarshalConversation serializes one conversation to compact JSON in v1
// envelope format. Key-value stores use it for their values.
func MarshalConversation(c eka.Conversation) ([]byte, error) {
	dto, err := marshalConversation(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(conversationEnvelope{Version: version, conversationDTO: dto})
}

// UnmarshalConversation deserializes one conversation written by
// MarshalConversation.
func UnmarshalConversation(data []byte) (eka.Conversation, error) {
	var env conversationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return eka.Conversation{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != version {
		return eka.Conversation{}, fmt.Errorf("%w: %d", eka.ErrUnsupportedVersion, env.Version)
	}
	return unmarshalConversation(env.conversationDTO)
}

func marshalConversation(c eka.Conversation) (conversationDTO, error) {
	dto := conversationDTO{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		Messages:  make([]messageDTO, len(c.Messages)),
	}
	for i, m := range c.Messages {
		md, err := marshalMessage(m)
		if err != nil {
			return conversationDTO{}, fmt.Errorf("message %d: %w", i, err)
		}
		dto.Messages[i] = md
	}
	return dto, nil
}

func unmarshalConversation(dto conversationDTO) (eka.Conversation, error) {
	if dto.ID == "" {
		return eka.Conversation{}, errors.New("missing conversation id")
	}
	msgs := make([]eka.Message, len(dto.Messages))
	for i, md := range dto.Messages {
		m, err := unmarshalMessage(md)
		if err != nil {
			return eka.Conversation{}, fmt.Errorf("message %d: %w", i, err)
		}
		msgs[i] = m
	}
	return eka.Conversation{
		ID:        dto.ID,
		Title:     dto.Title,
		CreatedAt: dto.CreatedAt,
		Messages:  msgs,
	}, nil
}
