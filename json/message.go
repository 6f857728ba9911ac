package json

import (
	"fmt"

	"github.com/fwojciec/eka"
)

// messageDTO is the JSON representation of a Message. Thinking is stored so
// a crash mid-stream leaves a visible trace; loaders settle it.
type messageDTO struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Citations []citationDTO `json:"citations,omitempty"`
	Thinking  bool          `json:"thinking,omitempty"`
}

type citationDTO struct {
	Ref         int      `json:"ref,omitempty"`
	DocID       string   `json:"doc_id,omitempty"`
	ChunkID     string   `json:"chunk_id,omitempty"`
	Title       string   `json:"title,omitempty"`
	Source      string   `json:"source,omitempty"`
	HeadingPath []string `json:"heading_path,omitempty"`
	Page        *int     `json:"page,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Snippet     string   `json:"snippet,omitempty"`
}

func marshalMessage(m eka.Message) (messageDTO, error) {
	if !m.Role.Valid() {
		return messageDTO{}, fmt.Errorf("unknown role: %q", m.Role)
	}
	dto := messageDTO{
		ID:       m.ID,
		Role:     string(m.Role),
		Content:  m.Content,
		Thinking: m.Thinking,
	}
	if len(m.Citations) > 0 {
		dto.Citations = make([]citationDTO, len(m.Citations))
		for i, c := range m.Citations {
			dto.Citations[i] = citationDTO{
				Ref:         c.Ref,
				DocID:       c.DocID,
				ChunkID:     c.ChunkID,
				Title:       c.Title,
				Source:      c.Source,
				HeadingPath: c.HeadingPath,
				Page:        c.Page,
				Score:       c.Score,
				Snippet:     c.Snippet,
			}
		}
	}
	return dto, nil
}

func unmarshalMessage(dto messageDTO) (eka.Message, error) {
	role := eka.Role(dto.Role)
	if !role.Valid() {
		return eka.Message{}, fmt.Errorf("unknown role: %q", dto.Role)
	}
	m := eka.Message{
		ID:       dto.ID,
		Role:     role,
		Content:  dto.Content,
		Thinking: dto.Thinking,
	}
	if len(dto.Citations) > 0 {
		m.Citations = make([]eka.Citation, len(dto.Citations))
		for i, c := range dto.Citations {
			m.Citations[i] = eka.Citation{
				Ref:         c.Ref,
				DocID:       c.DocID,
				ChunkID:     c.ChunkID,
				Title:       c.Title,
				Source:      c.Source,
				HeadingPath: c.HeadingPath,
				Page:        c.Page,
				Score:       c.Score,
				Snippet:     c.Snippet,
			}
		}
	}
	return m, nil
}
