package eka

import "encoding/json"

// Event names recognized on the chat stream.
const (
	EventNameMeta  = "meta"
	EventNameToken = "token"
	EventNameError = "error"
	EventNameDone  = "done"
)

// Event is a sealed interface representing a decoded stream event.
// Transport errors are not events; they come from the frame source.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventMeta carries the citations backing the answer. Citations is nil when
// the payload has no citations list.
type EventMeta struct {
	Citations []Citation
}

func (EventMeta) event() {}

// EventToken carries one incremental text fragment.
type EventToken struct {
	Delta string
}

func (EventToken) event() {}

// EventError carries a server-reported error detail.
type EventError struct {
	Detail string
}

func (EventError) event() {}

// EventDone marks the end of the answer.
type EventDone struct{}

func (EventDone) event() {}

// EventUnknown is any frame with an unrecognized name or a payload that could
// not be decoded. It never changes a message.
type EventUnknown struct {
	Name string
	Data string
}

func (EventUnknown) event() {}

// Interface compliance checks.
var (
	_ Event = EventMeta{}
	_ Event = EventToken{}
	_ Event = EventError{}
	_ Event = EventDone{}
	_ Event = EventUnknown{}
)

type metaPayload struct {
	Citations []citationPayload `json:"citations"`
}

type citationPayload struct {
	Ref         int      `json:"ref"`
	DocID       *string  `json:"doc_id"`
	ChunkID     *string  `json:"chunk_id"`
	Title       *string  `json:"title"`
	Source      *string  `json:"source"`
	HeadingPath []string `json:"heading_path"`
	Page        *int     `json:"page"`
	Score       *float64 `json:"score"`
	Snippet     *string  `json:"snippet"`
}

type tokenPayload struct {
	Delta *string `json:"delta"`
}

// ParseEvent maps a frame to an Event. Malformed meta and token payloads
// yield EventUnknown rather than an error.
func ParseEvent(f Frame) Event {
	switch f.Event {
	case EventNameMeta:
		var p metaPayload
		if err := json.Unmarshal([]byte(f.Data), &p); err != nil {
			return EventUnknown{Name: f.Event, Data: f.Data}
		}
		return EventMeta{Citations: convertCitations(p.Citations)}
	case EventNameToken:
		var p tokenPayload
		if err := json.Unmarshal([]byte(f.Data), &p); err != nil || p.Delta == nil {
			return EventUnknown{Name: f.Event, Data: f.Data}
		}
		return EventToken{Delta: *p.Delta}
	case EventNameError:
		return EventError{Detail: f.Data}
	case EventNameDone:
		return EventDone{}
	default:
		return EventUnknown{Name: f.Event, Data: f.Data}
	}
}

func convertCitations(in []citationPayload) []Citation {
	if in == nil {
		return nil
	}
	out := make([]Citation, len(in))
	for i, p := range in {
		out[i] = Citation{
			Ref:         p.Ref,
			DocID:       deref(p.DocID),
			ChunkID:     deref(p.ChunkID),
			Title:       deref(p.Title),
			Source:      deref(p.Source),
			HeadingPath: p.HeadingPath,
			Page:        p.Page,
			Score:       p.Score,
			Snippet:     deref(p.Snippet),
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
