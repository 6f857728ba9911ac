package eka

// TurnState indicates the progress of one question-to-answer exchange.
type TurnState int

const (
	TurnPending   TurnState = iota // Messages appended, connection not open yet.
	TurnStreaming                  // Response body is being read.
	TurnCompleted                  // Done frame seen, or stream ended without one.
	TurnFailed                     // Transport failure; content overwritten.
	TurnCanceled                   // Caller abandoned the session; content kept.
)

// String returns the lowercase name of the state.
func (s TurnState) String() string {
	switch s {
	case TurnPending:
		return "pending"
	case TurnStreaming:
		return "streaming"
	case TurnCompleted:
		return "completed"
	case TurnFailed:
		return "failed"
	case TurnCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further event can change the turn.
func (s TurnState) Terminal() bool {
	return s >= TurnCompleted
}

const (
	// ErrorMarker precedes a server-reported error appended to the answer.
	ErrorMarker = "\n\n[Error]\n"
	// FailurePreface replaces the answer when the transport fails.
	FailurePreface = "Sorry, the request failed.\n\n"

	unknownFailure = "Unknown error"
)

// Turn folds stream events into the open assistant message of a session.
// All methods return a new value; a Turn is never mutated in place.
type Turn struct {
	State   TurnState
	Message Message
	// Held are the citations received so far; they are attached on done.
	Held []Citation
	// Done reports whether the done event was seen.
	Done bool
}

// NewTurn starts a turn for the assistant message msg, marking it as
// thinking.
func NewTurn(msg Message) Turn {
	msg.Thinking = true
	return Turn{State: TurnPending, Message: msg}
}

// Open moves a pending turn to streaming.
func (t Turn) Open() Turn {
	if t.State == TurnPending {
		t.State = TurnStreaming
	}
	return t
}

// Apply folds evt into the turn. The boolean reports whether the assistant
// message changed and needs to be persisted. Events are ignored once the turn
// is terminal.
func (t Turn) Apply(evt Event) (Turn, bool) {
	if t.State.Terminal() {
		return t, false
	}
	switch e := evt.(type) {
	case EventMeta:
		if e.Citations != nil {
			t.Held = e.Citations
		}
		return t, false
	case EventToken:
		if e.Delta == "" {
			return t, false
		}
		t.Message.Content += e.Delta
		t.Message.Thinking = false
		return t, true
	case EventError:
		t.Message.Content += ErrorMarker + e.Detail
		t.Message.Thinking = false
		return t, true
	case EventDone:
		changed := t.Message.Thinking
		t.Message.Thinking = false
		if len(t.Held) > 0 && len(t.Message.Citations) == 0 {
			t.Message.Citations = t.Held
			changed = true
		}
		t.State = TurnCompleted
		t.Done = true
		return t, changed
	default:
		return t, false
	}
}

// Fail replaces the answer with FailurePreface followed by detail.
func (t Turn) Fail(detail string) Turn {
	if t.State.Terminal() {
		return t
	}
	if detail == "" {
		detail = unknownFailure
	}
	t.Message.Content = FailurePreface + detail
	t.Message.Thinking = false
	t.State = TurnFailed
	return t
}

// Finish completes a turn whose stream ended without a done event. Partial
// content is kept.
func (t Turn) Finish() Turn {
	if t.State.Terminal() {
		return t
	}
	t.Message.Thinking = false
	t.State = TurnCompleted
	return t
}

// Cancel ends a turn abandoned by the caller. Partial content is kept.
func (t Turn) Cancel() Turn {
	if t.State.Terminal() {
		return t
	}
	t.Message.Thinking = false
	t.State = TurnCanceled
	return t
}
