// Package chat drives streamed answers into persisted conversations.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/eka"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultSaveInterval is the minimum time between two persistence writes.
const DefaultSaveInterval = 250 * time.Millisecond

// Controller owns the conversation set of one client. It runs at most one
// streaming session per conversation and persists every change through a
// background writer.
type Controller struct {
	backend eka.ChatBackend
	store   eka.ConversationStore
	log     zerolog.Logger
	now     func() time.Time
	newID   func() string
	mode    string

	saveInterval time.Duration
	writer       *writer

	mu       sync.Mutex
	convs    []eka.Conversation // newest first
	activeID string
	busy     map[string]bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithSaveInterval sets the minimum time between persistence writes. Zero
// or less disables throttling.
func WithSaveInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.saveInterval = d
	}
}

// WithClock sets the time source used for new conversations.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithIDFunc sets the generator for conversation and message IDs.
func WithIDFunc(fn func() string) Option {
	return func(c *Controller) {
		c.newID = fn
	}
}

// WithMode sets the retrieval mode sent with every question. Empty leaves
// the choice to the backend.
func WithMode(mode string) Option {
	return func(c *Controller) {
		c.mode = mode
	}
}

// New creates a Controller. Call Open to load stored conversations and
// Close to flush pending writes.
func New(backend eka.ChatBackend, store eka.ConversationStore, opts ...Option) *Controller {
	c := &Controller{
		backend:      backend,
		store:        store,
		log:          zerolog.Nop(),
		now:          time.Now,
		newID:        uuid.NewString,
		saveInterval: DefaultSaveInterval,
		busy:         make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.writer = newWriter(store, c.log, c.saveInterval)
	return c
}

// Open loads conversations and the active conversation ID from the store.
// A stored ID that no longer names a conversation falls back to the newest
// one.
func (c *Controller) Open() error {
	convs, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	activeID, err := c.store.LoadActiveID()
	if err != nil {
		return fmt.Errorf("load active conversation: %w", err)
	}
	for i := range convs {
		convs[i] = convs[i].Settle()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.convs = convs
	c.activeID = ""
	if c.indexLocked(activeID) >= 0 {
		c.activeID = activeID
	} else if len(convs) > 0 {
		c.activeID = convs[0].ID
	}
	c.log.Debug().Int("conversations", len(convs)).Str("active", c.activeID).Msg("opened")
	return nil
}

// Close flushes pending writes and stops the background writer.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.close()
	return nil
}

// NewConversation creates an empty conversation, puts it first in the list
// and makes it active.
func (c *Controller) NewConversation() eka.Conversation {
	conv := eka.NewConversation(c.newID(), c.newID(), c.now())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.convs = slices.Insert(slices.Clone(c.convs), 0, conv)
	c.activeID = conv.ID
	c.writer.enqueue(c.snapshotLocked())
	c.writer.enqueueActive(conv.ID)
	return conv
}

// Conversations returns a snapshot of all conversations, newest first.
func (c *Controller) Conversations() []eka.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Conversation returns the conversation with the given ID.
func (c *Controller) Conversation(id string) (eka.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return eka.Conversation{}, false
	}
	return c.convs[i], true
}

// ActiveID returns the ID of the active conversation, or "" when there are
// no conversations.
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// SetActive makes the conversation with the given ID active.
func (c *Controller) SetActive(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexLocked(id) < 0 {
		return eka.ErrConversationNotFound
	}
	if c.activeID == id {
		return nil
	}
	c.activeID = id
	c.writer.enqueueActive(id)
	return nil
}

// Busy reports whether a session is in progress for the conversation.
func (c *Controller) Busy(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy[id]
}

// SendOption configures a single Send invocation.
type SendOption func(*sendConfig)

type sendConfig struct {
	onUpdate func(eka.Conversation)
}

// WithUpdateHandler sets a callback that receives the conversation after
// every change made by the session, starting with the appended question.
// It runs on the sending goroutine. If nil or not set, updates are only
// persisted.
func WithUpdateHandler(h func(eka.Conversation)) SendOption {
	return func(cfg *sendConfig) {
		cfg.onUpdate = h
	}
}

// Result describes how a session ended.
type Result struct {
	// MessageID is the ID of the assistant message the session wrote to.
	MessageID string
	// State is TurnCompleted, TurnFailed or TurnCanceled.
	State eka.TurnState
	// Done reports whether the stream ended with a done event. A completed
	// session without it was cut short by the server.
	Done bool
	// Err is the transport error for failed sessions and the context error
	// for canceled ones.
	Err error
}

// Send asks question in the conversation with the given ID and streams the
// answer into a new assistant message. It blocks until the session ends.
//
// Send returns an error only when no session was started: the question is
// blank, the conversation is unknown, or it already has a session in
// progress. Transport failures end the session and are reported in Result.
func (c *Controller) Send(ctx context.Context, id, question string, opts ...SendOption) (Result, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return Result{}, eka.ErrEmptyQuestion
	}
	var cfg sendConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	turn, conv, err := c.begin(id, q)
	if err != nil {
		return Result{}, err
	}
	defer c.release(id)
	cfg.notify(conv)

	log := c.log.With().Str("conversation", id).Str("message", turn.Message.ID).Logger()
	log.Debug().Msg("session started")

	turn, res := c.stream(ctx, id, q, turn, &cfg, log)
	cfg.notify(c.commit(id, turn.Message))

	res.MessageID = turn.Message.ID
	res.State = turn.State
	res.Done = turn.Done
	log.Debug().Stringer("state", turn.State).Bool("done", turn.Done).Msg("session ended")
	return res, nil
}

// stream reads the response and folds it into turn until the turn is
// terminal.
func (c *Controller) stream(ctx context.Context, id, q string, turn eka.Turn, cfg *sendConfig, log zerolog.Logger) (eka.Turn, Result) {
	body, err := c.backend.StreamChat(ctx, eka.ChatRequest{Question: q, Mode: c.mode})
	if err != nil {
		return c.interrupt(ctx, turn, err, log)
	}
	defer body.Close()
	turn = turn.Open()

	frames := eka.NewFrameReader(body)
	for !turn.State.Terminal() {
		f, err := frames.Next()
		if err == io.EOF {
			if !turn.Done {
				log.Warn().Msg("stream ended without done event")
			}
			return turn.Finish(), Result{}
		}
		if err != nil {
			return c.interrupt(ctx, turn, err, log)
		}
		evt := eka.ParseEvent(f)
		if u, ok := evt.(eka.EventUnknown); ok && u.Name != "ping" {
			log.Debug().Str("event", u.Name).Msg("skipped frame")
		}
		var changed bool
		turn, changed = turn.Apply(evt)
		if changed && !turn.State.Terminal() {
			cfg.notify(c.commit(id, turn.Message))
		}
	}
	return turn, Result{}
}

// interrupt ends turn after a transport error. A canceled context keeps the
// partial answer; any other error replaces it with a failure notice.
func (c *Controller) interrupt(ctx context.Context, turn eka.Turn, err error, log zerolog.Logger) (eka.Turn, Result) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Debug().Err(ctxErr).Msg("session canceled")
		return turn.Cancel(), Result{Err: ctxErr}
	}
	log.Warn().Err(err).Msg("session failed")
	return turn.Fail(failureDetail(err)), Result{Err: err}
}

// failureDetail returns the text shown to the user for a transport error.
func failureDetail(err error) string {
	var statusErr *eka.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Error()
	}
	return err.Error()
}

// begin appends the question and an empty assistant message to the
// conversation and marks it busy, all in one step.
func (c *Controller) begin(id, q string) (eka.Turn, eka.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[id] {
		return eka.Turn{}, eka.Conversation{}, eka.ErrSessionActive
	}
	i := c.indexLocked(id)
	if i < 0 {
		return eka.Turn{}, eka.Conversation{}, eka.ErrConversationNotFound
	}

	user := eka.Message{ID: c.newID(), Role: eka.RoleUser, Content: q}
	turn := eka.NewTurn(eka.Message{ID: c.newID(), Role: eka.RoleAssistant})

	conv := c.convs[i].WithMessages(user, turn.Message)
	conv.Title = eka.DeriveTitle(conv.Title, q)
	c.replaceLocked(i, conv)
	c.busy[id] = true
	return turn, conv, nil
}

// commit writes msg into the conversation and schedules a save.
func (c *Controller) commit(id string, msg eka.Message) eka.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return eka.Conversation{}
	}
	conv := c.convs[i].WithMessage(msg)
	c.replaceLocked(i, conv)
	return conv
}

func (c *Controller) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, id)
}

// replaceLocked swaps in conv at index i without touching slices handed out
// by earlier snapshots, then schedules a save.
func (c *Controller) replaceLocked(i int, conv eka.Conversation) {
	next := slices.Clone(c.convs)
	next[i] = conv
	c.convs = next
	c.writer.enqueue(next)
}

func (c *Controller) snapshotLocked() []eka.Conversation {
	return slices.Clone(c.convs)
}

func (c *Controller) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(c.convs, func(conv eka.Conversation) bool {
		return conv.ID == id
	})
}

func (cfg *sendConfig) notify(conv eka.Conversation) {
	if cfg.onUpdate != nil && conv.ID != "" {
		cfg.onUpdate(conv)
	}
}
