package chat_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/fwojciec/eka"
	"github.com/fwojciec/eka/chat"
	"github.com/fwojciec/eka/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id-%d", n.Add(1))
	}
}

// recorder is an in-memory store that keeps every write.
type recorder struct {
	mu      sync.Mutex
	initial []eka.Conversation
	active  string
	saves   [][]eka.Conversation
	actives []string
}

func (r *recorder) store() *mock.ConversationStore {
	return &mock.ConversationStore{
		LoadFn: func() ([]eka.Conversation, error) {
			return r.initial, nil
		},
		SaveFn: func(convs []eka.Conversation) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.saves = append(r.saves, convs)
			return nil
		},
		LoadActiveIDFn: func() (string, error) {
			return r.active, nil
		},
		SaveActiveIDFn: func(id string) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.actives = append(r.actives, id)
			return nil
		},
	}
}

func (r *recorder) lastSave(t *testing.T) []eka.Conversation {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.saves, "nothing was saved")
	return r.saves[len(r.saves)-1]
}

func (r *recorder) lastActive() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.actives) == 0 {
		return ""
	}
	return r.actives[len(r.actives)-1]
}

func body(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func streamBackend(stream string) *mock.ChatBackend {
	return &mock.ChatBackend{
		StreamChatFn: func(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error) {
			return body(stream), nil
		},
	}
}

func newController(t *testing.T, backend eka.ChatBackend, rec *recorder) *chat.Controller {
	t.Helper()
	c := chat.New(backend, rec.store(),
		chat.WithIDFunc(sequentialIDs()),
		chat.WithClock(func() time.Time { return testNow }),
		chat.WithSaveInterval(0),
	)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Open())
	return c
}

func assistantMessage(t *testing.T, conv eka.Conversation, id string) eka.Message {
	t.Helper()
	msg, ok := conv.Message(id)
	require.True(t, ok, "message %s not found", id)
	require.Equal(t, eka.RoleAssistant, msg.Role)
	return msg
}

const helloStream = "event: meta\ndata: {\"citations\":[{\"title\":\"A\",\"doc_id\":\"d1\"}]}\n\n" +
	"event: token\ndata: {\"delta\":\"Hel\"}\n\n" +
	"event: ping\ndata: {}\n\n" +
	"event: token\ndata: {\"delta\":\"lo\"}\n\n" +
	"event: done\ndata: [DONE]\n\n"

func TestController_Send(t *testing.T) {
	t.Parallel()

	t.Run("streams answer and attaches citations", func(t *testing.T) {
		t.Parallel()
		var gotReq eka.ChatRequest
		backend := &mock.ChatBackend{
			StreamChatFn: func(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error) {
				gotReq = req
				return body(helloStream), nil
			},
		}
		rec := &recorder{}
		c := newController(t, backend, rec)
		conv := c.NewConversation()

		res, err := c.Send(context.Background(), conv.ID, "  What is A?  ")
		require.NoError(t, err)
		assert.Equal(t, eka.TurnCompleted, res.State)
		assert.True(t, res.Done)
		assert.NoError(t, res.Err)
		assert.Equal(t, "What is A?", gotReq.Question)

		got, ok := c.Conversation(conv.ID)
		require.True(t, ok)
		require.Len(t, got.Messages, 3)
		assert.Equal(t, eka.RoleSystem, got.Messages[0].Role)
		assert.Equal(t, eka.Message{ID: got.Messages[1].ID, Role: eka.RoleUser, Content: "What is A?"}, got.Messages[1])
		assert.Equal(t, "What is A?", got.Title)

		msg := assistantMessage(t, got, res.MessageID)
		assert.Equal(t, "Hello", msg.Content)
		assert.False(t, msg.Thinking)
		require.Len(t, msg.Citations, 1)
		assert.Equal(t, "A", msg.Citations[0].Title)
		assert.False(t, c.Busy(conv.ID))
	})

	t.Run("done without meta leaves citations unset", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		c := newController(t, streamBackend("event: token\ndata: {\"delta\":\"ok\"}\n\nevent: done\ndata: [DONE]\n\n"), rec)
		conv := c.NewConversation()

		res, err := c.Send(context.Background(), conv.ID, "q")
		require.NoError(t, err)
		got, _ := c.Conversation(conv.ID)
		assert.Nil(t, assistantMessage(t, got, res.MessageID).Citations)
	})

	t.Run("token without delta changes nothing", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		c := newController(t, streamBackend("event: token\ndata: {\"text\":\"x\"}\n\nevent: done\n\n"), rec)
		conv := c.NewConversation()

		res, err := c.Send(context.Background(), conv.ID, "q")
		require.NoError(t, err)
		got, _ := c.Conversation(conv.ID)
		msg := assistantMessage(t, got, res.MessageID)
		assert.Empty(t, msg.Content)
		assert.False(t, msg.Thinking)
	})

	t.Run("server error is appended and streaming continues", func(t *testing.T) {
		t.Parallel()
		stream := "event: token\ndata: {\"delta\":\"partial\"}\n\n" +
			"event: error\ndata: {\"error\":\"model missing\"}\n\n" +
			"event: token\ndata: {\"delta\":\" more\"}\n\n" +
			"event: done\n\n"
		rec := &recorder{}
		c := newController(t, streamBackend(stream), rec)
		conv := c.NewConversation()

		res, err := c.Send(context.Background(), conv.ID, "q")
		require.NoError(t, err)
		assert.Equal(t, eka.TurnCompleted, res.State)
		got, _ := c.Conversation(conv.ID)
		assert.Equal(t, "partial\n\n[Error]\n{\"error\":\"model missing\"} more", assistantMessage(t, got, res.MessageID).Content)
	})

	t.Run("events after done are ignored", func(t *testing.T) {
		t.Parallel()
		stream := "event: token\ndata: {\"delta\":\"a\"}\n\nevent: done\n\n" +
			"event: token\ndata: {\"delta\":\"b\"}\n\n"
		rec := &recorder{}
		c := newController(t, streamBackend(stream), rec)
		conv := c.NewConversation()

		res, err := c.Send(context.Background(), conv.ID, "q")
		require.NoError(t, err)
		got, _ := c.Conversation(conv.ID)
		assert.Equal(t, "a", assistantMessage(t, got, res.MessageID).Content)
	})

	t.Run("stream without done completes softly", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		c := newController(t, streamBackend("event: token\ndata: {\"delta\":\"Hel\"}\n\n"), rec)
		conv := c.NewConversation()

		res, err := c.Send(context.Background(), conv.ID, "q")
		require.NoError(t, err)
		assert.Equal(t, eka.TurnCompleted, res.State)
		assert.False(t, res.Done)
		assert.NoError(t, res.Err)
		got, _ := c.Conversation(conv.ID)
		msg := assistantMessage(t, got, res.MessageID)
		assert.Equal(t, "Hel", msg.Content)
		assert.False(t, msg.Thinking)
	})

	t.Run("read failure overwrites partial content", func(t *testing.T) {
		t.Parallel()
		backend := &mock.ChatBackend{
			StreamChatFn: func(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error) {
				r := io.MultiReader(
					strings.NewReader("event: token\ndata: {\"delta\":\"Hel\"}\n\n"),
					iotest.ErrReader(errors.New("connection reset")),
				)
				return io.NopCloser(r), nil
			},
		}
		rec := &recorder{}
		c := newController(t, backend, rec)
		conv := c.NewConversation()

		res, err := c.Send(context.Background(), conv.ID, "q")
		require.NoError(t, err)
		assert.Equal(t, eka.TurnFailed, res.State)
		assert.EqualError(t, res.Err, "connection reset")

		got, _ := c.Conversation(conv.ID)
		msg := assistantMessage(t, got, res.MessageID)
		assert.Equal(t, "Sorry, the request failed.\n\nconnection reset", msg.Content)
		assert.False(t, msg.Thinking)
		assert.False(t, c.Busy(conv.ID))
	})

	t.Run("HTTP status failure shows response body", func(t *testing.T) {
		t.Parallel()
		backend := &mock.ChatBackend{
			StreamChatFn: func(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error) {
				return nil, fmt.Errorf("backend: %w", &eka.StatusError{Code: 502, Body: "upstream down"})
			},
		}
		rec := &recorder{}
		c := newController(t, backend, rec)
		conv := c.NewConversation()

		res, err := c.Send(context.Background(), conv.ID, "q")
		require.NoError(t, err)
		assert.Equal(t, eka.TurnFailed, res.State)
		var statusErr *eka.StatusError
		require.ErrorAs(t, res.Err, &statusErr)
		assert.Equal(t, 502, statusErr.Code)

		got, _ := c.Conversation(conv.ID)
		assert.Equal(t, eka.FailurePreface+"upstream down", assistantMessage(t, got, res.MessageID).Content)
	})

	t.Run("cancellation keeps partial content", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		backend := &mock.ChatBackend{
			StreamChatFn: func(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error) {
				return io.NopCloser(&cancelingReader{
					data:   "event: token\ndata: {\"delta\":\"Hel\"}\n\n",
					cancel: cancel,
				}), nil
			},
		}
		rec := &recorder{}
		c := newController(t, backend, rec)
		conv := c.NewConversation()

		res, err := c.Send(ctx, conv.ID, "q")
		require.NoError(t, err)
		assert.Equal(t, eka.TurnCanceled, res.State)
		assert.ErrorIs(t, res.Err, context.Canceled)

		got, _ := c.Conversation(conv.ID)
		msg := assistantMessage(t, got, res.MessageID)
		assert.Equal(t, "Hel", msg.Content)
		assert.False(t, msg.Thinking)
	})

	t.Run("blank question is rejected", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		c := newController(t, &mock.ChatBackend{}, rec)
		conv := c.NewConversation()

		_, err := c.Send(context.Background(), conv.ID, " \n\t ")
		assert.ErrorIs(t, err, eka.ErrEmptyQuestion)
		got, _ := c.Conversation(conv.ID)
		assert.Len(t, got.Messages, 1)
	})

	t.Run("unknown conversation is rejected", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		c := newController(t, &mock.ChatBackend{}, rec)

		_, err := c.Send(context.Background(), "missing", "q")
		assert.ErrorIs(t, err, eka.ErrConversationNotFound)
	})

	t.Run("title is derived only once", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		c := newController(t, streamBackend("event: done\n\n"), rec)
		conv := c.NewConversation()

		_, err := c.Send(context.Background(), conv.ID, "first question")
		require.NoError(t, err)
		_, err = c.Send(context.Background(), conv.ID, "second question")
		require.NoError(t, err)

		got, _ := c.Conversation(conv.ID)
		assert.Equal(t, "first question", got.Title)
		assert.Len(t, got.Messages, 5)
	})
}

// cancelingReader returns data once, then cancels the session and fails
// the way an HTTP body does when its request context ends.
type cancelingReader struct {
	data   string
	cancel context.CancelFunc
	read   bool
}

func (r *cancelingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	r.cancel()
	return 0, context.Canceled
}

func TestController_Send_UpdateHandler(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	c := newController(t, streamBackend(helloStream), rec)
	conv := c.NewConversation()

	var updates []eka.Message
	res, err := c.Send(context.Background(), conv.ID, "q", chat.WithUpdateHandler(func(conv eka.Conversation) {
		updates = append(updates, conv.Messages[len(conv.Messages)-1])
	}))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(updates), 3)

	first := updates[0]
	assert.Equal(t, res.MessageID, first.ID)
	assert.True(t, first.Thinking)
	assert.Empty(t, first.Content)

	prev := 0
	for _, m := range updates {
		assert.GreaterOrEqual(t, len(m.Content), prev, "content must not shrink")
		prev = len(m.Content)
	}

	last := updates[len(updates)-1]
	assert.Equal(t, "Hello", last.Content)
	assert.False(t, last.Thinking)
	assert.Len(t, last.Citations, 1)
}

func TestController_Send_Concurrency(t *testing.T) {
	t.Parallel()

	t.Run("second send on a streaming conversation is rejected", func(t *testing.T) {
		t.Parallel()
		pr, pw := io.Pipe()
		opened := make(chan struct{})
		backend := &mock.ChatBackend{
			StreamChatFn: func(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error) {
				close(opened)
				return pr, nil
			},
		}
		rec := &recorder{}
		c := newController(t, backend, rec)
		conv := c.NewConversation()

		done := make(chan chat.Result, 1)
		go func() {
			res, err := c.Send(context.Background(), conv.ID, "first")
			assert.NoError(t, err)
			done <- res
		}()
		<-opened

		assert.True(t, c.Busy(conv.ID))
		_, err := c.Send(context.Background(), conv.ID, "second")
		assert.ErrorIs(t, err, eka.ErrSessionActive)
		got, _ := c.Conversation(conv.ID)
		assert.Len(t, got.Messages, 3, "no new message pair")

		_, err = io.WriteString(pw, "event: token\ndata: {\"delta\":\"ok\"}\n\nevent: done\n\n")
		require.NoError(t, err)
		require.NoError(t, pw.Close())

		res := <-done
		assert.Equal(t, eka.TurnCompleted, res.State)
		assert.False(t, c.Busy(conv.ID))
	})

	t.Run("different conversations stream independently", func(t *testing.T) {
		t.Parallel()
		var mu sync.Mutex
		writers := make(map[string]*io.PipeWriter)
		opened := make(chan struct{}, 2)
		backend := &mock.ChatBackend{
			StreamChatFn: func(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error) {
				pr, pw := io.Pipe()
				mu.Lock()
				writers[req.Question] = pw
				mu.Unlock()
				opened <- struct{}{}
				return pr, nil
			},
		}
		rec := &recorder{}
		c := newController(t, backend, rec)
		a := c.NewConversation()
		b := c.NewConversation()

		var wg sync.WaitGroup
		results := make(map[string]chat.Result)
		var resMu sync.Mutex
		for _, tc := range []struct{ id, q string }{{a.ID, "alpha"}, {b.ID, "beta"}} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := c.Send(context.Background(), tc.id, tc.q)
				assert.NoError(t, err)
				resMu.Lock()
				results[tc.id] = res
				resMu.Unlock()
			}()
		}
		<-opened
		<-opened
		assert.True(t, c.Busy(a.ID))
		assert.True(t, c.Busy(b.ID))

		mu.Lock()
		for q, pw := range writers {
			_, err := io.WriteString(pw, fmt.Sprintf("event: token\ndata: {\"delta\":\"%s!\"}\n\nevent: done\n\n", q))
			require.NoError(t, err)
			require.NoError(t, pw.Close())
		}
		mu.Unlock()
		wg.Wait()

		gotA, _ := c.Conversation(a.ID)
		gotB, _ := c.Conversation(b.ID)
		assert.Equal(t, "alpha!", assistantMessage(t, gotA, results[a.ID].MessageID).Content)
		assert.Equal(t, "beta!", assistantMessage(t, gotB, results[b.ID].MessageID).Content)
	})
}

func TestController_Persistence(t *testing.T) {
	t.Parallel()

	t.Run("last write reflects final state", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		c := chat.New(streamBackend(helloStream), rec.store(),
			chat.WithIDFunc(sequentialIDs()),
			chat.WithSaveInterval(time.Hour),
		)
		require.NoError(t, c.Open())
		conv := c.NewConversation()

		res, err := c.Send(context.Background(), conv.ID, "q")
		require.NoError(t, err)
		require.NoError(t, c.Close())

		saved := rec.lastSave(t)
		assert.Equal(t, c.Conversations(), saved)
		require.Len(t, saved, 1)
		msg := assistantMessage(t, saved[0], res.MessageID)
		assert.Equal(t, "Hello", msg.Content)
		assert.False(t, msg.Thinking)
		assert.Len(t, msg.Citations, 1)
		assert.Equal(t, conv.ID, rec.lastActive())
	})

	t.Run("writes are coalesced", func(t *testing.T) {
		t.Parallel()
		var stream strings.Builder
		for range 50 {
			stream.WriteString("event: token\ndata: {\"delta\":\"x\"}\n\n")
		}
		stream.WriteString("event: done\n\n")

		rec := &recorder{}
		c := chat.New(streamBackend(stream.String()), rec.store(), chat.WithSaveInterval(time.Hour))
		require.NoError(t, c.Open())
		conv := c.NewConversation()
		res, err := c.Send(context.Background(), conv.ID, "q")
		require.NoError(t, err)
		require.NoError(t, c.Close())

		rec.mu.Lock()
		n := len(rec.saves)
		rec.mu.Unlock()
		assert.LessOrEqual(t, n, 3)
		msg := assistantMessage(t, rec.lastSave(t)[0], res.MessageID)
		assert.Equal(t, strings.Repeat("x", 50), msg.Content)
	})

	t.Run("save errors do not fail the session", func(t *testing.T) {
		t.Parallel()
		store := &mock.ConversationStore{
			LoadFn: func() ([]eka.Conversation, error) { return nil, nil },
			SaveFn: func([]eka.Conversation) error { return errors.New("disk full") },
		}
		c := chat.New(streamBackend(helloStream), store, chat.WithSaveInterval(0))
		require.NoError(t, c.Open())
		conv := c.NewConversation()
		res, err := c.Send(context.Background(), conv.ID, "q")
		require.NoError(t, err)
		assert.Equal(t, eka.TurnCompleted, res.State)
		require.NoError(t, c.Close())
	})

	t.Run("writes after close are synchronous", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		c := newController(t, streamBackend(helloStream), rec)
		require.NoError(t, c.Close())

		conv := c.NewConversation()
		saved := rec.lastSave(t)
		require.Len(t, saved, 1)
		assert.Equal(t, conv.ID, saved[0].ID)
	})
}

func TestController_Open(t *testing.T) {
	t.Parallel()

	t.Run("restores active conversation and clears stale thinking", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{
			initial: []eka.Conversation{
				{ID: "c2", Title: "Newer"},
				{ID: "c1", Title: "Older", Messages: []eka.Message{
					{ID: "u1", Role: eka.RoleUser, Content: "q"},
					{ID: "a1", Role: eka.RoleAssistant, Content: "par", Thinking: true},
				}},
			},
			active: "c1",
		}
		c := newController(t, &mock.ChatBackend{}, rec)

		assert.Equal(t, "c1", c.ActiveID())
		got, ok := c.Conversation("c1")
		require.True(t, ok)
		assert.False(t, got.Messages[1].Thinking)
		assert.Equal(t, "par", got.Messages[1].Content)
		assert.Equal(t, []string{"c2", "c1"}, ids(c.Conversations()))
	})

	t.Run("unknown active ID falls back to newest", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{
			initial: []eka.Conversation{{ID: "c2"}, {ID: "c1"}},
			active:  "gone",
		}
		c := newController(t, &mock.ChatBackend{}, rec)
		assert.Equal(t, "c2", c.ActiveID())
	})

	t.Run("empty store has no active conversation", func(t *testing.T) {
		t.Parallel()
		c := newController(t, &mock.ChatBackend{}, &recorder{})
		assert.Empty(t, c.ActiveID())
		assert.Empty(t, c.Conversations())
	})

	t.Run("load error", func(t *testing.T) {
		t.Parallel()
		store := &mock.ConversationStore{
			LoadFn: func() ([]eka.Conversation, error) { return nil, errors.New("corrupt") },
		}
		c := chat.New(&mock.ChatBackend{}, store)
		defer c.Close()
		assert.ErrorContains(t, c.Open(), "corrupt")
	})
}

func TestController_NewConversation(t *testing.T) {
	t.Parallel()
	rec := &recorder{initial: []eka.Conversation{{ID: "old"}}}
	c := newController(t, &mock.ChatBackend{}, rec)

	conv := c.NewConversation()
	assert.Equal(t, eka.DefaultTitle, conv.Title)
	assert.Equal(t, testNow, conv.CreatedAt)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, eka.RoleSystem, conv.Messages[0].Role)
	assert.NotEqual(t, conv.ID, conv.Messages[0].ID)

	assert.Equal(t, conv.ID, c.ActiveID())
	assert.Equal(t, []string{conv.ID, "old"}, ids(c.Conversations()))
}

func TestController_SetActive(t *testing.T) {
	t.Parallel()
	rec := &recorder{initial: []eka.Conversation{{ID: "c2"}, {ID: "c1"}}}
	c := newController(t, &mock.ChatBackend{}, rec)

	require.NoError(t, c.SetActive("c1"))
	assert.Equal(t, "c1", c.ActiveID())
	assert.ErrorIs(t, c.SetActive("nope"), eka.ErrConversationNotFound)
	assert.Equal(t, "c1", c.ActiveID())

	require.NoError(t, c.Close())
	assert.Equal(t, "c1", rec.lastActive())
}

func TestController_SnapshotsAreIsolated(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	c := newController(t, streamBackend(helloStream), rec)
	conv := c.NewConversation()

	before := c.Conversations()
	_, err := c.Send(context.Background(), conv.ID, "q")
	require.NoError(t, err)

	require.Len(t, before, 1)
	assert.Len(t, before[0].Messages, 1, "earlier snapshot must not see new messages")
	assert.Equal(t, eka.DefaultTitle, before[0].Title)
}

func ids(convs []eka.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}
