package bubbletea_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/eka"
	bt "github.com/fwojciec/eka/bubbletea"
	"github.com/fwojciec/eka/chat"
	"github.com/fwojciec/eka/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

const answerStream = "event: meta\ndata: {\"citations\":[{\"ref\":1,\"title\":\"Lease.pdf\",\"doc_id\":\"d1\",\"page\":7,\"snippet\":\"The tenant may terminate\"}]}\n\n" +
	"event: token\ndata: {\"delta\":\"Three months \"}\n\n" +
	"event: token\ndata: {\"delta\":\"notice [1].\"}\n\n" +
	"event: done\ndata: [DONE]\n\n"

// memStore is an in-memory conversation store.
type memStore struct {
	mu     sync.Mutex
	convs  []eka.Conversation
	active string
}

func (s *memStore) mock() *mock.ConversationStore {
	return &mock.ConversationStore{
		LoadFn: func() ([]eka.Conversation, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.convs, nil
		},
		SaveFn: func(convs []eka.Conversation) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.convs = convs
			return nil
		},
		LoadActiveIDFn: func() (string, error) {
			return s.active, nil
		},
	}
}

func streamBackend(stream string) *mock.ChatBackend {
	return &mock.ChatBackend{
		StreamChatFn: func(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(stream)), nil
		},
	}
}

// blockingBackend streams one token and then waits for the context.
func blockingBackend() *mock.ChatBackend {
	return &mock.ChatBackend{
		StreamChatFn: func(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error) {
			pr, pw := io.Pipe()
			go func() {
				_, _ = pw.Write([]byte("event: token\ndata: {\"delta\":\"Working on it\"}\n\n"))
				<-ctx.Done()
				pw.CloseWithError(ctx.Err())
			}()
			return pr, nil
		},
	}
}

func newController(t *testing.T, backend eka.ChatBackend, initial ...eka.Conversation) *chat.Controller {
	t.Helper()
	store := &memStore{convs: initial}
	if len(initial) > 0 {
		store.active = initial[0].ID
	}
	c := chat.New(backend, store.mock(), chat.WithSaveInterval(0), chat.WithClock(func() time.Time { return testNow }))
	require.NoError(t, c.Open())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// initModel creates a model over ctrl and sends a WindowSizeMsg to
// initialize the viewport.
func initModel(t *testing.T, ctrl bt.Controller, width, height int) bt.Model {
	t.Helper()
	m := bt.New(ctrl, eka.DefaultTheme(), bt.WithClock(func() time.Time { return testNow }))
	return updateModel(t, m, tea.WindowSizeMsg{Width: width, Height: height})
}

// updateModel sends a message and returns the updated Model.
func updateModel(t *testing.T, m bt.Model, msg tea.Msg) bt.Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

func conversation(id, title string, created time.Time, msgs ...eka.Message) eka.Conversation {
	conv := eka.NewConversation(id, id+"-welcome", created)
	conv.Title = title
	return conv.WithMessages(msgs...)
}
