package chat

import (
	"context"
	"sync"
	"time"

	"github.com/fwojciec/eka"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// writer persists controller state on its own goroutine. Each enqueue
// replaces whatever is pending, so a burst of deltas collapses into a
// single Save of the newest snapshot.
type writer struct {
	store   eka.ConversationStore
	log     zerolog.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	convs    []eka.Conversation
	dirty    bool
	activeID string
	active   bool
	closed   bool

	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

func newWriter(store eka.ConversationStore, log zerolog.Logger, interval time.Duration) *writer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &writer{
		store:   store,
		log:     log,
		limiter: rate.NewLimiter(limit, 1),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue schedules convs to be saved. Callers must pass a snapshot they
// will not modify afterwards.
func (w *writer) enqueue(convs []eka.Conversation) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.save(convs)
		return
	}
	w.convs = convs
	w.dirty = true
	w.mu.Unlock()
	w.signal()
}

// enqueueActive schedules the active conversation ID to be saved.
func (w *writer) enqueueActive(id string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.saveActive(id)
		return
	}
	w.activeID = id
	w.active = true
	w.mu.Unlock()
	w.signal()
}

func (w *writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.wake:
		case <-w.ctx.Done():
			w.flush()
			return
		}
		if err := w.limiter.Wait(w.ctx); err != nil {
			w.flush()
			return
		}
		w.flush()
	}
}

func (w *writer) flush() {
	w.mu.Lock()
	convs, dirty := w.convs, w.dirty
	activeID, active := w.activeID, w.active
	w.convs, w.dirty = nil, false
	w.activeID, w.active = "", false
	w.mu.Unlock()

	if dirty {
		w.save(convs)
	}
	if active {
		w.saveActive(activeID)
	}
}

func (w *writer) save(convs []eka.Conversation) {
	if err := w.store.Save(convs); err != nil {
		w.log.Error().Err(err).Int("conversations", len(convs)).Msg("save conversations")
	}
}

func (w *writer) saveActive(id string) {
	if err := w.store.SaveActiveID(id); err != nil {
		w.log.Error().Err(err).Str("conversation", id).Msg("save active conversation")
	}
}

// close stops the goroutine and flushes anything still pending. Later
// enqueues are saved synchronously. Calls to enqueue must not race with
// close.
func (w *writer) close() {
	w.cancel()
	<-w.stopped
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.flush()
}
