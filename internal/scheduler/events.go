package scheduler

import (
	"log/slog"
	"sync"

	"github.com/ykarpov/dlqueue/internal/domain"
)

// hub fans task events out to presentation shells. Publishing never blocks
// the coordinating context: a subscriber that falls behind loses events.
type hub struct {
	mu     sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
	closed bool
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		subs:   make(map[int]chan domain.Event),
		logger: logger,
	}
}

// Subscribe registers a buffered event channel. The returned cancel
// function is safe to call more than once.
func (h *hub) Subscribe(buffer int) (<-chan domain.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan domain.Event, buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

func (h *hub) Publish(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("dropping event for slow subscriber", "subscriber", id, "type", ev.Type)
		}
	}
}

func (h *hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
