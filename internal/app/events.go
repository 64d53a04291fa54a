package app

import (
	"sync"

	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/rs/zerolog/log"
)

// Hub fans session events out to subscribers. Slow subscribers miss events
// instead of blocking publishers. A nil *Hub drops everything.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan domain.SessionEvent]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	return &Hub{subs: make(map[chan domain.SessionEvent]struct{}), buffer: buffer}
}

// Subscribe returns the event channel and a func that cancels the subscription
// and closes the channel. A nil Hub yields an already closed channel.
func (h *Hub) Subscribe() (<-chan domain.SessionEvent, func()) {
	if h == nil {
		ch := make(chan domain.SessionEvent)
		close(ch)
		return ch, func() {}
	}
	ch := make(chan domain.SessionEvent, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(ev domain.SessionEvent) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Debug().Str("module", "app.events").Str("sid", string(ev.ID)).Msg("subscriber lagging, event dropped")
		}
	}
}

func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
