// Package events fans progress notifications out to subscribers.
package events

import (
	"sync"

	"amc-progress-service/internal/domain"
)

// Kind names a notification.
type Kind string

const (
	DataChanged   Kind = "data_changed"
	LevelUp       Kind = "level_up"
	CoinsChanged  Kind = "coins_changed"
	StreakStarted Kind = "streak_started"
	StreakBroken  Kind = "streak_broken"
	BadgeEarned   Kind = "badge_earned"
)

// Event is a single notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind    Kind                `json:"kind"`
	Level   int                 `json:"level,omitempty"`
	Balance int                 `json:"balance,omitempty"`
	Streak  int                 `json:"streak,omitempty"`
	Badge   *domain.BadgeStatus `json:"badge,omitempty"`
}

const subscriberBuffer = 16

// Hub delivers every published event to every subscriber in publish order.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a listener. The caller must invoke cancel to release it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish sends events to all subscribers. A full subscriber loses its
// oldest pending event rather than blocking the publisher.
func (h *Hub) Publish(evts ...Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, evt := range evts {
		for ch := range h.subscribers {
			select {
			case ch <- evt:
			default:
				select {
				case <-ch:
				default:
				}
				ch <- evt
			}
		}
	}
}

// Len reports the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
