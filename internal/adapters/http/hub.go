package http

import (
	"context"
	"log/slog"
	"sync"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/metrics"
)

// SessionHub tracks live sessions so backend changes can reach all of them.
type SessionHub struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionHub creates an empty hub.
func NewSessionHub(log *slog.Logger) *SessionHub {
	if log == nil {
		log = slog.Default()
	}
	return &SessionHub{log: log, sessions: make(map[string]*Session)}
}

// Add registers a session.
func (h *SessionHub) Add(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	metrics.ActiveSessions.Inc()
}

// Remove forgets a session.
func (h *SessionHub) Remove(id string) {
	h.mu.Lock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		metrics.ActiveSessions.Dec()
	}
}

// Len returns the number of live sessions.
func (h *SessionHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RefreshAll asks every session to re-fetch and returns how many were asked.
func (h *SessionHub) RefreshAll() int {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Refresh()
	}
	return len(sessions)
}

// HandleFacilitiesChanged is the subscriber callback for backend changes.
func (h *SessionHub) HandleFacilitiesChanged(_ context.Context, event *domain.FacilitiesChanged) error {
	n := h.RefreshAll()
	h.log.Info("facilities changed, sessions refreshed",
		"run_id", event.RunID, "count", event.Count, "sessions", n)
	return nil
}
