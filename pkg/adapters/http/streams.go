package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/wmbridge/pkg/domain"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// StreamManager fans bridge lifecycle events out to SSE clients.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	buffer      int
	logger      *slog.Logger
}

// NewStreamManager creates a manager whose subscribers buffer up to
// buffer events before dropping.
func NewStreamManager(buffer int, logger *slog.Logger) *StreamManager {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		subscribers: make(map[chan Event]struct{}),
		buffer:      buffer,
		logger:      logger,
	}
}

// Subscribe registers a client. The returned func unregisters it and closes the channel.
func (sm *StreamManager) Subscribe() (<-chan Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Event, sm.buffer)
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

// Subscribers returns the number of connected clients.
func (sm *StreamManager) Subscribers() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

// Broadcast sends an event to every client without blocking.
func (sm *StreamManager) Broadcast(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		sm.logger.Error("SSE: encode failed", "event", name, "error", err)
		return
	}
	ev := Event{Name: name, Data: string(data)}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers {
		select {
		case ch <- ev:
		default:
			// slow client
			sm.logger.Warn("SSE: client buffer full, dropping event", "event", name)
		}
	}
}

// Hooks returns lifecycle hooks that broadcast entity changes, command
// outcomes and completed input phases.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnEntityAdded: func(_ context.Context, e *domain.EntityEvent) {
			sm.Broadcast("entity-added", e)
		},
		OnEntityRemoved: func(_ context.Context, e *domain.EntityEvent) {
			sm.Broadcast("entity-removed", e)
		},
		OnCommand: func(_ context.Context, e *domain.CommandEvent) {
			sm.Broadcast("command", e)
		},
		OnActionResolved: func(_ context.Context, e *domain.CommandEvent) {
			sm.Broadcast("command", e)
		},
		OnPhase: func(_ context.Context, e *domain.PhaseEvent) {
			if e.Phase == domain.PhaseInput {
				sm.Broadcast("cycle", e)
			}
		},
	}
}

// SubscribeEvents handles GET /events (SSE). The optional watch query is a
// comma separated list of event names to receive.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var watch map[string]bool
	if v := r.URL.Query().Get("watch"); v != "" {
		watch = make(map[string]bool)
		for _, name := range strings.Split(v, ",") {
			watch[strings.TrimSpace(name)] = true
		}
	}

	ch, cancel := s.streams.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if watch != nil && !watch[ev.Name] {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			flusher.Flush()
		}
	}
}
