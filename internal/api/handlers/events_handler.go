package handlers

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/formsnapper/backend/pkg/logger"
)

// Event is one analysis progress notification pushed to connected clients.
type Event struct {
	Type   string         `json:"type"`
	Detail map[string]any `json:"detail,omitempty"`
}

// EventHub fans analysis progress events out to WebSocket subscribers. A
// subscriber only sees events published for its own user id; events for
// users with no open connection are dropped.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

// Publish delivers an event to every subscriber of the user. Slow consumers
// lose events rather than block the analysis.
func (h *EventHub) Publish(userID, eventType string, detail map[string]any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[userID] {
		select {
		case ch <- Event{Type: eventType, Detail: detail}:
		default:
		}
	}
}

func (h *EventHub) subscribe(userID string) (chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[chan Event]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers[userID], ch)
		if len(h.subscribers[userID]) == 0 {
			delete(h.subscribers, userID)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

type EventsHandler struct {
	hub *EventHub
}

func NewEventsHandler(hub *EventHub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// HandleConnection streams progress events to one client until it
// disconnects.
func (h *EventsHandler) HandleConnection(c *websocket.Conn) {
	userID := c.Query("user_id")
	logger.Info("Event stream connected", zap.String("user_id", userID))

	defer func() {
		c.Close()
		logger.Info("Event stream closed", zap.String("user_id", userID))
	}()

	events, cancel := h.hub.subscribe(userID)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-events:
			if err := c.WriteJSON(event); err != nil {
				logger.Debug("Failed to write event", zap.Error(err))
				return
			}
		case <-closed:
			return
		}
	}
}
