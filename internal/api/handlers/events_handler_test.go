package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHubPublishToSubscriber(t *testing.T) {
	hub := NewEventHub()

	events, cancel := hub.subscribe("user-1")
	defer cancel()

	hub.Publish("user-1", "tier_started", map[string]any{"tier": 1})

	select {
	case event := <-events:
		assert.Equal(t, "tier_started", event.Type)
		assert.Equal(t, 1, event.Detail["tier"])
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestEventHubIsolatesUsers(t *testing.T) {
	hub := NewEventHub()

	events, cancel := hub.subscribe("user-1")
	defer cancel()

	hub.Publish("user-2", "tier_started", nil)
	assert.Empty(t, events)
}

func TestEventHubDropsWhenNoSubscriber(t *testing.T) {
	hub := NewEventHub()

	// Must not block or panic.
	hub.Publish("user-1", "tier_started", nil)
}

func TestEventHubSlowConsumerLosesEvents(t *testing.T) {
	hub := NewEventHub()

	events, cancel := hub.subscribe("user-1")
	defer cancel()

	for i := 0; i < 40; i++ {
		hub.Publish("user-1", "stage_completed", nil)
	}

	// The channel buffer bounds what a stalled consumer can hold.
	assert.Len(t, events, cap(events))
}

func TestEventHubCancelRemovesSubscription(t *testing.T) {
	hub := NewEventHub()

	events, cancel := hub.subscribe("user-1")
	cancel()

	hub.Publish("user-1", "tier_started", nil)
	require.Empty(t, events)
}
