package app

import (
	"testing"

	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishFansOut(t *testing.T) {
	h := NewHub(1)
	a, unsubA := h.Subscribe()
	b, unsubB := h.Subscribe()
	defer unsubB()

	h.Publish(domain.SessionEvent{Type: domain.SessionInserted, ID: "x"})
	assert.Equal(t, domain.SessionID("x"), (<-a).ID)
	assert.Equal(t, domain.SessionID("x"), (<-b).ID)

	unsubA()
	unsubA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers())
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(1)
	ch, unsub := h.Subscribe()
	defer unsub()

	h.Publish(domain.SessionEvent{ID: "1"})
	h.Publish(domain.SessionEvent{ID: "2"})

	require.Len(t, ch, 1)
	assert.Equal(t, domain.SessionID("1"), (<-ch).ID)
}

func TestHub_NilPublish(t *testing.T) {
	var h *Hub
	assert.NotPanics(t, func() { h.Publish(domain.SessionEvent{}) })
}

func TestHub_NilSubscribe(t *testing.T) {
	var h *Hub
	ch, unsubscribe := h.Subscribe()
	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, unsubscribe)
	assert.Zero(t, h.Subscribers())
}
