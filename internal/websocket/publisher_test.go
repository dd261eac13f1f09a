package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHub_Implements_EventPublisher(t *testing.T) {
	// Compile-time check that Hub implements EventPublisher
	var _ EventPublisher = (*Hub)(nil)
}

func TestHub_Publish(t *testing.T) {
	hub := NewHub()

	client := newMockClient("client-1", "phone")
	hub.Register(client)

	var publisher EventPublisher = hub
	publisher.Publish(TransactionCreated(map[string]interface{}{"id": float64(42)}))

	assert.Len(t, client.GetMessages(), 1)
}

func TestNoOpPublisher_Publish(t *testing.T) {
	publisher := NoOpPublisher{}

	// Should not panic
	assert.NotPanics(t, func() {
		publisher.Publish(TransactionCreated(map[string]interface{}{"id": float64(1)}))
	})
}
