package websocket

// EventPublisher is how services announce ledger changes
type EventPublisher interface {
	Publish(event Event)
}

// NoOpPublisher discards events
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(Event) {}
