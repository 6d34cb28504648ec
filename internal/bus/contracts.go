package bus

import "context"

// Message is one delivery on a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler processes a delivered message. Handlers must not block the
// delivery goroutine for long; long-running work belongs in its own
// goroutine.
type Handler func(ctx context.Context, msg Message)

// Publisher sends messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber registers a handler for a topic filter. Filters use MQTT
// semantics: "+" matches one level, "#" matches the remaining levels.
type Subscriber interface {
	Subscribe(ctx context.Context, filter string, handler Handler) error
}

// Bus is the full trigger/status transport.
type Bus interface {
	Publisher
	Subscriber
	Close()
}
