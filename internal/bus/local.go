package bus

import (
	"context"
	"log"
	"strings"
	"sync"
)

// LocalBus is an in-process fallback used when no broker is configured.
// Each subscription owns a buffered channel drained by one goroutine, so
// deliveries to a single subscription keep publish order.
type LocalBus struct {
	logger     *log.Logger
	bufferSize int

	mu     sync.Mutex
	subs   []*localSub
	closed bool

	wg sync.WaitGroup
}

type localSub struct {
	filter  string
	handler Handler
	ch      chan Message
}

func NewLocalBus(bufferSize int, logger *log.Logger) *LocalBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &LocalBus{
		logger:     logger,
		bufferSize: bufferSize,
		subs:       make([]*localSub, 0),
	}
}

func (b *LocalBus) Subscribe(ctx context.Context, filter string, handler Handler) error {
	sub := &localSub{
		filter:  filter,
		handler: handler,
		ch:      make(chan Message, b.bufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return context.Canceled
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.ch:
				if !ok {
					return
				}
				sub.handler(ctx, msg)
			}
		}
	}()
	return nil
}

func (b *LocalBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	targets := make([]*localSub, 0, len(b.subs))
	for _, sub := range b.subs {
		if topicMatches(sub.filter, topic) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub.ch <- Message{Topic: topic, Payload: payload}:
		default:
			if b.logger != nil {
				b.logger.Printf("local bus dropped message topic=%s filter=%s: subscriber backlog full", topic, sub.filter)
			}
		}
	}
	return nil
}

func (b *LocalBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
	b.wg.Wait()
}

// topicMatches implements MQTT filter matching: "+" matches exactly one
// level, "#" matches all remaining levels.
func topicMatches(filter, topic string) bool {
	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}
	return len(filterParts) == len(topicParts)
}
