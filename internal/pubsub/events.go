// Package pubsub fans typed notifications out to any number of listeners
// without letting a slow listener stall the publisher.
package pubsub

import (
	"context"
	"time"
)

// EventType names what happened to the payload's subject.
type EventType string

// Event kinds.
const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

// Event is one delivered notification.
//
// Seq counts publishes on the broker, starting at 1. Dropped is how many
// publishes this listener missed since its previous delivery because its
// buffer was full. Views that render current state treat Dropped > 0 as a
// cue to reload everything.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
	Seq       uint64
	Dropped   uint64
}

// Subscriber is the listening half of a Broker.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher is the sending half of a Broker.
type Publisher[T any] interface {
	Publish(kind EventType, payload T)
}

var (
	_ Subscriber[struct{}] = (*Broker[struct{}])(nil)
	_ Publisher[struct{}]  = (*Broker[struct{}])(nil)
)
