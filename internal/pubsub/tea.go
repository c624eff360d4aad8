package pubsub

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// listenCmd turns the next event on ch into a tea.Msg. The command yields
// nil once ctx is done or ch is closed, which ends the listen loop.
func listenCmd[T any](ctx context.Context, ch <-chan Event[T]) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if ok {
				return ev
			}
			return nil
		}
	}
}

// ContinuousListener holds a single subscription for a Bubble Tea model so
// that re-arming after each message does not resubscribe and lose events.
type ContinuousListener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewContinuousListener subscribes to src for the lifetime of ctx.
func NewContinuousListener[T any](ctx context.Context, src Subscriber[T]) *ContinuousListener[T] {
	return &ContinuousListener[T]{ctx: ctx, ch: src.Subscribe(ctx)}
}

// Listen waits for the next event. Return it from Update after handling
// each event to keep listening.
func (l *ContinuousListener[T]) Listen() tea.Cmd {
	return listenCmd(l.ctx, l.ch)
}
