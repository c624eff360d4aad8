package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListenCmd_YieldsEventAsMsg(t *testing.T) {
	b := NewBroker[checkUpdate]()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx)

	b.Publish(UpdatedEvent, checkUpdate{CheckID: 3, Processed: 12})

	msg := listenCmd(ctx, ch)()
	ev, ok := msg.(Event[checkUpdate])
	require.True(t, ok, "got %T", msg)
	require.Equal(t, int64(3), ev.Payload.CheckID)
	require.Equal(t, 12, ev.Payload.Processed)
}

func TestListenCmd_NilWhenDone(t *testing.T) {
	t.Run("context cancelled", func(t *testing.T) {
		b := NewBroker[int64]()
		defer b.Close()
		ctx, cancel := context.WithCancel(context.Background())
		ch := b.Subscribe(ctx)
		cancel()
		require.Nil(t, listenCmd(ctx, ch)())
	})

	t.Run("channel closed", func(t *testing.T) {
		ch := make(chan Event[int64])
		close(ch)
		require.Nil(t, listenCmd(context.Background(), ch)())
	})

	t.Run("broker closed", func(t *testing.T) {
		b := NewBroker[int64]()
		ch := b.Subscribe(context.Background())
		b.Close()
		require.Nil(t, listenCmd(context.Background(), ch)())
	})
}

func TestContinuousListener_KeepsOrder(t *testing.T) {
	b := NewBroker[checkUpdate]()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewContinuousListener[checkUpdate](ctx, b)

	sent := []struct {
		kind EventType
		id   int64
	}{
		{CreatedEvent, 21},
		{UpdatedEvent, 21},
		{DeletedEvent, 20},
	}
	for _, s := range sent {
		b.Publish(s.kind, checkUpdate{CheckID: s.id})
	}

	for i, s := range sent {
		ev, ok := l.Listen()().(Event[checkUpdate])
		require.True(t, ok)
		require.Equal(t, s.kind, ev.Type)
		require.Equal(t, s.id, ev.Payload.CheckID)
		require.Equal(t, uint64(i+1), ev.Seq)
	}
}
