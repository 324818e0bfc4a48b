package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlushDeliversInFIFOOrder(t *testing.T) {
	var order []string
	d := NewDispatcher(func(_ context.Context, n Notification) error {
		order = append(order, n.Payload)
		return nil
	})
	d.Enqueue(Notification{Channel: "c", Payload: "1"})
	d.Enqueue(Notification{Channel: "c", Payload: "2"})
	require.Equal(t, 2, d.Pending())

	d.Flush(context.Background())
	require.Equal(t, []string{"1", "2"}, order)
	require.Equal(t, 0, d.Pending())
}

func TestDiscardDropsWithoutDelivering(t *testing.T) {
	delivered := false
	d := NewDispatcher(func(context.Context, Notification) error {
		delivered = true
		return nil
	})
	d.Enqueue(Notification{Channel: "c", Payload: "x"})
	d.Discard()
	d.Flush(context.Background())
	require.False(t, delivered)
}

func TestNilDeliverDoesNotPanic(t *testing.T) {
	d := NewDispatcher(nil)
	d.Enqueue(Notification{Channel: "c", Payload: "x"})
	require.NotPanics(t, func() { d.Flush(context.Background()) })
}
