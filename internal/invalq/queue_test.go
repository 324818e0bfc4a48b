package invalq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/dbcore/internal/invalidation"
)

func TestConsumerOnlySeesMessagesAfterRegistration(t *testing.T) {
	q := New("")
	ctx := context.Background()

	q.Broadcast(ctx, []invalidation.Message{invalidation.Relation(1, 0)})

	c := q.NewConsumer()
	require.Empty(t, c.Drain())

	q.Broadcast(ctx, []invalidation.Message{invalidation.Relation(2, 0)})
	got := c.Drain()
	require.Len(t, got, 1)
	require.Equal(t, uint32(2), got[0].RelID)
}

func TestDrainIsCumulativeSinceLastCall(t *testing.T) {
	q := New("")
	ctx := context.Background()
	c := q.NewConsumer()

	q.Broadcast(ctx, []invalidation.Message{invalidation.Relation(1, 0), invalidation.Relation(2, 0)})
	require.Len(t, c.Drain(), 2)
	require.Empty(t, c.Drain())
}

func TestMultipleConsumersAreIndependent(t *testing.T) {
	q := New("")
	ctx := context.Background()
	a := q.NewConsumer()
	q.Broadcast(ctx, []invalidation.Message{invalidation.ResetAll(false)})
	b := q.NewConsumer()

	require.Len(t, a.Drain(), 1)
	require.Empty(t, b.Drain())
}

func TestJetStreamDisabledByDefault(t *testing.T) {
	q := New("")
	require.False(t, q.JetStreamEnabled())
}
