package publish

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := NewMemory()

	id1, err := pub.Publish(context.Background(), "events", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "events", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "events", msgs[0].Topic)

	msgs[0].Topic = "modified"
	require.Equal(t, "events", pub.Messages()[0].Topic)
}
