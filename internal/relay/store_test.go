package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/sheetsync/internal/core/protocol"
	"github.com/zeusync/sheetsync/internal/core/sequencer"
)

func TestMemoryStore_CommitOnHeadOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, nil)

	out, err := store.Commit(ctx, "doc", revision("alice", protocol.StartRevisionID, "r1", "a"))
	require.NoError(t, err)
	assert.Equal(t, "r1", out.NextRevisionID)

	_, err = store.Commit(ctx, "doc", revision("bob", protocol.StartRevisionID, "r2", "b"))
	assert.ErrorIs(t, err, protocol.ErrUnexpectedRevisionID)

	// another document has its own head
	_, err = store.Commit(ctx, "other", revision("bob", protocol.StartRevisionID, "r2", "b"))
	require.NoError(t, err)

	snapshot, messages, err := store.Load(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, protocol.StartRevisionID, snapshot.RevisionID)
	require.Len(t, messages, 1)
	assert.Equal(t, "alice", messages[0].ClientID)
}

func TestMemoryStore_ConcurrentCommitsKeepOneWinnerPerRevision(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(4, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := fmt.Sprintf("c%d", i)
			if _, err := store.Commit(ctx, "doc", revision(client, protocol.StartRevisionID, client, "x")); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestMemoryStore_RestoresFromSnapshots(t *testing.T) {
	ctx := context.Background()
	snapshots := NewMemorySnapshots()
	require.NoError(t, snapshots.SaveSnapshot(ctx, "doc", sequencer.Snapshot{RevisionID: "snap", Data: []byte(`{}`)}))

	store := NewMemoryStore(1, snapshots)
	_, err := store.Commit(ctx, "doc", revision("alice", protocol.StartRevisionID, "r1", "a"))
	assert.ErrorIs(t, err, protocol.ErrUnexpectedRevisionID)

	_, err = store.Commit(ctx, "doc", revision("alice", "snap", "r1", "a"))
	require.NoError(t, err)

	_, err = store.Commit(ctx, "doc", protocol.NewSnapshot("r1", "snap2", []byte(`{"a":1}`)))
	require.NoError(t, err)
	stored, found, err := snapshots.LoadSnapshot(ctx, "doc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "snap2", stored.RevisionID)

	_, found, err = snapshots.LoadSnapshot(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryPresence(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresence()
	require.NoError(t, p.Set(ctx, "doc", protocol.Client{ID: "b"}))
	require.NoError(t, p.Set(ctx, "doc", protocol.Client{ID: "a"}))
	require.NoError(t, p.Set(ctx, "doc", protocol.Client{ID: "a", Name: "Alice"}))

	clients, err := p.List(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []protocol.Client{{ID: "a", Name: "Alice"}, {ID: "b"}}, clients)

	require.NoError(t, p.Remove(ctx, "doc", "a"))
	require.NoError(t, p.Remove(ctx, "doc", "b"))
	clients, err = p.List(ctx, "doc")
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestLocalBroker_CancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBroker()
	var got []string
	cancel, err := b.Subscribe(ctx, "doc", func(m protocol.Message) { got = append(got, m.ClientID) })
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "doc", protocol.NewClientLeft("a")))
	require.NoError(t, b.Publish(ctx, "other", protocol.NewClientLeft("b")))
	cancel()
	cancel()
	require.NoError(t, b.Publish(ctx, "doc", protocol.NewClientLeft("c")))

	assert.Equal(t, []string{"a"}, got)
}
