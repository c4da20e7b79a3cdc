package relay

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/sheetsync/internal/core/protocol"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("SHEETSYNC_TEST_REDIS")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisStore_Commit(t *testing.T) {
	ctx := context.Background()
	store := NewRedisStore(newRedis(t), false)
	doc := uuid.NewString()

	_, err := store.Commit(ctx, doc, revision("alice", protocol.StartRevisionID, "r1", "a"))
	require.NoError(t, err)
	_, err = store.Commit(ctx, doc, revision("bob", protocol.StartRevisionID, "r2", "b"))
	assert.ErrorIs(t, err, protocol.ErrUnexpectedRevisionID)

	out, err := store.Commit(ctx, doc, protocol.NewSnapshot("r1", "snap", []byte(`{"a":1}`)))
	require.NoError(t, err)
	assert.Equal(t, protocol.NewSnapshotCreated("r1", "snap"), out)

	_, err = store.Commit(ctx, doc, revision("bob", "snap", "r3", "c"))
	require.NoError(t, err)

	snapshot, messages, err := store.Load(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "snap", snapshot.RevisionID)
	assert.JSONEq(t, `{"a":1}`, string(snapshot.Data))
	require.Len(t, messages, 1)
	assert.Equal(t, "r3", messages[0].NextRevisionID)

	snapshot, messages, err = store.Load(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, protocol.StartRevisionID, snapshot.RevisionID)
	assert.Empty(t, messages)
}

func TestRedisBroker_CommitsArePublishedInOrder(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	broker := NewRedisBroker(rdb)
	store := NewRedisStore(rdb, true)
	doc := uuid.NewString()

	received := make(chan protocol.Message, 8)
	cancel, err := broker.Subscribe(ctx, doc, func(m protocol.Message) { received <- m })
	require.NoError(t, err)
	defer cancel()

	_, err = store.Commit(ctx, doc, revision("alice", protocol.StartRevisionID, "r1", "a"))
	require.NoError(t, err)
	_, err = store.Commit(ctx, doc, revision("alice", "r1", "r2", "b"))
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, doc, protocol.NewClientLeft("alice")))

	for _, want := range []string{"r1", "r2", ""} {
		select {
		case m := <-received:
			assert.Equal(t, want, m.NextRevisionID)
		case <-time.After(5 * time.Second):
			t.Fatalf("message %q not received", want)
		}
	}
}

func TestRedisPresence(t *testing.T) {
	ctx := context.Background()
	p := NewRedisPresence(newRedis(t))
	doc := uuid.NewString()

	require.NoError(t, p.Set(ctx, doc, protocol.Client{ID: "b"}))
	require.NoError(t, p.Set(ctx, doc, protocol.Client{ID: "a", Position: &protocol.ClientPosition{SheetID: "s1", Col: 1}}))
	clients, err := p.List(ctx, doc)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "a", clients[0].ID)
	assert.Equal(t, 1, clients[0].Position.Col)

	require.NoError(t, p.Remove(ctx, doc, "a"))
	require.NoError(t, p.Remove(ctx, doc, "b"))
	clients, err = p.List(ctx, doc)
	require.NoError(t, err)
	assert.Empty(t, clients)
}
