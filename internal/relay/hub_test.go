package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/protocol"
)

type fakePeer struct {
	id       string
	failSend error

	mu       sync.Mutex
	received []protocol.Message
	closed   bool
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(msg protocol.Message) error {
	if p.failSend != nil {
		return p.failSend
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, msg)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) RemoteAddr() net.Addr { return &net.TCPAddr{} }

func (p *fakePeer) messages() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Message, len(p.received))
	copy(out, p.received)
	return out
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func types(messages []protocol.Message) []protocol.MessageType {
	out := make([]protocol.MessageType, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Type)
	}
	return out
}

type fakeExporter struct {
	mu       sync.Mutex
	exported []protocol.Message
}

func (e *fakeExporter) Export(_ string, msg protocol.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exported = append(e.exported, msg)
	return nil
}

type hubFixture struct {
	hub       *Hub
	metrics   *Metrics
	exporter  *fakeExporter
	snapshots *MemorySnapshots
}

func newHubFixture(t *testing.T) hubFixture {
	t.Helper()
	f := hubFixture{
		metrics:   NewMetrics(prometheus.NewRegistry()),
		exporter:  &fakeExporter{},
		snapshots: NewMemorySnapshots(),
	}
	f.hub = NewHub(HubConfig{
		Store:    NewMemoryStore(4, f.snapshots),
		Exporter: f.exporter,
		Metrics:  f.metrics,
		Shards:   4,
	})
	return f
}

func revision(clientID, from, to string, content string) protocol.Message {
	return protocol.NewRemoteRevision(clientID, from, to, []command.Command{
		command.UpdateCell{SheetID: "s1", Col: 0, Row: 0, Content: content},
	})
}

func TestHub_CommitIsBroadcastToEveryPeer(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	require.NoError(t, f.hub.Join(ctx, "doc", alice, ""))
	require.NoError(t, f.hub.Join(ctx, "doc", bob, ""))

	msg := revision("alice", protocol.StartRevisionID, "r1", "hello")
	require.NoError(t, f.hub.Handle(ctx, "doc", alice, msg))

	assert.Equal(t, []protocol.Message{msg}, alice.messages())
	assert.Equal(t, []protocol.Message{msg}, bob.messages())
	assert.Equal(t, []protocol.Message{msg}, f.exporter.exported)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Commits.WithLabelValues(CommitAccepted)))
	assert.Equal(t, HubStats{Peers: 2, Rooms: 1}, f.hub.Stats())
}

func TestHub_StaleUpdateIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	require.NoError(t, f.hub.Join(ctx, "doc", alice, ""))
	require.NoError(t, f.hub.Join(ctx, "doc", bob, ""))

	require.NoError(t, f.hub.Handle(ctx, "doc", alice, revision("alice", protocol.StartRevisionID, "r1", "a")))
	require.NoError(t, f.hub.Handle(ctx, "doc", bob, revision("bob", protocol.StartRevisionID, "r2", "b")))

	assert.Len(t, bob.messages(), 1)
	assert.Equal(t, "r1", bob.messages()[0].NextRevisionID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Commits.WithLabelValues(CommitRejected)))
	assert.Len(t, f.exporter.exported, 1)
}

func TestHub_RejectsForeignIdentity(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	alice := newFakePeer("alice")
	require.NoError(t, f.hub.Join(ctx, "doc", alice, ""))

	err := f.hub.Handle(ctx, "doc", alice, revision("mallory", protocol.StartRevisionID, "r1", "x"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = f.hub.Handle(ctx, "doc", alice, protocol.NewClientLeft("mallory"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = f.hub.Handle(ctx, "doc", alice, protocol.NewSnapshotCreated("a", "b"))
	assert.ErrorIs(t, err, protocol.ErrInvalidMessage)
	assert.Empty(t, alice.messages())
}

func TestHub_Presence(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	require.NoError(t, f.hub.Join(ctx, "doc", alice, ""))
	require.NoError(t, f.hub.Join(ctx, "doc", bob, ""))

	joined := protocol.NewClientJoined(protocol.Client{ID: "bob", Name: "Bob", Position: &protocol.ClientPosition{SheetID: "s1"}})
	require.NoError(t, f.hub.Handle(ctx, "doc", bob, joined))
	assert.Equal(t, []protocol.Message{joined}, alice.messages())

	clients, err := f.hub.Clients(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []protocol.Client{*joined.Client}, clients)

	// a late joiner learns about the clients already there
	carol := newFakePeer("carol")
	require.NoError(t, f.hub.Join(ctx, "doc", carol, ""))
	assert.Equal(t, []protocol.MessageType{protocol.MessageClientJoined}, types(carol.messages()))

	require.NoError(t, f.hub.Leave(ctx, "doc", bob))
	assert.Equal(t, protocol.NewClientLeft("bob"), alice.messages()[len(alice.messages())-1])
	clients, err = f.hub.Clients(ctx, "doc")
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestHub_JoinCatchesUpFromRevision(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	alice := newFakePeer("alice")
	require.NoError(t, f.hub.Join(ctx, "doc", alice, ""))
	require.NoError(t, f.hub.Handle(ctx, "doc", alice, revision("alice", protocol.StartRevisionID, "r1", "a")))
	require.NoError(t, f.hub.Handle(ctx, "doc", alice, revision("alice", "r1", "r2", "b")))

	late := newFakePeer("late")
	require.NoError(t, f.hub.Join(ctx, "doc", late, "r1"))
	require.Len(t, late.messages(), 1)
	assert.Equal(t, "r2", late.messages()[0].NextRevisionID)

	fresh := newFakePeer("fresh")
	require.NoError(t, f.hub.Join(ctx, "doc", fresh, protocol.StartRevisionID))
	assert.Len(t, fresh.messages(), 2)

	lost := newFakePeer("lost")
	require.NoError(t, f.hub.Join(ctx, "doc", lost, "unknown"))
	assert.Empty(t, lost.messages())
}

func TestHub_SnapshotIsStored(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	alice := newFakePeer("alice")
	require.NoError(t, f.hub.Join(ctx, "doc", alice, ""))
	require.NoError(t, f.hub.Handle(ctx, "doc", alice, revision("alice", protocol.StartRevisionID, "r1", "a")))

	snapshot := protocol.NewSnapshot("r1", "snap", []byte(`{"sheets":{}}`))
	require.NoError(t, f.hub.Handle(ctx, "doc", alice, snapshot))
	assert.Equal(t, protocol.NewSnapshotCreated("r1", "snap"), alice.messages()[1])

	stored, found, err := f.snapshots.LoadSnapshot(ctx, "doc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "snap", stored.RevisionID)

	loaded, err := f.hub.Load(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "snap", loaded.RevisionID)
	assert.JSONEq(t, `{"sheets":{}}`, string(loaded.Data))
	assert.Empty(t, loaded.Messages)
}

func TestHub_FailingPeerIsClosed(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	alice, broken := newFakePeer("alice"), newFakePeer("broken")
	broken.failSend = errors.New("write: broken pipe")
	require.NoError(t, f.hub.Join(ctx, "doc", alice, ""))
	require.NoError(t, f.hub.Join(ctx, "doc", broken, ""))

	require.NoError(t, f.hub.Handle(ctx, "doc", alice, revision("alice", protocol.StartRevisionID, "r1", "a")))
	assert.True(t, broken.isClosed())
	assert.Len(t, alice.messages(), 1)
}

func TestHub_ReconnectReplacesPeer(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	first, second := newFakePeer("alice"), newFakePeer("alice")
	require.NoError(t, f.hub.Join(ctx, "doc", first, ""))
	require.NoError(t, f.hub.Join(ctx, "doc", second, ""))
	assert.True(t, first.isClosed())

	// the stale connection leaving does not evict the new one
	require.NoError(t, f.hub.Leave(ctx, "doc", first))
	assert.Equal(t, HubStats{Peers: 1, Rooms: 1}, f.hub.Stats())

	require.NoError(t, f.hub.Leave(ctx, "doc", second))
	assert.Equal(t, HubStats{}, f.hub.Stats())
}

func TestHub_DocumentsAreIsolated(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	require.NoError(t, f.hub.Join(ctx, "one", alice, ""))
	require.NoError(t, f.hub.Join(ctx, "two", bob, ""))

	require.NoError(t, f.hub.Handle(ctx, "one", alice, revision("alice", protocol.StartRevisionID, "r1", "a")))
	require.NoError(t, f.hub.Handle(ctx, "two", bob, revision("bob", protocol.StartRevisionID, "r1", "b")))

	assert.Equal(t, "alice", alice.messages()[0].ClientID)
	assert.Equal(t, "bob", bob.messages()[0].ClientID)
	assert.Len(t, alice.messages(), 1)
	assert.Len(t, bob.messages(), 1)
}

func TestHub_CommitWithoutPeers(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	require.NoError(t, f.hub.Commit(ctx, "doc", "alice", revision("alice", protocol.StartRevisionID, "r1", "a")))

	loaded, err := f.hub.Load(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, protocol.StartRevisionID, loaded.RevisionID)
	assert.Len(t, loaded.Messages, 1)

	assert.ErrorIs(t, f.hub.Commit(ctx, "", "alice", revision("alice", "r1", "r2", "b")), ErrInvalidDocumentID)
}
