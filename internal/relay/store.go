package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/sheetsync/internal/core/protocol"
	"github.com/zeusync/sheetsync/internal/core/sequencer"
)

// Store orders the state updates of every document. Commit accepts a message
// only when it is built on the document head and returns the message to
// broadcast.
type Store interface {
	Commit(ctx context.Context, documentID string, msg protocol.Message) (protocol.Message, error)
	// Load returns the latest snapshot and the messages committed after it.
	Load(ctx context.Context, documentID string) (sequencer.Snapshot, []protocol.Message, error)
}

// SnapshotStore keeps the latest snapshot of each document durably.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, documentID string, snapshot sequencer.Snapshot) error
	// LoadSnapshot reports false when the document has no snapshot.
	LoadSnapshot(ctx context.Context, documentID string) (sequencer.Snapshot, bool, error)
}

type shard struct {
	mu         sync.Mutex
	sequencers map[string]*sequencer.Sequencer
}

// MemoryStore keeps one sequencer per document in process memory. Documents
// are spread over shards by the xxhash of their id.
type MemoryStore struct {
	shards    []*shard
	snapshots SnapshotStore
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store. Snapshots are written through to
// snapshots when it is not nil, and documents unknown to the process are
// restored from it.
func NewMemoryStore(shardCount int, snapshots SnapshotStore) *MemoryStore {
	if shardCount <= 0 {
		shardCount = 16
	}
	s := &MemoryStore{shards: make([]*shard, shardCount), snapshots: snapshots}
	for i := range s.shards {
		s.shards[i] = &shard{sequencers: make(map[string]*sequencer.Sequencer)}
	}
	return s
}

func (s *MemoryStore) shardFor(documentID string) *shard {
	return s.shards[xxhash.Sum64String(documentID)%uint64(len(s.shards))]
}

func (s *MemoryStore) sequencer(ctx context.Context, documentID string) (*sequencer.Sequencer, error) {
	sh := s.shardFor(documentID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if seq, ok := sh.sequencers[documentID]; ok {
		return seq, nil
	}
	seq := sequencer.New()
	if s.snapshots != nil {
		snapshot, found, err := s.snapshots.LoadSnapshot(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if found {
			seq = sequencer.Restore(snapshot, nil)
		}
	}
	sh.sequencers[documentID] = seq
	return seq, nil
}

func (s *MemoryStore) Commit(ctx context.Context, documentID string, msg protocol.Message) (protocol.Message, error) {
	seq, err := s.sequencer(ctx, documentID)
	if err != nil {
		return protocol.Message{}, err
	}
	out, err := seq.Commit(msg)
	if err != nil {
		return protocol.Message{}, err
	}
	if out.Type == protocol.MessageSnapshotCreated && s.snapshots != nil {
		if err = s.snapshots.SaveSnapshot(ctx, documentID, seq.Snapshot()); err != nil {
			return protocol.Message{}, err
		}
	}
	return out, nil
}

func (s *MemoryStore) Load(ctx context.Context, documentID string) (sequencer.Snapshot, []protocol.Message, error) {
	seq, err := s.sequencer(ctx, documentID)
	if err != nil {
		return sequencer.Snapshot{}, nil, err
	}
	return seq.Snapshot(), seq.Messages(), nil
}

// MemorySnapshots is a SnapshotStore for tests and single node setups.
type MemorySnapshots struct {
	mu        sync.Mutex
	snapshots map[string]sequencer.Snapshot
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{snapshots: make(map[string]sequencer.Snapshot)}
}

func (m *MemorySnapshots) SaveSnapshot(_ context.Context, documentID string, snapshot sequencer.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[documentID] = snapshot
	return nil
}

func (m *MemorySnapshots) LoadSnapshot(_ context.Context, documentID string) (sequencer.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[documentID]
	return snapshot, ok, nil
}

// Snapshot is what a client needs to open a document: the latest snapshot and
// the messages committed after it.
type Snapshot struct {
	RevisionID string             `json:"revisionId"`
	Data       json.RawMessage    `json:"data,omitempty"`
	Messages   []protocol.Message `json:"messages"`
}
