// Package sequencer is the serialization point of a document: it accepts a
// state update only when it was built on top of the latest revision.
package sequencer

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/zeusync/sheetsync/internal/core/protocol"
)

// Snapshot is the full document state at RevisionID.
type Snapshot struct {
	RevisionID string          `json:"revisionId"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Sequencer keeps the head revision, the messages committed since the last
// snapshot and that snapshot. It is safe for concurrent use.
type Sequencer struct {
	mu       sync.Mutex
	head     string
	snapshot Snapshot
	messages []protocol.Message
}

// New starts a sequencer for a document with no history.
func New() *Sequencer {
	return Restore(Snapshot{RevisionID: protocol.StartRevisionID}, nil)
}

// Restore rebuilds a sequencer from a snapshot and the messages committed
// after it.
func Restore(snapshot Snapshot, messages []protocol.Message) *Sequencer {
	s := &Sequencer{
		head:     snapshot.RevisionID,
		snapshot: snapshot,
		messages: slices.Clone(messages),
	}
	for _, m := range messages {
		if m.Type.IsRevision() {
			s.head = m.NextRevisionID
		}
	}
	return s
}

// Commit validates msg against the head and returns the message to broadcast.
// Presence messages always pass. A SNAPSHOT is turned into SNAPSHOT_CREATED.
func (s *Sequencer) Commit(msg protocol.Message) (protocol.Message, error) {
	if err := msg.Validate(); err != nil {
		return protocol.Message{}, err
	}
	if msg.Type.IsPresence() {
		return msg, nil
	}
	if !msg.Type.IsStateUpdate() {
		return protocol.Message{}, fmt.Errorf("%w: %s is emitted by the server only", protocol.ErrInvalidMessage, msg.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ServerRevisionID != s.head {
		return protocol.Message{}, fmt.Errorf("%w: got %s, head is %s", protocol.ErrUnexpectedRevisionID, msg.ServerRevisionID, s.head)
	}

	s.head = msg.NextRevisionID
	if msg.Type == protocol.MessageSnapshot {
		s.snapshot = Snapshot{RevisionID: msg.NextRevisionID, Data: msg.Data}
		s.messages = nil
		return protocol.NewSnapshotCreated(msg.ServerRevisionID, msg.NextRevisionID), nil
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

// Head returns the id of the latest committed revision.
func (s *Sequencer) Head() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// Snapshot returns the latest snapshot.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Messages returns the messages committed since the latest snapshot.
func (s *Sequencer) Messages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}
