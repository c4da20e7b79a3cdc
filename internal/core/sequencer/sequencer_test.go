package sequencer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/protocol"
)

func revision(server, next string) protocol.Message {
	return protocol.NewRemoteRevision("alice", server, next, []command.Command{command.DeleteSheet{SheetID: "s1"}})
}

func TestCommit_AcceptsOnlyOnHead(t *testing.T) {
	s := New()

	out, err := s.Commit(revision(protocol.StartRevisionID, "r1"))
	require.NoError(t, err)
	assert.Equal(t, "r1", out.NextRevisionID)
	assert.Equal(t, "r1", s.Head())

	_, err = s.Commit(revision(protocol.StartRevisionID, "r2"))
	assert.ErrorIs(t, err, protocol.ErrUnexpectedRevisionID)
	assert.Equal(t, "r1", s.Head())

	_, err = s.Commit(protocol.NewRevisionUndone("r1", "r2", "r1"))
	require.NoError(t, err)
	assert.Len(t, s.Messages(), 2)
}

func TestCommit_Presence(t *testing.T) {
	s := New()
	msg := protocol.NewClientJoined(protocol.Client{ID: "a", Name: "Alice"})

	out, err := s.Commit(msg)
	require.NoError(t, err)
	assert.Equal(t, msg, out)
	assert.Empty(t, s.Messages())
	assert.Equal(t, protocol.StartRevisionID, s.Head())
}

func TestCommit_Snapshot(t *testing.T) {
	s := New()
	_, err := s.Commit(revision(protocol.StartRevisionID, "r1"))
	require.NoError(t, err)

	out, err := s.Commit(protocol.NewSnapshot("r1", "snap", json.RawMessage(`{"sheets":{}}`)))
	require.NoError(t, err)

	assert.Equal(t, protocol.NewSnapshotCreated("r1", "snap"), out)
	assert.Empty(t, s.Messages())
	assert.Equal(t, "snap", s.Head())
	assert.Equal(t, Snapshot{RevisionID: "snap", Data: json.RawMessage(`{"sheets":{}}`)}, s.Snapshot())

	_, err = s.Commit(protocol.NewSnapshotCreated("snap", "other"))
	assert.ErrorIs(t, err, protocol.ErrInvalidMessage)
}

func TestRestore(t *testing.T) {
	s := Restore(Snapshot{RevisionID: "snap"}, []protocol.Message{revision("snap", "r1"), revision("r1", "r2")})
	assert.Equal(t, "r2", s.Head())

	_, err := s.Commit(revision("r2", "r3"))
	assert.NoError(t, err)
}
