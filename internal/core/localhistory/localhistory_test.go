package localhistory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/events/bus"
	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/session"
)

type fakeSession struct {
	undone  []string
	redone  []string
	blocked bool
}

func (f *fakeSession) Undo(id string) error           { f.undone = append(f.undone, id); return nil }
func (f *fakeSession) Redo(id string) error           { f.redone = append(f.redone, id); return nil }
func (f *fakeSession) CanApplyOptimisticUpdate() bool { return !f.blocked }

func newHistory(t *testing.T, maxSteps int) (*LocalHistory, *fakeSession, bus.EventBus) {
	t.Helper()
	s := &fakeSession{}
	b := bus.New()
	h, err := New(Config{Session: s, Bus: b, MaxSteps: maxSteps, Logger: log.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h, s, b
}

func save(t *testing.T, b bus.EventBus, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, bus.Trigger(b, session.EventNewLocalStateUpdate, "test", session.NewLocalStateUpdate{RevisionID: id}))
	}
}

func confirm(t *testing.T, b bus.EventBus, event, id string) {
	t.Helper()
	require.NoError(t, bus.Trigger(b, event, "test", session.HistoryChanged{RevisionID: id}))
}

func TestRequestUndo_EmptyStacks(t *testing.T) {
	h, s, _ := newHistory(t, 0)

	result, err := h.RequestUndo()
	require.NoError(t, err)
	assert.Equal(t, command.EmptyUndoStack, result)

	result, err = h.RequestRedo()
	require.NoError(t, err)
	assert.Equal(t, command.EmptyRedoStack, result)
	assert.Empty(t, s.undone)
}

func TestUndoRedo_RoundTrip(t *testing.T) {
	h, s, b := newHistory(t, 0)
	save(t, b, "r1", "r2")

	result, err := h.RequestUndo()
	require.NoError(t, err)
	assert.Equal(t, command.Success, result)
	assert.Equal(t, []string{"r2"}, s.undone)
	assert.True(t, h.IsWaitingForUndoRedo())

	result, _ = h.RequestUndo()
	assert.Equal(t, command.WaitingSessionConfirmation, result)

	confirm(t, b, session.EventRevisionUndone, "r2")
	assert.False(t, h.IsWaitingForUndoRedo())
	assert.True(t, h.CanRedo())

	result, _ = h.RequestRedo()
	assert.Equal(t, command.Success, result)
	assert.Equal(t, []string{"r2"}, s.redone)
	confirm(t, b, session.EventRevisionRedone, "r2")

	_, _ = h.RequestUndo()
	confirm(t, b, session.EventRevisionUndone, "r2")
	_, _ = h.RequestUndo()
	assert.Equal(t, []string{"r2", "r2", "r1"}, s.undone)
}

func TestConfirmationOfAnotherRevisionKeepsWaiting(t *testing.T) {
	h, _, b := newHistory(t, 0)
	save(t, b, "r1")
	_, _ = h.RequestUndo()

	confirm(t, b, session.EventRevisionUndone, "someone-else")
	assert.True(t, h.IsWaitingForUndoRedo())
}

func TestNewEditClearsRedo(t *testing.T) {
	h, _, b := newHistory(t, 0)
	save(t, b, "r1")
	_, _ = h.RequestUndo()
	confirm(t, b, session.EventRevisionUndone, "r1")
	require.True(t, h.CanRedo())

	save(t, b, "r2")
	assert.False(t, h.CanRedo())
}

func TestUndoStackIsBounded(t *testing.T) {
	h, s, b := newHistory(t, 2)
	save(t, b, "r1", "r2", "r3")

	for range 3 {
		if _, err := h.RequestUndo(); err != nil {
			t.Fatal(err)
		}
		if h.IsWaitingForUndoRedo() {
			confirm(t, b, session.EventRevisionUndone, s.undone[len(s.undone)-1])
		}
	}
	assert.Equal(t, []string{"r3", "r2"}, s.undone)
}

func TestSessionBlockedRefusesRequests(t *testing.T) {
	h, s, b := newHistory(t, 0)
	save(t, b, "r1")
	s.blocked = true

	result, err := h.RequestUndo()
	require.NoError(t, err)
	assert.Equal(t, command.WaitingSessionConfirmation, result)
	assert.True(t, h.CanUndo())
}

func TestDroppedRevisionsLeaveTheStack(t *testing.T) {
	h, _, b := newHistory(t, 0)
	save(t, b, "r1", "r2", "r3")
	_, _ = h.RequestUndo()

	require.NoError(t, bus.Trigger(b, session.EventPendingRevisionsDropped, "test", session.PendingRevisionsDropped{RevisionIDs: []string{"r2", "r3"}}))
	assert.False(t, h.IsWaitingForUndoRedo())
	assert.False(t, h.CanRedo())

	_, _ = h.RequestUndo()
	assert.False(t, h.CanUndo())
}

func TestSnapshotClearsStacks(t *testing.T) {
	h, _, b := newHistory(t, 0)
	save(t, b, "r1")
	require.NoError(t, bus.Trigger(b, session.EventSnapshot, "test", session.Snapshot{RevisionID: "snap"}))
	assert.False(t, h.CanUndo())
}

func TestCloseStopsListening(t *testing.T) {
	h, _, b := newHistory(t, 0)
	require.NoError(t, h.Close())
	save(t, b, "r1")
	assert.False(t, h.CanUndo())
}

func TestConfirmedCallback(t *testing.T) {
	s := &fakeSession{}
	b := bus.New()
	var kinds []Kind
	h, err := New(Config{Session: s, Bus: b, Logger: log.NewNop(), OnConfirmed: func(kind Kind, _ string, _ []command.Command) {
		kinds = append(kinds, kind)
	}})
	require.NoError(t, err)
	defer h.Close()

	confirm(t, b, session.EventRevisionUndone, "x")
	confirm(t, b, session.EventRevisionRedone, "x")
	assert.Equal(t, []Kind{KindUndo, KindRedo}, kinds)
}
