package session

import (
	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/protocol"
)

// Events published on the bus, with their payload types.
const (
	EventNewLocalStateUpdate        = "new-local-state-update"
	EventRemoteRevisionReceived     = "remote-revision-received"
	EventRevisionUndone             = "revision-undone"
	EventRevisionRedone             = "revision-redone"
	EventSnapshot                   = "snapshot"
	EventPendingRevisionsDropped    = "pending-revisions-dropped"
	EventUnexpectedRevisionID       = "unexpected-revision-id"
	EventCollaborativeEventReceived = "collaborative-event-received"
	EventFailure                    = "session-failure"
)

// NewLocalStateUpdate is published when a local revision is recorded.
type NewLocalStateUpdate struct {
	RevisionID string
	Commands   []command.Command
}

// RemoteRevisionReceived carries the commands of another client, rewritten
// against the local revisions not yet acknowledged.
type RemoteRevisionReceived struct {
	RevisionID string
	ClientID   string
	Commands   []command.Command
}

// HistoryChanged is the payload of EventRevisionUndone and EventRevisionRedone.
type HistoryChanged struct {
	RevisionID string
	Commands   []command.Command
}

type Snapshot struct {
	RevisionID string
}

// PendingRevisionsDropped lists the local revisions that will never be sent,
// in the order they were recorded.
type PendingRevisionsDropped struct {
	RevisionIDs []string
}

type UnexpectedRevisionID struct {
	Expected string
	Received string
}

type CollaborativeEventReceived struct {
	Message protocol.Message
}

// Failure reports an error raised while handling a delivered message. The
// session should be considered broken.
type Failure struct {
	Err error
}
