// Package localhistory keeps the undo and redo stacks of the local user.
//
// Undo and redo are never applied optimistically: a request is sent through
// the session and the stacks only wait for the server to confirm it.
package localhistory

import (
	"errors"
	"slices"

	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/events/bus"
	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/session"
)

// DefaultMaxSteps bounds the undo stack when no limit is configured.
const DefaultMaxSteps = 99

// Session is the part of the collaborative session used to request history
// changes.
type Session interface {
	Undo(revisionID string) error
	Redo(revisionID string) error
	CanApplyOptimisticUpdate() bool
}

// Kind tells which request was confirmed.
type Kind uint8

const (
	KindUndo Kind = iota
	KindRedo
)

func (k Kind) String() string {
	if k == KindRedo {
		return "redo"
	}
	return "undo"
}

// Confirmed is called once the server committed a request, after the state
// was updated.
type Confirmed func(kind Kind, revisionID string, commands []command.Command)

type Config struct {
	Session  Session
	Bus      bus.EventBus
	MaxSteps int
	// OnConfirmed is optional.
	OnConfirmed Confirmed
	Logger      log.Log
}

type LocalHistory struct {
	session     Session
	maxSteps    int
	onConfirmed Confirmed
	logger      log.Log

	undoStack []string
	redoStack []string
	waiting   bool
	requested string

	subscriptions []bus.Subscription
}

func New(cfg Config) (*LocalHistory, error) {
	h := &LocalHistory{
		session:     cfg.Session,
		maxSteps:    cfg.MaxSteps,
		onConfirmed: cfg.OnConfirmed,
		logger:      cfg.Logger,
	}
	if h.maxSteps <= 0 {
		h.maxSteps = DefaultMaxSteps
	}
	if h.logger == nil {
		h.logger = log.Provide()
	}

	subscribe := []func() (bus.Subscription, error){
		func() (bus.Subscription, error) {
			return bus.On(cfg.Bus, session.EventNewLocalStateUpdate, h.onNewLocalStateUpdate)
		},
		func() (bus.Subscription, error) {
			return bus.On(cfg.Bus, session.EventRevisionUndone, h.confirm(KindUndo))
		},
		func() (bus.Subscription, error) {
			return bus.On(cfg.Bus, session.EventRevisionRedone, h.confirm(KindRedo))
		},
		func() (bus.Subscription, error) {
			return bus.On(cfg.Bus, session.EventPendingRevisionsDropped, h.onPendingRevisionsDropped)
		},
		func() (bus.Subscription, error) {
			return bus.On(cfg.Bus, session.EventSnapshot, h.onSnapshot)
		},
	}
	for _, fn := range subscribe {
		sub, err := fn()
		if err != nil {
			return nil, errors.Join(err, h.Close())
		}
		h.subscriptions = append(h.subscriptions, sub)
	}
	return h, nil
}

// Close stops listening to the session.
func (h *LocalHistory) Close() error {
	var errs []error
	for _, sub := range h.subscriptions {
		errs = append(errs, sub.Cancel())
	}
	h.subscriptions = nil
	return errors.Join(errs...)
}

func (h *LocalHistory) CanUndo() bool { return len(h.undoStack) > 0 }
func (h *LocalHistory) CanRedo() bool { return len(h.redoStack) > 0 }

// IsWaitingForUndoRedo reports whether a request waits for the server.
func (h *LocalHistory) IsWaitingForUndoRedo() bool { return h.waiting }

// RequestUndo asks the session to undo the last local revision.
func (h *LocalHistory) RequestUndo() (command.Result, error) {
	if result := h.allow(h.undoStack, command.EmptyUndoStack); result != command.Success {
		return result, nil
	}
	id := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]
	h.redoStack = append(h.redoStack, id)
	h.waiting, h.requested = true, id
	return command.Success, h.session.Undo(id)
}

// RequestRedo asks the session to redo the last undone revision.
func (h *LocalHistory) RequestRedo() (command.Result, error) {
	if result := h.allow(h.redoStack, command.EmptyRedoStack); result != command.Success {
		return result, nil
	}
	id := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]
	h.undoStack = append(h.undoStack, id)
	h.waiting, h.requested = true, id
	return command.Success, h.session.Redo(id)
}

func (h *LocalHistory) allow(stack []string, empty command.Result) command.Result {
	switch {
	case h.waiting || !h.session.CanApplyOptimisticUpdate():
		return command.WaitingSessionConfirmation
	case len(stack) == 0:
		return empty
	default:
		return command.Success
	}
}

func (h *LocalHistory) onNewLocalStateUpdate(update session.NewLocalStateUpdate) error {
	h.undoStack = append(h.undoStack, update.RevisionID)
	h.redoStack = nil
	if over := len(h.undoStack) - h.maxSteps; over > 0 {
		h.undoStack = slices.Delete(h.undoStack, 0, over)
	}
	return nil
}

func (h *LocalHistory) confirm(kind Kind) func(session.HistoryChanged) error {
	return func(change session.HistoryChanged) error {
		if change.RevisionID == h.requested {
			h.waiting, h.requested = false, ""
		}
		h.logger.Debug("History change confirmed",
			log.String("kind", kind.String()),
			log.String("revision_id", change.RevisionID))
		if h.onConfirmed != nil {
			h.onConfirmed(kind, change.RevisionID, change.Commands)
		}
		return nil
	}
}

func (h *LocalHistory) onPendingRevisionsDropped(dropped session.PendingRevisionsDropped) error {
	h.undoStack = slices.DeleteFunc(h.undoStack, func(id string) bool {
		return slices.Contains(dropped.RevisionIDs, id)
	})
	h.redoStack = nil
	h.waiting, h.requested = false, ""
	return nil
}

func (h *LocalHistory) onSnapshot(session.Snapshot) error {
	h.undoStack, h.redoStack = nil, nil
	h.waiting, h.requested = false, ""
	return nil
}
