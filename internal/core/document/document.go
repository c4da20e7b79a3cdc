// Package document assembles a collaborative workbook: the state, its
// revision log, the session and the local undo stacks.
package document

import (
	"encoding/json"
	"errors"

	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/events/bus"
	"github.com/zeusync/sheetsync/internal/core/localhistory"
	"github.com/zeusync/sheetsync/internal/core/model"
	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/ot"
	"github.com/zeusync/sheetsync/internal/core/protocol"
	"github.com/zeusync/sheetsync/internal/core/revision"
	"github.com/zeusync/sheetsync/internal/core/session"
)

var ErrBroken = errors.New("document is out of sync and must be reloaded")

type Config struct {
	ClientID   string
	ClientName string
	Transport  protocol.Transport

	// Data is an exported workbook taken at RevisionID. Both are empty for a
	// new document.
	Data       json.RawMessage
	RevisionID string
	// Messages were committed after RevisionID and are replayed on open.
	Messages []protocol.Message

	Registry     *ot.Registry
	Bus          bus.EventBus
	MaxUndoSteps int
	Logger       log.Log
}

// Document is not safe for concurrent use. Transports deliver messages from
// the goroutine that drives the document.
type Document struct {
	workbook  *model.Workbook
	revisions *revision.Log
	session   *session.Session
	history   *localhistory.LocalHistory
	bus       bus.EventBus
	logger    log.Log
	failure   error
}

func Open(cfg Config) (*Document, error) {
	if cfg.Transport == nil {
		return nil, errors.New("document: transport is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = ot.NewDefaultRegistry()
	}
	if cfg.Bus == nil {
		cfg.Bus = bus.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Provide()
	}
	if cfg.RevisionID == "" {
		cfg.RevisionID = protocol.StartRevisionID
	}

	workbook := model.New()
	if len(cfg.Data) > 0 {
		var err error
		if workbook, err = model.Import(cfg.Data); err != nil {
			return nil, err
		}
	}

	d := &Document{
		workbook:  workbook,
		revisions: revision.NewLog(cfg.RevisionID, workbook, workbook, cfg.Registry),
		bus:       cfg.Bus,
		logger:    cfg.Logger,
	}
	d.session = session.New(session.Config{
		ClientID:         cfg.ClientID,
		ClientName:       cfg.ClientName,
		ServerRevisionID: cfg.RevisionID,
		Transport:        cfg.Transport,
		Revisions:        d.revisions,
		Registry:         cfg.Registry,
		Bus:              cfg.Bus,
		Logger:           cfg.Logger,
	})
	d.logger = cfg.Logger.With(log.String("client_id", d.session.ClientID()))

	history, err := localhistory.New(localhistory.Config{
		Session:  d.session,
		Bus:      cfg.Bus,
		MaxSteps: cfg.MaxUndoSteps,
		Logger:   d.logger,
	})
	if err != nil {
		return nil, err
	}
	d.history = history

	if _, err = bus.On(cfg.Bus, session.EventFailure, d.onFailure); err != nil {
		return nil, err
	}
	if _, err = bus.On(cfg.Bus, session.EventUnexpectedRevisionID, d.onUnexpectedRevisionID); err != nil {
		return nil, err
	}

	if err = d.session.LoadInitialMessages(cfg.Messages); err != nil {
		return nil, err
	}
	d.session.Join(nil)

	d.logger.Info("Document opened",
		log.String("revision_id", d.session.RevisionID()),
		log.Int("replayed", len(cfg.Messages)))
	return d, nil
}

// Dispatch applies cmds as a single revision. When a command is refused,
// the ones before it are reverted and the refusal is returned.
func (d *Document) Dispatch(cmds ...command.Command) (command.Result, error) {
	if d.failure != nil {
		return command.CancelledForUnknownReason, d.failure
	}
	if len(cmds) == 0 {
		return command.Success, nil
	}
	if !d.session.CanApplyOptimisticUpdate() {
		return command.WaitingSessionConfirmation, nil
	}

	result := command.Success
	changes := d.workbook.RecordChanges(func() {
		for _, cmd := range cmds {
			if result = d.workbook.Dispatch(cmd); result != command.Success {
				return
			}
		}
	})
	if result != command.Success {
		revision.RevertChanges([]*revision.Revision{revision.New("", "", nil, changes)})
		return result, nil
	}
	_, err := d.session.Save(cmds, changes)
	return command.Success, err
}

func (d *Document) Undo() (command.Result, error) {
	if d.failure != nil {
		return command.CancelledForUnknownReason, d.failure
	}
	return d.history.RequestUndo()
}

func (d *Document) Redo() (command.Result, error) {
	if d.failure != nil {
		return command.CancelledForUnknownReason, d.failure
	}
	return d.history.RequestRedo()
}

func (d *Document) Move(position protocol.ClientPosition) error {
	return d.session.Move(position)
}

// Snapshot proposes the current state as the new base of the document. It
// does nothing while local revisions are pending.
func (d *Document) Snapshot() (bool, error) {
	data, err := d.workbook.Export()
	if err != nil {
		return false, err
	}
	return d.session.Snapshot(data)
}

// Close leaves the session.
func (d *Document) Close() error {
	return errors.Join(d.history.Close(), d.session.Leave())
}

func (d *Document) Export() ([]byte, error) { return d.workbook.Export() }

func (d *Document) Workbook() *model.Workbook           { return d.workbook }
func (d *Document) Session() *session.Session           { return d.session }
func (d *Document) History() *localhistory.LocalHistory { return d.history }
func (d *Document) Revisions() *revision.Log            { return d.revisions }
func (d *Document) Bus() bus.EventBus                   { return d.bus }

// Err returns the failure that broke the document, if any.
func (d *Document) Err() error { return d.failure }

func (d *Document) onFailure(f session.Failure) error {
	d.failure = errors.Join(ErrBroken, f.Err)
	d.logger.Error("Document broken", log.Error(f.Err))
	return nil
}

func (d *Document) onUnexpectedRevisionID(u session.UnexpectedRevisionID) error {
	d.logger.Warn("Document missed a revision",
		log.String("expected", u.Expected),
		log.String("received", u.Received))
	return nil
}
