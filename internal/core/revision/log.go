package revision

import (
	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/history"
	"github.com/zeusync/sheetsync/internal/core/ot"
)

// Dispatcher applies a single command to the document state.
type Dispatcher interface {
	Dispatch(cmd command.Command) command.Result
}

// Recorder captures every state mutation performed by fn.
type Recorder interface {
	RecordChanges(fn func()) []Change
}

// Log is the selective history of a document's revisions.
type Log = history.SelectiveHistory[*Revision]

// NewLog builds the revision history of a document whose initial state is
// identified by initialID. Revisions are applied through dispatcher inside a
// recording scope so that they can be reverted later.
func NewLog(initialID string, dispatcher Dispatcher, recorder Recorder, registry *ot.Registry) *Log {
	return history.NewSelectiveHistory(history.Config[*Revision]{
		InitialOperationID: initialID,
		InitialData:        New(initialID, "", nil, nil),
		Apply: func(r *Revision) {
			changes := recorder.RecordChanges(func() {
				for _, cmd := range r.Commands {
					dispatcher.Dispatch(cmd)
				}
			})
			r.SetChanges(changes)
		},
		Revert: func(r *Revision) {
			RevertChanges([]*Revision{r})
		},
		BuildEmpty: Empty,
		Factory:    Transformations{Registry: registry},
	})
}

// Transformations moves revisions across each other with an OT registry.
type Transformations struct {
	Registry *ot.Registry
}

func (t Transformations) With(executed *Revision) history.Transformation[*Revision] {
	return func(r *Revision) *Revision {
		return r.Transformed(t.Registry.TransformAll(r.Commands, executed.Commands))
	}
}

func (t Transformations) Without(executed *Revision) history.Transformation[*Revision] {
	inverses := command.InverseAll(executed.Commands)
	return func(r *Revision) *Revision {
		return r.Transformed(t.Registry.TransformAll(r.Commands, inverses))
	}
}
