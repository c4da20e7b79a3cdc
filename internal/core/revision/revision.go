// Package revision binds the generic selective history to spreadsheet
// commands: a revision is a batch of commands plus the state changes they
// produced when last applied.
package revision

import (
	"github.com/zeusync/sheetsync/internal/core/command"
)

// EmptyClientID marks the placeholder revisions recorded for undo and redo.
const EmptyClientID = "empty"

type Revision struct {
	ID       string       `json:"id"`
	ClientID string       `json:"clientId"`
	Commands command.List `json:"commands"`
	Changes  []Change     `json:"-"`
}

func New(id, clientID string, commands []command.Command, changes []Change) *Revision {
	return &Revision{ID: id, ClientID: clientID, Commands: commands, Changes: changes}
}

// Empty builds a revision that does nothing.
func Empty(id string) *Revision {
	return &Revision{ID: id, ClientID: EmptyClientID}
}

// SetChanges records the changes produced by the last application.
func (r *Revision) SetChanges(changes []Change) {
	r.Changes = changes
}

// Transformed returns a copy of r carrying commands instead of its own.
func (r *Revision) Transformed(commands []command.Command) *Revision {
	return &Revision{ID: r.ID, ClientID: r.ClientID, Commands: commands, Changes: r.Changes}
}

func (r *Revision) IsEmpty() bool {
	return len(r.Commands) == 0
}
