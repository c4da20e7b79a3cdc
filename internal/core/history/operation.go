// Package history implements selective undo and redo over a tree of
// branches. A branch holds operations; each undo forks a new branch in which
// the undone operation is cancelled and everything after it is rewritten as if
// it never happened.
package history

import "errors"

var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrBranchNotFound    = errors.New("branch not found")
	ErrNotHead           = errors.New("operation is not the current head")
)

// Transformation rewrites operation data.
type Transformation[T any] func(data T) T

// TransformationFactory builds the transformations used to move an operation
// across another one: With accounts for data having happened, Without for it
// having been retracted.
type TransformationFactory[T any] interface {
	With(data T) Transformation[T]
	Without(data T) Transformation[T]
}

// Operation is an identified piece of data living in a branch.
type Operation[T any] struct {
	ID   string
	Data T
}

func NewOperation[T any](id string, data T) Operation[T] {
	return Operation[T]{ID: id, Data: data}
}

// Transformed returns a new operation with the same id and rewritten data.
func (o Operation[T]) Transformed(transformation Transformation[T]) Operation[T] {
	return Operation[T]{ID: o.ID, Data: transformation(o.Data)}
}
