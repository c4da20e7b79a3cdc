package history

import (
	"fmt"
	"slices"
)

// Branch is an ordered list of operations with unique ids. The backing array
// is owned by the branch; no two branches share one.
type Branch[T any] struct {
	factory    TransformationFactory[T]
	operations []Operation[T]
}

func NewBranch[T any](factory TransformationFactory[T], operations ...Operation[T]) *Branch[T] {
	return &Branch[T]{
		factory:    factory,
		operations: slices.Clone(operations),
	}
}

// Operations returns a copy of the branch content.
func (b *Branch[T]) Operations() []Operation[T] {
	return slices.Clone(b.operations)
}

func (b *Branch[T]) Len() int {
	return len(b.operations)
}

func (b *Branch[T]) Contains(id string) bool {
	return b.index(id) >= 0
}

// LastOperationID returns the id of the tail operation, or "" for an empty branch.
func (b *Branch[T]) LastOperationID() string {
	if len(b.operations) == 0 {
		return ""
	}
	return b.operations[len(b.operations)-1].ID
}

// Operation returns the operation with the given id.
func (b *Branch[T]) Operation(id string) (Operation[T], error) {
	i, err := b.locate(id)
	if err != nil {
		return Operation[T]{}, err
	}
	return b.operations[i], nil
}

// Append adds the operation at the tail.
func (b *Branch[T]) Append(op Operation[T]) {
	b.operations = append(b.operations, op)
}

// Prepend puts the operation first. Every operation already in the branch is
// transformed with it.
func (b *Branch[T]) Prepend(op Operation[T]) {
	with := b.factory.With(op.Data)
	next := make([]Operation[T], 0, len(b.operations)+1)
	next = append(next, op)
	for _, existing := range b.operations {
		next = append(next, existing.Transformed(with))
	}
	b.operations = next
}

// Insert places op right after afterID. The operations that followed afterID
// are transformed with op.
func (b *Branch[T]) Insert(op Operation[T], afterID string) error {
	i, err := b.locate(afterID)
	if err != nil {
		return err
	}
	with := b.factory.With(op.Data)
	next := make([]Operation[T], 0, len(b.operations)+1)
	next = append(next, b.operations[:i+1]...)
	next = append(next, op)
	for _, existing := range b.operations[i+1:] {
		next = append(next, existing.Transformed(with))
	}
	b.operations = next
	return nil
}

// Fork returns a new branch holding the operations strictly after afterID.
// The receiver is left untouched.
func (b *Branch[T]) Fork(afterID string) (*Branch[T], error) {
	i, err := b.locate(afterID)
	if err != nil {
		return nil, err
	}
	return NewBranch(b.factory, b.operations[i+1:]...), nil
}

// CutBefore drops id and every operation after it.
func (b *Branch[T]) CutBefore(id string) error {
	i, err := b.locate(id)
	if err != nil {
		return err
	}
	b.operations = slices.Clone(b.operations[:i])
	return nil
}

// CutAfter drops every operation after id.
func (b *Branch[T]) CutAfter(id string) error {
	i, err := b.locate(id)
	if err != nil {
		return err
	}
	b.operations = slices.Clone(b.operations[:i+1])
	return nil
}

// Transform rewrites every operation of the branch.
func (b *Branch[T]) Transform(transformation Transformation[T]) {
	next := make([]Operation[T], len(b.operations))
	for i, op := range b.operations {
		next[i] = op.Transformed(transformation)
	}
	b.operations = next
}

func (b *Branch[T]) index(id string) int {
	return slices.IndexFunc(b.operations, func(op Operation[T]) bool { return op.ID == id })
}

func (b *Branch[T]) locate(id string) (int, error) {
	i := b.index(id)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return i, nil
}
