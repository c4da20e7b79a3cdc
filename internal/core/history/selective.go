package history

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyCancelled = errors.New("operation is already undone")
	ErrNotCancelled     = errors.New("operation is not undone")
)

// Config wires a SelectiveHistory to the state it drives.
type Config[T any] struct {
	// InitialOperationID names the root operation, which is never applied.
	InitialOperationID string
	InitialData        T

	Apply      func(data T)
	Revert     func(data T)
	BuildEmpty func(id string) T
	Factory    TransformationFactory[T]
}

// SelectiveHistory keeps the state produced by a tree of operations in sync
// with its execution path. HEAD is the last operation applied to the state.
type SelectiveHistory[T any] struct {
	tree          *Tree[T]
	headBranch    *Branch[T]
	headOperation Operation[T]

	apply      func(T)
	revert     func(T)
	buildEmpty func(string) T
	factory    TransformationFactory[T]
}

func NewSelectiveHistory[T any](cfg Config[T]) *SelectiveHistory[T] {
	root := NewOperation(cfg.InitialOperationID, cfg.InitialData)
	branch := NewBranch(cfg.Factory, root)
	return &SelectiveHistory[T]{
		tree:          NewTree(cfg.Factory, branch),
		headBranch:    branch,
		headOperation: root,
		apply:         cfg.Apply,
		revert:        cfg.Revert,
		buildEmpty:    cfg.BuildEmpty,
		factory:       cfg.Factory,
	}
}

// HeadID returns the id of the last applied operation.
func (h *SelectiveHistory[T]) HeadID() string {
	return h.headOperation.ID
}

// Get returns the current data of the operation with the given id.
func (h *SelectiveHistory[T]) Get(id string) (T, error) {
	step, err := h.tree.FindOperation(h.headBranch, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return step.Operation.Data, nil
}

// Execution returns the whole execution path, cancelled steps included.
func (h *SelectiveHistory[T]) Execution() OperationSequence[T] {
	return h.tree.Execution(h.tree.FirstBranch())
}

// Append records data that was already applied to the state by the caller.
func (h *SelectiveHistory[T]) Append(id string, data T) error {
	op := NewOperation(id, data)
	branch := h.tree.LastBranch()
	if err := h.tree.InsertOperationLast(branch, op); err != nil {
		return err
	}
	h.headBranch, h.headOperation = branch, op
	return nil
}

// Insert places data right after afterID: the state is rewound to afterID,
// data is inserted and everything that followed is replayed on top of it.
func (h *SelectiveHistory[T]) Insert(id string, data T, afterID string) error {
	if err := h.revertTo(afterID); err != nil {
		return err
	}
	if err := h.tree.InsertOperationAfter(h.headBranch, NewOperation(id, data), afterID); err != nil {
		return err
	}
	h.fastForward()
	return nil
}

// Undo cancels operationID and records the undo itself as an empty
// operation undoID inserted after afterID.
func (h *SelectiveHistory[T]) Undo(operationID, undoID, afterID string) error {
	step, err := h.tree.FindOperation(h.headBranch, operationID)
	if err != nil {
		return err
	}
	if step.IsCancelled {
		return fmt.Errorf("%w: %s", ErrAlreadyCancelled, operationID)
	}
	if err = h.revertBefore(operationID); err != nil {
		return err
	}
	if err = h.tree.Undo(step.Branch, step.Operation); err != nil {
		return err
	}
	h.fastForward()
	return h.Insert(undoID, h.buildEmpty(undoID), afterID)
}

// Redo restores operationID and records the redo itself as an empty
// operation redoID inserted after afterID.
func (h *SelectiveHistory[T]) Redo(operationID, redoID, afterID string) error {
	step, err := h.tree.FindOperation(h.headBranch, operationID)
	if err != nil {
		return err
	}
	if !step.IsCancelled {
		return fmt.Errorf("%w: %s", ErrNotCancelled, operationID)
	}
	if err = h.revertBefore(operationID); err != nil {
		return err
	}
	if err = h.tree.Redo(step.Branch); err != nil {
		return err
	}
	h.fastForward()
	return h.Insert(redoID, h.buildEmpty(redoID), afterID)
}

// Drop reverts operationID and everything after it, then forgets them.
func (h *SelectiveHistory[T]) Drop(operationID string) error {
	if err := h.revertBefore(operationID); err != nil {
		return err
	}
	h.tree.Drop(operationID)
	h.fastForward()
	return nil
}

// Squash forgets everything but the head, which becomes the new root.
// Nothing can be undone past it afterwards.
func (h *SelectiveHistory[T]) Squash(headID string) error {
	if h.headOperation.ID != headID {
		return fmt.Errorf("%w: %s", ErrNotHead, headID)
	}
	root := NewBranch(h.factory, h.headOperation)
	h.tree = NewTree(h.factory, root)
	h.headBranch = root
	return nil
}

// revertTo rewinds the state until operationID is HEAD.
func (h *SelectiveHistory[T]) revertTo(operationID string) error {
	if _, err := h.tree.FindOperation(h.headBranch, operationID); err != nil {
		return err
	}
	for step := range h.tree.RevertedExecution(h.headBranch).All() {
		if step.Operation.ID == operationID {
			h.headBranch, h.headOperation = step.Branch, step.Operation
			return nil
		}
		if !step.IsCancelled {
			h.revert(step.Operation.Data)
		}
	}
	return nil
}

// revertBefore rewinds the state until operationID is reverted too.
func (h *SelectiveHistory[T]) revertBefore(operationID string) error {
	if _, err := h.tree.FindOperation(h.headBranch, operationID); err != nil {
		return err
	}
	found := false
	for step := range h.tree.RevertedExecution(h.headBranch).All() {
		if found {
			h.headBranch, h.headOperation = step.Branch, step.Operation
			return nil
		}
		if !step.IsCancelled {
			h.revert(step.Operation.Data)
		}
		found = step.Operation.ID == operationID
	}
	h.headBranch, h.headOperation = h.tree.FirstBranch(), Operation[T]{}
	return nil
}

// fastForward applies every step after HEAD.
func (h *SelectiveHistory[T]) fastForward() {
	steps := h.tree.Execution(h.headBranch)
	if h.headOperation.ID != "" {
		steps = steps.StartAfter(h.headOperation.ID)
	}
	for step := range steps.All() {
		if !step.IsCancelled {
			h.apply(step.Operation.Data)
		}
		h.headBranch, h.headOperation = step.Branch, step.Operation
	}
}
