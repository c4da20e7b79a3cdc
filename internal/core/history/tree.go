package history

import (
	"fmt"
	"slices"
)

// Tree is a stack of branches. When branch i has a branching operation, the
// execution path runs through branch i up to that operation, cancels it, and
// continues in branch i+1 which holds what followed it, rewritten without it.
type Tree[T any] struct {
	factory      TransformationFactory[T]
	branches     []*Branch[T]
	branchingIDs map[*Branch[T]]string
}

func NewTree[T any](factory TransformationFactory[T], initial *Branch[T]) *Tree[T] {
	return &Tree[T]{
		factory:      factory,
		branches:     []*Branch[T]{initial},
		branchingIDs: make(map[*Branch[T]]string),
	}
}

// Branches returns the branch stack, root first.
func (t *Tree[T]) Branches() []*Branch[T] {
	return slices.Clone(t.branches)
}

func (t *Tree[T]) FirstBranch() *Branch[T] {
	return t.branches[0]
}

func (t *Tree[T]) LastBranch() *Branch[T] {
	return t.branches[len(t.branches)-1]
}

// BranchingOperationID returns the cancelled operation of branch, if any.
func (t *Tree[T]) BranchingOperationID(branch *Branch[T]) (string, bool) {
	id, ok := t.branchingIDs[branch]
	return id, ok
}

// InsertOperationLast appends op to branch and mirrors it into the
// neighbouring branches.
func (t *Tree[T]) InsertOperationLast(branch *Branch[T], op Operation[T]) error {
	predecessorID := branch.LastOperationID()
	branch.Append(op)
	return t.propagate(branch, op, predecessorID)
}

// InsertOperationAfter inserts op right after predecessorID in branch and
// mirrors it into the neighbouring branches.
func (t *Tree[T]) InsertOperationAfter(branch *Branch[T], op Operation[T], predecessorID string) error {
	if err := branch.Insert(op, predecessorID); err != nil {
		return err
	}
	return t.propagate(branch, op, predecessorID)
}

func (t *Tree[T]) propagate(branch *Branch[T], op Operation[T], predecessorID string) error {
	if err := t.insertNext(branch, op, predecessorID); err != nil {
		return err
	}
	return t.insertPrevious(branch, op, predecessorID)
}

// insertNext updates the branches downstream of branch. An operation landing
// before the branching point only shifts them; one landing after it belongs
// to the cancelled timeline too and is copied there without the branching
// operation.
func (t *Tree[T]) insertNext(branch *Branch[T], op Operation[T], predecessorID string) error {
	next := t.nextBranch(branch)
	branchingID, ok := t.branchingIDs[branch]
	if next == nil || !ok {
		return nil
	}
	branchingIndex := branch.index(branchingID)
	if branch.index(op.ID) < branchingIndex {
		t.transformFrom(next, t.factory.With(op.Data))
		return nil
	}

	moved := op.Transformed(t.factory.Without(branch.operations[branchingIndex].Data))
	if predecessorID == branchingID {
		next.Prepend(moved)
		return t.insertNext(next, moved, "")
	}
	if err := next.Insert(moved, predecessorID); err != nil {
		return err
	}
	return t.insertNext(next, moved, predecessorID)
}

// insertPrevious copies op into the upstream branches, where the branching
// operation it was rewritten without did happen.
func (t *Tree[T]) insertPrevious(branch *Branch[T], op Operation[T], predecessorID string) error {
	prev := t.previousBranch(branch)
	if prev == nil {
		return nil
	}
	branchingID, ok := t.branchingIDs[prev]
	if !ok {
		return fmt.Errorf("%w: branch preceding a live branch has no branching operation", ErrBranchNotFound)
	}
	branchingOp, err := prev.Operation(branchingID)
	if err != nil {
		return err
	}

	moved := op.Transformed(t.factory.With(branchingOp.Data))
	after := predecessorID
	if after == "" {
		after = branchingID
	}
	if err = prev.Insert(moved, after); err != nil {
		return err
	}
	return t.insertPrevious(prev, moved, after)
}

// Undo cancels op in branch: a new branch holding everything after op,
// rewritten without it, is inserted after branch.
func (t *Tree[T]) Undo(branch *Branch[T], op Operation[T]) error {
	created, err := branch.Fork(op.ID)
	if err != nil {
		return err
	}
	if previousID, ok := t.branchingIDs[branch]; ok {
		t.branchingIDs[created] = previousID
	}
	t.branchingIDs[branch] = op.ID
	if err = t.insertBranchAfter(branch, created); err != nil {
		return err
	}
	t.transformFrom(created, t.factory.Without(op.Data))
	return nil
}

// Redo restores the operation cancelled by branch: the branch that replaced
// the rest of the timeline is removed and everything downstream is rebuilt.
func (t *Tree[T]) Redo(branch *Branch[T]) error {
	i := t.indexOf(branch)
	if i < 0 {
		return ErrBranchNotFound
	}
	if i+1 >= len(t.branches) {
		return fmt.Errorf("%w: nothing to redo after branch %d", ErrBranchNotFound, i)
	}
	removed := t.branches[i+1]
	t.branches = slices.Delete(t.branches, i+1, i+2)

	if id, ok := t.branchingIDs[removed]; ok {
		t.branchingIDs[branch] = id
	} else {
		delete(t.branchingIDs, branch)
	}
	delete(t.branchingIDs, removed)

	if next := t.nextBranch(branch); next != nil {
		return t.rebaseUp(next)
	}
	return nil
}

// rebaseUp rebuilds branch from its predecessor and recurses downstream.
func (t *Tree[T]) rebaseUp(branch *Branch[T]) error {
	prev := t.previousBranch(branch)
	if prev == nil {
		return nil
	}
	branchingID, ok := t.branchingIDs[prev]
	if !ok {
		return nil
	}
	branchingOp, err := prev.Operation(branchingID)
	if err != nil {
		return err
	}
	rebased, err := prev.Fork(branchingID)
	if err != nil {
		return err
	}
	rebased.Transform(t.factory.Without(branchingOp.Data))

	if id, ok := t.branchingIDs[branch]; ok {
		t.branchingIDs[rebased] = id
	}
	delete(t.branchingIDs, branch)
	t.branches[t.indexOf(branch)] = rebased

	if next := t.nextBranch(rebased); next != nil {
		return t.rebaseUp(next)
	}
	return nil
}

// Drop removes id and everything after it from every branch holding it.
// Branches hanging off a branching operation that got cut are removed.
func (t *Tree[T]) Drop(id string) {
	for i, b := range t.branches {
		if b.Contains(id) {
			_ = b.CutBefore(id)
		}
		if branchingID, ok := t.branchingIDs[b]; ok && !b.Contains(branchingID) {
			delete(t.branchingIDs, b)
			for _, orphan := range t.branches[i+1:] {
				delete(t.branchingIDs, orphan)
			}
			t.branches = t.branches[:i+1]
			return
		}
	}
}

// FindOperation looks for id on the execution path ending in branch.
func (t *Tree[T]) FindOperation(branch *Branch[T], id string) (ExecutionStep[T], error) {
	step, ok := t.RevertedExecution(branch).Find(id)
	if !ok {
		return ExecutionStep[T]{}, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return step, nil
}

// Execution walks the path forward from the start of branch.
func (t *Tree[T]) Execution(branch *Branch[T]) OperationSequence[T] {
	return newOperationSequence(func(yield func(ExecutionStep[T]) bool) {
		for b := branch; b != nil; b = t.nextBranch(b) {
			branchingID, hasBranching := t.branchingIDs[b]
			for _, op := range b.operations {
				cancelled := hasBranching && op.ID == branchingID
				if !yield(ExecutionStep[T]{Operation: op, Branch: b, IsCancelled: cancelled}) {
					return
				}
				if cancelled {
					break
				}
			}
			if !hasBranching {
				return
			}
		}
	})
}

// RevertedExecution walks the path backward from the end of branch, or from
// its branching operation when it has one.
func (t *Tree[T]) RevertedExecution(branch *Branch[T]) OperationSequence[T] {
	return newOperationSequence(func(yield func(ExecutionStep[T]) bool) {
		for b := branch; b != nil; b = t.previousBranch(b) {
			ops := b.operations
			start := len(ops) - 1
			branchingID, hasBranching := t.branchingIDs[b]
			if hasBranching {
				if i := b.index(branchingID); i >= 0 {
					start = i
				}
			}
			for i := start; i >= 0; i-- {
				cancelled := hasBranching && ops[i].ID == branchingID
				if !yield(ExecutionStep[T]{Operation: ops[i], Branch: b, IsCancelled: cancelled}) {
					return
				}
			}
		}
	})
}

func (t *Tree[T]) transformFrom(branch *Branch[T], transformation Transformation[T]) {
	i := t.indexOf(branch)
	if i < 0 {
		return
	}
	for _, b := range t.branches[i:] {
		b.Transform(transformation)
	}
}

func (t *Tree[T]) insertBranchAfter(branch, created *Branch[T]) error {
	i := t.indexOf(branch)
	if i < 0 {
		return ErrBranchNotFound
	}
	t.branches = slices.Insert(t.branches, i+1, created)
	return nil
}

func (t *Tree[T]) indexOf(branch *Branch[T]) int {
	return slices.Index(t.branches, branch)
}

func (t *Tree[T]) nextBranch(branch *Branch[T]) *Branch[T] {
	i := t.indexOf(branch)
	if i < 0 || i+1 >= len(t.branches) {
		return nil
	}
	return t.branches[i+1]
}

func (t *Tree[T]) previousBranch(branch *Branch[T]) *Branch[T] {
	i := t.indexOf(branch)
	if i <= 0 {
		return nil
	}
	return t.branches[i-1]
}
