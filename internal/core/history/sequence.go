package history

import (
	"iter"

	"github.com/zeusync/sheetsync/pkg/sequence"
)

// ExecutionStep is one operation on an execution path. IsCancelled marks the
// branching operation of Branch: it is walked over but not executed.
type ExecutionStep[T any] struct {
	Operation   Operation[T]
	Branch      *Branch[T]
	IsCancelled bool
}

// OperationSequence is a lazy view over execution steps. Every traversal
// recomputes the steps from the tree, and slicing never mutates it.
type OperationSequence[T any] struct {
	steps *sequence.Iterator[ExecutionStep[T]]
}

func newOperationSequence[T any](seq iter.Seq[ExecutionStep[T]]) OperationSequence[T] {
	return OperationSequence[T]{steps: sequence.FromSeq(seq)}
}

func hasID[T any](id string) func(ExecutionStep[T]) bool {
	return func(step ExecutionStep[T]) bool { return step.Operation.ID == id }
}

// StopWith ends the sequence after the step holding id.
func (s OperationSequence[T]) StopWith(id string) OperationSequence[T] {
	return OperationSequence[T]{steps: s.steps.StopWith(hasID[T](id))}
}

// StopBefore ends the sequence right before the step holding id.
func (s OperationSequence[T]) StopBefore(id string) OperationSequence[T] {
	return OperationSequence[T]{steps: s.steps.StopBefore(hasID[T](id))}
}

// StartAfter starts the sequence right after the step holding id.
func (s OperationSequence[T]) StartAfter(id string) OperationSequence[T] {
	return OperationSequence[T]{steps: s.steps.StartAfter(hasID[T](id))}
}

// Executed keeps the steps that are not cancelled.
func (s OperationSequence[T]) Executed() OperationSequence[T] {
	return OperationSequence[T]{steps: s.steps.Filter(func(step ExecutionStep[T]) bool { return !step.IsCancelled })}
}

func (s OperationSequence[T]) All() iter.Seq[ExecutionStep[T]] {
	return s.steps.Seq()
}

func (s OperationSequence[T]) Collect() []ExecutionStep[T] {
	return s.steps.Collect()
}

func (s OperationSequence[T]) Find(id string) (ExecutionStep[T], bool) {
	return s.steps.Find(hasID[T](id))
}

func (s OperationSequence[T]) IDs() []string {
	return sequence.ToArray(s.steps, func(step ExecutionStep[T]) string { return step.Operation.ID })
}

// Data returns the operation payloads in order.
func (s OperationSequence[T]) Data() []T {
	return sequence.ToArray(s.steps, func(step ExecutionStep[T]) T { return step.Operation.Data })
}
