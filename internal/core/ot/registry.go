// Package ot rewrites commands so they stay valid after concurrent commands
// have been executed first.
package ot

import (
	"github.com/zeusync/sheetsync/internal/core/command"
)

// Transformation adapts toTransform to a document where executed already ran.
// An empty result drops the command; several results expand it.
type Transformation func(toTransform, executed command.Command) []command.Command

// Registry maps (affected type, executed type) pairs to a transformation.
// It is built once at the composition root and shared read-only afterwards.
type Registry struct {
	transformations map[command.Type]map[command.Type]Transformation
}

func NewRegistry() *Registry {
	return &Registry{
		transformations: make(map[command.Type]map[command.Type]Transformation),
	}
}

// Add registers fn for every affected type when executed has run before it.
// A later registration for the same pair replaces the earlier one.
func (r *Registry) Add(executed command.Type, affected []command.Type, fn Transformation) *Registry {
	for _, t := range affected {
		inner, ok := r.transformations[t]
		if !ok {
			inner = make(map[command.Type]Transformation)
			r.transformations[t] = inner
		}
		inner[executed] = fn
	}
	return r
}

// Get returns the transformation registered for the pair.
func (r *Registry) Get(affected, executed command.Type) (Transformation, bool) {
	fn, ok := r.transformations[affected][executed]
	return fn, ok
}

// Transform adapts a single command to a single executed command.
func (r *Registry) Transform(toTransform, executed command.Command) []command.Command {
	fn, ok := r.Get(toTransform.Type(), executed.Type())
	if !ok {
		return []command.Command{toTransform}
	}
	return fn(toTransform, executed)
}

// TransformAll folds every executed command, in order, over the pending list.
func (r *Registry) TransformAll(toTransform, executed []command.Command) []command.Command {
	transformed := make([]command.Command, len(toTransform))
	copy(transformed, toTransform)

	for _, done := range executed {
		next := make([]command.Command, 0, len(transformed))
		for _, cmd := range transformed {
			next = append(next, r.Transform(cmd, done)...)
		}
		transformed = next
	}
	return transformed
}

func keep(cmd command.Command) []command.Command {
	return []command.Command{cmd}
}
