// Package workspace accumulates translation results across batches. A
// workspace owns a manifest for the crate being grown and knows how to merge
// a new batch of translated code into what it already holds.
package workspace

import (
	"context"

	"oxidize/internal/cargo"
	"oxidize/internal/segment"
)

// Workspace is the state shared by an engine's translation workers.
type Workspace interface {
	// SetUnits fixes the full unit set before translation starts.
	SetUnits(ctx context.Context, units []*segment.Unit) error

	// Push merges translated code in. units names the batch the code was
	// generated for; nil means the whole project.
	Push(ctx context.Context, units []*segment.Unit, code string) error

	// ProgramText renders everything accumulated so far as one program.
	ProgramText() string

	// Manifest is the crate manifest grown alongside the program.
	Manifest() *cargo.Manifest
}

func unitSet(units []*segment.Unit) map[*segment.Unit]bool {
	set := make(map[*segment.Unit]bool, len(units))
	for _, u := range units {
		set[u] = true
	}
	return set
}
