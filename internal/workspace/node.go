package workspace

import (
	"context"
	"strings"
	"sync"

	"oxidize/internal/cargo"
	"oxidize/internal/match"
	"oxidize/internal/piece"
	"oxidize/internal/segment"
)

// Node keeps an isolated subtree per unit. Units are translated once, in
// dependency order, so there is no shared program to reconcile; imports are
// hoisted into one deduplicated root and the rest is merged at render time.
type Node struct {
	manifest *cargo.Manifest

	mu       sync.Mutex
	allUnits []*segment.Unit
	results  map[*segment.Unit]*piece.Piece
	useDecls *piece.Piece
}

func NewNode(manifest *cargo.Manifest) *Node {
	return &Node{
		manifest: manifest,
		results:  make(map[*segment.Unit]*piece.Piece),
		useDecls: piece.NewRoot(),
	}
}

func (w *Node) Manifest() *cargo.Manifest { return w.manifest }

func (w *Node) SetUnits(ctx context.Context, units []*segment.Unit) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.allUnits = units
	return nil
}

// Push attributes the code to the batch's units and stores each unit's share
// as its own subtree. Top-level imports go to the shared root instead, where
// same-name bindings collapse.
func (w *Node) Push(ctx context.Context, units []*segment.Unit, code string) error {
	if len(units) == 0 {
		return nil
	}
	matcher, err := match.New(ctx, units)
	if err != nil {
		return err
	}
	matched, root, err := matcher.TryMatch(ctx, code)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for unit, pieces := range matched {
		texts := make([]string, 0, len(pieces))
		for _, p := range pieces {
			texts = append(texts, p.Text())
		}
		sub, err := piece.ParseRust(ctx, strings.Join(texts, "\n"))
		if err != nil {
			return err
		}
		w.results[unit] = sub
	}
	for _, item := range root.Items() {
		if item.Kind == piece.KindUse {
			w.useDecls.Add(item)
		}
	}
	return nil
}

func (w *Node) ProgramText() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	program := w.useDecls.Clone()
	for _, unit := range w.allUnits {
		if sub, ok := w.results[unit]; ok {
			program.MergeIn(sub.Clone())
		}
	}
	return program.Text()
}

// ResultOf renders what a single unit translated to.
func (w *Node) ResultOf(unit *segment.Unit) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if sub, ok := w.results[unit]; ok {
		return sub.Text()
	}
	return ""
}

// DependencySummary renders the signatures of everything the batch's
// dependencies translate to.
func (w *Node) DependencySummary(units []*segment.Unit) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	seen := make(map[*segment.Unit]bool)
	var summaries []string
	for _, u := range units {
		for _, dep := range u.Uses {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if sub, ok := w.results[dep]; ok {
				summaries = append(summaries, sub.Summary())
			}
		}
	}
	return strings.Join(summaries, "\n")
}
