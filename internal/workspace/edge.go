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

// Edge keeps one shared program that every batch merges into. Each unit
// remembers the pieces last attributed to it, so later batches can be
// prompted with their own prior translation.
type Edge struct {
	manifest *cargo.Manifest

	mu         sync.Mutex
	allUnits   []*segment.Unit
	matcher    *match.Matcher
	program    *piece.Piece
	unitPieces map[*segment.Unit][]*piece.Piece
}

func NewEdge(manifest *cargo.Manifest) *Edge {
	return &Edge{
		manifest:   manifest,
		program:    piece.NewRoot(),
		unitPieces: make(map[*segment.Unit][]*piece.Piece),
	}
}

func (w *Edge) Manifest() *cargo.Manifest { return w.manifest }

func (w *Edge) SetUnits(ctx context.Context, units []*segment.Unit) error {
	matcher, err := match.New(ctx, units)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.allUnits = units
	w.matcher = matcher
	return nil
}

// Push matches the code against the whole project and merges it in. Pieces
// attributed to units outside the batch are dropped before the merge; the
// model was not asked about those, so such matches are stale echoes of the
// prompt context.
func (w *Edge) Push(ctx context.Context, units []*segment.Unit, code string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	matched, root, err := w.matcher.TryMatch(ctx, code)
	if err != nil {
		return err
	}
	if units == nil {
		units = w.allUnits
	}
	batch := unitSet(units)
	for unit, pieces := range matched {
		if !batch[unit] {
			for _, p := range pieces {
				p.RemoveFromParent()
			}
			continue
		}
		w.unitPieces[unit] = pieces
	}
	w.program.MergeIn(root)
	return nil
}

func (w *Edge) ProgramText() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.program.Text()
}

// ResolveTrimmed renders the smallest program still holding the referenced
// pieces, or "" when none of the references resolve anymore.
func (w *Edge) ResolveTrimmed(refs []piece.Ref) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var resolved []*piece.Piece
	for _, ref := range refs {
		if p := ref.Resolve(); p != nil {
			resolved = append(resolved, p)
		}
	}
	if trimmed := w.program.Trimmed(resolved); trimmed != nil {
		return trimmed.Text()
	}
	return ""
}

// Ranges maps the current program text to per-piece line ranges.
func (w *Edge) Ranges() []piece.Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.program.Ranges()
}

// ResultOf renders the pieces last attributed to a unit.
func (w *Edge) ResultOf(unit *segment.Unit) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	texts := make([]string, 0, len(w.unitPieces[unit]))
	for _, p := range w.unitPieces[unit] {
		texts = append(texts, p.Text())
	}
	return strings.Join(texts, "\n")
}

// ContextOf builds the prompt context for a batch. The first return value is
// the batch's prior translation: its own pieces, plus whole containers that
// hold any of them, plus every import. The second is a signature summary of
// the pieces its dependencies translate to.
func (w *Edge) ContextOf(units []*segment.Unit) (prior string, signatures string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var matched []*piece.Piece
	for _, u := range units {
		matched = append(matched, w.unitPieces[u]...)
	}
	matchedSet := make(map[string]bool, len(matched))
	for _, p := range matched {
		matchedSet[p.Text()] = true
	}

	var included []string
	for _, item := range w.program.Items() {
		switch {
		case item.Kind == piece.KindUse:
			included = append(included, item.Text())
		case matchedSet[item.Text()]:
			included = append(included, item.Text())
		case item.Kind.IsSplittable():
			if sub := item.Trimmed(matched); sub != nil {
				included = append(included, sub.Text())
			}
		case item.Kind.IsContainer():
			if anyInside(item, matched) {
				included = append(included, item.Text())
			}
		}
	}

	var used []*piece.Piece
	for _, u := range units {
		for _, dep := range u.Uses {
			used = append(used, w.unitPieces[dep]...)
		}
	}
	if trimmed := w.program.Trimmed(used); trimmed != nil {
		signatures = trimmed.Summary()
	}
	return strings.TrimSpace(strings.Join(included, "\n")), signatures
}

func anyInside(container *piece.Piece, pieces []*piece.Piece) bool {
	for _, p := range pieces {
		if container.Contains(p) {
			return true
		}
	}
	return false
}
