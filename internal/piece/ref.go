package piece

import "strings"

// Ref is a structural path from a splittable root down to one piece. It
// stays valid across merges as long as the named chain survives.
type Ref struct {
	root  *Piece
	names []string
}

// NewRef builds a reference rooted at root following names.
func NewRef(root *Piece, names ...string) Ref {
	return Ref{root: root, names: names}
}

// Resolve follows the name chain and returns the referenced piece, or nil
// when any link has since been removed.
func (r Ref) Resolve() *Piece {
	p := r.root
	for _, name := range r.names {
		if p == nil || !p.Kind.IsContainer() {
			return nil
		}
		p = p.items[name]
	}
	return p
}

func (r Ref) IsRoot() bool { return len(r.names) == 0 }

func (r Ref) Names() []string { return append([]string(nil), r.names...) }

// Key is a stable map key for references sharing a root. Piece names never
// contain newlines, so the join is unambiguous.
func (r Ref) Key() string { return strings.Join(r.names, "\n") }

func (r Ref) child(name string) Ref {
	names := make([]string, 0, len(r.names)+1)
	names = append(names, r.names...)
	names = append(names, name)
	return Ref{root: r.root, names: names}
}

// Fragment is one rendered chunk of a walk: a header, an item, a separator
// or a tail, tagged with the reference it belongs to.
type Fragment struct {
	Ref  Ref
	Text string
}

// Walk flattens a splittable into render-order fragments. Structural
// fragments carry the container's own reference; each non-splittable item
// yields one fragment under its reference, and nested splittables recurse.
// A nested splittable contributes only its structural header, not its
// leading comment or attribute lines, so those rendered lines carry no
// fragment and no range.
func (p *Piece) Walk() []Fragment {
	return p.walk(Ref{root: p})
}

func (p *Piece) walk(refAs Ref) []Fragment {
	frags := []Fragment{{Ref: refAs, Text: p.header()}}
	items := p.Items()
	for i, item := range items {
		ref := refAs.child(item.name)
		if item.Kind.IsSplittable() {
			frags = append(frags, item.walk(ref)...)
		} else {
			frags = append(frags, Fragment{Ref: ref, Text: item.Text()})
		}
		if i < len(items)-1 {
			frags = append(frags, Fragment{Ref: refAs, Text: p.sep()})
		}
	}
	return append(frags, Fragment{Ref: refAs, Text: p.tail()})
}

// Range attributes a run of rendered lines to one reference. Lines are
// 1-based and both ends are inclusive.
type Range struct {
	Ref   Ref
	Start int
	End   int
}

// Ranges maps the rendered text of p to line ranges per reference. Fragments
// that hold only whitespace and punctuation are skipped, so a diagnostic on
// such a line falls to no range rather than to a structural separator.
func (p *Piece) Ranges() []Range {
	var ranges []Range
	start := 1
	for _, frag := range p.Walk() {
		end := start + strings.Count(frag.Text, "\n")
		if strings.Trim(frag.Text, " \t\n,;{}") != "" {
			ranges = append(ranges, Range{Ref: frag.Ref, Start: start, End: end})
		}
		start = end
	}
	return ranges
}
