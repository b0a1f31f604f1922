package piece

// textSet indexes pieces by rendered text, so pieces from different parses
// of the same code compare equal.
type textSet map[string][]*Piece

func newTextSet(pieces []*Piece) textSet {
	set := make(textSet, len(pieces))
	for _, p := range pieces {
		set[p.Text()] = append(set[p.Text()], p)
	}
	return set
}

func (s textSet) has(p *Piece) bool {
	_, ok := s[p.Text()]
	return ok
}

// Split divides a splittable into a copy holding the given pieces and a copy
// holding the rest. Either side is nil when it would be empty.
func (p *Piece) Split(pieces []*Piece) (in, out *Piece) {
	set := newTextSet(pieces)
	in = p.EmptyClone()
	out = p.EmptyClone()
	for _, item := range p.Items() {
		if set.has(item) {
			in.Add(item.Clone())
		} else {
			out.Add(item.Clone())
		}
	}
	if in.IsEmpty() {
		in = nil
	}
	if out.IsEmpty() {
		out = nil
	}
	return in, out
}

// Trimmed builds the smallest copy of p that still holds the given pieces.
// Nested splittables are trimmed recursively; a plain container comes along
// whole when any target piece lives inside it. Returns nil when nothing
// matches.
func (p *Piece) Trimmed(pieces []*Piece) *Piece {
	set := newTextSet(pieces)
	out := p.EmptyClone()
	for _, item := range p.Items() {
		switch {
		case set.has(item):
			out.Add(item.Clone())
		case item.Kind.IsSplittable():
			if sub := item.Trimmed(pieces); sub != nil {
				out.Add(sub)
			}
		case item.Kind.IsContainer():
			if containsAny(item, pieces) {
				out.Add(item.Clone())
			}
		}
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

func containsAny(container *Piece, pieces []*Piece) bool {
	for _, q := range pieces {
		if container.Contains(q) {
			return true
		}
	}
	return false
}
