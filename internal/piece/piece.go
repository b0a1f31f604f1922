package piece

import (
	"regexp"
	"sort"
	"strings"
)

// Piece is one node of a translated source tree. The zero value is not
// usable; pieces come from ParseRust or from Clone and friends.
type Piece struct {
	Kind Kind

	name     string
	text     string // literal body for atoms; scratch for containers
	attrText string
	commText string

	parent *Piece
	items  map[string]*Piece
	order  []string

	// Path is the scope path of a use declaration, or the full path of a
	// single bound name inside one.
	Path  []string
	Alias string

	// TypeName is the declared type of a static or const, or the target
	// type of an impl block.
	TypeName   string
	TypeParams []string
	TypeArgs   []string

	TraitName string
	TraitArgs []string

	Signature      string
	ParamTypes     []string
	ReturnType     string
	TypeParamKinds []string

	// Rules holds the left and right side of each macro rule.
	Rules [][2]string
}

func newPiece(kind Kind) *Piece {
	p := &Piece{Kind: kind}
	if kind.IsContainer() {
		p.items = make(map[string]*Piece)
	}
	return p
}

// NewRoot returns an empty program root.
func NewRoot() *Piece {
	return newPiece(KindRoot)
}

func (p *Piece) Name() string    { return p.name }
func (p *Piece) Parent() *Piece  { return p.parent }
func (p *Piece) Comment() string { return p.commText }

func (p *Piece) SetComment(comment string) { p.commText = comment }

// Root walks to the top of the tree this piece belongs to.
func (p *Piece) Root() *Piece {
	for p.parent != nil {
		p = p.parent
	}
	return p
}

// Items returns the children in render order. Only a root reorders its
// children; every other container keeps insertion order.
func (p *Piece) Items() []*Piece {
	out := make([]*Piece, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.items[name])
	}
	if p.Kind == KindRoot {
		sort.SliceStable(out, func(i, j int) bool {
			return renderRank(out[i].Kind) < renderRank(out[j].Kind)
		})
	}
	return out
}

// ItemByName returns the direct child with the given name, or nil.
func (p *Piece) ItemByName(name string) *Piece {
	if p.items == nil {
		return nil
	}
	return p.items[name]
}

func (p *Piece) IsEmpty() bool { return len(p.items) == 0 }

// Add inserts item under p, replacing any existing child of the same name.
// When both the old and new child are containers of the same kind, children
// only present in the old one are moved into the new one first. Add returns
// the pieces evicted from the tree; the caller owns them.
func (p *Piece) Add(item *Piece) []*Piece {
	var popped []*Piece

	if p.Kind == KindRoot && item.Kind == KindUse {
		for name := range item.declNames() {
			if prev, ok := p.useDecl(name); ok {
				prev.RemoveFromParent()
			}
			p.RemoveByName(name)
		}
	}

	old := p.items[item.name]
	if old != nil && old.Kind == item.Kind && item.Kind.IsContainer() {
		for _, sub := range old.Items() {
			if item.addIfAbsent(sub) {
				popped = append(popped, sub)
			}
		}
	}
	if old != nil {
		p.Remove(old)
		popped = append(popped, old)
	}
	p.insert(item)
	return popped
}

// addIfAbsent transplants item only when no child of that name exists. The
// item is moved, not copied.
func (p *Piece) addIfAbsent(item *Piece) bool {
	if _, ok := p.items[item.name]; ok {
		return false
	}
	p.insert(item)
	return true
}

func (p *Piece) insert(item *Piece) {
	if _, ok := p.items[item.name]; !ok {
		p.order = append(p.order, item.name)
	}
	p.items[item.name] = item
	item.parent = p
}

// Remove detaches item from p. A container left empty detaches itself from
// its own parent in turn.
func (p *Piece) Remove(item *Piece) {
	item.parent = nil
	if p.items[item.name] == item {
		delete(p.items, item.name)
		for i, name := range p.order {
			if name == item.name {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
	if len(p.items) == 0 {
		p.RemoveFromParent()
	}
}

func (p *Piece) RemoveByName(name string) {
	if item, ok := p.items[name]; ok {
		p.Remove(item)
	}
}

func (p *Piece) RemoveFromParent() {
	if p.parent != nil {
		p.parent.Remove(p)
	}
}

// Contains reports whether piece sits inside p, directly or not.
func (p *Piece) Contains(piece *Piece) bool {
	for q := piece.parent; q != nil; q = q.parent {
		if q == p {
			return true
		}
	}
	return false
}

// declNames maps each name a use declaration binds to the item binding it.
// A trailing self binds the last path component.
func (p *Piece) declNames() map[string]*Piece {
	names := make(map[string]*Piece, len(p.items))
	for _, item := range p.Items() {
		name := item.name
		if name == "self" && len(p.Path) > 0 {
			name = p.Path[len(p.Path)-1]
		}
		names[name] = item
	}
	return names
}

// useDecl finds the use item currently binding name at this root.
func (p *Piece) useDecl(name string) (*Piece, bool) {
	for _, item := range p.Items() {
		if item.Kind != KindUse {
			continue
		}
		if id, ok := item.declNames()[name]; ok {
			return id, true
		}
	}
	return nil, false
}

// MergeIn moves every top-level piece of other into p and returns the
// pieces that fell out of the tree.
func (p *Piece) MergeIn(other *Piece) []*Piece {
	var popped []*Piece
	for _, item := range other.Items() {
		popped = append(popped, p.Add(item)...)
	}
	return popped
}

// Normalize drops top-level use declarations rooted at the current crate.
// Translations sometimes invent module layouts; the merged program is one
// file, so such imports only break it.
func (p *Piece) Normalize() {
	for _, item := range p.Items() {
		if item.Kind == KindUse && len(item.Path) > 0 && item.Path[0] == "crate" {
			p.Remove(item)
		}
	}
}

// EmptyClone copies the piece without its children or parent link.
func (p *Piece) EmptyClone() *Piece {
	q := newPiece(p.Kind)
	q.name = p.name
	q.text = p.text
	q.attrText = p.attrText
	q.commText = p.commText
	q.Path = append([]string(nil), p.Path...)
	q.Alias = p.Alias
	q.TypeName = p.TypeName
	q.TypeParams = append([]string(nil), p.TypeParams...)
	q.TypeArgs = append([]string(nil), p.TypeArgs...)
	q.TraitName = p.TraitName
	q.TraitArgs = append([]string(nil), p.TraitArgs...)
	q.Signature = p.Signature
	q.ParamTypes = append([]string(nil), p.ParamTypes...)
	q.ReturnType = p.ReturnType
	q.TypeParamKinds = append([]string(nil), p.TypeParamKinds...)
	q.Rules = append([][2]string(nil), p.Rules...)
	return q
}

// Clone deep-copies the piece. The copy has no parent.
func (p *Piece) Clone() *Piece {
	q := p.EmptyClone()
	for _, item := range p.Items() {
		q.Add(item.Clone())
	}
	return q
}

var (
	reLineComment  = regexp.MustCompile(`//.*`)
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reSpaces       = regexp.MustCompile(`\s+`)
)

// normalizeText strips comments and collapses whitespace for structural
// comparison.
func normalizeText(s string) string {
	s = reLineComment.ReplaceAllString(s, "")
	s = reBlockComment.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// InterfaceEqual reports whether two pieces expose the same interface to the
// rest of the program. Statics and consts compare by name and type, functions
// by name and signature shape, containers child-wise; everything else falls
// back to normalized text.
func (p *Piece) InterfaceEqual(other *Piece) bool {
	if p.Kind != other.Kind {
		return false
	}
	switch p.Kind {
	case KindStatic, KindConst:
		return p.name == other.name && p.TypeName == other.TypeName
	case KindFn:
		return p.name == other.name &&
			stringsEqual(p.ParamTypes, other.ParamTypes) &&
			p.ReturnType == other.ReturnType &&
			stringsEqual(p.TypeParamKinds, other.TypeParamKinds)
	}
	if p.Kind.IsContainer() {
		if normalizeText(p.attrText) != normalizeText(other.attrText) || p.name != other.name {
			return false
		}
		if len(p.items) != len(other.items) {
			return false
		}
		for name, item := range p.items {
			counterpart, ok := other.items[name]
			if !ok || !item.InterfaceEqual(counterpart) {
				return false
			}
		}
		return true
	}
	return normalizeText(p.attrText) == normalizeText(other.attrText) &&
		normalizeText(p.text) == normalizeText(other.text)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
