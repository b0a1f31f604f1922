// Package match pairs declarations of a C translation unit with the pieces
// of a translated program. Matching is name-driven and tries progressively
// looser strategies, from exact names down to structural comparison.
package match

import (
	"context"
	"fmt"
	"strings"

	"oxidize/internal/csrc"
	"oxidize/internal/ctxlog"
	"oxidize/internal/piece"
	"oxidize/internal/segment"
)

// Result maps each unit to the translated pieces attributed to it. Units
// with no attribution are absent.
type Result map[*segment.Unit][]*piece.Piece

// Error reports units whose declarations found no counterpart in a
// translation that was required to cover them.
type Error struct {
	Units []*segment.Unit
}

func (e *Error) Error() string {
	paths := make([]string, 0, len(e.Units))
	for _, u := range e.Units {
		paths = append(paths, u.Path)
	}
	return "no translated counterpart for " + strings.Join(paths, ", ")
}

// Matcher holds the parsed declarations of a fixed set of units.
type Matcher struct {
	units []*segment.Unit
	decls map[*segment.Unit][]*csrc.Decl
}

// New parses the declarations of every unit once, up front.
func New(ctx context.Context, units []*segment.Unit) (*Matcher, error) {
	log := ctxlog.FromContext(ctx)
	m := &Matcher{units: units, decls: make(map[*segment.Unit][]*csrc.Decl, len(units))}
	for _, u := range units {
		decls, err := csrc.Parse(ctx, u.Text)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", u.Path, err)
		}
		if len(decls) == 0 {
			log.Warn("unit has no extractable declarations", "unit", u.Path)
		}
		m.decls[u] = decls
	}
	return m, nil
}

// Match parses the translated text and attributes its pieces to units. Every
// unit that has declarations must receive at least one piece; otherwise an
// *Error naming the uncovered units is returned.
func (m *Matcher) Match(ctx context.Context, text string) (Result, *piece.Piece, error) {
	result, root, err := m.TryMatch(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	var missing []*segment.Unit
	for _, u := range m.units {
		if len(m.decls[u]) > 0 && len(result[u]) == 0 {
			missing = append(missing, u)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &Error{Units: missing}
	}
	return result, root, nil
}

// TryMatch is Match without the coverage requirement.
func (m *Matcher) TryMatch(ctx context.Context, text string) (Result, *piece.Piece, error) {
	root, err := piece.ParseRust(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	root.Normalize()

	items := root.Items()
	result := make(Result)
	for _, u := range m.units {
		var pieces []*piece.Piece
		for _, d := range m.decls[u] {
			pieces = append(pieces, matchDecl(d, items)...)
		}
		if len(pieces) > 0 {
			result[u] = pieces
		}
	}
	return result, root, nil
}

// counterKinds lists which piece kinds may realize a declaration kind.
func counterKinds(k csrc.Kind) []piece.Kind {
	switch k {
	case csrc.KindTypedef, csrc.KindUsing, csrc.KindMultiTypedef:
		return []piece.Kind{piece.KindTypeAlias}
	case csrc.KindMacro:
		return []piece.Kind{piece.KindMacro, piece.KindConst}
	case csrc.KindMacroFn:
		return []piece.Kind{piece.KindMacro, piece.KindFn}
	case csrc.KindFunction:
		return []piece.Kind{piece.KindFn}
	case csrc.KindEnum:
		return []piece.Kind{piece.KindEnum}
	case csrc.KindStruct, csrc.KindClass:
		return []piece.Kind{piece.KindStruct}
	case csrc.KindUnion:
		// A union translates to whichever safe shape the model chose.
		return []piece.Kind{piece.KindStruct, piece.KindEnum}
	}
	return nil
}

func matchDecl(d *csrc.Decl, items []*piece.Piece) []*piece.Piece {
	switch d.Kind {
	case csrc.KindTypedef, csrc.KindUsing:
		return matchTypedef(d, items)
	case csrc.KindMultiTypedef:
		return matchMultiTypedef(d, items)
	case csrc.KindMacro:
		if found := matchExactOrTokens(d.Name, items, counterKinds(d.Kind)); len(found) > 0 {
			return found
		}
		return matchExactLower(d.Name, items, counterKinds(d.Kind))
	case csrc.KindMacroFn, csrc.KindStruct, csrc.KindClass, csrc.KindUnion:
		return matchExactOrTokens(d.Name, items, counterKinds(d.Kind))
	case csrc.KindDecl:
		return matchDeclarator(d.Name, d.IsFunc(), items)
	case csrc.KindMultiDecl:
		var out []*piece.Piece
		for i, name := range d.Names {
			out = append(out, matchDeclarator(name, d.Funcs[i], items)...)
		}
		return out
	case csrc.KindFunction:
		if found := matchExactOrTokens(d.Name, items, counterKinds(d.Kind)); len(found) > 0 {
			return found
		}
		return matchImplMethod(d.Name, items)
	case csrc.KindEnum:
		return matchEnum(d, items)
	}
	return nil
}

// matchTypedef prefers the inline definition: its own name, then the typedef
// name against the definition's kinds, then a plain type alias.
func matchTypedef(d *csrc.Decl, items []*piece.Piece) []*piece.Piece {
	if len(d.Body) > 0 {
		body := d.Body[0]
		if found := matchDecl(body, items); len(found) > 0 {
			return found
		}
		if found := matchExactOrTokens(d.Name, items, counterKinds(body.Kind)); len(found) > 0 {
			return found
		}
	}
	return matchExactOrTokens(d.Name, items, []piece.Kind{piece.KindTypeAlias})
}

func matchMultiTypedef(d *csrc.Decl, items []*piece.Piece) []*piece.Piece {
	kinds := []piece.Kind{piece.KindTypeAlias}
	if len(d.Body) > 0 {
		kinds = counterKinds(d.Body[0].Kind)
	}
	var out []*piece.Piece
	for _, name := range d.Names {
		out = append(out, matchExactOrTokens(name, items, kinds)...)
	}
	return out
}

// matchDeclarator resolves one declared name: prototypes pair with function
// signatures, variables with consts and statics, then with struct fields.
func matchDeclarator(name string, isFunc bool, items []*piece.Piece) []*piece.Piece {
	if isFunc {
		return matchExactOrTokens(name, items, []piece.Kind{piece.KindFnSignature})
	}
	if found := matchExactOrTokens(name, items, []piece.Kind{piece.KindConst, piece.KindStatic}); len(found) > 0 {
		return found
	}
	return matchField(name, items)
}

func matchField(name string, items []*piece.Piece) []*piece.Piece {
	for _, item := range items {
		if item.Kind != piece.KindStruct {
			continue
		}
		for _, field := range item.Items() {
			if name != "" && field.Name() == name {
				return []*piece.Piece{field}
			}
		}
	}
	return nil
}

// matchImplMethod looks for a method whose bare name matches, or whose
// receiver type plus name tokenizes to the same word sequence as the C
// function name.
func matchImplMethod(name string, items []*piece.Piece) []*piece.Piece {
	for _, item := range items {
		if item.Kind != piece.KindImpl && item.Kind != piece.KindImplTrait {
			continue
		}
		for _, method := range item.Items() {
			if method.Kind != piece.KindFn {
				continue
			}
			if method.Name() == name {
				return []*piece.Piece{method}
			}
			if tokensEqual(name, item.TypeName+"_"+method.Name()) {
				return []*piece.Piece{method}
			}
		}
	}
	return nil
}

func matchEnum(d *csrc.Decl, items []*piece.Piece) []*piece.Piece {
	if found := matchExactOrTokens(d.Name, items, counterKinds(d.Kind)); len(found) > 0 {
		return found
	}

	// A tag-less or renamed C enum may still be identified by its full
	// enumerator set.
	want := make(map[string]bool, len(d.Enumerators))
	for _, n := range d.Enumerators {
		want[strings.ToLower(n)] = true
	}
	for _, item := range items {
		if item.Kind != piece.KindEnum || len(want) == 0 {
			continue
		}
		got := make(map[string]bool, len(item.Items()))
		for _, v := range item.Items() {
			got[strings.ToLower(v.Name())] = true
		}
		if setsEqual(want, got) {
			return []*piece.Piece{item}
		}
	}

	// Enumerators lowered to individual constants.
	var out []*piece.Piece
	for _, n := range d.Enumerators {
		out = append(out, matchExactOrTokens(n, items, []piece.Kind{piece.KindConst, piece.KindStatic})...)
	}
	return out
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
