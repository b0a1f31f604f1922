// Package csrc models top-level C and C++ declarations as extracted by
// tree-sitter. The matcher uses these to pair source entities with their
// translated counterparts.
package csrc

import "fmt"

// Kind classifies a top-level declaration.
type Kind int

const (
	KindTypedef Kind = iota
	KindUsing
	KindMultiTypedef
	KindMacro
	KindMacroFn
	KindDecl
	KindMultiDecl
	KindFunction
	KindStruct
	KindUnion
	KindEnum
	KindClass
)

var kindNames = map[Kind]string{
	KindTypedef:      "typedef",
	KindUsing:        "using",
	KindMultiTypedef: "multi-typedef",
	KindMacro:        "macro",
	KindMacroFn:      "macro-fn",
	KindDecl:         "decl",
	KindMultiDecl:    "multi-decl",
	KindFunction:     "function",
	KindStruct:       "struct",
	KindUnion:        "union",
	KindEnum:         "enum",
	KindClass:        "class",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Decl is one top-level declaration in a translation unit.
type Decl struct {
	Kind Kind
	Name string

	// Names holds the per-declarator names of a multi-typedef or
	// multi-declarator declaration, in source order.
	Names []string

	// Funcs parallels Names for multi-declarator declarations and marks
	// which declarators declare functions.
	Funcs []bool

	// Body holds nested declarations: the members of a struct, union or
	// class, or the inline type definition carried by a typedef.
	Body []*Decl

	// Enumerators holds the enumerator names of an enum, in source order.
	Enumerators []string

	Text   string
	isFunc bool
}

// IsFunc reports whether the declaration declares a function, either as a
// definition or as a prototype.
func (d *Decl) IsFunc() bool {
	return d.Kind == KindFunction || d.isFunc
}

func (d *Decl) String() string {
	return fmt.Sprintf("%s %s", d.Kind, d.Name)
}
