// Package piece models translated Rust source as a tree of named pieces.
// Atomic pieces carry literal text; containers hold name-keyed children and
// render themselves from a header, a separator and a tail. Merging two trees
// is structural: a newer piece replaces the older one of the same name, and
// children only present in the old container survive into the new one.
package piece

import "fmt"

// Kind identifies what a piece is.
type Kind int

const (
	KindRoot Kind = iota
	KindUse
	KindUseItem
	KindMacro
	KindStatic
	KindConst
	KindEnum
	KindEnumVariant
	KindStruct
	KindField
	KindFn
	KindFnSignature
	KindTypeAlias
	KindAssociatedType
	KindImpl
	KindImplTrait
	KindTrait
)

var kindNames = map[Kind]string{
	KindRoot:           "root",
	KindUse:            "use",
	KindUseItem:        "use-item",
	KindMacro:          "macro",
	KindStatic:         "static",
	KindConst:          "const",
	KindEnum:           "enum",
	KindEnumVariant:    "enum-variant",
	KindStruct:         "struct",
	KindField:          "field",
	KindFn:             "fn",
	KindFnSignature:    "fn-signature",
	KindTypeAlias:      "type-alias",
	KindAssociatedType: "associated-type",
	KindImpl:           "impl",
	KindImplTrait:      "impl-trait",
	KindTrait:          "trait",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsContainer reports whether pieces of this kind hold named children.
func (k Kind) IsContainer() bool {
	switch k {
	case KindRoot, KindUse, KindStruct, KindEnum, KindImpl, KindImplTrait, KindTrait:
		return true
	}
	return false
}

// IsSplittable reports whether a container of this kind may be divided into
// partial views holding subsets of its children.
func (k Kind) IsSplittable() bool {
	switch k {
	case KindRoot, KindImpl, KindImplTrait:
		return true
	}
	return false
}

// renderRank orders top-level pieces when a root renders itself. Lower ranks
// come first; pieces of equal rank keep insertion order.
func renderRank(k Kind) int {
	switch k {
	case KindUse:
		return 0
	case KindMacro:
		return 1
	case KindStatic:
		return 2
	case KindConst:
		return 3
	case KindEnum:
		return 4
	case KindStruct:
		return 5
	case KindImpl:
		return 6
	default:
		return 7
	}
}
