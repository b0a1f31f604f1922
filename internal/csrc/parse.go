package csrc

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Parse extracts the top-level declarations of a C or C++ translation unit.
// Unrecognized constructs are skipped rather than reported; the matcher only
// needs the named entities.
func Parse(ctx context.Context, text string) ([]*Decl, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())
	src := []byte(text)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var decls []*Decl
	collectScope(tree.RootNode(), src, &decls)
	return decls, nil
}

// collectScope walks one declaration scope. Linkage specifications and
// namespaces are flattened into the surrounding scope.
func collectScope(scope *sitter.Node, src []byte, out *[]*Decl) {
	for i := 0; i < int(scope.NamedChildCount()); i++ {
		node := scope.NamedChild(i)
		switch node.Type() {
		case "linkage_specification":
			if body := node.ChildByFieldName("body"); body != nil {
				collectScope(body, src, out)
			}
		case "namespace_definition":
			if body := node.ChildByFieldName("body"); body != nil {
				collectScope(body, src, out)
			}
		case "preproc_if", "preproc_ifdef", "preproc_else":
			collectScope(node, src, out)
		default:
			if d := declOf(node, src); d != nil {
				*out = append(*out, d)
			}
		}
	}
}

func declOf(node *sitter.Node, src []byte) *Decl {
	text := node.Content(src)
	switch node.Type() {
	case "preproc_def":
		return &Decl{Kind: KindMacro, Name: fieldName(node, "name", src), Text: text}

	case "preproc_function_def":
		return &Decl{Kind: KindMacroFn, Name: fieldName(node, "name", src), Text: text}

	case "alias_declaration", "using_declaration":
		return &Decl{Kind: KindUsing, Name: usingName(node, src), Text: text}

	case "type_definition":
		return typedefDecl(node, src, text)

	case "function_definition":
		return &Decl{Kind: KindFunction, Name: declaratorName(node.ChildByFieldName("declarator"), src), Text: text}

	case "struct_specifier", "union_specifier", "enum_specifier", "class_specifier":
		return specifierDecl(node, src, text, "")

	case "template_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if d := declOf(node.NamedChild(i), src); d != nil {
				d.Text = text
				return d
			}
		}
		return nil

	case "declaration":
		return declarationDecl(node, src, text)
	}
	return nil
}

// typedefDecl handles both plain typedefs and typedefs that carry a struct,
// union or enum definition inline. The inline definition is kept under Body
// so the typedef can be matched through it.
func typedefDecl(node *sitter.Node, src []byte, text string) *Decl {
	names := fieldNames(node, "declarator", src)
	var body *Decl
	if typ := node.ChildByFieldName("type"); typ != nil {
		switch typ.Type() {
		case "struct_specifier", "union_specifier", "enum_specifier", "class_specifier":
			if typ.ChildByFieldName("body") != nil {
				alias := ""
				if len(names) > 0 {
					alias = names[0]
				}
				body = specifierDecl(typ, src, text, alias)
			}
		}
	}
	if len(names) == 0 {
		return body
	}
	d := &Decl{Kind: KindTypedef, Name: names[0], Text: text}
	if len(names) > 1 {
		d.Kind = KindMultiTypedef
		d.Names = names
	}
	if body != nil {
		d.Body = append(d.Body, body)
	}
	return d
}

// specifierDecl builds a struct, union, enum or class declaration. A bare
// forward declaration without a body is ignored.
func specifierDecl(node *sitter.Node, src []byte, text, alias string) *Decl {
	body := node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	name := fieldName(node, "name", src)
	if name == "" {
		name = alias
	}
	if name == "" {
		return nil
	}
	d := &Decl{Text: text, Name: name}
	switch node.Type() {
	case "struct_specifier":
		d.Kind = KindStruct
	case "union_specifier":
		d.Kind = KindUnion
	case "class_specifier":
		d.Kind = KindClass
	case "enum_specifier":
		d.Kind = KindEnum
		for i := 0; i < int(body.NamedChildCount()); i++ {
			item := body.NamedChild(i)
			if item.Type() == "enumerator" {
				d.Enumerators = append(d.Enumerators, fieldName(item, "name", src))
			}
		}
		return d
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		item := body.NamedChild(i)
		switch item.Type() {
		case "field_declaration":
			for _, n := range fieldNames(item, "declarator", src) {
				d.Body = append(d.Body, &Decl{Kind: KindDecl, Name: n, Text: item.Content(src)})
			}
		case "function_definition", "declaration":
			if m := declOf(item, src); m != nil {
				d.Body = append(d.Body, m)
			}
		}
	}
	return d
}

// declarationDecl handles plain declarations: prototypes, variables, and
// comma lists of declarators.
func declarationDecl(node *sitter.Node, src []byte, text string) *Decl {
	var names []string
	var funcs []bool
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.FieldNameForChild(i) != "declarator" {
			continue
		}
		decl := node.Child(i)
		if n := declaratorName(decl, src); n != "" {
			names = append(names, n)
			funcs = append(funcs, isFuncDeclarator(decl))
		}
	}
	if len(names) == 0 {
		// A definition like `struct Foo { ... };` parses as a declaration
		// with the specifier in the type field.
		if typ := node.ChildByFieldName("type"); typ != nil {
			return declOf(typ, src)
		}
		return nil
	}
	if len(names) == 1 {
		if funcs[0] {
			return &Decl{Kind: KindFunction, Name: names[0], Text: text, isFunc: true}
		}
		return &Decl{Kind: KindDecl, Name: names[0], Text: text}
	}
	return &Decl{Kind: KindMultiDecl, Name: names[0], Names: names, Funcs: funcs, Text: text}
}

func fieldName(node *sitter.Node, field string, src []byte) string {
	if c := node.ChildByFieldName(field); c != nil {
		return c.Content(src)
	}
	return ""
}

func fieldNames(node *sitter.Node, field string, src []byte) []string {
	var names []string
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.FieldNameForChild(i) != field {
			continue
		}
		if n := declaratorName(node.Child(i), src); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func usingName(node *sitter.Node, src []byte) string {
	if n := fieldName(node, "name", src); n != "" {
		return n
	}
	// using_declaration carries the qualified name as its last child; the
	// bound name is its final component.
	for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
		c := node.NamedChild(i)
		switch c.Type() {
		case "identifier", "qualified_identifier":
			if name := c.ChildByFieldName("name"); name != nil {
				return name.Content(src)
			}
			return c.Content(src)
		}
	}
	return ""
}

// declaratorName digs through pointer, array, function and init declarators
// to the underlying identifier.
func declaratorName(node *sitter.Node, src []byte) string {
	for node != nil {
		switch node.Type() {
		case "identifier", "type_identifier", "field_identifier", "operator_name", "destructor_name":
			return node.Content(src)
		}
		if inner := node.ChildByFieldName("declarator"); inner != nil {
			node = inner
			continue
		}
		var next *sitter.Node
		for i := 0; i < int(node.NamedChildCount()); i++ {
			c := node.NamedChild(i)
			switch c.Type() {
			case "identifier", "type_identifier", "field_identifier":
				return c.Content(src)
			case "parenthesized_declarator", "pointer_declarator", "reference_declarator":
				next = c
			}
		}
		node = next
	}
	return ""
}

func isFuncDeclarator(node *sitter.Node) bool {
	for node != nil {
		if node.Type() == "function_declarator" {
			return true
		}
		node = node.ChildByFieldName("declarator")
	}
	return false
}
