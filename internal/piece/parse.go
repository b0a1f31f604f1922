package piece

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"oxidize/internal/ctxlog"
)

// ParseRust parses Rust source into a program root. Constructs the model
// does not track are skipped; a parse error in the grammar does not fail the
// call, it only yields fewer pieces. Use SyntaxOK to check grammaticality.
func ParseRust(ctx context.Context, text string) (*Piece, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())
	src := []byte(text)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	e := &extractor{src: src, log: ctxlog.FromContext(ctx)}
	root := NewRoot()
	node := tree.RootNode()
	children := make([]*sitter.Node, 0, node.ChildCount())
	for i := 0; i < int(node.ChildCount()); i++ {
		children = append(children, node.Child(i))
	}
	for _, item := range e.extract(children) {
		root.Add(item)
	}
	return root, nil
}

// SyntaxOK reports whether the text parses without grammar errors.
func SyntaxOK(ctx context.Context, text string) bool {
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, []byte(text))
	if err != nil {
		return false
	}
	defer tree.Close()
	return !tree.RootNode().HasError()
}

type extractor struct {
	src []byte
	log *slog.Logger
}

func nodeKind(n *sitter.Node) (Kind, bool) {
	switch n.Type() {
	case "use_declaration":
		return KindUse, true
	case "static_item":
		return KindStatic, true
	case "const_item":
		return KindConst, true
	case "struct_item":
		return KindStruct, true
	case "field_declaration":
		return KindField, true
	case "enum_item":
		return KindEnum, true
	case "enum_variant":
		return KindEnumVariant, true
	case "macro_definition":
		return KindMacro, true
	case "function_item":
		return KindFn, true
	case "function_signature_item":
		return KindFnSignature, true
	case "type_item":
		return KindTypeAlias, true
	case "associated_type":
		return KindAssociatedType, true
	case "trait_item":
		return KindTrait, true
	case "impl_item":
		if n.ChildByFieldName("trait") != nil {
			return KindImplTrait, true
		}
		return KindImpl, true
	}
	return 0, false
}

func isAttrNode(n *sitter.Node) bool {
	return n.Type() == "attribute_item" || n.Type() == "inner_attribute_item"
}

func isCommentNode(n *sitter.Node) bool {
	return n.Type() == "line_comment" || n.Type() == "block_comment"
}

// extract walks sibling nodes in order, carrying attributes and the comment
// run immediately above each extractable node. A comment separated by a blank
// line, or trailing on the same line as the previous node, does not attach.
func (e *extractor) extract(nodes []*sitter.Node) []*Piece {
	var out []*Piece
	var attrs, comments []*sitter.Node
	lastEnd := -1
	for _, node := range nodes {
		if _, ok := nodeKind(node); ok {
			if p := e.create(node, attrs, comments); p != nil {
				out = append(out, p)
			}
			lastEnd = int(node.EndPoint().Row)
		}
		switch {
		case isAttrNode(node):
			attrs = append(attrs, node)
		case isCommentNode(node) && int(node.StartPoint().Row) > lastEnd:
			if len(comments) > 0 && int(comments[len(comments)-1].EndPoint().Row) < int(node.StartPoint().Row)-1 {
				comments = []*sitter.Node{node}
			} else {
				comments = append(comments, node)
			}
		default:
			attrs, comments = nil, nil
		}
	}
	return out
}

var reTestAttr = regexp.MustCompile(`\n?[ \t]*#\[test\]`)

func (e *extractor) create(node *sitter.Node, attrs, comments []*sitter.Node) *Piece {
	kind, ok := nodeKind(node)
	if !ok {
		return nil
	}
	p := newPiece(kind)
	p.text = node.Content(e.src)

	texts := make([]string, 0, len(comments))
	for _, c := range comments {
		texts = append(texts, c.Content(e.src))
	}
	p.commText = strings.Join(texts, "\n")
	texts = texts[:0]
	for _, a := range attrs {
		texts = append(texts, a.Content(e.src))
	}
	p.attrText = strings.Join(texts, "\n")
	p.attrText = reTestAttr.ReplaceAllString(p.attrText, "")
	p.attrText = strings.ReplaceAll(p.attrText, "#[no_mangle]", "#[unsafe(no_mangle)]")

	if !e.populate(p, node) {
		return nil
	}
	return p
}

func (e *extractor) populate(p *Piece, node *sitter.Node) bool {
	switch p.Kind {
	case KindUse:
		return e.populateUse(p, node)
	case KindStatic, KindConst:
		p.name = e.fieldText(node, "name")
		p.TypeName = e.fieldText(node, "type")
		return p.name != "" && p.TypeName != ""
	case KindStruct, KindEnum:
		return e.populateAdt(p, node)
	case KindMacro:
		p.name = e.fieldText(node, "name")
		for i := 0; i < int(node.NamedChildCount()); i++ {
			rule := node.NamedChild(i)
			if rule.Type() != "macro_rule" {
				continue
			}
			p.Rules = append(p.Rules, [2]string{e.fieldText(rule, "left"), e.fieldText(rule, "right")})
		}
		return p.name != ""
	case KindFn:
		return e.populateFn(p, node)
	case KindFnSignature, KindTypeAlias, KindAssociatedType, KindField, KindEnumVariant:
		p.name = e.fieldText(node, "name")
		return p.name != ""
	case KindTrait:
		return e.populateTrait(p, node)
	case KindImpl, KindImplTrait:
		return e.populateImpl(p, node)
	}
	return false
}

func (e *extractor) populateUse(p *Piece, node *sitter.Node) bool {
	argument := node.ChildByFieldName("argument")
	if argument == nil {
		return false
	}
	p.Path = e.usePath(argument.ChildByFieldName("path"))
	p.name = "use " + strings.Join(p.Path, "::")

	var nameNodes []*sitter.Node
	switch {
	case argument.Type() == "identifier":
		nameNodes = []*sitter.Node{argument}
	case argument.ChildByFieldName("name") != nil:
		nameNodes = []*sitter.Node{argument.ChildByFieldName("name")}
	default:
		list := argument.ChildByFieldName("list")
		if list == nil {
			return false
		}
		for i := 0; i < int(list.NamedChildCount()); i++ {
			nameNodes = append(nameNodes, list.NamedChild(i))
		}
	}
	for _, n := range nameNodes {
		if id := e.useItem(n); id != nil {
			p.Add(id)
		}
	}
	return true
}

func (e *extractor) useItem(node *sitter.Node) *Piece {
	p := newPiece(KindUseItem)
	p.text = node.Content(e.src)
	switch node.Type() {
	case "use_as_clause":
		p.Path = e.usePath(node.ChildByFieldName("path"))
		p.Alias = e.fieldText(node, "alias")
		p.name = p.Alias
	case "scoped_identifier":
		p.Path = e.usePath(node)
		if len(p.Path) == 0 {
			return nil
		}
		p.name = p.Path[len(p.Path)-1]
	case "identifier":
		p.name = node.Content(e.src)
		p.Path = []string{p.name}
	case "self":
		p.name = "self"
		p.Path = []string{"self"}
	case "crate":
		p.name = "crate"
		p.Path = []string{"crate"}
	default:
		return nil
	}
	if p.name == "" {
		return nil
	}
	return p
}

func (e *extractor) usePath(node *sitter.Node) []string {
	var path []string
	for node != nil {
		switch node.Type() {
		case "identifier":
			path = append(path, node.Content(e.src))
		case "scoped_identifier":
			if name := node.ChildByFieldName("name"); name != nil {
				path = append(path, name.Content(e.src))
			}
		case "crate", "self", "super":
			path = append(path, node.Content(e.src))
		}
		node = node.ChildByFieldName("path")
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func (e *extractor) populateAdt(p *Piece, node *sitter.Node) bool {
	body := node.ChildByFieldName("body")
	p.name = e.fieldText(node, "name")
	if body == nil || p.name == "" {
		return false
	}
	p.TypeParams = e.namedChildTexts(node.ChildByFieldName("type_parameters"))

	want := KindField
	if p.Kind == KindEnum {
		want = KindEnumVariant
	}
	for _, item := range e.extract(namedChildren(body)) {
		if item.Kind != want {
			e.log.Warn("unexpected item in "+p.Kind.String(), "item", item.text)
			continue
		}
		p.Add(item)
	}
	return true
}

func (e *extractor) populateFn(p *Piece, node *sitter.Node) bool {
	p.name = e.fieldText(node, "name")
	params := node.ChildByFieldName("parameters")
	body := node.ChildByFieldName("body")
	if p.name == "" || params == nil || body == nil {
		return false
	}
	p.Signature = strings.TrimSpace(strings.Replace(node.Content(e.src), body.Content(e.src), "", 1))
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		if param.Type() == "self_parameter" {
			p.ParamTypes = append(p.ParamTypes, param.Content(e.src))
		} else if t := param.ChildByFieldName("type"); t != nil {
			p.ParamTypes = append(p.ParamTypes, t.Content(e.src))
		}
	}
	p.ReturnType = "()"
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		p.ReturnType = ret.Content(e.src)
	}
	if tps := node.ChildByFieldName("type_parameters"); tps != nil {
		for i := 0; i < int(tps.NamedChildCount()); i++ {
			p.TypeParamKinds = append(p.TypeParamKinds, tps.NamedChild(i).Type())
		}
	}
	return true
}

func (e *extractor) populateTrait(p *Piece, node *sitter.Node) bool {
	body := node.ChildByFieldName("body")
	p.name = e.fieldText(node, "name")
	if body == nil || p.name == "" {
		return false
	}
	for _, item := range e.extract(namedChildren(body)) {
		switch item.Kind {
		case KindFn, KindConst, KindTypeAlias, KindFnSignature, KindAssociatedType:
			p.Add(item)
		default:
			e.log.Warn("unexpected item in trait", "item", item.text)
		}
	}
	return true
}

func (e *extractor) populateImpl(p *Piece, node *sitter.Node) bool {
	body := node.ChildByFieldName("body")
	typeNode := node.ChildByFieldName("type")
	if body == nil || typeNode == nil {
		return false
	}
	p.TypeParams = e.namedChildTexts(node.ChildByFieldName("type_parameters"))
	p.TypeName, p.TypeArgs = e.typeAndArgs(typeNode)
	p.name = "impl " + p.TypeName

	if p.Kind == KindImplTrait {
		trait := node.ChildByFieldName("trait")
		p.TraitName, p.TraitArgs = e.typeAndArgs(trait)
		p.name = "impl " + p.TraitName + " for " + p.TypeName
	}

	for _, item := range e.extract(namedChildren(body)) {
		switch item.Kind {
		case KindFn, KindConst, KindTypeAlias:
			p.Add(item)
		default:
			e.log.Warn("unexpected item in impl", "item", item.text)
		}
	}
	return true
}

func (e *extractor) typeAndArgs(node *sitter.Node) (string, []string) {
	switch node.Type() {
	case "generic_type":
		return e.fieldText(node, "type"), e.namedChildTexts(node.ChildByFieldName("type_arguments"))
	case "type_identifier":
		return node.Content(e.src), nil
	}
	e.log.Warn("unexpected type in impl", "type", node.Type())
	return node.Content(e.src), nil
}

func (e *extractor) fieldText(node *sitter.Node, field string) string {
	if c := node.ChildByFieldName(field); c != nil {
		return c.Content(e.src)
	}
	return ""
}

func (e *extractor) namedChildTexts(node *sitter.Node) []string {
	if node == nil {
		return nil
	}
	out := make([]string, 0, node.NamedChildCount())
	for i := 0; i < int(node.NamedChildCount()); i++ {
		out = append(out, node.NamedChild(i).Content(e.src))
	}
	return out
}

func namedChildren(node *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := 0; i < int(node.NamedChildCount()); i++ {
		out = append(out, node.NamedChild(i))
	}
	return out
}
