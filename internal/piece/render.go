package piece

import "strings"

func joinNonEmpty(parts ...string) string {
	kept := parts[:0]
	for _, s := range parts {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n")
}

func angled(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return "<" + strings.Join(args, ", ") + ">"
}

func (p *Piece) header() string {
	switch p.Kind {
	case KindUse:
		bracket := ""
		if len(p.items) > 1 {
			bracket = "{"
		}
		return "use " + strings.Join(append(append([]string(nil), p.Path...), bracket), "::")
	case KindStruct:
		return "struct " + p.name + angled(p.TypeParams) + " {\n    "
	case KindEnum:
		return "enum " + p.name + angled(p.TypeParams) + " {\n    "
	case KindImpl:
		return "impl" + angled(p.TypeParams) + " " + p.TypeName + angled(p.TypeArgs) + " {\n    "
	case KindImplTrait:
		return "impl" + angled(p.TypeParams) + " " + p.TraitName + angled(p.TraitArgs) +
			" for " + p.TypeName + angled(p.TypeArgs) + " {\n    "
	case KindTrait:
		return "trait " + p.name + " {\n    "
	}
	return ""
}

func (p *Piece) sep() string {
	switch p.Kind {
	case KindUse:
		return ", "
	case KindStruct, KindEnum:
		return ",\n    "
	case KindImpl, KindImplTrait, KindTrait:
		return "\n    "
	case KindRoot:
		return "\n\n"
	}
	return ""
}

func (p *Piece) tail() string {
	switch p.Kind {
	case KindUse:
		if len(p.items) > 1 {
			return "};"
		}
		return ";"
	case KindStruct, KindEnum, KindImpl, KindImplTrait, KindTrait:
		return "\n}"
	}
	return ""
}

// Text renders the piece, comments and attributes included. Containers are
// rendered from their current children, so the text always reflects the
// latest merges.
func (p *Piece) Text() string {
	body := p.text
	if p.Kind.IsContainer() {
		texts := make([]string, 0, len(p.order))
		for _, item := range p.Items() {
			texts = append(texts, item.Text())
		}
		body = p.header() + strings.Join(texts, p.sep()) + p.tail()
	}
	return joinNonEmpty(p.commText, p.attrText, body)
}

// Summary renders the piece with bodies elided: statics, consts and
// functions shrink to their signatures, macros to their rule heads, and
// containers summarize child-wise.
func (p *Piece) Summary() string {
	switch p.Kind {
	case KindStatic:
		return "static " + p.name + ": " + p.TypeName + ";"
	case KindConst:
		return "const " + p.name + ": " + p.TypeName + ";"
	case KindFn:
		return p.Signature + ";"
	case KindMacro:
		var b strings.Builder
		b.WriteString("macro_rules! " + p.name + " {\n")
		for _, rule := range p.Rules {
			b.WriteString("    " + rule[0] + " => { /* omitted */ }\n")
		}
		b.WriteString("}")
		return b.String()
	}
	if p.Kind.IsContainer() {
		summaries := make([]string, 0, len(p.order))
		for _, item := range p.Items() {
			summaries = append(summaries, item.Summary())
		}
		return p.header() + strings.Join(summaries, p.sep()) + p.tail()
	}
	return p.text
}
