package piece

import (
	"context"
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *Piece {
	t.Helper()
	root, err := ParseRust(context.Background(), src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return root
}

func itemNames(p *Piece) []string {
	items := p.Items()
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name())
	}
	return names
}

func TestParseRustExtractsTopLevel(t *testing.T) {
	root := mustParse(t, `use std::fmt;

const MAX: usize = 10;

struct Point {
    x: i32,
    y: i32,
}

impl Point {
    fn norm(&self) -> i32 { self.x }
}`)

	got := itemNames(root)
	want := []string{"use std", "MAX", "Point", "impl Point"}
	if len(got) != len(want) {
		t.Fatalf("top-level items = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("top-level items = %v, want %v", got, want)
		}
	}

	point := root.ItemByName("Point")
	if point.Kind != KindStruct {
		t.Fatalf("Point kind = %v", point.Kind)
	}
	fields := itemNames(point)
	if len(fields) != 2 || fields[0] != "x" || fields[1] != "y" {
		t.Fatalf("Point fields = %v", fields)
	}

	norm := root.ItemByName("impl Point").ItemByName("norm")
	if norm == nil || norm.Kind != KindFn {
		t.Fatalf("norm not extracted")
	}
	if norm.Signature != "fn norm(&self) -> i32" {
		t.Fatalf("norm signature = %q", norm.Signature)
	}
	if len(norm.ParamTypes) != 1 || norm.ParamTypes[0] != "&self" {
		t.Fatalf("norm params = %v", norm.ParamTypes)
	}
	if norm.ReturnType != "i32" {
		t.Fatalf("norm return = %q", norm.ReturnType)
	}
}

func TestReturnTypeDefaultsToUnit(t *testing.T) {
	root := mustParse(t, "fn log(msg: &str) { println!(\"{}\", msg); }")
	fn := root.ItemByName("log")
	if fn.ReturnType != "()" {
		t.Fatalf("return type = %q, want ()", fn.ReturnType)
	}
}

func TestRenderOrderAndText(t *testing.T) {
	// Insertion order is fn, use, const; rendering reorders by kind.
	root := mustParse(t, `fn main() {
    let x = MAX;
}
use std::fmt;
const MAX: usize = 10;`)

	text := root.Text()
	want := "use std::fmt;\n\nconst MAX: usize = 10;\n\nfn main() {\n    let x = MAX;\n}"
	if text != want {
		t.Fatalf("rendered text = %q, want %q", text, want)
	}
}

func TestStructRendersFromChildren(t *testing.T) {
	root := mustParse(t, "struct Point {\n    x: i32,\n    y: i32,\n}")
	got := root.ItemByName("Point").Text()
	want := "struct Point {\n    x: i32,\n    y: i32\n}"
	if got != want {
		t.Fatalf("struct text = %q, want %q", got, want)
	}
}

func TestMergeNewWinsOldChildrenSurvive(t *testing.T) {
	old := mustParse(t, `impl P {
    fn a() -> i32 { 1 }
    fn b() -> i32 { 2 }
}`)
	new_ := mustParse(t, `impl P {
    fn b() -> i32 { 3 }
    fn c() -> i32 { 4 }
}`)
	old.MergeIn(new_)

	impl := old.ItemByName("impl P")
	names := itemNames(impl)
	if len(names) != 3 {
		t.Fatalf("merged impl items = %v", names)
	}
	if !strings.Contains(impl.ItemByName("b").Text(), "3") {
		t.Fatalf("newer b did not win: %q", impl.ItemByName("b").Text())
	}
	if impl.ItemByName("a") == nil || impl.ItemByName("c") == nil {
		t.Fatalf("merged impl items = %v", names)
	}
}

func TestMergeReplacesAtom(t *testing.T) {
	old := mustParse(t, "fn f() -> i32 { 1 }")
	popped := old.MergeIn(mustParse(t, "fn f() -> i32 { 2 }"))
	if len(popped) != 1 {
		t.Fatalf("popped %d pieces, want 1", len(popped))
	}
	if !strings.Contains(old.ItemByName("f").Text(), "2") {
		t.Fatalf("replacement lost: %q", old.ItemByName("f").Text())
	}
}

func TestUseRebindDropsOldImport(t *testing.T) {
	root := mustParse(t, "use std::collections::HashMap;\n\nfn f() {}")
	root.MergeIn(mustParse(t, "use hashbrown::HashMap;"))

	var uses []*Piece
	for _, item := range root.Items() {
		if item.Kind == KindUse {
			uses = append(uses, item)
		}
	}
	if len(uses) != 1 {
		t.Fatalf("got %d use declarations, want 1", len(uses))
	}
	if uses[0].Text() != "use hashbrown::HashMap;" {
		t.Fatalf("surviving use = %q", uses[0].Text())
	}
}

func TestUseSelfBindsLastPathComponent(t *testing.T) {
	root := mustParse(t, "use std::fmt;")
	root.MergeIn(mustParse(t, "use core::fmt::{self, Debug};"))

	var uses []*Piece
	for _, item := range root.Items() {
		if item.Kind == KindUse {
			uses = append(uses, item)
		}
	}
	if len(uses) != 1 {
		t.Fatalf("got %d use declarations, want 1", len(uses))
	}
	if uses[0].Text() != "use core::fmt::{self, Debug};" {
		t.Fatalf("surviving use = %q", uses[0].Text())
	}
}

func TestNormalizeDropsCrateImports(t *testing.T) {
	root := mustParse(t, "use crate::config::Config;\nuse std::fmt;\n\nfn f() {}")
	root.Normalize()
	for _, item := range root.Items() {
		if strings.Contains(item.Text(), "crate::") {
			t.Fatalf("crate import survived: %q", item.Text())
		}
	}
	if root.ItemByName("use std") == nil {
		t.Fatalf("unrelated import dropped")
	}
}

func TestRemoveEmptyContainerDetaches(t *testing.T) {
	root := mustParse(t, "impl P {\n    fn a() {}\n}\n\nfn keep() {}")
	impl := root.ItemByName("impl P")
	impl.Remove(impl.ItemByName("a"))
	if root.ItemByName("impl P") != nil {
		t.Fatalf("empty impl still attached")
	}
	if root.ItemByName("keep") == nil {
		t.Fatalf("sibling went with it")
	}
}

func TestRangesFollowRenderedLines(t *testing.T) {
	root := mustParse(t, `const A: i32 = 1;

fn main() {
    let x = A;
}`)
	ranges := root.Ranges()
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges: %+v", len(ranges), ranges)
	}
	if ranges[0].Start != 1 || ranges[0].End != 1 {
		t.Fatalf("const range = %d-%d", ranges[0].Start, ranges[0].End)
	}
	if ranges[1].Start != 3 || ranges[1].End != 5 {
		t.Fatalf("fn range = %d-%d", ranges[1].Start, ranges[1].End)
	}
	if got := ranges[1].Ref.Resolve(); got != root.ItemByName("main") {
		t.Fatalf("fn range resolves to %v", got)
	}

	// The ranges must agree with the rendered text they describe.
	lines := strings.Split(root.Text(), "\n")
	if len(lines) != 5 {
		t.Fatalf("rendered %d lines", len(lines))
	}
}

func TestRangesDescendIntoImpl(t *testing.T) {
	root := mustParse(t, `impl P {
    fn a() -> i32 { 1 }
    fn b() -> i32 { 2 }
}`)
	ranges := root.Ranges()
	byKey := make(map[string]Range, len(ranges))
	for _, r := range ranges {
		byKey[r.Ref.Key()] = r
	}
	a, ok := byKey["impl P\na"]
	if !ok {
		t.Fatalf("no range for method a: %+v", ranges)
	}
	b := byKey["impl P\nb"]
	if a.End >= b.Start {
		t.Fatalf("method ranges overlap: a=%d-%d b=%d-%d", a.Start, a.End, b.Start, b.End)
	}
}

func TestRangesSkipContainerComments(t *testing.T) {
	root := mustParse(t, `const A: i32 = 1;

// methods
impl P {
    fn a(&self) {}
}`)
	if text := root.Text(); !strings.Contains(text, "// methods") {
		t.Fatalf("comment lost:\n%s", text)
	}
	byKey := make(map[string]Range)
	for _, r := range root.Ranges() {
		byKey[r.Ref.Key()] = r
	}
	// The container's comment line is rendered but never walked, so
	// attribution inside the impl counts from the header line.
	if r := byKey["impl P"]; r.Start != 3 || r.End != 4 {
		t.Fatalf("impl header = %d-%d", r.Start, r.End)
	}
	if r := byKey["impl P\na"]; r.Start != 4 || r.End != 4 {
		t.Fatalf("method a = %d-%d", r.Start, r.End)
	}
}

func TestRefSurvivesMerge(t *testing.T) {
	root := mustParse(t, "fn f() -> i32 { 1 }")
	ref := NewRef(root, "f")
	root.MergeIn(mustParse(t, "fn f() -> i32 { 2 }"))
	got := ref.Resolve()
	if got == nil || !strings.Contains(got.Text(), "2") {
		t.Fatalf("ref resolved to %v", got)
	}
}

func TestTrimmedKeepsOnlyTargets(t *testing.T) {
	root := mustParse(t, `const A: i32 = 1;
const B: i32 = 2;

impl P {
    fn a() -> i32 { A }
    fn b() -> i32 { B }
}`)
	target := root.ItemByName("impl P").ItemByName("a")
	trimmed := root.Trimmed([]*Piece{target})
	if trimmed == nil {
		t.Fatalf("nothing trimmed")
	}
	text := trimmed.Text()
	if !strings.Contains(text, "fn a") {
		t.Fatalf("target missing: %q", text)
	}
	if strings.Contains(text, "fn b") || strings.Contains(text, "const") {
		t.Fatalf("trim kept extras: %q", text)
	}
}

func TestTrimmedBringsContainerWhole(t *testing.T) {
	root := mustParse(t, `struct S {
    x: i32,
    y: i32,
}`)
	field := root.ItemByName("S").ItemByName("x")
	trimmed := root.Trimmed([]*Piece{field})
	if trimmed == nil || !strings.Contains(trimmed.Text(), "y: i32") {
		t.Fatalf("struct not carried whole: %v", trimmed)
	}
}

func TestSplitPartitionsChildren(t *testing.T) {
	root := mustParse(t, "const A: i32 = 1;\nconst B: i32 = 2;")
	in, out := root.Split([]*Piece{root.ItemByName("A")})
	if in == nil || out == nil {
		t.Fatalf("split returned nil side")
	}
	if in.ItemByName("A") == nil || in.ItemByName("B") != nil {
		t.Fatalf("in side = %v", itemNames(in))
	}
	if out.ItemByName("B") == nil || out.ItemByName("A") != nil {
		t.Fatalf("out side = %v", itemNames(out))
	}
	// The original tree is untouched.
	if root.ItemByName("A") == nil || root.ItemByName("B") == nil {
		t.Fatalf("split mutated source: %v", itemNames(root))
	}
}

func TestInterfaceEqualIgnoresBodies(t *testing.T) {
	a := mustParse(t, "fn f(x: i32) -> i32 { 1 }")
	b := mustParse(t, "fn f(x: i32) -> i32 { x * 2 }")
	c := mustParse(t, "fn f(x: i32) -> u32 { 1 }")
	if !a.InterfaceEqual(b) {
		t.Fatalf("same signature compared unequal")
	}
	if a.InterfaceEqual(c) {
		t.Fatalf("changed return type compared equal")
	}
}

func TestCommentAttachesToNextItem(t *testing.T) {
	root := mustParse(t, `// adds two numbers
fn add(a: i32, b: i32) -> i32 { a + b }

fn bare() {}`)
	if got := root.ItemByName("add").Comment(); got != "// adds two numbers" {
		t.Fatalf("add comment = %q", got)
	}
	if got := root.ItemByName("bare").Comment(); got != "" {
		t.Fatalf("bare comment = %q", got)
	}
}

func TestBlankLineResetsCommentRun(t *testing.T) {
	root := mustParse(t, `// stale

// fresh
fn f() {}`)
	if got := root.ItemByName("f").Comment(); got != "// fresh" {
		t.Fatalf("f comment = %q", got)
	}
}

func TestTestAttrStripped(t *testing.T) {
	root := mustParse(t, "#[test]\nfn works() { assert!(true); }")
	if got := root.ItemByName("works").Text(); got != "fn works() { assert!(true); }" {
		t.Fatalf("text = %q", got)
	}
}

func TestNoMangleRewritten(t *testing.T) {
	root := mustParse(t, "#[no_mangle]\nfn exported() {}")
	got := root.ItemByName("exported").Text()
	if !strings.HasPrefix(got, "#[unsafe(no_mangle)]") {
		t.Fatalf("text = %q", got)
	}
}

func TestSummaryElidesBodies(t *testing.T) {
	root := mustParse(t, `const MAX: usize = 10;

fn add(a: i32, b: i32) -> i32 { a + b }`)
	sum := root.Summary()
	if !strings.Contains(sum, "const MAX: usize;") {
		t.Fatalf("const summary missing: %q", sum)
	}
	if !strings.Contains(sum, "fn add(a: i32, b: i32) -> i32;") {
		t.Fatalf("fn summary missing: %q", sum)
	}
	if strings.Contains(sum, "a + b") {
		t.Fatalf("body leaked into summary: %q", sum)
	}
}

func TestMacroRules(t *testing.T) {
	root := mustParse(t, "macro_rules! square {\n    ($x:expr) => { $x * $x };\n}")
	m := root.ItemByName("square")
	if m == nil || m.Kind != KindMacro {
		t.Fatalf("macro not extracted: %v", itemNames(root))
	}
	if len(m.Rules) != 1 || m.Rules[0][0] != "($x:expr)" {
		t.Fatalf("rules = %v", m.Rules)
	}
	if !strings.Contains(m.Summary(), "($x:expr) => { /* omitted */ }") {
		t.Fatalf("summary = %q", m.Summary())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	root := mustParse(t, "impl P {\n    fn a() {}\n}")
	clone := root.Clone()
	clone.ItemByName("impl P").RemoveByName("a")
	if root.ItemByName("impl P").ItemByName("a") == nil {
		t.Fatalf("clone shares children with original")
	}
}

func TestSyntaxOK(t *testing.T) {
	ctx := context.Background()
	if !SyntaxOK(ctx, "fn f() -> i32 { 1 }") {
		t.Fatalf("valid code rejected")
	}
	if SyntaxOK(ctx, "fn f( {") {
		t.Fatalf("broken code accepted")
	}
}
