package workspace

import (
	"context"
	"strings"
	"testing"

	"oxidize/internal/cargo"
	"oxidize/internal/segment"
)

func newNodeWS(t *testing.T, units ...*segment.Unit) *Node {
	t.Helper()
	ws := NewNode(cargo.NewManifest(cargo.Package{Name: "demo"}))
	if err := ws.SetUnits(context.Background(), units); err != nil {
		t.Fatalf("set units: %v", err)
	}
	return ws
}

func TestNodePushStoresPerUnitResults(t *testing.T) {
	ctx := context.Background()
	add, twice := twoUnits()
	ws := newNodeWS(t, add, twice)

	if err := ws.Push(ctx, []*segment.Unit{add}, "fn add(a: i32, b: i32) -> i32 { a + b }"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := ws.Push(ctx, []*segment.Unit{twice}, "fn twice(x: i32) -> i32 { add(x, x) }"); err != nil {
		t.Fatalf("push: %v", err)
	}

	if got := ws.ResultOf(add); !strings.Contains(got, "fn add") {
		t.Fatalf("result of add = %q", got)
	}
	program := ws.ProgramText()
	if !strings.Contains(program, "fn add") || !strings.Contains(program, "fn twice") {
		t.Fatalf("program = %q", program)
	}
	// Units render in project order regardless of push order.
	if strings.Index(program, "fn add") > strings.Index(program, "fn twice") {
		t.Fatalf("program order = %q", program)
	}
}

func TestNodeHoistsImports(t *testing.T) {
	ctx := context.Background()
	add, twice := twoUnits()
	ws := newNodeWS(t, add, twice)

	if err := ws.Push(ctx, []*segment.Unit{add},
		"use std::cmp::max;\n\nfn add(a: i32, b: i32) -> i32 { max(a, b) }"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := ws.Push(ctx, []*segment.Unit{twice},
		"use std::cmp::max;\n\nfn twice(x: i32) -> i32 { max(add(x, x), 0) }"); err != nil {
		t.Fatalf("push: %v", err)
	}

	program := ws.ProgramText()
	if strings.Count(program, "use std::cmp::max;") != 1 {
		t.Fatalf("imports not deduplicated: %q", program)
	}
	if got := ws.ResultOf(add); strings.Contains(got, "use ") {
		t.Fatalf("import attributed to a unit: %q", got)
	}
}

func TestNodeDependencySummary(t *testing.T) {
	ctx := context.Background()
	add, twice := twoUnits()
	ws := newNodeWS(t, add, twice)

	if err := ws.Push(ctx, []*segment.Unit{add}, "fn add(a: i32, b: i32) -> i32 { a + b }"); err != nil {
		t.Fatalf("push: %v", err)
	}

	sum := ws.DependencySummary([]*segment.Unit{twice})
	if !strings.Contains(sum, "fn add(a: i32, b: i32) -> i32;") {
		t.Fatalf("summary = %q", sum)
	}
	if strings.Contains(sum, "a + b") {
		t.Fatalf("summary leaked a body: %q", sum)
	}
	if got := ws.DependencySummary([]*segment.Unit{add}); got != "" {
		t.Fatalf("summary for leaf = %q", got)
	}
}
