package engine

import (
	"context"
	"strings"

	"oxidize/internal/cargo"
	"oxidize/internal/llm"
	"oxidize/internal/piece"
)

// Toolchain builds candidate programs and reports their error diagnostics.
type Toolchain interface {
	Validate(ctx context.Context, m *cargo.Manifest, code string) ([]cargo.Diagnostic, error)
}

// Resolver grows a manifest's dependencies to cover a program's imports.
type Resolver interface {
	Refresh(ctx context.Context, m *cargo.Manifest, code string) error
}

// Options tune either scheduler.
type Options struct {
	// SourceTokenBudget caps how much source text goes into one request.
	SourceTokenBudget int

	// MaxRetry bounds how often one dependency relation is re-translated
	// before it is given up on.
	MaxRetry int

	// MaxRepairRounds bounds the build-and-fix iterations.
	MaxRepairRounds int

	Temperature float64

	// Broker, when set, reserves rate permits for a request and its
	// grammar retries up front, so one unit of work is not starved
	// halfway through by other workers.
	Broker llm.PermitBroker
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.SourceTokenBudget <= 0 {
		opts.SourceTokenBudget = 4096
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 3
	}
	if opts.MaxRepairRounds <= 0 {
		opts.MaxRepairRounds = 3
	}
	return opts
}

// interfaceEqual compares two code snippets structurally, ignoring bodies
// and formatting.
func interfaceEqual(ctx context.Context, a, b string) bool {
	rootA, err := piece.ParseRust(ctx, a)
	if err != nil {
		return false
	}
	rootB, err := piece.ParseRust(ctx, b)
	if err != nil {
		return false
	}
	return rootA.InterfaceEqual(rootB)
}

const programFileName = "src/lib.rs"

// refsOfDiagnostic maps a diagnostic to the references whose line ranges
// fully cover one of its spans. Spans outside the program file are ignored.
func refsOfDiagnostic(d *cargo.Diagnostic, ranges []piece.Range) map[string]piece.Ref {
	refs := make(map[string]piece.Ref)
	for _, span := range d.AllSpans() {
		if span.FileName != programFileName {
			continue
		}
		for _, r := range ranges {
			if r.Start <= span.LineStart && span.LineEnd <= r.End {
				refs[r.Ref.Key()] = r.Ref
			}
			if span.LineEnd < r.Start {
				break
			}
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

func renderedMessages(diags []cargo.Diagnostic) string {
	var texts []string
	for _, d := range diags {
		if d.Rendered != "" {
			texts = append(texts, d.Rendered)
		}
	}
	return strings.Join(texts, "\n")
}
