// Package cargo drives the Rust toolchain: it renders manifests, builds
// candidate programs in scratch directories, decodes rustc diagnostics and
// resolves missing crate dependencies against the registry.
package cargo

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
)

// SpanText is one highlighted source line inside a span.
type SpanText struct {
	Text           string `json:"text"`
	HighlightStart int    `json:"highlight_start"`
	HighlightEnd   int    `json:"highlight_end"`
}

// Span locates a diagnostic in a source file, 1-based and inclusive.
type Span struct {
	FileName             string     `json:"file_name"`
	ByteStart            int        `json:"byte_start"`
	ByteEnd              int        `json:"byte_end"`
	LineStart            int        `json:"line_start"`
	LineEnd              int        `json:"line_end"`
	ColumnStart          int        `json:"column_start"`
	ColumnEnd            int        `json:"column_end"`
	IsPrimary            bool       `json:"is_primary"`
	Text                 []SpanText `json:"text"`
	Label                string     `json:"label"`
	SuggestedReplacement string     `json:"suggested_replacement"`
	Expansion            *Expansion `json:"expansion"`
}

// Expansion records where a span inside a macro expansion came from.
type Expansion struct {
	Span          Span   `json:"span"`
	MacroDeclName string `json:"macro_decl_name"`
	DefSiteSpan   *Span  `json:"def_site_span"`
}

type Code struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
}

// Diagnostic is one rustc message, possibly with nested children.
type Diagnostic struct {
	Message  string       `json:"message"`
	Level    string       `json:"level"`
	Code     *Code        `json:"code"`
	Spans    []Span       `json:"spans"`
	Children []Diagnostic `json:"children"`
	Rendered string       `json:"rendered"`
}

// AllSpans collects the spans of the diagnostic and its direct children,
// unfolding macro expansions: each expansion contributes its call site, and
// its definition site too when that points at real code.
func (d *Diagnostic) AllSpans() []Span {
	spans := append([]Span(nil), d.Spans...)
	for _, child := range d.Children {
		spans = append(spans, child.Spans...)
	}
	var unfolded []Span
	for _, span := range spans {
		for span.Expansion != nil {
			if def := span.Expansion.DefSiteSpan; def != nil && def.ByteStart != 0 {
				unfolded = append(unfolded, *def)
			}
			span = span.Expansion.Span
		}
		unfolded = append(unfolded, span)
	}
	return unfolded
}

// BuildMessage is one line of cargo's JSON message stream. Only the fields
// the pipeline consumes are decoded.
type BuildMessage struct {
	Reason  string      `json:"reason"`
	Message *Diagnostic `json:"message"`
	Success bool        `json:"success"`
}

// DecodeMessages parses a cargo --message-format json stream. Lines that are
// not JSON objects are skipped.
func DecodeMessages(output []byte) []BuildMessage {
	var messages []BuildMessage
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var msg BuildMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}
