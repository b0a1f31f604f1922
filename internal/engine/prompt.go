// Package engine schedules translation work against the model and repairs
// the result until it builds. Two schedulers are provided: Edge grows one
// shared program by repeatedly translating pairs of related units, Node
// translates dependency clusters bottom-up exactly once.
package engine

import (
	"context"
	"strings"

	"oxidize/internal/llm"
	"oxidize/internal/llmClient"
	"oxidize/internal/piece"
	"oxidize/internal/utils"
)

const grammarRetries = 2

// agent phrases the requests sent to the model. It holds no state beyond
// the client, the sampling temperature and an optional permit broker.
type agent struct {
	client      llmclient.Client
	temperature float64
	broker      llm.PermitBroker
}

// leased reserves n rate permits when a broker is configured, returning a
// context whose credits the rate limiter consumes before falling back to
// direct acquisition.
func (a *agent) leased(ctx context.Context, n int) (context.Context, error) {
	if a.broker == nil {
		return ctx, nil
	}
	lease, err := a.broker.Reserve(ctx, n)
	if err != nil {
		return nil, err
	}
	return lease.Context(ctx), nil
}

const translatorRole = "You are an expert programming assistant familiar with C/C++ and Rust, helping to translate a C/C++ project into Rust.\n\n"

const fixerRole = "You are an expert programming assistant familiar with Rust, helping to fix a buggy Rust project.\n\n"

func (a *agent) translateEdge(ctx context.Context, source, prior, signatures string) (string, error) {
	var b strings.Builder
	b.WriteString(translatorRole)
	b.WriteString("I am translating a C project into Rust. Due to limited tokens, each request only covers some of the code. " +
		"Snippets may have been translated before in other requests, so their previous translation is included, " +
		"along with the signatures of already-translated related functions.\n" +
		"When translating, follow these guidelines:\n" +
		"- Only translate the code within the current request.\n" +
		"- Use the provided previous translation and related signatures as references.\n" +
		"- Do not change parts of the previous translation unrelated to the current request unless absolutely necessary.\n" +
		"- If you modified parts of the previous translation, leave comments around the changes explaining them.\n" +
		"- Your translation should be complete. Do not omit parts that remain unchanged.\n\n")
	b.WriteString("Source Code\n```\n" + source + "\n```\n")
	if prior != "" {
		b.WriteString("Previous Translation:\n```rust\n" + prior + "\n```\n")
	} else {
		b.WriteString("No previous translation available.\n")
	}
	if signatures != "" {
		b.WriteString("Related Function Signatures:\n```rust\n" + signatures + "\n```\n")
	} else {
		b.WriteString("No related function signatures available.\n")
	}
	return a.client.GenerateText(ctx, b.String(), a.temperature)
}

func (a *agent) translateNode(ctx context.Context, source, dependencySummary string) (string, error) {
	var b strings.Builder
	b.WriteString(translatorRole)
	b.WriteString("I am translating some code snippets of a C project into Rust. " +
		"A summary of the already-translated dependencies is provided as reference.\n\n")
	b.WriteString("Source Code\n```\n" + source + "\n```\n")
	if dependencySummary != "" {
		b.WriteString("Summary of dependencies:\n```rust\n" + dependencySummary + "\n```\n")
	} else {
		b.WriteString("No summary of dependencies available.\n")
	}
	return a.client.GenerateText(ctx, b.String(), a.temperature)
}

func (a *agent) resolve(ctx context.Context, errMsg, code string) (string, error) {
	var b strings.Builder
	b.WriteString(fixerRole)
	b.WriteString("I have a Rust code snippet that has compilation errors and needs to be fixed. " +
		"Please provide only one markdown code block that contains the single best fix you recommend. " +
		"The code inside the block should be a complete and final version of the snippet, not a partial fix. " +
		"Do not omit parts of the code even when they are correct.\n")
	b.WriteString("The error message is:\n```\n" + errMsg + "\n```\n")
	b.WriteString("The Rust code is:\n```rust\n" + code + "\n```\n")
	return a.client.GenerateText(ctx, b.String(), a.temperature)
}

func (a *agent) fixSyntax(ctx context.Context, code, errMsg string) (string, error) {
	var b strings.Builder
	b.WriteString(fixerRole)
	b.WriteString("I have a Rust code snippet that has some syntax errors and needs to be corrected. " +
		"Please provide only one markdown code block that contains the single best correction you recommend. " +
		"The code inside the block should be a complete and final version of the snippet, not a partial fix. " +
		"Focus strictly on syntax-related issues. Do not introduce any improvements, optimizations, or refactorings.\n")
	b.WriteString("The error message is:\n```\n" + errMsg + "\n```\n")
	b.WriteString("The Rust code is:\n```rust\n" + code + "\n```\n")
	return a.client.GenerateText(ctx, b.String(), a.temperature)
}

// collector mines Rust code out of a markdown answer.
type collector func(ctx context.Context, md string) string

// firstRustBlock returns the first fenced block tagged rust, or the first
// untagged block that parses as Rust.
func firstRustBlock(ctx context.Context, md string) string {
	for _, block := range utils.CodeBlocks(md) {
		if block.Lang == "rust" || piece.SyntaxOK(ctx, block.Code) {
			return block.Code
		}
	}
	return ""
}

// allRustBlocks concatenates every block that parses as Rust. Some models
// split their answer across multiple blocks.
func allRustBlocks(ctx context.Context, md string) string {
	var b strings.Builder
	for _, block := range utils.CodeBlocks(md) {
		if piece.SyntaxOK(ctx, block.Code) {
			b.WriteString(block.Code)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// collectorFor picks the mining strategy by model family.
func collectorFor(client llmclient.Client) collector {
	if strings.HasPrefix(strings.ToLower(client.Name()), "qwen") {
		return allRustBlocks
	}
	return firstRustBlock
}
