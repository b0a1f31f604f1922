package engine

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"oxidize/internal/cargo"
	"oxidize/internal/ctxlog"
	"oxidize/internal/llmClient"
	"oxidize/internal/match"
	"oxidize/internal/piece"
	"oxidize/internal/segment"
	"oxidize/internal/workspace"
)

// conflictTokenBudget caps the diagnostic text sent in one repair request.
const conflictTokenBudget = 54000

// Node translates dependency clusters bottom-up: a cluster becomes ready
// when everything it uses has been translated, ready clusters are packed
// into batches under the token budget, and each batch is repaired in place
// before it is committed. No unit is translated twice.
type Node struct {
	client    llmclient.Client
	agent     *agent
	collect   collector
	ws        *workspace.Node
	toolchain Toolchain
	resolver  Resolver
	opts      Options
}

func NewNode(client llmclient.Client, ws *workspace.Node, toolchain Toolchain, resolver Resolver, opts Options) *Node {
	return &Node{
		client:    client,
		agent:     &agent{client: client, temperature: opts.Temperature, broker: opts.Broker},
		collect:   collectorFor(client),
		ws:        ws,
		toolchain: toolchain,
		resolver:  resolver,
		opts:      opts.withDefaults(),
	}
}

// Run translates every unit in dependency order.
func (n *Node) Run(ctx context.Context, units []*segment.Unit) error {
	if err := n.ws.SetUnits(ctx, units); err != nil {
		return err
	}
	log := ctxlog.FromContext(ctx)

	clusters := stronglyConnected(units)
	clusterOf := make(map[*segment.Unit]*cluster, len(units))
	for _, c := range clusters {
		for _, u := range c.units {
			clusterOf[u] = c
		}
	}
	indegree := externalIndegree(units, clusterOf)

	var leaves []*cluster
	for _, c := range clusters {
		if indegree[c] == 0 {
			leaves = append(leaves, c)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan []*segment.Unit)
	pending := 0

	for len(leaves) > 0 || pending > 0 {
		if len(leaves) == 0 {
			select {
			case finished := <-done:
				pending--
				leaves = append(leaves, readyAfter(finished, indegree, clusterOf)...)
			case <-gctx.Done():
				return g.Wait()
			}
			continue
		}

		batch := n.takeBatch(&leaves)
		paths := make([]string, 0, len(batch))
		for _, u := range batch {
			paths = append(paths, u.Path)
		}
		log.Info("translating", "units", strings.Join(paths, " "))

		pending++
		g.Go(func() error {
			if err := n.translateBatch(gctx, batch); err != nil {
				return err
			}
			select {
			case done <- batch:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}

// takeBatch pops one ready cluster whole, then absorbs further ready
// clusters while their sources fit the remaining token budget.
func (n *Node) takeBatch(leaves *[]*cluster) []*segment.Unit {
	first := (*leaves)[0]
	*leaves = (*leaves)[1:]
	batch := append([]*segment.Unit(nil), first.units...)
	used := 0
	for {
		picked := -1
		for i, c := range *leaves {
			if n.clusterTokens(c) < n.opts.SourceTokenBudget-used {
				picked = i
				break
			}
		}
		if picked < 0 {
			return batch
		}
		c := (*leaves)[picked]
		*leaves = append((*leaves)[:picked], (*leaves)[picked+1:]...)
		used += n.clusterTokens(c)
		batch = append(batch, c.units...)
	}
}

func (n *Node) clusterTokens(c *cluster) int {
	sum := 0
	for _, u := range c.units {
		sum += n.client.CountTokens(u.Text)
	}
	return sum
}

// readyAfter decrements the indegree of every cluster depending on a
// finished unit and returns the clusters that became ready.
func readyAfter(finished []*segment.Unit, indegree map[*cluster]int, clusterOf map[*segment.Unit]*cluster) []*cluster {
	var ready []*cluster
	for _, u := range finished {
		for _, user := range u.UsedBy {
			c := clusterOf[user]
			indegree[c]--
			if indegree[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	return ready
}

func (n *Node) translateBatch(ctx context.Context, batch []*segment.Unit) error {
	result, err := n.generate(ctx, batch)
	if err != nil {
		return err
	}
	code, err := n.repairScoped(ctx, batch, result)
	if err != nil {
		return err
	}
	return n.ws.Push(ctx, batch, code)
}

// generate requests the batch's translation and gives units the model
// skipped one more chance before the result is accepted.
func (n *Node) generate(ctx context.Context, batch []*segment.Unit) (*piece.Piece, error) {
	texts := make([]string, 0, len(batch))
	for _, u := range batch {
		texts = append(texts, u.Text)
	}
	deps := n.ws.DependencySummary(batch)

	// One permit for the request, one for a possible second chance.
	ctx, err := n.agent.leased(ctx, 2)
	if err != nil {
		return nil, err
	}

	raw, err := n.agent.translateNode(ctx, strings.Join(texts, "\n"), deps)
	if err != nil {
		return nil, err
	}
	code := n.collect(ctx, raw)

	matcher, err := match.New(ctx, batch)
	if err != nil {
		return nil, err
	}
	matched, root, err := matcher.TryMatch(ctx, code)
	if err != nil {
		return nil, err
	}

	var skipped []string
	for _, u := range batch {
		if _, ok := matched[u]; !ok {
			skipped = append(skipped, u.Text)
		}
	}
	if len(skipped) > 0 {
		raw, err := n.agent.translateNode(ctx, strings.Join(skipped, "\n"), deps)
		if err != nil {
			return nil, err
		}
		extra, err := piece.ParseRust(ctx, n.collect(ctx, raw))
		if err != nil {
			return nil, err
		}
		root.MergeIn(extra)
	}
	return root, nil
}

// repairScoped builds the batch's code against everything translated so far
// and feeds back only the diagnostics landing inside the new code. Oversized
// diagnostic sets are split across several requests.
func (n *Node) repairScoped(ctx context.Context, batch []*segment.Unit, result *piece.Piece) (string, error) {
	for round := 0; round < n.opts.MaxRepairRounds; round++ {
		diags, err := n.conflictsOf(ctx, result.Text())
		if err != nil {
			return "", err
		}
		if len(diags) == 0 {
			break
		}
		for _, selected := range n.chunkDiagnostics(diags) {
			raw, err := n.agent.resolve(ctx, renderedMessages(selected), result.Text())
			if err != nil {
				return "", err
			}
			fixed, err := piece.ParseRust(ctx, n.collect(ctx, raw))
			if err != nil {
				return "", err
			}
			result.MergeIn(fixed)
		}
	}
	return result.Text(), nil
}

// conflictsOf validates context plus code and keeps the diagnostics that
// touch the code's lines.
func (n *Node) conflictsOf(ctx context.Context, code string) ([]cargo.Diagnostic, error) {
	log := ctxlog.FromContext(ctx)
	context := n.ws.ProgramText()
	full := context + "\n" + code

	if err := n.resolver.Refresh(ctx, n.ws.Manifest(), full); err != nil {
		log.Warn("dependency resolution failed", "error", err)
	}

	startLine := 2 + strings.Count(context, "\n")
	diags, err := n.toolchain.Validate(ctx, n.ws.Manifest(), full)
	if err != nil {
		return nil, err
	}
	var kept []cargo.Diagnostic
	for _, d := range diags {
		inside := false
		for _, span := range d.AllSpans() {
			if span.LineEnd >= startLine {
				inside = true
				break
			}
		}
		if inside {
			kept = append(kept, d)
		}
	}
	return kept, nil
}

// chunkDiagnostics packs rendered diagnostics into groups under the token
// budget, preserving order.
func (n *Node) chunkDiagnostics(diags []cargo.Diagnostic) [][]cargo.Diagnostic {
	var chunks [][]cargo.Diagnostic
	var selected []cargo.Diagnostic
	remaining := conflictTokenBudget
	for _, d := range diags {
		if d.Rendered == "" {
			continue
		}
		tokens := n.client.CountTokens(d.Rendered)
		if tokens > remaining && len(selected) > 0 {
			chunks = append(chunks, selected)
			selected = nil
			remaining = conflictTokenBudget
		}
		selected = append(selected, d)
		remaining -= tokens
	}
	if len(selected) > 0 {
		chunks = append(chunks, selected)
	}
	return chunks
}
