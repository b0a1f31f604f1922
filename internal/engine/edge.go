package engine

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"oxidize/internal/ctxlog"
	"oxidize/internal/llmClient"
	"oxidize/internal/match"
	"oxidize/internal/piece"
	"oxidize/internal/segment"
	"oxidize/internal/workspace"
)

// rel is one dependency edge still awaiting a consistent translation. The
// from unit uses the to unit; a unit with no neighbors carries a self edge
// so it gets translated at all.
type rel struct {
	from *segment.Unit
	to   *segment.Unit
}

// Edge repeatedly picks an untranslated dependency edge at random, grows a
// batch around it under the token budget, and merges the translation into
// one shared program. An edge whose endpoints change interface when
// retranslated is put back, bounded by MaxRetry per edge.
type Edge struct {
	client    llmclient.Client
	agent     *agent
	collect   collector
	ws        *workspace.Edge
	toolchain Toolchain
	resolver  Resolver
	opts      Options

	mu        sync.Mutex
	cond      *sync.Cond
	relations map[rel]struct{}
	tryCount  map[rel]int
	stamp     map[*segment.Unit]time.Time
	inFlight  mapset.Set[*segment.Unit]
	active    int
	matcher   *match.Matcher
	rng       *rand.Rand

	repairMu   sync.Mutex
	repairCond *sync.Cond
	repairing  map[string]bool
}

func NewEdge(client llmclient.Client, ws *workspace.Edge, toolchain Toolchain, resolver Resolver, opts Options) *Edge {
	e := &Edge{
		client:    client,
		agent:     &agent{client: client, temperature: opts.Temperature, broker: opts.Broker},
		collect:   collectorFor(client),
		ws:        ws,
		toolchain: toolchain,
		resolver:  resolver,
		opts:      opts.withDefaults(),
		relations: make(map[rel]struct{}),
		tryCount:  make(map[rel]int),
		stamp:     make(map[*segment.Unit]time.Time),
		inFlight:  mapset.NewSet[*segment.Unit](),
		repairing: make(map[string]bool),
	}
	e.cond = sync.NewCond(&e.mu)
	e.repairCond = sync.NewCond(&e.repairMu)
	e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	return e
}

// Run translates every unit and then repairs the merged program.
func (e *Edge) Run(ctx context.Context, units []*segment.Unit) error {
	if err := e.ws.SetUnits(ctx, units); err != nil {
		return err
	}
	matcher, err := match.New(ctx, units)
	if err != nil {
		return err
	}
	e.matcher = matcher

	for _, u := range units {
		for _, dep := range u.Uses {
			e.relations[rel{from: u, to: dep}] = struct{}{}
		}
		if len(u.Uses) == 0 && len(u.UsedBy) == 0 {
			e.relations[rel{from: u, to: u}] = struct{}{}
		}
	}

	if err := e.translateAll(ctx); err != nil {
		return err
	}
	return e.repair(ctx)
}

func (e *Edge) translateAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-gctx.Done():
		case <-stop:
		}
		e.cond.Broadcast()
	}()

	for {
		batch, ok := e.nextBatch(gctx)
		if !ok {
			break
		}
		g.Go(func() error {
			err := e.translateBatch(gctx, batch)
			e.finish(batch)
			return err
		})
	}
	return g.Wait()
}

// nextBatch blocks until a relation with both endpoints free exists, then
// claims a batch around it. It returns false when all relations are done and
// no worker is left that could add more.
func (e *Edge) nextBatch(ctx context.Context) ([]*segment.Unit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return nil, false
		}
		if len(e.relations) == 0 && e.active == 0 {
			return nil, false
		}
		if picked, ok := e.pickRandom(); ok {
			batch := e.growBatch(picked)
			for r := range e.relations {
				if containsUnit(batch, r.from) && containsUnit(batch, r.to) {
					delete(e.relations, r)
					e.tryCount[r]++
				}
			}
			e.inFlight.Append(batch...)
			e.active++
			return batch, true
		}
		e.cond.Wait()
	}
}

func (e *Edge) pickRandom() (rel, bool) {
	rels := make([]rel, 0, len(e.relations))
	for r := range e.relations {
		rels = append(rels, r)
	}
	e.rng.Shuffle(len(rels), func(i, j int) { rels[i], rels[j] = rels[j], rels[i] })
	for _, r := range rels {
		if e.inFlight.Contains(r.from) || e.inFlight.Contains(r.to) {
			continue
		}
		return r, true
	}
	return rel{}, false
}

// growBatch absorbs neighbors around the picked edge, preferring candidates
// with the most pending relations into the batch, until the source token
// budget is reached. Called with e.mu held.
func (e *Edge) growBatch(picked rel) []*segment.Unit {
	chosen := []*segment.Unit{picked.from}
	if picked.to != picked.from {
		chosen = append(chosen, picked.to)
	}
	candidates := make(map[*segment.Unit]bool)
	for _, u := range chosen {
		for _, c := range e.surrounding(u) {
			if !containsUnit(chosen, c) {
				candidates[c] = true
			}
		}
	}
	outSized := make(map[*segment.Unit]bool)
	for len(candidates) > 0 {
		next := e.bestCandidate(chosen, candidates)
		delete(candidates, next)
		if e.sourceTokens(append(chosen, next)) > e.opts.SourceTokenBudget {
			outSized[next] = true
			continue
		}
		chosen = append(chosen, next)
		for _, c := range e.surrounding(next) {
			if !containsUnit(chosen, c) && !outSized[c] {
				candidates[c] = true
			}
		}
	}
	return chosen
}

// bestCandidate prefers the candidate with the most pending relations into
// the batch, falling back to the most recently translated one.
func (e *Edge) bestCandidate(chosen []*segment.Unit, candidates map[*segment.Unit]bool) *segment.Unit {
	var best *segment.Unit
	bestVotes := -1
	for c := range candidates {
		votes := 0
		for _, u := range c.Uses {
			if _, ok := e.relations[rel{from: c, to: u}]; ok && containsUnit(chosen, u) {
				votes++
			}
		}
		for _, u := range c.UsedBy {
			if _, ok := e.relations[rel{from: u, to: c}]; ok && containsUnit(chosen, u) {
				votes++
			}
		}
		if best == nil || votes > bestVotes || (votes == bestVotes && c.ID < best.ID) {
			best, bestVotes = c, votes
		}
	}
	if bestVotes > 0 {
		return best
	}
	var latest *segment.Unit
	for c := range candidates {
		if latest == nil || e.stamp[c].After(e.stamp[latest]) {
			latest = c
		}
	}
	return latest
}

func (e *Edge) surrounding(u *segment.Unit) []*segment.Unit {
	var out []*segment.Unit
	for _, v := range u.Uses {
		if !e.inFlight.Contains(v) {
			out = append(out, v)
		}
	}
	for _, v := range u.UsedBy {
		if !e.inFlight.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

func (e *Edge) sourceTokens(units []*segment.Unit) int {
	texts := make([]string, 0, len(units))
	for _, u := range units {
		texts = append(texts, u.Text)
	}
	return e.client.CountTokens(strings.Join(texts, "\n"))
}

func (e *Edge) finish(batch []*segment.Unit) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight.RemoveAll(batch...)
	now := time.Now()
	for _, u := range batch {
		e.stamp[u] = now
	}
	e.active--
	e.cond.Broadcast()
}

// addRelations puts edges back into rotation, unless their retry budget is
// spent.
func (e *Edge) addRelations(ctx context.Context, rels []rel) {
	log := ctxlog.FromContext(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range rels {
		if _, ok := e.relations[r]; ok {
			continue
		}
		if e.tryCount[r] >= e.opts.MaxRetry {
			log.Info("relation retry budget spent, dropping",
				"from", r.from.Path, "to", r.to.Path)
			continue
		}
		e.relations[r] = struct{}{}
	}
	e.cond.Broadcast()
}

func (e *Edge) translateBatch(ctx context.Context, batch []*segment.Unit) error {
	log := ctxlog.FromContext(ctx)
	paths := make([]string, 0, len(batch))
	texts := make([]string, 0, len(batch))
	for _, u := range batch {
		paths = append(paths, u.Path)
		texts = append(texts, u.Text)
	}
	log.Info("translating", "units", strings.Join(paths, " "))

	prior, signatures := e.ws.ContextOf(batch)
	source := strings.Join(texts, "\n")

	code, err := e.generateValid(ctx, func(ctx context.Context) (string, error) {
		return e.agent.translateEdge(ctx, source, prior, signatures)
	})
	if err != nil {
		return err
	}

	// A unit whose interface changed invalidates translations of its
	// cross-boundary neighbors; those edges go back into rotation.
	matched, _, err := e.matcher.TryMatch(ctx, code)
	if err != nil {
		return err
	}
	var changed []rel
	for unit, pieces := range matched {
		prev := e.ws.ResultOf(unit)
		ptexts := make([]string, 0, len(pieces))
		for _, p := range pieces {
			ptexts = append(ptexts, p.Text())
		}
		if interfaceEqual(ctx, prev, strings.Join(ptexts, "\n")) {
			continue
		}
		for _, dep := range unit.UsedBy {
			if containsUnit(batch, unit) == containsUnit(batch, dep) {
				continue
			}
			changed = append(changed, rel{from: dep, to: unit})
		}
	}
	e.addRelations(ctx, changed)

	return e.ws.Push(ctx, batch, code)
}

// generateValid retries generation while the mined code fails to parse, then
// falls back to one explicit syntax-fix request whose answer is accepted
// regardless.
func (e *Edge) generateValid(ctx context.Context, gen func(context.Context) (string, error)) (string, error) {
	ctx, err := e.agent.leased(ctx, grammarRetries+1)
	if err != nil {
		return "", err
	}
	var code string
	for i := 0; i < grammarRetries; i++ {
		raw, err := gen(ctx)
		if err != nil {
			return "", err
		}
		code = e.collect(ctx, raw)
		if piece.SyntaxOK(ctx, code) {
			return code, nil
		}
	}
	return e.repairSyntax(ctx, code)
}

func (e *Edge) repairSyntax(ctx context.Context, code string) (string, error) {
	if piece.SyntaxOK(ctx, code) {
		return code, nil
	}
	diags, err := e.toolchain.Validate(ctx, e.ws.Manifest(), code)
	if err != nil {
		return "", err
	}
	raw, err := e.agent.fixSyntax(ctx, code, renderedMessages(diags))
	if err != nil {
		return "", err
	}
	return e.collect(ctx, raw), nil
}

func containsUnit(units []*segment.Unit, u *segment.Unit) bool {
	for _, v := range units {
		if v == u {
			return true
		}
	}
	return false
}
