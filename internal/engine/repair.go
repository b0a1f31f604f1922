package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"oxidize/internal/cargo"
	"oxidize/internal/ctxlog"
	"oxidize/internal/piece"
)

// repairJob fixes a group of diagnostics localized to the same references.
// Diagnostics sharing a single reference are batched into one request;
// diagnostics spanning several references run alone.
type repairJob struct {
	diags []cargo.Diagnostic
	refs  map[string]piece.Ref
}

func (e *Edge) repair(ctx context.Context) error {
	log := ctxlog.FromContext(ctx)
	for round := 0; round < e.opts.MaxRepairRounds; round++ {
		clean, err := e.repairOnce(ctx, round)
		if err != nil {
			return err
		}
		if clean {
			log.Info("no conflicts left", "round", round)
			return nil
		}
	}
	return nil
}

func (e *Edge) repairOnce(ctx context.Context, round int) (bool, error) {
	log := ctxlog.FromContext(ctx)

	program := e.ws.ProgramText()
	if err := e.resolver.Refresh(ctx, e.ws.Manifest(), program); err != nil {
		log.Warn("dependency resolution failed", "error", err)
	}

	diags, err := e.toolchain.Validate(ctx, e.ws.Manifest(), e.ws.ProgramText())
	if err != nil {
		return false, err
	}
	if len(diags) == 0 {
		return true, nil
	}
	log.Info("resolving conflicts", "round", round, "count", len(diags))

	ranges := e.ws.Ranges()
	perRef := make(map[string][]cargo.Diagnostic)
	refByKey := make(map[string]piece.Ref)
	var jobs []repairJob
	for _, d := range diags {
		refs := refsOfDiagnostic(&d, ranges)
		if refs == nil {
			// Nothing in the program owns the span; retranslating a
			// random piece would not help.
			log.Warn("diagnostic not attributable to any piece", "message", d.Message)
			continue
		}
		if len(refs) > 1 {
			jobs = append(jobs, repairJob{diags: []cargo.Diagnostic{d}, refs: refs})
			continue
		}
		for key, ref := range refs {
			perRef[key] = append(perRef[key], d)
			refByKey[key] = ref
		}
	}
	for key, ds := range perRef {
		jobs = append(jobs, repairJob{diags: ds, refs: map[string]piece.Ref{key: refByKey[key]}})
	}
	if len(jobs) == 0 {
		return false, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-gctx.Done():
		case <-stop:
		}
		e.repairCond.Broadcast()
	}()
	for _, job := range jobs {
		g.Go(func() error {
			if !e.acquireRefs(gctx, job.refs) {
				return gctx.Err()
			}
			defer e.releaseRefs(job.refs)
			result, err := e.resolveRefs(gctx, job)
			if err != nil {
				return err
			}
			return e.ws.Push(gctx, nil, result)
		})
	}
	return false, g.Wait()
}

// acquireRefs blocks until none of the references is being repaired by
// another worker, then claims them all at once.
func (e *Edge) acquireRefs(ctx context.Context, refs map[string]piece.Ref) bool {
	e.repairMu.Lock()
	defer e.repairMu.Unlock()
	for {
		if ctx.Err() != nil {
			return false
		}
		busy := false
		for key := range refs {
			if e.repairing[key] {
				busy = true
				break
			}
		}
		if !busy {
			for key := range refs {
				e.repairing[key] = true
			}
			return true
		}
		e.repairCond.Wait()
	}
}

func (e *Edge) releaseRefs(refs map[string]piece.Ref) {
	e.repairMu.Lock()
	for key := range refs {
		delete(e.repairing, key)
	}
	e.repairMu.Unlock()
	e.repairCond.Broadcast()
}

// resolveRefs asks the model to fix the trimmed program holding just the
// offending pieces.
func (e *Edge) resolveRefs(ctx context.Context, job repairJob) (string, error) {
	refs := make([]piece.Ref, 0, len(job.refs))
	for _, ref := range job.refs {
		refs = append(refs, ref)
	}
	trimmed := e.ws.ResolveTrimmed(refs)
	if trimmed == "" {
		return "", nil
	}
	errMsg := renderedMessages(job.diags)
	return e.generateValid(ctx, func(ctx context.Context) (string, error) {
		return e.agent.resolve(ctx, errMsg, trimmed)
	})
}
