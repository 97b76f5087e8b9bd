package pipeline

import (
	"context"
	"iter"
	"sync"

	"github.com/ziadkadry99/docintake/internal/walker"
)

// ProcessBatch discovers the documents under root and returns a lazy
// sequence with one outcome per document, in discovery order. A missing
// root fails here with ErrRootNotFound; after that every failure is
// isolated to its document and the sequence always runs to the end
// unless the caller stops early or ctx is cancelled.
func (p *Pipeline) ProcessBatch(ctx context.Context, root string) (iter.Seq[Outcome], error) {
	files, err := p.Discover(root)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, root, files), nil
}

// run processes files and records the batch in the run log.
func (p *Pipeline) run(ctx context.Context, root string, files []walker.FileInfo) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		runID := p.startRun(ctx, root)
		var processed, failed int
		aborted := true
		defer func() { p.finishRun(runID, processed, failed, aborted) }()

		p.logger.Info("batch started", "root", root, "documents", len(files), "run_id", runID, "concurrency", p.opts.Concurrency)

		for out := range p.outcomes(ctx, files, runID) {
			if out.OK() {
				processed++
			} else {
				failed++
			}
			if p.opts.OnProgress != nil {
				p.opts.OnProgress(processed+failed, len(files), out.File.RelPath)
			}
			if !yield(out) {
				return
			}
		}
		aborted = ctx.Err() != nil

		p.logger.Info("batch finished", "root", root, "processed", processed, "failed", failed, "run_id", runID)
	}
}

// outcomes yields results in input order. With concurrency above one,
// up to that many documents are in flight while earlier ones are yielded.
func (p *Pipeline) outcomes(ctx context.Context, files []walker.FileInfo, runID string) iter.Seq[Outcome] {
	if p.opts.Concurrency == 1 {
		return func(yield func(Outcome) bool) {
			for _, f := range files {
				out := canceled(ctx, f)
				if out == nil {
					o := p.process(ctx, f, runID)
					out = &o
				}
				if !yield(*out) {
					return
				}
			}
		}
	}

	return func(yield func(Outcome) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		results := make([]chan Outcome, len(files))
		for i := range results {
			results[i] = make(chan Outcome, 1)
		}

		var wg sync.WaitGroup
		defer wg.Wait()

		sem := make(chan struct{}, p.opts.Concurrency)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, f := range files {
				select {
				case <-ctx.Done():
					// Remaining documents still get an outcome.
					results[i] <- *canceled(ctx, f)
					continue
				case sem <- struct{}{}:
				}
				wg.Add(1)
				go func(i int, f walker.FileInfo) {
					defer wg.Done()
					defer func() { <-sem }()
					results[i] <- p.process(ctx, f, runID)
				}(i, f)
			}
		}()

		for _, ch := range results {
			if !yield(<-ch) {
				return
			}
		}
	}
}

func (p *Pipeline) startRun(ctx context.Context, root string) string {
	if p.deps.Records == nil {
		return ""
	}
	id, err := p.deps.Records.StartRun(ctx, root)
	if err != nil {
		p.logger.Warn("cannot record batch run", "error", err)
		return ""
	}
	return id
}

func (p *Pipeline) finishRun(id string, processed, failed int, aborted bool) {
	if p.deps.Records == nil || id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.PersistTimeout)
	defer cancel()
	if err := p.deps.Records.FinishRun(ctx, id, processed, failed, aborted); err != nil {
		p.logger.Warn("cannot finish batch run", "run_id", id, "error", err)
	}
}

// canceled returns a failed outcome for f when ctx is done, or nil.
func canceled(ctx context.Context, f walker.FileInfo) *Outcome {
	if err := ctx.Err(); err != nil {
		return &Outcome{File: f, Err: &StageError{Stage: StageOCR, Err: err}}
	}
	return nil
}
