package pipeline

import (
	"context"
	"iter"
	"time"

	"github.com/ziadkadry99/docintake/internal/walker"
)

// Watch processes documents that appear or change under root until ctx
// is cancelled. Files whose content hash matches the stored record are
// skipped. The root must exist.
func (p *Pipeline) Watch(ctx context.Context, root string, settle time.Duration) (iter.Seq[Outcome], error) {
	if _, err := p.Discover(root); err != nil {
		return nil, err
	}
	changes, err := walker.Watch(ctx, p.walkConfig(root), settle)
	if err != nil {
		return nil, err
	}

	return func(yield func(Outcome) bool) {
		runID := p.startRun(ctx, root)
		var processed, failed int
		defer func() { p.finishRun(runID, processed, failed, false) }()

		for f := range changes {
			if p.unchanged(ctx, f) {
				p.logger.Debug("skipping unchanged document", "file", f.RelPath)
				continue
			}
			out := p.process(ctx, f, runID)
			if out.OK() {
				processed++
			} else {
				failed++
			}
			if !yield(out) {
				return
			}
		}
	}, nil
}

func (p *Pipeline) unchanged(ctx context.Context, f walker.FileInfo) bool {
	if p.deps.Records == nil || f.ContentHash == "" {
		return false
	}
	stored, err := p.deps.Records.ContentHash(ctx, f.Name)
	return err == nil && stored == f.ContentHash
}
