package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ziadkadry99/docintake/internal/corpus"
	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/embeddings"
)

const embedBatchSize = 32

// BuildReport is the diagnostic produced by a build.
type BuildReport struct {
	Added               int           `json:"added"`
	SkippedMissing      int           `json:"skipped_missing"`
	SkippedUnknownLabel int           `json:"skipped_unknown_label"`
	SkippedFiles        int           `json:"skipped_files"`
	Duration            time.Duration `json:"duration"`
}

// Skipped returns the total number of samples and files left out.
func (r BuildReport) Skipped() int {
	return r.SkippedMissing + r.SkippedUnknownLabel + r.SkippedFiles
}

// Build embeds every usable sample and returns a new index. Samples with
// empty text or label, or with a label that does not parse, are skipped
// and counted. An embedding failure aborts the build.
func Build(ctx context.Context, emb embeddings.Embedder, samples []corpus.Sample, logger *slog.Logger) (*Index, BuildReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	var report BuildReport

	type usable struct {
		text  string
		label doctype.Type
	}
	keep := make([]usable, 0, len(samples))
	for i, s := range samples {
		if strings.TrimSpace(s.Text) == "" || strings.TrimSpace(s.Label) == "" {
			report.SkippedMissing++
			logger.Debug("skipping sample without text or label", "file", s.Source, "entry", i)
			continue
		}
		label, err := doctype.Parse(s.Label)
		if err != nil {
			report.SkippedUnknownLabel++
			logger.Warn("skipping sample with unknown label", "file", s.Source, "entry", i, "label", s.Label)
			continue
		}
		keep = append(keep, usable{text: s.Text, label: label})
	}

	idx := New(0)
	for i := 0; i < len(keep); i += embedBatchSize {
		end := min(i+embedBatchSize, len(keep))
		texts := make([]string, end-i)
		for j := range texts {
			texts[j] = keep[i+j].text
		}
		vecs, err := emb.Embed(ctx, texts)
		if err != nil {
			return nil, report, fmt.Errorf("embed corpus batch at %d: %w", i, err)
		}
		if len(vecs) != len(texts) {
			return nil, report, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for j, v := range vecs {
			if err := idx.Add(v, keep[i+j].label); err != nil {
				return nil, report, err
			}
			report.Added++
		}
	}

	report.Duration = time.Since(start)
	return idx, report, nil
}

// Options configures LoadOrBuild.
type Options struct {
	Dir      string
	Embedder embeddings.Embedder
	// Dim is the dimension the embedder currently produces. A persisted
	// index with a different dimension is rebuilt. Zero skips the check.
	Dim int
	// Corpus supplies training samples when a build is needed.
	Corpus func(ctx context.Context) ([]corpus.Sample, corpus.LoadReport, error)
	// Force rebuilds even when a valid index is on disk.
	Force  bool
	Logger *slog.Logger
}

// Result is what LoadOrBuild produced.
type Result struct {
	Index    *Index
	Manifest *Manifest
	Built    bool
}

// LoadOrBuild loads the index persisted in opts.Dir, or builds and
// persists a new one when none exists, when the embedder or its dimension
// changed, or when the label schema changed. A present but unreadable or
// inconsistent index is returned as a *CorruptIndexError and never
// silently replaced.
func LoadOrBuild(ctx context.Context, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if !opts.Force && Exists(opts.Dir) {
		idx, manifest, err := Load(opts.Dir)
		if err != nil {
			return nil, err
		}
		reason := staleReason(idx, manifest, opts)
		if reason == "" {
			logger.Info("loaded reference index", "dir", opts.Dir, "vectors", idx.Len(), "dim", idx.Dim())
			return &Result{Index: idx, Manifest: manifest}, nil
		}
		logger.Warn("persisted index is stale, rebuilding from scratch", "dir", opts.Dir, "reason", reason)
	}

	if opts.Corpus == nil {
		return nil, errors.New("no index on disk and no corpus configured")
	}
	samples, loadReport, err := opts.Corpus(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	idx, report, err := Build(ctx, opts.Embedder, samples, logger)
	if err != nil {
		return nil, err
	}
	report.SkippedFiles = len(loadReport.SkippedFiles)
	if idx.Len() == 0 {
		return nil, fmt.Errorf("corpus produced no usable samples (%d skipped)", report.Skipped())
	}
	if opts.Dim > 0 && idx.Dim() != opts.Dim {
		return nil, fmt.Errorf("build: %w: vectors have %d, embedder reports %d", ErrDimensionMismatch, idx.Dim(), opts.Dim)
	}

	manifest, err := idx.Persist(opts.Dir, Manifest{
		Embedder:      embedderName(opts.Embedder),
		SchemaVersion: doctype.SchemaVersion,
		Report:        report,
	})
	if err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}

	logger.Info("built reference index",
		"dir", opts.Dir,
		"vectors", report.Added,
		"dim", idx.Dim(),
		"skipped_missing", report.SkippedMissing,
		"skipped_unknown_label", report.SkippedUnknownLabel,
		"skipped_files", report.SkippedFiles,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return &Result{Index: idx, Manifest: manifest, Built: true}, nil
}

// staleReason explains why a loaded index cannot serve the current
// embedder, or returns "" when it can.
func staleReason(idx *Index, m *Manifest, opts Options) string {
	if opts.Dim > 0 && idx.Len() > 0 && idx.Dim() != opts.Dim {
		return fmt.Sprintf("dimension changed from %d to %d", idx.Dim(), opts.Dim)
	}
	if m == nil {
		return ""
	}
	if m.SchemaVersion != 0 && m.SchemaVersion != doctype.SchemaVersion {
		return fmt.Sprintf("label schema changed from v%d to v%d", m.SchemaVersion, doctype.SchemaVersion)
	}
	if name := embedderName(opts.Embedder); m.Embedder != "" && name != "" && m.Embedder != name {
		return fmt.Sprintf("embedder changed from %s to %s", m.Embedder, name)
	}
	return ""
}

func embedderName(e embeddings.Embedder) string {
	if e == nil {
		return ""
	}
	return e.Name()
}
