// Package pipeline drives documents through OCR, classification, entity
// extraction and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/db"
	"github.com/ziadkadry99/docintake/internal/extraction"
	"github.com/ziadkadry99/docintake/internal/metrics"
	"github.com/ziadkadry99/docintake/internal/ocr"
	"github.com/ziadkadry99/docintake/internal/record"
	"github.com/ziadkadry99/docintake/internal/schema"
	"github.com/ziadkadry99/docintake/internal/vectordb"
	"github.com/ziadkadry99/docintake/internal/walker"
)

// TextRecognizer turns a document file into text.
type TextRecognizer interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Classifier labels document text.
type Classifier interface {
	ClassifyWith(ctx context.Context, text string, policy classifier.Policy) (classifier.Result, error)
}

// RecordLog is the relational side of persistence: full records plus the
// batch run log. *db.RecordStore implements it.
type RecordLog interface {
	UpsertRecord(ctx context.Context, rec record.ProcessingRecord, contentHash, runID string) error
	ContentHash(ctx context.Context, filename string) (string, error)
	DeleteRecord(ctx context.Context, filename string) error
	StartRun(ctx context.Context, root string) (string, error)
	FinishRun(ctx context.Context, id string, processed, failed int, aborted bool) error
}

var _ RecordLog = (*db.RecordStore)(nil)

// ProgressFunc is called after each document finishes.
type ProgressFunc func(processed int, total int, currentFile string)

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	OCR        TextRecognizer
	Classifier Classifier
	Extractor  extraction.Extractor
	// Store receives the text and flat metadata of every record.
	Store vectordb.RecordStore
	// Records is optional.
	Records RecordLog
}

// Options tunes a Pipeline.
type Options struct {
	// Concurrency is the number of documents processed at once.
	// Values below 1 mean sequential processing.
	Concurrency int
	// Policy is the confidence policy used for batch classification.
	Policy classifier.Policy
	// OCRTimeout bounds text recognition per document. Classification
	// and extraction carry their own call timeouts.
	OCRTimeout time.Duration
	// PersistTimeout bounds the upserts for one document.
	PersistTimeout time.Duration
	// MaxFileSize fails larger documents with ErrFileTooLarge before
	// OCR. Zero means no limit.
	MaxFileSize int64
	Extensions  []string
	Exclude     []string
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	OnProgress  ProgressFunc
}

// Pipeline processes documents. It is safe for concurrent use.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Policy == "" {
		opts.Policy = classifier.PolicyInverseDistance
	}
	if opts.OCRTimeout <= 0 {
		opts.OCRTimeout = 2 * time.Minute
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 30 * time.Second
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = ocr.BatchExtensions
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{deps: deps, opts: opts, logger: logger}
}

// Discover lists the documents under root in lexical order. A missing
// root, or one that is not a directory, yields ErrRootNotFound.
func (p *Pipeline) Discover(root string) ([]walker.FileInfo, error) {
	files, err := walker.Walk(p.walkConfig(root))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, walker.ErrNotDirectory) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return nil, err
	}

	seen := make(map[string]string, len(files))
	for _, f := range files {
		if prev, ok := seen[f.Name]; ok {
			p.logger.Warn("duplicate filename, later record overwrites earlier", "file", f.RelPath, "previous", prev)
		}
		seen[f.Name] = f.RelPath
	}
	return files, nil
}

func (p *Pipeline) walkConfig(root string) walker.Config {
	return walker.Config{
		RootDir:     root,
		Extensions:  p.opts.Extensions,
		Exclude:     p.opts.Exclude,
		MaxFileSize: p.opts.MaxFileSize,
		Hash:        true,
		Logger:      p.logger,
	}
}

// process drives one document through every stage. It never panics and
// never returns a nil Err on failure.
func (p *Pipeline) process(ctx context.Context, f walker.FileInfo, runID string) (out Outcome) {
	start := time.Now()
	out.File = f
	stage := StageOCR

	p.opts.Metrics.StartDocument()
	defer func() {
		if r := recover(); r != nil {
			out.Record = nil
			out.Err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
		out.Duration = time.Since(start)
		if out.Err != nil {
			p.logger.Warn("document failed",
				"file", f.RelPath,
				"stage", stage.String(),
				"error", out.Err,
			)
		} else {
			p.logger.Debug("document processed",
				"file", f.RelPath,
				"label", out.Record.Label.String(),
				"confidence", out.Record.Confidence,
				"duration_ms", out.Duration.Milliseconds(),
			)
		}
		p.opts.Metrics.FinishDocument(out.Duration, stage.String(), out.Err)
	}()

	if f.Oversize {
		out.Err = &StageError{
			Stage: StageOCR,
			Err:   fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, f.Size, p.opts.MaxFileSize),
		}
		return out
	}

	a, err := p.analyze(ctx, f.Path, p.opts.Policy, &stage)
	out.Classification = a.classification
	if err != nil {
		out.Err = err
		return out
	}

	stage = StagePersist
	rec := record.New(f.Name, f.Path, a.text, *a.classification.Label, a.classification.Confidence, a.extracted.Fields, a.fields)
	if err := p.persist(ctx, rec, f.ContentHash, runID); err != nil {
		out.Err = &StageError{Stage: StagePersist, Err: err}
		return out
	}
	out.Record = &rec
	return out
}

// analysis is the unpersisted product of the first three stages.
type analysis struct {
	text           string
	classification classifier.Result
	fields         []string
	extracted      extraction.Result
}

// analyze runs OCR, classification and extraction. stage tracks the
// current step for the caller's panic recovery.
func (p *Pipeline) analyze(ctx context.Context, path string, policy classifier.Policy, stage *Stage) (analysis, error) {
	var a analysis

	*stage = StageOCR
	ocrCtx, cancel := context.WithTimeout(ctx, p.opts.OCRTimeout)
	text, err := p.deps.OCR.Extract(ocrCtx, path)
	cancel()
	if err != nil {
		return a, &StageError{Stage: StageOCR, Err: err}
	}
	a.text = text

	*stage = StageClassify
	res, err := p.deps.Classifier.ClassifyWith(ctx, text, policy)
	a.classification = res
	if err != nil {
		return a, &StageError{Stage: StageClassify, Err: err}
	}
	if res.Abstained() {
		p.opts.Metrics.ObserveConfidence("", res.Confidence)
		return a, &StageError{
			Stage: StageClassify,
			Err:   fmt.Errorf("%w: confidence %.3f", classifier.ErrAbstained, res.Confidence),
		}
	}
	p.opts.Metrics.ObserveConfidence(res.Label.String(), res.Confidence)

	*stage = StageExtract
	a.fields = schema.FieldsFor(*res.Label)
	extracted, err := p.deps.Extractor.Extract(ctx, *res.Label, text, a.fields)
	if err != nil {
		return a, &StageError{Stage: StageExtract, Err: err}
	}
	if extracted.Malformed != nil {
		p.opts.Metrics.MalformedResponse()
	}
	if len(extracted.Nonconforming) > 0 {
		p.opts.Metrics.NonconformingResponse()
	}
	a.extracted = extracted
	return a, nil
}

// Forget removes the record stored under filename from the vector store
// and, when configured, the record log. A filename absent from the
// record log is not an error.
func (p *Pipeline) Forget(ctx context.Context, filename string) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.PersistTimeout)
	defer cancel()

	if err := p.deps.Store.Delete(ctx, filename); err != nil {
		return fmt.Errorf("forget %s: %w", filename, err)
	}
	if p.deps.Records == nil {
		return nil
	}
	if err := p.deps.Records.DeleteRecord(ctx, filename); err != nil && !errors.Is(err, db.ErrRecordNotFound) {
		return fmt.Errorf("forget %s: %w", filename, err)
	}
	p.logger.Info("record removed", "file", filename)
	return nil
}

func (p *Pipeline) persist(ctx context.Context, rec record.ProcessingRecord, contentHash, runID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.PersistTimeout)
	defer cancel()

	if err := p.deps.Store.Upsert(ctx, rec.Filename, rec.Text, rec.Metadata()); err != nil {
		return err
	}
	if p.deps.Records != nil {
		if err := p.deps.Records.UpsertRecord(ctx, rec, contentHash, runID); err != nil {
			return err
		}
	}
	return nil
}
