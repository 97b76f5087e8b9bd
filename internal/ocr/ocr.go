// Package ocr turns scanned images and PDFs into text using tesseract and
// poppler's pdftoppm. PDFs with an embedded text layer skip rasterizing.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Recognition methods reported in Result.Method.
const (
	MethodImageOCR = "image-ocr"
	MethodPDFText  = "pdf-text"
	MethodPDFOCR   = "pdf-ocr"
)

// Config locates the external tools and tunes recognition.
type Config struct {
	Tesseract   string
	Pdftoppm    string
	Lang        string
	TessdataDir string
	DPI         int
	MaxPages    int
	// MinTextLayerChars is the shortest embedded PDF text accepted before
	// falling back to raster OCR.
	MinTextLayerChars int
}

// DefaultConfig returns English recognition at 300 DPI.
func DefaultConfig() Config {
	return Config{
		Tesseract:         "tesseract",
		Pdftoppm:          "pdftoppm",
		Lang:              "eng",
		DPI:               300,
		MinTextLayerChars: 32,
	}
}

// Result describes one recognition.
type Result struct {
	Text     string
	Pages    int
	Format   Format
	Method   string
	Duration time.Duration
	Warnings []string
}

// Extractor runs OCR on local files.
type Extractor struct {
	cfg       Config
	runner    Runner
	logger    *slog.Logger
	textLayer func(path string) (string, int, error)
}

// NewExtractor creates an Extractor. Zero config fields take defaults.
func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Tesseract == "" {
		cfg.Tesseract = def.Tesseract
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = def.Pdftoppm
	}
	if cfg.Lang == "" {
		cfg.Lang = def.Lang
	}
	if cfg.DPI <= 0 {
		cfg.DPI = def.DPI
	}
	if cfg.MinTextLayerChars <= 0 {
		cfg.MinTextLayerChars = def.MinTextLayerChars
	}
	return &Extractor{
		cfg:       cfg,
		runner:    execRunner{logger: logger},
		logger:    logger,
		textLayer: pdfTextLayer,
	}
}

// Extract returns the recognized text of the file at path.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	res, err := e.Recognize(ctx, path)
	return res.Text, err
}

// Recognize picks a strategy from the file extension and reports how the
// text was obtained. Errors wrap ErrUnsupportedFormat or ErrOCRFailure.
func (e *Extractor) Recognize(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	format, err := Detect(path)
	if err != nil {
		return Result{}, err
	}

	var res Result
	switch format {
	case FormatPDF:
		res, err = e.extractPDF(ctx, path)
	default:
		res, err = e.extractImage(ctx, path)
	}
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}
	e.logger.Debug("ocr complete", "path", path, "method", res.Method, "pages", res.Pages, "chars", len(res.Text), "duration", res.Duration)
	return res, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (Result, error) {
	txt, err := e.tesseract(ctx, path)
	if err != nil {
		return Result{}, err
	}
	res := Result{Text: Normalize(txt), Pages: 1, Format: FormatImage, Method: MethodImageOCR}
	if res.Text == "" {
		return res, fmt.Errorf("%w: no text recognized", ErrOCRFailure)
	}
	return res, nil
}

// tesseract runs `tesseract <file> stdout -l <lang>`.
func (e *Extractor) tesseract(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.Lang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: tesseract: %w", ErrOCRFailure, ctx.Err())
		}
		return "", fmt.Errorf("%w: tesseract: %v: %s", ErrOCRFailure, err, truncate(strings.TrimSpace(string(errb)), 256))
	}
	return string(out), nil
}
