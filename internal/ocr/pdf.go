package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfTextLayer reads embedded text from a PDF without rasterizing. The
// parser panics on some malformed files; that is reported as an error.
func pdfTextLayer(path string) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", 0, err
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", 0, err
	}
	return string(b), r.NumPage(), nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	text, pages, err := e.textLayer(path)
	switch {
	case err != nil:
		e.logger.Debug("pdf text layer unreadable, rasterizing", "path", path, "error", err)
	case len(strings.TrimSpace(text)) >= e.cfg.MinTextLayerChars:
		return Result{Text: Normalize(text), Pages: pages, Format: FormatPDF, Method: MethodPDFText}, nil
	default:
		e.logger.Debug("pdf text layer too short, rasterizing", "path", path, "chars", len(strings.TrimSpace(text)))
	}
	return e.rasterPDF(ctx, path)
}

func (e *Extractor) rasterPDF(ctx context.Context, path string) (Result, error) {
	tmpDir, err := os.MkdirTemp("", "docintake-pdf-*")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, path, prefix)
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, args...); err != nil {
		return Result{}, fmt.Errorf("%w: pdftoppm: %v: %s", ErrOCRFailure, err, truncate(strings.TrimSpace(string(errb)), 256))
	}

	pngs, _ := filepath.Glob(prefix + "-*.png")
	sortPages(pngs)
	if e.cfg.MaxPages > 0 && len(pngs) > e.cfg.MaxPages {
		pngs = pngs[:e.cfg.MaxPages]
	}
	if len(pngs) == 0 {
		return Result{}, fmt.Errorf("%w: pdftoppm rendered no pages", ErrOCRFailure)
	}

	res := Result{Pages: len(pngs), Format: FormatPDF, Method: MethodPDFOCR}
	var b strings.Builder
	for _, img := range pngs {
		txt, err := e.tesseract(ctx, img)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", filepath.Base(img), err))
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(txt)
	}
	res.Text = Normalize(b.String())
	if res.Text == "" {
		return res, fmt.Errorf("%w: no text recognized in %d pages", ErrOCRFailure, len(pngs))
	}
	return res, nil
}

// sortPages orders pdftoppm output numerically; its zero padding depends
// on the page count.
func sortPages(pngs []string) {
	num := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		n, _ := strconv.Atoi(base[strings.LastIndexByte(base, '-')+1:])
		return n
	}
	sort.Slice(pngs, func(i, j int) bool { return num(pngs[i]) < num(pngs[j]) })
}
