package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/ziadkadry99/docintake/internal/doctype"
)

// TextExtractor turns a scanned file into text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// SplitResult reports one written samples file.
type SplitResult struct {
	Label   string
	File    string
	Samples int
	Errors  []error
}

// Split walks inputDir/<label>/ for every known label, extracts text from
// each file, and writes outputDir/samples_<label>.json. Label folders that
// do not exist are skipped. Files that fail extraction are recorded in
// the result and left out of the samples.
func Split(ctx context.Context, ex TextExtractor, inputDir, outputDir string, logger *slog.Logger) ([]SplitResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var results []SplitResult
	for _, label := range doctype.Names() {
		folder := filepath.Join(inputDir, label)
		if info, err := os.Stat(folder); err != nil || !info.IsDir() {
			continue
		}

		var files []string
		err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return results, fmt.Errorf("walk %s: %w", folder, err)
		}
		sort.Strings(files)

		res := SplitResult{Label: label, File: filepath.Join(outputDir, "samples_"+label+".json")}
		samples := make([]Sample, 0, len(files))
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			text, err := ex.Extract(ctx, path)
			if err != nil {
				logger.Warn("corpus sample extraction failed", "file", path, "label", label, "error", err)
				res.Errors = append(res.Errors, fmt.Errorf("%s: %w", path, err))
				continue
			}
			samples = append(samples, Sample{Text: text, Label: label})
		}

		data, err := json.MarshalIndent(samples, "", "  ")
		if err != nil {
			return results, fmt.Errorf("encode samples for %s: %w", label, err)
		}
		if err := os.WriteFile(res.File, data, 0o644); err != nil {
			return results, fmt.Errorf("write %s: %w", res.File, err)
		}
		res.Samples = len(samples)
		results = append(results, res)
	}
	return results, nil
}
