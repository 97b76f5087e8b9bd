// Package corpus reads the labeled training corpus used to build the
// reference index, and produces it from folders of labeled scans.
package corpus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sample is one labeled training text.
type Sample struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	// Source is the corpus file the sample came from. Not serialized.
	Source string `json:"-"`
}

// LoadReport summarizes what Load could not use.
type LoadReport struct {
	Files        int      `json:"files"`
	SkippedFiles []string `json:"skipped_files,omitempty"`
}

// Load reads every *.json file in dir, each holding a JSON array of
// samples. Files that are not valid JSON are skipped and reported; the
// samples themselves are returned unvalidated so the index builder can
// account for missing text and unknown labels.
func Load(dir string, logger *slog.Logger) ([]Sample, LoadReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var report LoadReport

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, report, fmt.Errorf("read corpus dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var samples []Sample
	for _, name := range names {
		path := filepath.Join(dir, name)
		report.Files++

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("corpus file unreadable", "file", path, "error", err)
			report.SkippedFiles = append(report.SkippedFiles, path)
			continue
		}
		var entries []json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			logger.Warn("invalid JSON in corpus file", "file", path, "error", err)
			report.SkippedFiles = append(report.SkippedFiles, path)
			continue
		}
		for _, raw := range entries {
			samples = append(samples, decodeSample(raw, path))
		}
	}
	return samples, report, nil
}

// decodeSample reads one corpus entry. An entry that is not an object, or
// whose text is not a string, comes back with empty text. A label that is
// not a string keeps its JSON rendering, which no document type matches.
func decodeSample(raw json.RawMessage, source string) Sample {
	s := Sample{Source: source}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return s
	}
	s.Text, _ = fields["text"].(string)
	switch v := fields["label"].(type) {
	case nil:
	case string:
		s.Label = v
	default:
		s.Label = fmt.Sprint(v)
	}
	return s
}
