package vectordb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ziadkadry99/docintake/internal/record"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d result(s):\n\n", len(results))

	for i, r := range results {
		md := r.Record.Metadata
		fmt.Fprintf(&sb, "--- Result %d (similarity: %.4f) ---\n", i+1, r.Similarity)
		fmt.Fprintf(&sb, "File: %s\n", r.Record.Key)
		if t := md[record.KeyType]; t != "" {
			fmt.Fprintf(&sb, "Type: %s (confidence %s)\n", t, md[record.KeyConfidence])
		}
		for _, k := range entityKeys(md) {
			if v := md[k]; v != "" {
				fmt.Fprintf(&sb, "%s: %s\n", strings.TrimPrefix(k, record.EntityPrefix), v)
			}
		}
		sb.WriteString("\n")
		sb.WriteString(snippet(r.Record.Text, 300))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func entityKeys(md map[string]string) []string {
	var keys []string
	for k := range md {
		if strings.HasPrefix(k, record.EntityPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
