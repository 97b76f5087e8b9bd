// Package export writes persisted records to spreadsheets.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ziadkadry99/docintake/internal/db"
	"github.com/ziadkadry99/docintake/internal/record"
)

const (
	recordsSheet = "Records"
	summarySheet = "Summary"
)

// RecordLister lists persisted records. *db.RecordStore implements it.
type RecordLister interface {
	ListRecords(ctx context.Context, filter db.ListFilter) ([]db.StoredRecord, error)
}

// WriteXLSX writes one row per record to w: filename, type, confidence,
// updated time, then one column per entity field seen across records.
// A Summary sheet counts records by type. It returns the row count.
func WriteXLSX(ctx context.Context, lister RecordLister, filter db.ListFilter, w io.Writer, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	recs, err := lister.ListRecords(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("list records: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return 0, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return 0, err
	}

	fields := fieldColumns(recs)
	headers := append([]string{"Filename", "Type", "Confidence", "Updated"}, fields...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(recordsSheet, cell, h)
	}

	counts := make(map[string]int)
	for i, r := range recs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(recordsSheet, cell, v)
		}

		write(1, r.Filename)
		write(2, r.Label.String())
		write(3, r.Confidence)
		if !r.UpdatedAt.IsZero() {
			write(4, r.UpdatedAt.UTC().Format(time.RFC3339))
		}
		for j, name := range fields {
			if v, ok := r.Fields[name]; ok && v != nil {
				write(5+j, record.Stringify(v))
			}
		}
		counts[r.Label.String()]++
	}

	_ = f.SetColWidth(recordsSheet, "A", "A", 32)
	_ = f.SetColWidth(recordsSheet, "B", "B", 22)
	_ = f.SetColWidth(recordsSheet, "C", "C", 12)
	_ = f.SetColWidth(recordsSheet, "D", "D", 22)
	if len(fields) > 0 {
		last, _ := excelize.ColumnNumberToName(4 + len(fields))
		_ = f.SetColWidth(recordsSheet, "E", last, 24)
	}
	_ = f.SetPanes(recordsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	writeSummary(f, counts)

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("xlsx write: %w", err)
	}

	logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"fields", len(fields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return len(recs), nil
}

// fieldColumns returns every field name in order of first appearance.
func fieldColumns(recs []db.StoredRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range recs {
		order := r.FieldOrder
		if len(order) == 0 {
			for k := range r.Fields {
				order = append(order, k)
			}
			sort.Strings(order)
		}
		for _, name := range order {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

func writeSummary(f *excelize.File, counts map[string]int) {
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	_ = f.SetCellValue(summarySheet, "A1", "Type")
	_ = f.SetCellValue(summarySheet, "B1", "Documents")
	for i, l := range labels {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+2), l)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+2), counts[l])
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 24)
}
