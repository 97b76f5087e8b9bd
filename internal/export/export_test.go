package export

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/ziadkadry99/docintake/internal/db"
	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/record"
)

type failingLister struct{}

func (failingLister) ListRecords(context.Context, db.ListFilter) ([]db.StoredRecord, error) {
	return nil, errors.New("disk on fire")
}

func seed(t *testing.T) *db.RecordStore {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	store := db.NewRecordStore(database)
	ctx := context.Background()

	recs := []record.ProcessingRecord{
		record.New("a.png", "", "INVOICE", doctype.Invoice, 0.5,
			map[string]any{"amount": 1500, "company": "ACME"}, []string{"amount", "company", "description"}),
		record.New("b.png", "", "MEMO", doctype.Memo, 0.75,
			map[string]any{"from": []any{"HR", "IT"}}, []string{"date", "from", "subject"}),
		record.New("c.png", "", "INVOICE", doctype.Invoice, 0.4,
			nil, []string{"amount", "company", "description"}),
	}
	for _, r := range recs {
		if err := store.UpsertRecord(ctx, r, "", ""); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteXLSX(context.Background(), seed(t), db.ListFilter{}, &buf, nil)
	if err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	if n != 3 {
		t.Errorf("rows = %d", n)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(recordsSheet)
	if err != nil {
		t.Fatal(err)
	}
	wantHeader := []string{"Filename", "Type", "Confidence", "Updated", "amount", "company", "description", "date", "from", "subject"}
	if len(rows[0]) != len(wantHeader) {
		t.Fatalf("header = %v", rows[0])
	}
	for i, h := range wantHeader {
		if rows[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], h)
		}
	}
	if len(rows) != 4 {
		t.Fatalf("expected 3 data rows, got %d", len(rows)-1)
	}
	if rows[1][0] != "a.png" || rows[1][1] != "invoice" || rows[1][4] != "1500" || rows[1][5] != "ACME" {
		t.Errorf("row a.png = %v", rows[1])
	}
	if rows[2][0] != "b.png" || rows[2][8] != "HR, IT" {
		t.Errorf("row b.png = %v", rows[2])
	}

	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary) != 3 || summary[1][0] != "invoice" || summary[1][1] != "2" || summary[2][0] != "memo" {
		t.Errorf("summary = %v", summary)
	}
}

func TestWriteXLSXFiltered(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteXLSX(context.Background(), seed(t), db.ListFilter{Label: "memo"}, &buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("rows = %d", n)
	}
}

func TestWriteXLSXListError(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WriteXLSX(context.Background(), failingLister{}, db.ListFilter{}, &buf, nil); err == nil {
		t.Error("expected error")
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written on error")
	}
}
