package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/record"
)

func newTestStore(t *testing.T) *RecordStore {
	t.Helper()
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewRecordStore(d)
}

func TestOpenMemory(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	for _, table := range []string{"records", "runs"} {
		var count int
		if err := d.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	if err := d.migrate(); err != nil {
		t.Fatalf("second migrate() error: %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docintake.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer d.Close()
	if d.Path() != path {
		t.Errorf("Path() = %q", d.Path())
	}
}

func invoice(amount any) record.ProcessingRecord {
	return record.New("inv.png", "/docs/inv.png", "INVOICE ACME", doctype.Invoice, 0.5,
		map[string]any{"amount": amount, "company": "ACME"},
		[]string{"amount", "company", "description"})
}

func TestUpsertAndGetRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.UpsertRecord(ctx, invoice(1500), "abc123", "run-1"); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}

	got, err := s.GetRecord(ctx, "inv.png")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.Label != doctype.Invoice || got.Confidence != 0.5 {
		t.Errorf("label/confidence: %v/%v", got.Label, got.Confidence)
	}
	if got.Fields["amount"] != 1500.0 || got.Fields["company"] != "ACME" {
		t.Errorf("fields: %v", got.Fields)
	}
	if v, ok := got.Fields["description"]; !ok || v != nil {
		t.Errorf("missing field should round-trip as nil, got %v (present=%v)", v, ok)
	}
	if len(got.FieldOrder) != 3 || got.FieldOrder[2] != "description" {
		t.Errorf("field order: %v", got.FieldOrder)
	}
	if got.ContentHash != "abc123" || got.RunID != "run-1" {
		t.Errorf("bookkeeping: %q %q", got.ContentHash, got.RunID)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

func TestUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_ = s.UpsertRecord(ctx, invoice(1500), "h1", "run-1")
	if err := s.UpsertRecord(ctx, invoice(2000), "h2", "run-2"); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListRecords(ctx, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one row per filename, got %d", len(all))
	}
	if all[0].Fields["amount"] != 2000.0 || all[0].ContentHash != "h2" {
		t.Errorf("expected replaced row, got %+v", all[0])
	}
}

func TestDeleteRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.UpsertRecord(ctx, invoice(1500), "h1", "run-1")

	if err := s.DeleteRecord(ctx, "inv.png"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, err := s.GetRecord(ctx, "inv.png"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("record still present: %v", err)
	}
	if err := s.DeleteRecord(ctx, "inv.png"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("second delete: expected ErrRecordNotFound, got %v", err)
	}
}

func TestUpsertEmptyFilename(t *testing.T) {
	if err := newTestStore(t).UpsertRecord(context.Background(), record.ProcessingRecord{}, "", ""); err == nil {
		t.Error("expected error for empty filename")
	}
}

func TestGetRecordNotFound(t *testing.T) {
	_, err := newTestStore(t).GetRecord(context.Background(), "missing.png")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestListRecordsFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	memo := record.New("b-memo.png", "", "MEMO", doctype.Memo, 0.9, nil, []string{"date", "from", "subject"})
	_ = s.UpsertRecord(ctx, invoice(10), "", "run-1")
	_ = s.UpsertRecord(ctx, memo, "", "run-2")

	memos, err := s.ListRecords(ctx, ListFilter{Label: "memo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(memos) != 1 || memos[0].Filename != "b-memo.png" {
		t.Errorf("label filter: %+v", memos)
	}

	byRun, err := s.ListRecords(ctx, ListFilter{RunID: "run-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byRun) != 1 || byRun[0].Filename != "inv.png" {
		t.Errorf("run filter: %+v", byRun)
	}

	page, err := s.ListRecords(ctx, ListFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].Filename != "inv.png" {
		t.Errorf("pagination should order by filename: %+v", page)
	}

	counts, err := s.CountByLabel(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["memo"] != 1 || counts["invoice"] != 1 {
		t.Errorf("counts: %v", counts)
	}
}

func TestContentHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if h, err := s.ContentHash(ctx, "inv.png"); err != nil || h != "" {
		t.Fatalf("unknown file: %q, %v", h, err)
	}
	_ = s.UpsertRecord(ctx, invoice(1), "deadbeef", "")
	if h, _ := s.ContentHash(ctx, "inv.png"); h != "deadbeef" {
		t.Errorf("hash = %q", h)
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	id, err := s.StartRun(ctx, "/docs")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	run, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != RunRunning || !run.FinishedAt.IsZero() {
		t.Errorf("new run: %+v", run)
	}

	clock = clock.Add(time.Minute)
	if err := s.FinishRun(ctx, id, 3, 1, false); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, _ = s.GetRun(ctx, id)
	if run.Status != RunCompleted || run.Processed != 3 || run.Failed != 1 {
		t.Errorf("finished run: %+v", run)
	}
	if run.FinishedAt.Sub(run.StartedAt) != time.Minute {
		t.Errorf("duration = %v", run.FinishedAt.Sub(run.StartedAt))
	}

	if err := s.FinishRun(ctx, "nope", 0, 0, false); err == nil {
		t.Error("expected error finishing unknown run")
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	first, _ := s.StartRun(ctx, "/a")
	second, _ := s.StartRun(ctx, "/b")
	_ = s.FinishRun(ctx, first, 0, 0, true)

	runs, err := s.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != second {
		t.Fatalf("expected newest first, got %+v", runs)
	}
	if runs[1].Status != RunFailed {
		t.Errorf("aborted run status = %q", runs[1].Status)
	}
}
