package vectordb

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

// mockEmbedder returns deterministic embeddings based on text content.
// Similar texts produce similar vectors because shared characters
// contribute to the same positions.
type mockEmbedder struct {
	dims int
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.deterministicVector(text)
	}
	return results, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) Name() string    { return "mock" }

func (m *mockEmbedder) deterministicVector(text string) []float32 {
	vec := make([]float32, m.dims)
	for i, ch := range text {
		vec[(int(ch)+i)%m.dims] += 1.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(&mockEmbedder{dims: 64})
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return store
}

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	md := map[string]any{
		"filename":       "inv-001.png",
		"type":           "invoice",
		"confidence":     0.5,
		"entity_amount":  1500.0,
		"entity_company": "ACME",
		"entity_notes":   nil,
	}
	if err := store.Upsert(ctx, "inv-001.png", "INVOICE ACME total 1500", md); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec, err := store.Get(ctx, "inv-001.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Text != "INVOICE ACME total 1500" {
		t.Errorf("text = %q", rec.Text)
	}
	want := map[string]string{
		"filename":       "inv-001.png",
		"type":           "invoice",
		"confidence":     "0.5",
		"entity_amount":  "1500",
		"entity_company": "ACME",
		"entity_notes":   "",
	}
	for k, v := range want {
		if rec.Metadata[k] != v {
			t.Errorf("metadata[%s] = %q, want %q", k, rec.Metadata[k], v)
		}
	}
}

func TestUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Upsert(ctx, "memo.pdf", "first text", map[string]any{"type": "memo"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, "memo.pdf", "second text", map[string]any{"type": "letter"}); err != nil {
		t.Fatal(err)
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 record after re-upsert, got %d", store.Count())
	}
	rec, err := store.Get(ctx, "memo.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Text != "second text" || rec.Metadata["type"] != "letter" {
		t.Errorf("expected the second version, got %+v", rec)
	}
}

func TestUpsertEmptyKey(t *testing.T) {
	if err := newTestStore(t).Upsert(context.Background(), "", "x", nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestGetMissing(t *testing.T) {
	_, err := newTestStore(t).Get(context.Background(), "nope.png")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_ = store.Upsert(ctx, "a.png", "alpha", map[string]any{"type": "memo"})
	_ = store.Upsert(ctx, "b.png", "beta", map[string]any{"type": "memo"})
	if err := store.Delete(ctx, "a.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 record, got %d", store.Count())
	}
}

func TestSearchWithTypeFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_ = store.Upsert(ctx, "a.png", "invoice for services rendered", map[string]any{"type": "invoice"})
	_ = store.Upsert(ctx, "b.png", "invoice for consulting", map[string]any{"type": "invoice"})
	_ = store.Upsert(ctx, "c.png", "dear john, a letter", map[string]any{"type": "letter"})

	results, err := store.Search(ctx, "invoice", 10, &SearchFilter{Type: "letter"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Record.Key != "c.png" {
		t.Errorf("expected only c.png, got %+v", results)
	}

	all, err := store.Search(ctx, "invoice for services", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 results, got %d", len(all))
	}
	if all[0].Record.Key != "a.png" {
		t.Errorf("closest match should be a.png, got %s", all[0].Record.Key)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	results, err := newTestStore(t).Search(context.Background(), "anything", 5, nil)
	if err != nil || results != nil {
		t.Errorf("got %v, %v", results, err)
	}
}

func TestPersistentStoreReopens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := &mockEmbedder{dims: 32}

	store, err := OpenChromemStore(dir, emb)
	if err != nil {
		t.Fatalf("OpenChromemStore: %v", err)
	}
	if err := store.Upsert(ctx, "q.pdf", "questionnaire", map[string]any{"type": "questionnaire"}); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenChromemStore(dir, emb)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rec, err := reopened.Get(ctx, "q.pdf")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if rec.Metadata["type"] != "questionnaire" {
		t.Errorf("metadata lost: %v", rec.Metadata)
	}
}

func TestFlattenMetadata(t *testing.T) {
	got := FlattenMetadata(map[string]any{
		"list": []any{"a", "b"},
		"n":    2023.0,
		"ok":   true,
		"none": nil,
	})
	want := map[string]string{"list": "a, b", "n": "2023", "ok": "true", "none": ""}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestFormatResults(t *testing.T) {
	out := FormatResults([]SearchResult{{
		Record: Record{
			Key:  "inv.png",
			Text: "INVOICE",
			Metadata: map[string]string{
				"type":           "invoice",
				"confidence":     "0.8",
				"entity_company": "ACME",
			},
		},
		Similarity: 0.91,
	}})
	for _, want := range []string{"Found 1 result(s)", "File: inv.png", "Type: invoice (confidence 0.8)", "company: ACME", "INVOICE"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if FormatResults(nil) != "No results found." {
		t.Error("unexpected empty output")
	}
}
