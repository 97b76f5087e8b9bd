package walker

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var docExts = []string{".jpg", ".jpeg", ".png", ".pdf"}

// writeTree creates files (with parent dirs) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWalk_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"invoice.PDF":       "%PDF",
		"letters/a.jpeg":    "img",
		"letters/b.png":     "img",
		"notes.txt":         "text",
		"scans/deep/c.JPG":  "img",
		"scans/deep/d.docx": "doc",
	})

	files, err := Walk(Config{RootDir: dir, Extensions: docExts})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	want := []string{"invoice.PDF", "letters/a.jpeg", "letters/b.png", "scans/deep/c.JPG"}
	if got := relPaths(files); !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if files[0].Ext != ".pdf" || files[0].Name != "invoice.PDF" {
		t.Errorf("unexpected file info: %+v", files[0])
	}
	if !filepath.IsAbs(files[0].Path) {
		t.Errorf("Path should be absolute: %q", files[0].Path)
	}
}

func TestWalk_Exclude(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"keep.png":         "x",
		"archive/old.png":  "x",
		"drafts/x.tmp.png": "x",
	})
	files, err := Walk(Config{RootDir: dir, Extensions: docExts, Exclude: []string{"archive/**", "*.tmp.png"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := relPaths(files); !equal(got, []string{"keep.png"}) {
		t.Errorf("got %v", got)
	}
}

func TestWalk_DefaultExcludeDirs(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"a.png":                "x",
		".docintake/cache.png": "x",
		"__MACOSX/._a.png":     "x",
	})
	files, err := Walk(Config{RootDir: dir, Extensions: docExts})
	if err != nil {
		t.Fatal(err)
	}
	if got := relPaths(files); !equal(got, []string{"a.png"}) {
		t.Errorf("got %v", got)
	}
}

func TestWalk_IgnoreFile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		IgnoreFile:         "# scanner leftovers\nthumb_*.jpg\nrejected/\n",
		"scan.jpg":         "x",
		"thumb_scan.jpg":   "x",
		"rejected/bad.pdf": "x",
	})
	files, err := Walk(Config{RootDir: dir, Extensions: docExts})
	if err != nil {
		t.Fatal(err)
	}
	if got := relPaths(files); !equal(got, []string{"scan.jpg"}) {
		t.Errorf("got %v", got)
	}
}

func TestWalk_FlagsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"small.png": "x", "big.png": "0123456789"})
	files, err := Walk(Config{RootDir: dir, Extensions: docExts, MaxFileSize: 5, Hash: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := relPaths(files); !equal(got, []string{"big.png", "small.png"}) {
		t.Fatalf("got %v", got)
	}
	big, small := files[0], files[1]
	if !big.Oversize || big.ContentHash != "" || big.Size != 10 {
		t.Errorf("big.png = %+v", big)
	}
	if small.Oversize || small.ContentHash == "" {
		t.Errorf("small.png = %+v", small)
	}
}

func TestWalk_MissingRoot(t *testing.T) {
	_, err := Walk(Config{RootDir: filepath.Join(t.TempDir(), "nope")})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestWalk_RootIsFile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.png": "x"})
	_, err := Walk(Config{RootDir: filepath.Join(dir, "a.png")})
	if !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("expected ErrNotDirectory, got %v", err)
	}
}

func TestWalk_ContentHash(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.png": "same", "b.png": "same", "c.png": "different"})

	files, err := Walk(Config{RootDir: dir, Extensions: docExts, Hash: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	if files[0].ContentHash == "" || files[0].ContentHash != files[1].ContentHash {
		t.Error("identical content should hash identically")
	}
	if files[0].ContentHash == files[2].ContentHash {
		t.Error("different content should hash differently")
	}

	again, _ := Walk(Config{RootDir: dir, Extensions: docExts, Hash: true})
	if again[2].ContentHash != files[2].ContentHash {
		t.Error("hash should be stable across walks")
	}
}

func TestMatchesExclude(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		want    bool
	}{
		{"a/b/c.png", "a/**", true},
		{"a/b/c.png", "**/*.png", true},
		{"a/b/c.png", "c.png", true},
		{"a/b/c.png", "b/*.png", false},
		{"x.pdf", "*.png", false},
	}
	for _, tt := range tests {
		if got := MatchesExclude(tt.path, []string{tt.pattern}); got != tt.want {
			t.Errorf("MatchesExclude(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
		}
	}
	if MatchesExclude("a.png", nil) {
		t.Error("no patterns should exclude nothing")
	}
}

func TestValidatePatterns(t *testing.T) {
	if err := ValidatePatterns([]string{"**/*.png", "a/{b,c}/*"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	var pe *PatternError
	if err := ValidatePatterns([]string{"ok/*", "[unclosed"}); !errors.As(err, &pe) || pe.Pattern != "[unclosed" {
		t.Errorf("expected PatternError for [unclosed, got %v", err)
	}
}

func TestWatch_EmitsNewDocuments(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := Watch(ctx, Config{RootDir: dir, Extensions: docExts}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeTree(t, dir, map[string]string{"ignored.txt": "x", "new.png": "x"})

	select {
	case fi := <-ch:
		if fi.RelPath != "new.png" {
			t.Errorf("got %q, want new.png", fi.RelPath)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}

	cancel()
	for range ch {
	}
}
