// Package walker discovers input documents under a directory tree.
package walker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFile holds gitignore-style patterns at the root of an input tree.
const IgnoreFile = ".docintakeignore"

// ErrNotDirectory is returned when the root exists but is a file.
var ErrNotDirectory = errors.New("not a directory")

// FileInfo holds metadata about a single discovered document.
type FileInfo struct {
	Path        string // Absolute path on disk.
	RelPath     string // Path relative to the root, slash-separated.
	Name        string // Base name; records are keyed by it.
	Ext         string // Lower-cased extension including the dot.
	Size        int64
	ContentHash string // SHA-256 hex digest, set when Config.Hash is true.
	// Oversize is set when Size exceeds Config.MaxFileSize. Such files
	// are reported but never hashed.
	Oversize bool
}

// Config controls the behaviour of Walk.
type Config struct {
	RootDir     string
	Extensions  []string // Lower-case extensions with dot; empty allows all.
	Exclude     []string // Doublestar patterns matched against RelPath and base name.
	MaxFileSize int64    // Larger files are returned with Oversize set; 0 means no limit.
	Hash        bool
	Logger      *slog.Logger
}

// Walk traverses the tree rooted at cfg.RootDir and returns every regular
// file whose extension is allowed, in lexical order. Unreadable
// subdirectories are logged and skipped. A missing root is an error
// satisfying errors.Is(err, fs.ErrNotExist).
func Walk(cfg Config) ([]FileInfo, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("walker: resolve root: %w", err)
	}
	st, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("walker: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("walker: %s: %w", root, ErrNotDirectory)
	}

	ignore := loadIgnore(filepath.Join(root, IgnoreFile))
	var files []FileInfo

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			logger.Warn("skipping unreadable path", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && shouldExcludeDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, ok := cfg.accept(root, path, ignore)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			logger.Warn("skipping file", "path", path, "error", err)
			return nil
		}
		cfg.fill(&fi, info.Size())
		files = append(files, fi)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walker: traversal: %w", err)
	}
	return files, nil
}

// accept applies extension, ignore-file and exclude filters.
func (cfg Config) accept(root, path string, ignore []string) (FileInfo, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return FileInfo{}, false
	}
	rel = filepath.ToSlash(rel)
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))

	if !allowedExt(ext, cfg.Extensions) {
		return FileInfo{}, false
	}
	if matchesIgnore(rel, ignore) || MatchesExclude(rel, cfg.Exclude) {
		return FileInfo{}, false
	}
	return FileInfo{Path: path, RelPath: rel, Name: name, Ext: ext}, true
}

// fill records the size of an accepted file and hashes it when asked.
// Hash failures surface later when the document is read.
func (cfg Config) fill(fi *FileInfo, size int64) {
	fi.Size = size
	if cfg.MaxFileSize > 0 && size > cfg.MaxFileSize {
		fi.Oversize = true
		return
	}
	if cfg.Hash {
		fi.ContentHash, _ = HashFile(fi.Path)
	}
}

func allowedExt(ext string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

// HashFile computes the SHA-256 digest of the given file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// loadIgnore reads an ignore file and returns its non-empty,
// non-comment lines as patterns.
func loadIgnore(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// matchesIgnore checks a slash-separated relative path against
// gitignore-style patterns. Patterns without a slash match any path
// component; a trailing slash restricts a pattern to directories.
func matchesIgnore(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	parts := strings.Split(rel, "/")
	for _, pattern := range patterns {
		dirOnly := strings.HasSuffix(pattern, "/")
		pattern = strings.TrimSuffix(pattern, "/")

		if strings.Contains(pattern, "/") {
			if matched, _ := filepath.Match(strings.TrimPrefix(pattern, "/"), rel); matched {
				return true
			}
			continue
		}
		components := parts
		if dirOnly {
			components = parts[:len(parts)-1]
		}
		for _, part := range components {
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}
