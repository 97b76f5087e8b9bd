package index

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// File names inside an index directory.
const (
	BlobFile     = "index.bin"
	LabelsFile   = "labels.json"
	ManifestFile = "manifest.json"
)

var blobMagic = [4]byte{'D', 'I', 'X', '1'}

// Manifest describes how a persisted index was built.
type Manifest struct {
	Embedder      string      `json:"embedder"`
	Dim           int         `json:"dim"`
	Count         int         `json:"count"`
	SchemaVersion int         `json:"schema_version"`
	BlobSHA256    string      `json:"blob_sha256"`
	LabelsSHA256  string      `json:"labels_sha256"`
	BuiltAt       time.Time   `json:"built_at"`
	Report        BuildReport `json:"report"`
}

// Exists reports whether both the blob and the label list are present in dir.
func Exists(dir string) bool {
	return fileExists(filepath.Join(dir, BlobFile)) && fileExists(filepath.Join(dir, LabelsFile))
}

// MarshalBinary encodes the vectors as: magic, dim(uint32), n(uint32),
// then n*dim little-endian float32 values.
func (x *Index) MarshalBinary() ([]byte, error) {
	n := x.Len()
	out := make([]byte, 12, 12+4*len(x.data))
	copy(out[0:4], blobMagic[:])
	binary.LittleEndian.PutUint32(out[4:8], uint32(x.dim))
	binary.LittleEndian.PutUint32(out[8:12], uint32(n))
	var b [4]byte
	for _, v := range x.data {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		out = append(out, b[:]...)
	}
	return out, nil
}

// decodeBlob restores the vector payload. Labels are attached separately.
func decodeBlob(data []byte) (dim, n int, vecs []float32, err error) {
	if len(data) < 12 {
		return 0, 0, nil, errors.New("blob too short")
	}
	if [4]byte(data[0:4]) != blobMagic {
		return 0, 0, nil, errors.New("bad magic")
	}
	dim = int(binary.LittleEndian.Uint32(data[4:8]))
	n = int(binary.LittleEndian.Uint32(data[8:12]))
	if n > 0 && dim == 0 {
		return 0, 0, nil, errors.New("zero dimension with vectors present")
	}
	payload := len(data) - 12
	if n > 0 && dim > payload/4/n {
		return 0, 0, nil, fmt.Errorf("header implies %d vectors of dimension %d, blob holds %d bytes", n, dim, payload)
	}
	if want := 4 * dim * n; payload != want {
		return 0, 0, nil, fmt.Errorf("blob has %d payload bytes, header implies %d", payload, want)
	}
	vecs = make([]float32, dim*n)
	for i := range vecs {
		off := 12 + 4*i
		vecs[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
	}
	return dim, n, vecs, nil
}

// Persist writes the index to dir. The three files are written into a
// staging directory next to dir, which then replaces dir by rename, so a
// reader sees either the previous set or the new one. A crash between the
// two renames leaves dir absent, which the next LoadOrBuild rebuilds.
func (x *Index) Persist(dir string, m Manifest) (*Manifest, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("create index parent dir: %w", err)
	}

	blob, err := x.MarshalBinary()
	if err != nil {
		return nil, err
	}
	labels, err := json.Marshal(x.labels)
	if err != nil {
		return nil, fmt.Errorf("encode labels: %w", err)
	}
	if x.labels == nil {
		labels = []byte("[]")
	}

	m.Dim = x.dim
	m.Count = x.Len()
	m.BlobSHA256 = digest(blob)
	m.LabelsSHA256 = digest(labels)
	if m.BuiltAt.IsZero() {
		m.BuiltAt = time.Now().UTC()
	}
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	staging, err := os.MkdirTemp(filepath.Dir(dir), "."+filepath.Base(dir)+".staging-*")
	if err != nil {
		return nil, fmt.Errorf("create index staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	for _, f := range []struct {
		name string
		data []byte
	}{
		{BlobFile, blob},
		{LabelsFile, labels},
		{ManifestFile, manifest},
	} {
		if err := writeFileSync(filepath.Join(staging, f.name), f.data); err != nil {
			return nil, err
		}
	}
	if err := swapDir(staging, dir); err != nil {
		return nil, err
	}
	committed = true
	return &m, nil
}

// swapDir moves staging to dir, replacing any existing dir.
func swapDir(staging, dir string) error {
	var old string
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		old = staging + ".old"
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	}
	if err := os.Rename(staging, dir); err != nil {
		if old != "" {
			os.Rename(old, dir)
		}
		return fmt.Errorf("commit index %s: %w", dir, err)
	}
	if old != "" {
		os.RemoveAll(old)
	}
	return nil
}

// Load reads an index from dir. Any unreadable file, checksum mismatch, or
// label/vector count disagreement is reported as a *CorruptIndexError.
// The manifest is optional.
func Load(dir string) (*Index, *Manifest, error) {
	blobPath := filepath.Join(dir, BlobFile)
	labelsPath := filepath.Join(dir, LabelsFile)

	blob, err := os.ReadFile(blobPath)
	if err != nil {
		return nil, nil, &CorruptIndexError{Path: blobPath, Reason: "unreadable index blob", Err: err}
	}
	rawLabels, err := os.ReadFile(labelsPath)
	if err != nil {
		return nil, nil, &CorruptIndexError{Path: labelsPath, Reason: "unreadable label list", Err: err}
	}

	dim, n, vecs, err := decodeBlob(blob)
	if err != nil {
		return nil, nil, &CorruptIndexError{Path: blobPath, Reason: "invalid index blob", Err: err}
	}
	var labels []int
	if err := json.Unmarshal(rawLabels, &labels); err != nil {
		return nil, nil, &CorruptIndexError{Path: labelsPath, Reason: "invalid label list", Err: err}
	}
	if len(labels) != n {
		return nil, nil, &CorruptIndexError{
			Path:   dir,
			Reason: fmt.Sprintf("label count %d does not match vector count %d", len(labels), n),
		}
	}

	var manifest *Manifest
	manifestPath := filepath.Join(dir, ManifestFile)
	if raw, err := os.ReadFile(manifestPath); err == nil {
		var m Manifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, nil, &CorruptIndexError{Path: manifestPath, Reason: "invalid manifest", Err: err}
		}
		if m.BlobSHA256 != "" && m.BlobSHA256 != digest(blob) {
			return nil, nil, &CorruptIndexError{Path: blobPath, Reason: "checksum does not match manifest"}
		}
		if m.LabelsSHA256 != "" && m.LabelsSHA256 != digest(rawLabels) {
			return nil, nil, &CorruptIndexError{Path: labelsPath, Reason: "checksum does not match manifest"}
		}
		manifest = &m
	} else if !os.IsNotExist(err) {
		return nil, nil, &CorruptIndexError{Path: manifestPath, Reason: "unreadable manifest", Err: err}
	}

	return &Index{dim: dim, data: vecs, labels: labels}, manifest, nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
