package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ziadkadry99/docintake/internal/db"
	"github.com/ziadkadry99/docintake/internal/ocr"
	"github.com/ziadkadry99/docintake/internal/record"
	"github.com/ziadkadry99/docintake/internal/vectordb"
)

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	ext := ocr.Ext(header.Filename)
	if !ocr.Allowed(header.Filename, ocr.UploadExtensions) {
		writeError(w, http.StatusBadRequest, "unsupported file type "+strconv.Quote(ext))
		return
	}

	tmp, err := s.saveUpload(file, ext)
	if err != nil {
		s.logger.Error("saving upload failed", "file", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "cannot store upload")
		return
	}
	defer os.Remove(tmp)

	analysis, err := s.deps.Analyzer.Analyze(r.Context(), tmp, s.cfg.Policy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// saveUpload copies the upload to <uuid><ext> and returns its path.
func (s *Server) saveUpload(src io.Reader, ext string) (string, error) {
	dir := s.cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, uuid.New().String()+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

type recordResponse struct {
	Filename   string          `json:"filename"`
	Path       string          `json:"path,omitempty"`
	Type       string          `json:"document_type"`
	Confidence float64         `json:"confidence"`
	Entities   []record.Entity `json:"entities"`
	Text       string          `json:"raw_text"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	if s.deps.Records != nil {
		rec, err := s.deps.Records.GetRecord(r.Context(), filename)
		switch {
		case errors.Is(err, db.ErrRecordNotFound):
			writeError(w, http.StatusNotFound, "record not found")
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			updated := rec.UpdatedAt
			writeJSON(w, http.StatusOK, recordResponse{
				Filename:   rec.Filename,
				Path:       rec.Path,
				Type:       rec.Label.String(),
				Confidence: rec.Confidence,
				Entities:   rec.Entities(),
				Text:       rec.Text,
				UpdatedAt:  &updated,
			})
		}
		return
	}

	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "no record store configured")
		return
	}
	rec, err := s.deps.Store.Get(r.Context(), filename)
	if err != nil {
		if errors.Is(err, vectordb.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fromMetadata(rec))
}

// fromMetadata rebuilds a response from flat vector-store metadata.
func fromMetadata(rec vectordb.Record) recordResponse {
	resp := recordResponse{
		Filename: rec.Key,
		Type:     rec.Metadata[record.KeyType],
		Text:     rec.Text,
	}
	resp.Confidence, _ = strconv.ParseFloat(rec.Metadata[record.KeyConfidence], 64)
	for k, v := range rec.Metadata {
		if name, ok := strings.CutPrefix(k, record.EntityPrefix); ok {
			resp.Entities = append(resp.Entities, record.Entity{Name: name, Value: v})
		}
	}
	sortEntities(resp.Entities)
	return resp
}

type searchHit struct {
	Filename   string            `json:"filename"`
	Type       string            `json:"document_type"`
	Similarity float32           `json:"similarity"`
	Metadata   map[string]string `json:"metadata"`
	Snippet    string            `json:"snippet"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "no record store configured")
		return
	}
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit := 10
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	var filter *vectordb.SearchFilter
	if t := q.Get("type"); t != "" {
		filter = &vectordb.SearchFilter{Type: t}
	}

	results, err := s.deps.Store.Search(r.Context(), query, limit, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	hits := make([]searchHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, searchHit{
			Filename:   res.Record.Key,
			Type:       res.Record.Metadata[record.KeyType],
			Similarity: res.Similarity,
			Metadata:   res.Record.Metadata,
			Snippet:    snippet(res.Record.Text, 200),
		})
	}
	writeJSON(w, http.StatusOK, hits)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func sortEntities(es []record.Entity) {
	sort.Slice(es, func(i, j int) bool { return es[i].Name < es[j].Name })
}

func snippet(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "..."
}
