package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/record"
)

// ErrRecordNotFound is returned by GetRecord for an unknown filename.
var ErrRecordNotFound = errors.New("record not found")

// StoredRecord is a processing record as persisted, with bookkeeping.
type StoredRecord struct {
	record.ProcessingRecord
	ContentHash string
	RunID       string
	UpdatedAt   time.Time
}

// RecordStore persists processing records keyed by filename.
type RecordStore struct {
	db  *DB
	now func() time.Time
}

// NewRecordStore creates a RecordStore backed by the given database.
func NewRecordStore(database *DB) *RecordStore {
	return &RecordStore{db: database, now: time.Now}
}

// UpsertRecord inserts rec, replacing any existing row with the same filename.
func (s *RecordStore) UpsertRecord(ctx context.Context, rec record.ProcessingRecord, contentHash, runID string) error {
	if rec.Filename == "" {
		return fmt.Errorf("upserting record: empty filename")
	}
	entities, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshalling entities for %s: %w", rec.Filename, err)
	}
	order, err := json.Marshal(rec.FieldOrder)
	if err != nil {
		return fmt.Errorf("marshalling field order for %s: %w", rec.Filename, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (
			filename, path, label, confidence, text, entities,
			field_order, content_hash, run_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			path = excluded.path,
			label = excluded.label,
			confidence = excluded.confidence,
			text = excluded.text,
			entities = excluded.entities,
			field_order = excluded.field_order,
			content_hash = excluded.content_hash,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at`,
		rec.Filename,
		rec.Path,
		rec.Label.String(),
		rec.Confidence,
		rec.Text,
		string(entities),
		string(order),
		contentHash,
		runID,
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting record %s: %w", rec.Filename, err)
	}
	return nil
}

// GetRecord retrieves the record stored under filename.
func (s *RecordStore) GetRecord(ctx context.Context, filename string) (*StoredRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT filename, path, label, confidence, text, entities,
			   field_order, content_hash, run_id, updated_at
		FROM records WHERE filename = ?`, filename)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, filename)
	}
	return rec, err
}

// DeleteRecord removes the record stored under filename. An unknown
// filename returns ErrRecordNotFound.
func (s *RecordStore) DeleteRecord(ctx context.Context, filename string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE filename = ?`, filename)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", filename, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, filename)
	}
	return nil
}

// ListFilter controls which records ListRecords returns.
type ListFilter struct {
	Label  string
	RunID  string
	Limit  int
	Offset int
}

// ListRecords returns records ordered by filename.
func (s *RecordStore) ListRecords(ctx context.Context, filter ListFilter) ([]StoredRecord, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Label != "" {
		clauses = append(clauses, "label = ?")
		args = append(args, filter.Label)
	}
	if filter.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, filter.RunID)
	}

	query := `SELECT filename, path, label, confidence, text, entities,
			   field_order, content_hash, run_id, updated_at
		FROM records`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY filename"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ContentHash returns the stored content hash for filename, or "" when
// no record exists.
func (s *RecordStore) ContentHash(ctx context.Context, filename string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT content_hash FROM records WHERE filename = ?`, filename).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading content hash for %s: %w", filename, err)
	}
	return hash, nil
}

// CountByLabel returns the number of stored records per label.
func (s *RecordStore) CountByLabel(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, COUNT(*) FROM records GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*StoredRecord, error) {
	var (
		rec                    StoredRecord
		label, entities, order string
		updatedAt              string
	)
	err := sc.Scan(
		&rec.Filename, &rec.Path, &label, &rec.Confidence, &rec.Text, &entities,
		&order, &rec.ContentHash, &rec.RunID, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Label, err = doctype.Parse(label)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.Filename, err)
	}
	if err := json.Unmarshal([]byte(entities), &rec.Fields); err != nil {
		return nil, fmt.Errorf("record %s: decoding entities: %w", rec.Filename, err)
	}
	if err := json.Unmarshal([]byte(order), &rec.FieldOrder); err != nil {
		return nil, fmt.Errorf("record %s: decoding field order: %w", rec.Filename, err)
	}
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.DateTime, s); err == nil {
		return t
	}
	return time.Time{}
}
