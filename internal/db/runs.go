package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a batch run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one batch invocation over a root directory.
type Run struct {
	ID         string
	Root       string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Failed     int
	Status     RunStatus
}

// StartRun records a new running batch over root and returns its ID.
func (s *RecordStore) StartRun(ctx context.Context, root string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, root, started_at, status) VALUES (?, ?, ?, ?)`,
		id, root, s.now().UTC().Format(time.RFC3339Nano), string(RunRunning),
	)
	if err != nil {
		return "", fmt.Errorf("starting run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run with its final counts. A run whose batch was
// aborted (aborted=true) is marked failed.
func (s *RecordStore) FinishRun(ctx context.Context, id string, processed, failed int, aborted bool) error {
	status := RunCompleted
	if aborted {
		status = RunFailed
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, processed = ?, failed = ?, status = ?
		WHERE id = ?`,
		s.now().UTC().Format(time.RFC3339Nano), processed, failed, string(status), id,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: no such run", id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *RecordStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, root, started_at, finished_at, processed, failed, status
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return run, err
}

// RecentRuns returns up to limit runs, newest first.
func (s *RecordStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, root, started_at, finished_at, processed, failed, status
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
		status     string
	)
	if err := sc.Scan(&run.ID, &run.Root, &startedAt, &finishedAt, &run.Processed, &run.Failed, &status); err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTime(finishedAt.String)
	}
	run.Status = RunStatus(status)
	return &run, nil
}
