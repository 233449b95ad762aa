package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusSuccess   = "success"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// Trigger types
const (
	TriggerManual = "manual"
	TriggerCron   = "cron"
)

// RunRecord is one reconciliation run as persisted in the history DB
type RunRecord struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	TriggerType        string     `json:"trigger_type"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	PlaylistsProcessed int        `json:"playlists_processed"`
	SongsDownloaded    int        `json:"songs_downloaded"`
	SongsRelocated     int        `json:"songs_relocated"`
	SongsSkipped       int        `json:"songs_skipped"`
	SongsFailed        int        `json:"songs_failed"`
	SummaryPath        string     `json:"summary_path,omitempty"`
}

// RunError is one persisted per-entry failure
type RunError struct {
	RunID      string `json:"run_id"`
	SourceName string `json:"source_name"`
	VideoID    string `json:"video_id"`
	Title      string `json:"title"`
	ErrorType  string `json:"error_type"`
	Message    string `json:"message"`
}

// RunStore persists run history
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new run store
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Add inserts a freshly started run
func (rs *RunStore) Add(run *RunRecord) error {
	query := `
		INSERT INTO runs (id, status, trigger_type, started_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := rs.db.Exec(query, run.ID, run.Status, run.TriggerType, run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to add run: %w", err)
	}
	return nil
}

// Complete writes the final state and counters of a run
func (rs *RunStore) Complete(run *RunRecord) error {
	query := `
		UPDATE runs
		SET status = ?, completed_at = ?,
		    playlists_processed = ?, songs_downloaded = ?, songs_relocated = ?,
		    songs_skipped = ?, songs_failed = ?, summary_path = ?
		WHERE id = ?
	`
	result, err := rs.db.Exec(query,
		run.Status, run.CompletedAt,
		run.PlaylistsProcessed, run.SongsDownloaded, run.SongsRelocated,
		run.SongsSkipped, run.SongsFailed, run.SummaryPath,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}
	return nil
}

// GetByID retrieves a run by its id
func (rs *RunStore) GetByID(id string) (*RunRecord, error) {
	query := `
		SELECT id, status, trigger_type, started_at, completed_at,
		       playlists_processed, songs_downloaded, songs_relocated,
		       songs_skipped, songs_failed, COALESCE(summary_path, '')
		FROM runs
		WHERE id = ?
	`
	run, err := scanRun(rs.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs, newest first
func (rs *RunStore) List(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, status, trigger_type, started_at, completed_at,
		       playlists_processed, songs_downloaded, songs_relocated,
		       songs_skipped, songs_failed, COALESCE(summary_path, '')
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := rs.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastRun returns the most recently started run, or nil when the
// history is empty.
func (rs *RunStore) LastRun() (*RunRecord, error) {
	runs, err := rs.List(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// AddErrors persists the per-entry failures of a run in one transaction
func (rs *RunStore) AddErrors(runID string, errs []RunError) error {
	if len(errs) == 0 {
		return nil
	}

	tx, err := rs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_errors (run_id, source_name, video_id, title, error_type, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range errs {
		if _, err := stmt.Exec(runID, e.SourceName, e.VideoID, e.Title, e.ErrorType, e.Message); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert run error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run errors: %w", err)
	}
	return nil
}

// GetErrors returns all persisted failures of a run
func (rs *RunStore) GetErrors(runID string) ([]RunError, error) {
	query := `
		SELECT run_id, COALESCE(source_name, ''), COALESCE(video_id, ''),
		       COALESCE(title, ''), error_type, message
		FROM run_errors
		WHERE run_id = ?
		ORDER BY id
	`
	rows, err := rs.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run errors: %w", err)
	}
	defer rows.Close()

	var errs []RunError
	for rows.Next() {
		var e RunError
		if err := rows.Scan(&e.RunID, &e.SourceName, &e.VideoID, &e.Title, &e.ErrorType, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan run error: %w", err)
		}
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// Prune deletes runs older than the cutoff together with their errors
func (rs *RunStore) Prune(olderThan time.Time) (int64, error) {
	result, err := rs.db.Exec("DELETE FROM runs WHERE started_at < ?", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return result.RowsAffected()
}

// GetDB returns the underlying database connection
func (rs *RunStore) GetDB() *sql.DB {
	return rs.db
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var run RunRecord
	var completedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.Status, &run.TriggerType, &run.StartedAt, &completedAt,
		&run.PlaylistsProcessed, &run.SongsDownloaded, &run.SongsRelocated,
		&run.SongsSkipped, &run.SongsFailed, &run.SummaryPath,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}
