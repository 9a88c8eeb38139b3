// Package jobstore persists asynchronous render jobs and their encoded
// images in SQLite.
package jobstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoResult is returned by GetResult when a job has not stored an image.
var ErrNoResult = errors.New("jobstore: no result")

// JobStatus represents the current state of a render job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Finished reports whether the status is terminal.
func (s JobStatus) Finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobProgress reports how far a render got.
type JobProgress struct {
	Phase string `json:"phase"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// RenderJob is one queued heat map render. Params holds the render request
// as submitted; the store does not interpret it.
type RenderJob struct {
	ID         string          `json:"job_id"`
	DatasetID  string          `json:"dataset_id"`
	Status     JobStatus       `json:"status"`
	Format     string          `json:"format"`
	Params     json.RawMessage `json:"params"`
	Progress   JobProgress     `json:"progress"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Result is the encoded image of a completed job.
type Result struct {
	ContentType string
	Data        []byte
}

// Store provides persistent storage for render jobs using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (creating if needed) the job database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS render_jobs (
		job_id TEXT PRIMARY KEY,
		dataset_id TEXT NOT NULL,
		status TEXT NOT NULL,
		format TEXT NOT NULL,
		params_json TEXT NOT NULL,
		phase TEXT DEFAULT '',
		done INTEGER DEFAULT 0,
		total INTEGER DEFAULT 0,
		width INTEGER DEFAULT 0,
		height INTEGER DEFAULT 0,
		error TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_render_jobs_dataset ON render_jobs(dataset_id);
	CREATE INDEX IF NOT EXISTS idx_render_jobs_status ON render_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_render_jobs_finished ON render_jobs(finished_at);

	CREATE TABLE IF NOT EXISTS render_results (
		job_id TEXT PRIMARY KEY,
		content_type TEXT NOT NULL,
		image BLOB NOT NULL,
		FOREIGN KEY (job_id) REFERENCES render_jobs(job_id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const jobColumns = `job_id, dataset_id, status, format, params_json, phase, done, total, width, height, error, created_at, started_at, finished_at`

// CreateJob creates a new job record.
func (s *Store) CreateJob(job *RenderJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params := job.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	_, err := s.db.Exec(`
		INSERT INTO render_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.DatasetID,
		string(job.Status),
		job.Format,
		string(params),
		job.Progress.Phase,
		job.Progress.Done,
		job.Progress.Total,
		job.Width,
		job.Height,
		job.Error,
		job.CreatedAt.Format(time.RFC3339),
		nil,
		nil,
	)
	return err
}

// GetJob retrieves a job by ID. A missing job yields (nil, nil).
func (s *Store) GetJob(jobID string) (*RenderJob, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM render_jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// UpdateJobStatus sets status and error. Terminal states also stamp
// finished_at.
func (s *Store) UpdateJobStatus(jobID string, status JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finishedAt *string
	if status.Finished() {
		t := time.Now().Format(time.RFC3339)
		finishedAt = &t
	}

	_, err := s.db.Exec(`
		UPDATE render_jobs SET status = ?, error = ?, finished_at = COALESCE(?, finished_at)
		WHERE job_id = ?
	`, string(status), errMsg, finishedAt, jobID)
	return err
}

// UpdateJobStarted marks a queued job as running. It reports false when the
// job was no longer queued, e.g. cancelled while waiting.
func (s *Store) UpdateJobStarted(jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE render_jobs SET status = ?, started_at = ?
		WHERE job_id = ? AND status = ?
	`, string(JobStatusRunning), now, jobID, string(JobStatusQueued))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RequeueJob puts a running job back in the queue, clearing its start time
// and progress. It reports false when the job was not running.
func (s *Store) RequeueJob(jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE render_jobs SET status = ?, started_at = NULL, phase = '', done = 0, total = 0
		WHERE job_id = ? AND status = ?
	`, string(JobStatusQueued), jobID, string(JobStatusRunning))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateJobProgress updates the progress fields.
func (s *Store) UpdateJobProgress(jobID string, phase string, done, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE render_jobs SET phase = ?, done = ?, total = ?
		WHERE job_id = ?
	`, phase, done, total, jobID)
	return err
}

// SaveResult stores the encoded image of a job together with its size.
func (s *Store) SaveResult(jobID, contentType string, data []byte, width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO render_results (job_id, content_type, image) VALUES (?, ?, ?)
	`, jobID, contentType, data); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		UPDATE render_jobs SET width = ?, height = ? WHERE job_id = ?
	`, width, height, jobID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetResult returns the stored image of a job, or ErrNoResult.
func (s *Store) GetResult(jobID string) (*Result, error) {
	var r Result
	err := s.db.QueryRow(`
		SELECT content_type, image FROM render_results WHERE job_id = ?
	`, jobID).Scan(&r.ContentType, &r.Data)
	if err == sql.ErrNoRows {
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListJobsByDataset returns the jobs of a dataset, newest first.
func (s *Store) ListJobsByDataset(datasetID string) ([]*RenderJob, error) {
	rows, err := s.db.Query(`
		SELECT `+jobColumns+`
		FROM render_jobs WHERE dataset_id = ? ORDER BY created_at DESC
	`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListQueuedJobs returns queued jobs, oldest first.
func (s *Store) ListQueuedJobs() ([]*RenderJob, error) {
	rows, err := s.db.Query(`
		SELECT `+jobColumns+`
		FROM render_jobs WHERE status = ? ORDER BY created_at ASC
	`, string(JobStatusQueued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// MarkRunningAsFailed fails every running job. Used on startup, when no job
// can still be running.
func (s *Store) MarkRunningAsFailed(errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE render_jobs SET status = ?, error = ?, finished_at = ?
		WHERE status = ?
	`, string(JobStatusFailed), errMsg, now, string(JobStatusRunning))
	return err
}

// DeleteExpiredJobs removes jobs that finished more than retention ago.
func (s *Store) DeleteExpiredJobs(retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention).Format(time.RFC3339)

	// Delete results first (foreign key)
	_, err := s.db.Exec(`
		DELETE FROM render_results WHERE job_id IN (
			SELECT job_id FROM render_jobs WHERE finished_at IS NOT NULL AND finished_at < ?
		)
	`, cutoff)
	if err != nil {
		return 0, err
	}

	result, err := s.db.Exec(`
		DELETE FROM render_jobs WHERE finished_at IS NOT NULL AND finished_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// DeleteJob deletes a job and its result.
func (s *Store) DeleteJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM render_results WHERE job_id = ?`, jobID); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM render_jobs WHERE job_id = ?`, jobID)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*RenderJob, error) {
	var job RenderJob
	var paramsJSON string
	var createdAtStr string
	var startedAtStr, finishedAtStr sql.NullString

	err := row.Scan(
		&job.ID,
		&job.DatasetID,
		&job.Status,
		&job.Format,
		&paramsJSON,
		&job.Progress.Phase,
		&job.Progress.Done,
		&job.Progress.Total,
		&job.Width,
		&job.Height,
		&job.Error,
		&createdAtStr,
		&startedAtStr,
		&finishedAtStr,
	)
	if err != nil {
		return nil, err
	}

	job.Params = json.RawMessage(paramsJSON)
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	if startedAtStr.Valid {
		t, _ := time.Parse(time.RFC3339, startedAtStr.String)
		job.StartedAt = &t
	}
	if finishedAtStr.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAtStr.String)
		job.FinishedAt = &t
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*RenderJob, error) {
	var jobs []*RenderJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
