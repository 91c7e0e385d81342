package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a job run ID does not exist
var ErrRunNotFound = errors.New("job run not found")

// Status represents the state of a job run
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one recorded invocation of a scheduled processor. A run that stays
// `running` past the job's expected duration signals a stuck or crashed job.
type Run struct {
	ID          uuid.UUID      `json:"id"`
	JobName     string         `json:"job_name"`
	Status      Status         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Ledger records the start, progress and completion of job runs
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a new Ledger
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// EnsureSchema creates the job_runs table if it does not exist
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS job_runs (
			id UUID PRIMARY KEY,
			job_name VARCHAR(100) NOT NULL,
			status VARCHAR(20) NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			details JSONB,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_started ON job_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_name ON job_runs(job_name)`,
	}
	for _, stmt := range statements {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure job_runs schema: %w", err)
		}
	}
	return nil
}

// Start records a new running job and returns its ID
func (l *Ledger) Start(ctx context.Context, jobName string, details map[string]any) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()

	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return uuid.Nil, err
	}

	query := `INSERT INTO job_runs (id, job_name, status, started_at, details, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := l.db.ExecContext(ctx, query, id, jobName, StatusRunning, now, detailsJSON, now); err != nil {
		return uuid.Nil, fmt.Errorf("failed to start job run: %w", err)
	}
	return id, nil
}

// Update merges partial details into a run's existing details. Existing keys
// not present in the partial are preserved.
func (l *Ledger) Update(ctx context.Context, id uuid.UUID, partial map[string]any) error {
	return l.mergeDetails(ctx, id, partial, nil, nil)
}

// Complete marks a run completed, merging any final details
func (l *Ledger) Complete(ctx context.Context, id uuid.UUID, details map[string]any) error {
	status := StatusCompleted
	now := time.Now().UTC()
	return l.mergeDetails(ctx, id, details, &status, &now)
}

// Fail marks a run failed, recording the error in its details
func (l *Ledger) Fail(ctx context.Context, id uuid.UUID, jobErr error, details map[string]any) error {
	merged := make(map[string]any, len(details)+1)
	for k, v := range details {
		merged[k] = v
	}
	if jobErr != nil {
		merged["error"] = jobErr.Error()
	}
	status := StatusFailed
	now := time.Now().UTC()
	return l.mergeDetails(ctx, id, merged, &status, &now)
}

// mergeDetails reads the stored details, merges the partial on top and writes
// the result back, all inside one transaction so concurrent progress updates
// do not lose keys.
func (l *Ledger) mergeDetails(ctx context.Context, id uuid.UUID, partial map[string]any, status *Status, completedAt *time.Time) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stored []byte
	if err := tx.QueryRowContext(ctx,
		`SELECT details FROM job_runs WHERE id = $1`, id).Scan(&stored); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("job run %s not found", id)
		}
		return fmt.Errorf("failed to read job run details: %w", err)
	}

	details := map[string]any{}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &details); err != nil {
			return fmt.Errorf("failed to decode job run details: %w", err)
		}
	}
	for k, v := range partial {
		details[k] = v
	}

	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if status != nil {
		var completed sql.NullTime
		if completedAt != nil {
			completed = sql.NullTime{Time: *completedAt, Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE job_runs SET details = $1, status = $2, completed_at = $3, updated_at = $4 WHERE id = $5`,
			detailsJSON, *status, completed, now, id)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE job_runs SET details = $1, updated_at = $2 WHERE id = $3`,
			detailsJSON, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update job run: %w", err)
	}

	return tx.Commit()
}

// Get retrieves a job run by ID
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `SELECT id, job_name, status, started_at, completed_at, details
		FROM job_runs WHERE id = $1`
	run, err := scanRun(l.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job run: %w", err)
	}
	return run, nil
}

// List returns job runs newest first
func (l *Ledger) List(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `SELECT id, job_name, status, started_at, completed_at, details
		FROM job_runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`
	rows, err := l.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*Run, error) {
	run := &Run{}
	var completed sql.NullTime
	var details []byte
	if err := sc.Scan(&run.ID, &run.JobName, &run.Status, &run.StartedAt, &completed, &details); err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &run.Details); err != nil {
			return nil, fmt.Errorf("failed to decode job run details: %w", err)
		}
	}
	return run, nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job run details: %w", err)
	}
	return b, nil
}
