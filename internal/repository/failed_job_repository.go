package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FailedJob is a dead-lettered queue job kept for manual inspection.
type FailedJob struct {
	ID       uuid.UUID       `json:"id" db:"id"`
	JobType  string          `json:"job_type" db:"job_type"`
	Payload  json.RawMessage `json:"payload" db:"payload"`
	Error    string          `json:"error" db:"error"`
	Attempts int             `json:"attempts" db:"attempts"`
	FailedAt time.Time       `json:"failed_at" db:"failed_at"`
}

// FailedJobRepository is the dead-letter sink for the job queue
type FailedJobRepository interface {
	Insert(ctx context.Context, job *FailedJob) error
	List(ctx context.Context, jobType string, limit int) ([]*FailedJob, error)
	CountByType(ctx context.Context) (map[string]int, error)
	Clear(ctx context.Context) (int64, error)
}

type failedJobRepository struct {
	db DBTX
}

// NewFailedJobRepository creates a new instance of FailedJobRepository
func NewFailedJobRepository(db DBTX) FailedJobRepository {
	return &failedJobRepository{db: db}
}

// Insert records a terminally failed job
func (r *failedJobRepository) Insert(ctx context.Context, job *FailedJob) error {
	query := `
		INSERT INTO failed_jobs (id, job_type, payload, error, attempts, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query, job.ID, job.JobType, job.Payload, job.Error, job.Attempts, job.FailedAt)
	if err != nil {
		return fmt.Errorf("failed to insert failed job: %w", err)
	}

	return nil
}

// List retrieves recent failed jobs, optionally filtered by type
func (r *failedJobRepository) List(ctx context.Context, jobType string, limit int) ([]*FailedJob, error) {
	query := `
		SELECT id, job_type, payload, error, attempts, failed_at
		FROM failed_jobs
		ORDER BY failed_at DESC
		LIMIT $1
	`
	args := []interface{}{limit}

	if jobType != "" {
		query = `
			SELECT id, job_type, payload, error, attempts, failed_at
			FROM failed_jobs
			WHERE job_type = $2
			ORDER BY failed_at DESC
			LIMIT $1
		`
		args = append(args, jobType)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*FailedJob{}
	for rows.Next() {
		job := &FailedJob{}
		if err := rows.Scan(&job.ID, &job.JobType, &job.Payload, &job.Error, &job.Attempts, &job.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failed job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failed jobs: %w", err)
	}

	return jobs, nil
}

// CountByType returns failure counts grouped by job type
func (r *failedJobRepository) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT job_type, COUNT(*) FROM failed_jobs GROUP BY job_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count failed jobs: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var jobType string
		var count int
		if err := rows.Scan(&jobType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan failed job count: %w", err)
		}
		counts[jobType] = count
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failed job counts: %w", err)
	}

	return counts, nil
}

// Clear deletes all dead-lettered jobs and returns how many were removed
func (r *failedJobRepository) Clear(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear failed jobs: %w", err)
	}

	return result.RowsAffected()
}
