package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/domain"

	"github.com/google/uuid"
)

var ErrDataRequestNotFound = errors.New("data request not found")

// DataRequestRepository defines the interface for GDPR request data access
type DataRequestRepository interface {
	Create(ctx context.Context, request *domain.DataRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.DataRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.DataRequest, error)
	List(ctx context.Context, status *domain.DataRequestStatus) ([]*domain.DataRequest, error)
	HasOpenRequest(ctx context.Context, userID uuid.UUID, reqType domain.DataRequestType) (bool, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, filePath *string, expiresAt *time.Time, notes string) error
	MarkRejected(ctx context.Context, id uuid.UUID, notes string) error
	MarkExpired(ctx context.Context, id uuid.UUID) error
	ListOverdue(ctx context.Context, olderThan time.Time) ([]*domain.DataRequest, error)
	ListExpiredExports(ctx context.Context, now time.Time) ([]*domain.DataRequest, error)
}

type dataRequestRepository struct {
	db DBTX
}

// NewDataRequestRepository creates a new instance of DataRequestRepository
func NewDataRequestRepository(db DBTX) DataRequestRepository {
	return &dataRequestRepository{db: db}
}

const dataRequestColumns = `id, user_id, type, status, reason, admin_notes, file_path, requested_at, processed_at, expires_at`

// Create inserts a new pending data request
func (r *dataRequestRepository) Create(ctx context.Context, request *domain.DataRequest) error {
	query := `
		INSERT INTO data_requests (id, user_id, type, status, reason, admin_notes, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		request.ID,
		request.UserID,
		request.Type,
		request.Status,
		request.Reason,
		request.AdminNotes,
		request.RequestedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create data request: %w", err)
	}

	return nil
}

// FindByID retrieves a data request by ID
func (r *dataRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.DataRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM data_requests WHERE id = $1`, dataRequestColumns)

	request := &domain.DataRequest{}
	if err := scanDataRequest(r.db.QueryRowContext(ctx, query, id).Scan, request); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDataRequestNotFound
		}
		return nil, fmt.Errorf("failed to find data request: %w", err)
	}

	return request, nil
}

// ListByUser retrieves all of a user's data requests, newest first
func (r *dataRequestRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.DataRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM data_requests
		WHERE user_id = $1
		ORDER BY requested_at DESC
	`, dataRequestColumns)

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list data requests: %w", err)
	}
	defer rows.Close()

	return collectDataRequests(rows)
}

// List retrieves data requests with an optional status filter (admin view)
func (r *dataRequestRepository) List(ctx context.Context, status *domain.DataRequestStatus) ([]*domain.DataRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM data_requests ORDER BY requested_at DESC`, dataRequestColumns)
	args := []interface{}{}

	if status != nil {
		query = fmt.Sprintf(`
			SELECT %s FROM data_requests
			WHERE status = $1
			ORDER BY requested_at DESC
		`, dataRequestColumns)
		args = append(args, *status)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list data requests: %w", err)
	}
	defer rows.Close()

	return collectDataRequests(rows)
}

// HasOpenRequest reports whether the user already has a pending or
// processing request of the given type.
func (r *dataRequestRepository) HasOpenRequest(ctx context.Context, userID uuid.UUID, reqType domain.DataRequestType) (bool, error) {
	query := `
		SELECT COUNT(*) FROM data_requests
		WHERE user_id = $1 AND type = $2 AND status IN ('pending', 'processing')
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, reqType).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check open requests: %w", err)
	}

	return count > 0, nil
}

// MarkProcessing moves a pending request to processing. The status guard
// keeps two workers from picking up the same request.
func (r *dataRequestRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE data_requests SET status = 'processing'
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark data request processing: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDataRequestNotFound
	}

	return nil
}

// MarkCompleted finishes a request, recording the export file and its
// download expiry when present.
func (r *dataRequestRepository) MarkCompleted(ctx context.Context, id uuid.UUID, filePath *string, expiresAt *time.Time, notes string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE data_requests
		SET status = 'completed', file_path = $2, expires_at = $3, admin_notes = $4, processed_at = NOW()
		WHERE id = $1
	`, id, filePath, expiresAt, notes)
	if err != nil {
		return fmt.Errorf("failed to mark data request completed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDataRequestNotFound
	}

	return nil
}

// MarkRejected terminally fails a request with an explanation
func (r *dataRequestRepository) MarkRejected(ctx context.Context, id uuid.UUID, notes string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE data_requests
		SET status = 'rejected', admin_notes = $2, processed_at = NOW()
		WHERE id = $1
	`, id, notes)
	if err != nil {
		return fmt.Errorf("failed to mark data request rejected: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDataRequestNotFound
	}

	return nil
}

// MarkExpired clears the stored file reference after cleanup removed it
func (r *dataRequestRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE data_requests
		SET status = 'expired', file_path = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark data request expired: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDataRequestNotFound
	}

	return nil
}

// ListOverdue retrieves pending requests submitted before the cutoff
func (r *dataRequestRepository) ListOverdue(ctx context.Context, olderThan time.Time) ([]*domain.DataRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM data_requests
		WHERE status = 'pending' AND requested_at < $1
		ORDER BY requested_at ASC
	`, dataRequestColumns)

	rows, err := r.db.QueryContext(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue requests: %w", err)
	}
	defer rows.Close()

	return collectDataRequests(rows)
}

// ListExpiredExports retrieves completed requests whose download window
// has passed and whose file has not been cleaned up yet.
func (r *dataRequestRepository) ListExpiredExports(ctx context.Context, now time.Time) ([]*domain.DataRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM data_requests
		WHERE status = 'completed' AND file_path IS NOT NULL AND expires_at < $1
		ORDER BY expires_at ASC
	`, dataRequestColumns)

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired exports: %w", err)
	}
	defer rows.Close()

	return collectDataRequests(rows)
}

func scanDataRequest(scan func(dest ...any) error, request *domain.DataRequest) error {
	return scan(
		&request.ID,
		&request.UserID,
		&request.Type,
		&request.Status,
		&request.Reason,
		&request.AdminNotes,
		&request.FilePath,
		&request.RequestedAt,
		&request.ProcessedAt,
		&request.ExpiresAt,
	)
}

func collectDataRequests(rows *sql.Rows) ([]*domain.DataRequest, error) {
	requests := []*domain.DataRequest{}
	for rows.Next() {
		request := &domain.DataRequest{}
		if err := scanDataRequest(rows.Scan, request); err != nil {
			return nil, fmt.Errorf("failed to scan data request: %w", err)
		}
		requests = append(requests, request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data requests: %w", err)
	}

	return requests, nil
}
