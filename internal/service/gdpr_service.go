package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/domain"
	"marketplace/internal/queue"
	"marketplace/internal/repository"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	ErrDuplicateDataRequest = errors.New("an open request of this type already exists")
	ErrInvalidRequestType   = errors.New("invalid data request type")
	ErrExportNotAvailable   = errors.New("export is not available for download")
)

// GDPRService defines the interface for data-lifecycle business logic
type GDPRService interface {
	Submit(ctx context.Context, userID uuid.UUID, reqType domain.DataRequestType, reason string) (*domain.DataRequest, error)
	ListMine(ctx context.Context, userID uuid.UUID) ([]*domain.DataRequest, error)
	ListAll(ctx context.Context, status *domain.DataRequestStatus) ([]*domain.DataRequest, error)
	Download(ctx context.Context, userID, requestID uuid.UUID) ([]byte, string, error)
	Process(ctx context.Context, requestID uuid.UUID) error
	Reject(ctx context.Context, requestID uuid.UUID, notes string) error
	OverdueRequests(ctx context.Context) ([]*domain.DataRequest, error)
	CleanupExpired(ctx context.Context) (int, error)
}

// exportBundle is the JSON document written for export and portability
// requests. Password hashes and tokens are never included.
type exportBundle struct {
	GeneratedAt time.Time        `json:"generated_at"`
	User        exportUser       `json:"user"`
	Orders      []*domain.Order  `json:"orders"`
	Requests    []*domain.DataRequest `json:"data_requests"`
}

type exportUser struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     *string   `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type gdprService struct {
	requestRepo repository.DataRequestRepository
	userRepo    repository.UserRepository
	orderRepo   repository.OrderRepository
	tokenRepo   repository.RefreshTokenRepository
	fs          afero.Fs
	cfg         config.GDPRConfig
	queue       *queue.Queue
	logger      *zap.Logger
}

// NewGDPRService creates a new instance of GDPRService. Export files
// are written through the given filesystem under cfg.StoragePath.
func NewGDPRService(
	requestRepo repository.DataRequestRepository,
	userRepo repository.UserRepository,
	orderRepo repository.OrderRepository,
	tokenRepo repository.RefreshTokenRepository,
	fs afero.Fs,
	cfg config.GDPRConfig,
	q *queue.Queue,
	logger *zap.Logger,
) GDPRService {
	return &gdprService{
		requestRepo: requestRepo,
		userRepo:    userRepo,
		orderRepo:   orderRepo,
		tokenRepo:   tokenRepo,
		fs:          fs,
		cfg:         cfg,
		queue:       q,
		logger:      logger,
	}
}

// Submit records a new data request and enqueues it for processing.
// Only one open (pending or processing) request per type per user.
func (s *gdprService) Submit(ctx context.Context, userID uuid.UUID, reqType domain.DataRequestType, reason string) (*domain.DataRequest, error) {
	if !domain.ValidDataRequestType(reqType) {
		return nil, ErrInvalidRequestType
	}

	open, err := s.requestRepo.HasOpenRequest(ctx, userID, reqType)
	if err != nil {
		return nil, fmt.Errorf("failed to check open requests: %w", err)
	}
	if open {
		return nil, ErrDuplicateDataRequest
	}

	request := &domain.DataRequest{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        reqType,
		Status:      domain.DataRequestPending,
		Reason:      reason,
		RequestedAt: time.Now(),
	}
	if err := s.requestRepo.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create data request: %w", err)
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, queue.TypeGDPRProcess, queue.GDPRProcessPayload{RequestID: request.ID}); err != nil {
			s.logger.Warn("failed to enqueue data request", zap.Error(err), zap.String("request_id", request.ID.String()))
		}
	}

	return request, nil
}

// ListMine returns the caller's data requests, newest first
func (s *gdprService) ListMine(ctx context.Context, userID uuid.UUID) ([]*domain.DataRequest, error) {
	return s.requestRepo.ListByUser(ctx, userID)
}

// ListAll returns all data requests, optionally filtered by status
func (s *gdprService) ListAll(ctx context.Context, status *domain.DataRequestStatus) ([]*domain.DataRequest, error) {
	return s.requestRepo.List(ctx, status)
}

// Download serves an export file to its owner while the download window
// is open. Non-owners get not-found, never forbidden.
func (s *gdprService) Download(ctx context.Context, userID, requestID uuid.UUID) ([]byte, string, error) {
	request, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, "", err
	}
	if request.UserID != userID {
		return nil, "", repository.ErrDataRequestNotFound
	}
	if !request.Downloadable(time.Now()) {
		return nil, "", ErrExportNotAvailable
	}

	data, err := afero.ReadFile(s.fs, *request.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read export file: %w", err)
	}
	return data, filepath.Base(*request.FilePath), nil
}

// Process executes a pending request. Export and portability write a
// JSON bundle with a 30-day download window; delete anonymizes the
// account and revokes its sessions; rectification completes with a note
// for manual follow-up.
func (s *gdprService) Process(ctx context.Context, requestID uuid.UUID) error {
	request, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.requestRepo.MarkProcessing(ctx, requestID); err != nil {
		return err
	}

	switch request.Type {
	case domain.DataRequestExport, domain.DataRequestPortability:
		return s.processExport(ctx, request)
	case domain.DataRequestDelete:
		return s.processDelete(ctx, request)
	case domain.DataRequestRectification:
		if err := s.requestRepo.MarkCompleted(ctx, request.ID, nil, nil,
			"rectification recorded; profile can be edited directly or via support"); err != nil {
			return err
		}
		if user, err := s.userRepo.FindByID(ctx, request.UserID); err == nil {
			s.notifyOutcome(ctx, request, user.Email, "completed")
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidRequestType, request.Type)
	}
}

func (s *gdprService) processExport(ctx context.Context, request *domain.DataRequest) error {
	user, err := s.userRepo.FindByID(ctx, request.UserID)
	if err != nil {
		return err
	}
	orders, err := s.orderRepo.ListByUserWithItems(ctx, request.UserID)
	if err != nil {
		return err
	}
	requests, err := s.requestRepo.ListByUser(ctx, request.UserID)
	if err != nil {
		return err
	}

	bundle := exportBundle{
		GeneratedAt: time.Now(),
		User: exportUser{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Phone:     user.Phone,
			Role:      user.Role,
			CreatedAt: user.CreatedAt,
		},
		Orders:   orders,
		Requests: requests,
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}

	if err := s.fs.MkdirAll(s.cfg.StoragePath, 0o750); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(s.cfg.StoragePath, fmt.Sprintf("%s-%s.json", request.Type, request.ID))
	if err := afero.WriteFile(s.fs, path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}

	expiresAt := time.Now().AddDate(0, 0, s.cfg.ExportExpiryDays)
	if err := s.requestRepo.MarkCompleted(ctx, request.ID, &path, &expiresAt, ""); err != nil {
		return err
	}

	s.notifyOutcome(ctx, request, user.Email, "completed")
	return nil
}

func (s *gdprService) processDelete(ctx context.Context, request *domain.DataRequest) error {
	// Grab the address before anonymization wipes it
	recipient := ""
	if user, err := s.userRepo.FindByID(ctx, request.UserID); err == nil {
		recipient = user.Email
	}

	if err := s.userRepo.Anonymize(ctx, request.UserID); err != nil {
		return err
	}
	if err := s.tokenRepo.RevokeAllForUser(ctx, request.UserID); err != nil {
		return err
	}
	if err := s.requestRepo.MarkCompleted(ctx, request.ID, nil, nil,
		"account anonymized; orders retained without personal data"); err != nil {
		return err
	}

	s.notifyOutcome(ctx, request, recipient, "completed")
	return nil
}

// Reject marks a request rejected with an explanatory note and tells
// the requester.
func (s *gdprService) Reject(ctx context.Context, requestID uuid.UUID, notes string) error {
	request, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return err
	}
	if err := s.requestRepo.MarkRejected(ctx, requestID, notes); err != nil {
		return err
	}

	if user, err := s.userRepo.FindByID(ctx, request.UserID); err == nil {
		s.notifyOutcome(ctx, request, user.Email, "rejected")
	}
	return nil
}

// notifyOutcome enqueues the mail telling the requester how their data
// request ended. Best effort; the request state is already persisted.
func (s *gdprService) notifyOutcome(ctx context.Context, request *domain.DataRequest, recipient, outcome string) {
	if s.queue == nil {
		return
	}

	err := s.queue.Enqueue(ctx, queue.TypeNotification, queue.NotificationPayload{
		Channel:   "mail",
		Recipient: recipient,
		Subject:   fmt.Sprintf("Data request %s", outcome),
		Body:      fmt.Sprintf("Your %s request has been %s", request.Type, outcome),
		Metadata: map[string]string{
			"request_id": request.ID.String(),
			"user_id":    request.UserID.String(),
		},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue data request notification", zap.Error(err))
	}
}

// OverdueRequests returns open requests older than the compliance window
func (s *gdprService) OverdueRequests(ctx context.Context) ([]*domain.DataRequest, error) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.OverdueDays)
	return s.requestRepo.ListOverdue(ctx, cutoff)
}

// CleanupExpired removes export files whose download window has passed
// and marks their requests expired. Returns the number cleaned.
func (s *gdprService) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := s.requestRepo.ListExpiredExports(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, request := range expired {
		if request.FilePath != nil {
			if err := s.fs.Remove(*request.FilePath); err != nil {
				s.logger.Warn("failed to remove expired export",
					zap.String("path", *request.FilePath), zap.Error(err))
			}
		}
		if err := s.requestRepo.MarkExpired(ctx, request.ID); err != nil {
			return cleaned, err
		}
		cleaned++
	}
	return cleaned, nil
}
