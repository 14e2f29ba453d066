package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/domain"
	"marketplace/internal/queue"
	"marketplace/internal/repository"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type mockDataRequestRepository struct {
	requests map[uuid.UUID]*domain.DataRequest
}

func newMockDataRequestRepository() *mockDataRequestRepository {
	return &mockDataRequestRepository{requests: make(map[uuid.UUID]*domain.DataRequest)}
}

func (m *mockDataRequestRepository) Create(ctx context.Context, request *domain.DataRequest) error {
	clone := *request
	m.requests[request.ID] = &clone
	return nil
}

func (m *mockDataRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.DataRequest, error) {
	request, ok := m.requests[id]
	if !ok {
		return nil, repository.ErrDataRequestNotFound
	}
	clone := *request
	return &clone, nil
}

func (m *mockDataRequestRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.DataRequest, error) {
	var out []*domain.DataRequest
	for _, r := range m.requests {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockDataRequestRepository) List(ctx context.Context, status *domain.DataRequestStatus) ([]*domain.DataRequest, error) {
	var out []*domain.DataRequest
	for _, r := range m.requests {
		if status == nil || r.Status == *status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockDataRequestRepository) HasOpenRequest(ctx context.Context, userID uuid.UUID, reqType domain.DataRequestType) (bool, error) {
	for _, r := range m.requests {
		if r.UserID == userID && r.Type == reqType &&
			(r.Status == domain.DataRequestPending || r.Status == domain.DataRequestProcessing) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDataRequestRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	r, ok := m.requests[id]
	if !ok {
		return repository.ErrDataRequestNotFound
	}
	r.Status = domain.DataRequestProcessing
	return nil
}

func (m *mockDataRequestRepository) MarkCompleted(ctx context.Context, id uuid.UUID, filePath *string, expiresAt *time.Time, notes string) error {
	r, ok := m.requests[id]
	if !ok {
		return repository.ErrDataRequestNotFound
	}
	now := time.Now()
	r.Status = domain.DataRequestCompleted
	r.FilePath = filePath
	r.ExpiresAt = expiresAt
	r.AdminNotes = notes
	r.ProcessedAt = &now
	return nil
}

func (m *mockDataRequestRepository) MarkRejected(ctx context.Context, id uuid.UUID, notes string) error {
	r, ok := m.requests[id]
	if !ok {
		return repository.ErrDataRequestNotFound
	}
	now := time.Now()
	r.Status = domain.DataRequestRejected
	r.AdminNotes = notes
	r.ProcessedAt = &now
	return nil
}

func (m *mockDataRequestRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	r, ok := m.requests[id]
	if !ok {
		return repository.ErrDataRequestNotFound
	}
	r.Status = domain.DataRequestExpired
	return nil
}

func (m *mockDataRequestRepository) ListOverdue(ctx context.Context, olderThan time.Time) ([]*domain.DataRequest, error) {
	var out []*domain.DataRequest
	for _, r := range m.requests {
		open := r.Status == domain.DataRequestPending || r.Status == domain.DataRequestProcessing
		if open && r.RequestedAt.Before(olderThan) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockDataRequestRepository) ListExpiredExports(ctx context.Context, now time.Time) ([]*domain.DataRequest, error) {
	var out []*domain.DataRequest
	for _, r := range m.requests {
		if r.Status == domain.DataRequestCompleted && r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockOrderRepository struct {
	orders map[uuid.UUID]*domain.Order
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{orders: make(map[uuid.UUID]*domain.Order)}
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	clone := *order
	m.orders[order.ID] = &clone
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}

func (m *mockOrderRepository) FindByOrderNumber(ctx context.Context, number string) (*domain.Order, error) {
	for _, order := range m.orders {
		if order.OrderNumber == number {
			clone := *order
			return &clone, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error) {
	var out []*domain.Order
	for _, order := range m.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	return out, len(out), nil
}

func (m *mockOrderRepository) List(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error) {
	var out []*domain.Order
	for _, order := range m.orders {
		if status == nil || order.Status == *status {
			out = append(out, order)
		}
	}
	return out, len(out), nil
}

func (m *mockOrderRepository) ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return order.Items, nil
}

func (m *mockOrderRepository) ListByUserWithItems(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, order := range m.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	return out, nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.Status = status
	return nil
}

func (m *mockOrderRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) error {
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.PaymentStatus = status
	return nil
}

type gdprFixture struct {
	svc      GDPRService
	requests *mockDataRequestRepository
	users    *mockUserRepository
	orders   *mockOrderRepository
	tokens   *mockRefreshTokenRepository
	fs       afero.Fs
}

func newGDPRFixture() *gdprFixture {
	return newGDPRFixtureWithQueue(nil)
}

func newGDPRFixtureWithQueue(q *queue.Queue) *gdprFixture {
	f := &gdprFixture{
		requests: newMockDataRequestRepository(),
		users:    newMockUserRepository(),
		orders:   newMockOrderRepository(),
		tokens:   newMockRefreshTokenRepository(),
		fs:       afero.NewMemMapFs(),
	}
	cfg := config.GDPRConfig{
		StoragePath:      "/exports",
		ExportExpiryDays: 30,
		OverdueDays:      30,
	}
	f.svc = NewGDPRService(f.requests, f.users, f.orders, f.tokens, f.fs, cfg, q, zap.NewNop())
	return f
}

// notificationRecorder drains notification jobs off a live queue so a
// test can assert what was sent after Stop.
type notificationRecorder struct {
	mu       sync.Mutex
	payloads []queue.NotificationPayload
}

func (r *notificationRecorder) all() []queue.NotificationPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.NotificationPayload(nil), r.payloads...)
}

func newNotificationQueue() (*queue.Queue, *notificationRecorder) {
	recorder := &notificationRecorder{}
	q := queue.New(queue.Options{Workers: 1, BufferSize: 16, MaxRetries: 3}, nil, zap.NewNop())
	q.Register(queue.TypeNotification, func(ctx context.Context, payload json.RawMessage) error {
		var p queue.NotificationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		recorder.mu.Lock()
		recorder.payloads = append(recorder.payloads, p)
		recorder.mu.Unlock()
		return nil
	})
	q.Register(queue.TypeGDPRProcess, func(ctx context.Context, payload json.RawMessage) error { return nil })
	q.Register(queue.TypeSearchSync, func(ctx context.Context, payload json.RawMessage) error { return nil })
	q.Start(context.Background())
	return q, recorder
}

func (f *gdprFixture) addUser(t *testing.T) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:        uuid.New(),
		Email:     fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      domain.RoleBuyer,
		CreatedAt: time.Now(),
	}
	f.users.users[user.Email] = user
	return user
}

func TestSubmit_RejectsDuplicateOpenRequest(t *testing.T) {
	f := newGDPRFixture()
	ctx := context.Background()
	user := f.addUser(t)

	if _, err := f.svc.Submit(ctx, user.ID, domain.DataRequestExport, ""); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := f.svc.Submit(ctx, user.ID, domain.DataRequestExport, ""); !errors.Is(err, ErrDuplicateDataRequest) {
		t.Errorf("second submit: got %v, want ErrDuplicateDataRequest", err)
	}

	// A different type is still allowed
	if _, err := f.svc.Submit(ctx, user.ID, domain.DataRequestDelete, "leaving"); err != nil {
		t.Errorf("delete submit alongside export: %v", err)
	}
}

func TestSubmit_RejectsUnknownType(t *testing.T) {
	f := newGDPRFixture()
	if _, err := f.svc.Submit(context.Background(), uuid.New(), "purge", ""); !errors.Is(err, ErrInvalidRequestType) {
		t.Errorf("got %v, want ErrInvalidRequestType", err)
	}
}

func TestProcess_ExportWritesBundleWithExpiry(t *testing.T) {
	f := newGDPRFixture()
	ctx := context.Background()
	user := f.addUser(t)

	request, err := f.svc.Submit(ctx, user.ID, domain.DataRequestExport, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.svc.Process(ctx, request.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	stored, _ := f.requests.FindByID(ctx, request.ID)
	if stored.Status != domain.DataRequestCompleted {
		t.Fatalf("status = %s, want completed", stored.Status)
	}
	if stored.FilePath == nil {
		t.Fatal("completed export has no file path")
	}
	if stored.ExpiresAt == nil {
		t.Fatal("completed export has no expiry")
	}
	wantExpiry := time.Now().AddDate(0, 0, 30)
	if diff := stored.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiry = %v, want ~30 days out", stored.ExpiresAt)
	}

	data, err := afero.ReadFile(f.fs, *stored.FilePath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var bundle map[string]json.RawMessage
	if err := json.Unmarshal(data, &bundle); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if _, ok := bundle["user"]; !ok {
		t.Error("export bundle missing user section")
	}
	if strings.Contains(string(data), "password") {
		t.Error("export bundle leaks password material")
	}
}

func TestProcess_DeleteAnonymizesAndRevokesSessions(t *testing.T) {
	f := newGDPRFixture()
	ctx := context.Background()
	user := f.addUser(t)
	originalEmail := user.Email

	f.tokens.tokens["tok-1"] = &domain.RefreshToken{
		ID:     uuid.New(),
		UserID: user.ID,
		Token:  "tok-1",
	}

	request, err := f.svc.Submit(ctx, user.ID, domain.DataRequestDelete, "gone")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.svc.Process(ctx, request.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	anonymized, err := f.users.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find anonymized user: %v", err)
	}
	if anonymized.Email == originalEmail {
		t.Error("email was not anonymized")
	}
	if anonymized.Email != domain.AnonymizedEmail(user.ID) {
		t.Errorf("email = %s, want %s", anonymized.Email, domain.AnonymizedEmail(user.ID))
	}
	if anonymized.DeletedAt == nil {
		t.Error("deleted_at not set")
	}
	if !f.tokens.tokens["tok-1"].Revoked {
		t.Error("refresh token not revoked")
	}

	stored, _ := f.requests.FindByID(ctx, request.ID)
	if stored.Status != domain.DataRequestCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
}

func TestDownload_OwnerOnlyWithinWindow(t *testing.T) {
	f := newGDPRFixture()
	ctx := context.Background()
	user := f.addUser(t)

	request, err := f.svc.Submit(ctx, user.ID, domain.DataRequestExport, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Before processing there is nothing to download
	if _, _, err := f.svc.Download(ctx, user.ID, request.ID); !errors.Is(err, ErrExportNotAvailable) {
		t.Errorf("pending download: got %v, want ErrExportNotAvailable", err)
	}

	if err := f.svc.Process(ctx, request.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	data, filename, err := f.svc.Download(ctx, user.ID, request.ID)
	if err != nil {
		t.Fatalf("owner download: %v", err)
	}
	if len(data) == 0 {
		t.Error("downloaded export is empty")
	}
	if !strings.HasSuffix(filename, ".json") {
		t.Errorf("filename = %s, want .json", filename)
	}

	// Non-owners see not-found, never forbidden
	if _, _, err := f.svc.Download(ctx, uuid.New(), request.ID); !errors.Is(err, repository.ErrDataRequestNotFound) {
		t.Errorf("foreign download: got %v, want ErrDataRequestNotFound", err)
	}

	// Past the expiry the file is gone for the owner too
	past := time.Now().Add(-time.Hour)
	f.requests.requests[request.ID].ExpiresAt = &past
	if _, _, err := f.svc.Download(ctx, user.ID, request.ID); !errors.Is(err, ErrExportNotAvailable) {
		t.Errorf("expired download: got %v, want ErrExportNotAvailable", err)
	}
}

func TestCleanupExpired_RemovesFilesAndMarksExpired(t *testing.T) {
	f := newGDPRFixture()
	ctx := context.Background()
	user := f.addUser(t)

	request, err := f.svc.Submit(ctx, user.ID, domain.DataRequestExport, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.svc.Process(ctx, request.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	stored, _ := f.requests.FindByID(ctx, request.ID)
	past := time.Now().Add(-time.Hour)
	f.requests.requests[request.ID].ExpiresAt = &past

	cleaned, err := f.svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if cleaned != 1 {
		t.Errorf("cleaned = %d, want 1", cleaned)
	}
	if _, err := f.fs.Stat(*stored.FilePath); err == nil {
		t.Error("expired export file still exists")
	}
	after, _ := f.requests.FindByID(ctx, request.ID)
	if after.Status != domain.DataRequestExpired {
		t.Errorf("status = %s, want expired", after.Status)
	}
}

func TestOverdueRequests(t *testing.T) {
	f := newGDPRFixture()
	ctx := context.Background()
	user := f.addUser(t)

	fresh, _ := f.svc.Submit(ctx, user.ID, domain.DataRequestExport, "")
	stale, _ := f.svc.Submit(ctx, user.ID, domain.DataRequestDelete, "")
	f.requests.requests[stale.ID].RequestedAt = time.Now().AddDate(0, 0, -45)

	overdue, err := f.svc.OverdueRequests(ctx)
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("overdue count = %d, want 1", len(overdue))
	}
	if overdue[0].ID != stale.ID {
		t.Errorf("overdue request = %s, want %s (not %s)", overdue[0].ID, stale.ID, fresh.ID)
	}
}

func TestProcess_NotifiesRequesterOnCompletion(t *testing.T) {
	q, sent := newNotificationQueue()
	f := newGDPRFixtureWithQueue(q)
	ctx := context.Background()
	user := f.addUser(t)

	request, err := f.svc.Submit(ctx, user.ID, domain.DataRequestExport, "")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := f.svc.Process(ctx, request.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	q.Stop()

	payloads := sent.all()
	if len(payloads) != 1 {
		t.Fatalf("got %d notifications, want 1", len(payloads))
	}
	got := payloads[0]
	if got.Recipient != user.Email {
		t.Errorf("Recipient = %q, want %q", got.Recipient, user.Email)
	}
	if !strings.Contains(got.Subject, "completed") {
		t.Errorf("Subject = %q, want it to mention completion", got.Subject)
	}
	if got.Metadata["request_id"] != request.ID.String() {
		t.Errorf("Metadata request_id = %q, want %q", got.Metadata["request_id"], request.ID.String())
	}
}

func TestReject_NotifiesRequester(t *testing.T) {
	q, sent := newNotificationQueue()
	f := newGDPRFixtureWithQueue(q)
	ctx := context.Background()
	user := f.addUser(t)

	request, err := f.svc.Submit(ctx, user.ID, domain.DataRequestDelete, "leaving")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := f.svc.Reject(ctx, request.ID, "identity could not be verified"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	q.Stop()

	payloads := sent.all()
	if len(payloads) != 1 {
		t.Fatalf("got %d notifications, want 1", len(payloads))
	}
	if payloads[0].Recipient != user.Email {
		t.Errorf("Recipient = %q, want %q", payloads[0].Recipient, user.Email)
	}
	if !strings.Contains(payloads[0].Subject, "rejected") {
		t.Errorf("Subject = %q, want it to mention rejection", payloads[0].Subject)
	}
}
