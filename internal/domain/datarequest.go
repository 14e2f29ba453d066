package domain

import (
	"time"

	"github.com/google/uuid"
)

// DataRequestType is the kind of GDPR action a user asked for.
type DataRequestType string

const (
	DataRequestExport        DataRequestType = "export"
	DataRequestDelete        DataRequestType = "delete"
	DataRequestRectification DataRequestType = "rectification"
	DataRequestPortability   DataRequestType = "portability"
)

// DataRequestStatus tracks the lifecycle
// pending -> processing -> completed/rejected, plus expired once a
// completed export's download window has been cleaned up.
type DataRequestStatus string

const (
	DataRequestPending    DataRequestStatus = "pending"
	DataRequestProcessing DataRequestStatus = "processing"
	DataRequestCompleted  DataRequestStatus = "completed"
	DataRequestRejected   DataRequestStatus = "rejected"
	DataRequestExpired    DataRequestStatus = "expired"
)

// ValidDataRequestType reports whether t is a recognised request type.
func ValidDataRequestType(t DataRequestType) bool {
	switch t {
	case DataRequestExport, DataRequestDelete, DataRequestRectification, DataRequestPortability:
		return true
	}
	return false
}

// DataRequest is a user-initiated GDPR action. Export and portability
// requests carry a stored file and a download expiry once completed.
type DataRequest struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	UserID      uuid.UUID         `json:"user_id" db:"user_id"`
	Type        DataRequestType   `json:"type" db:"type"`
	Status      DataRequestStatus `json:"status" db:"status"`
	Reason      string            `json:"reason" db:"reason"`
	AdminNotes  string            `json:"admin_notes" db:"admin_notes"`
	FilePath    *string           `json:"file_path,omitempty" db:"file_path"`
	RequestedAt time.Time         `json:"requested_at" db:"requested_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty" db:"processed_at"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty" db:"expires_at"`
}

// Downloadable reports whether the request's export file may still be
// served at the given time.
func (r *DataRequest) Downloadable(now time.Time) bool {
	if r.Status != DataRequestCompleted || r.FilePath == nil {
		return false
	}
	return r.ExpiresAt != nil && now.Before(*r.ExpiresAt)
}
