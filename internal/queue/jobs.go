package queue

import "github.com/google/uuid"

// Job type names. Handlers are registered against these.
const (
	TypeGDPRProcess  = "gdpr.process"
	TypeNotification = "notification.send"
	TypeSearchSync   = "search.sync"
)

// GDPRProcessPayload asks the worker to process one data request.
type GDPRProcessPayload struct {
	RequestID uuid.UUID `json:"request_id"`
}

// NotificationPayload carries a fire-and-forget message to a channel.
type NotificationPayload struct {
	Channel   string            `json:"channel"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SearchSyncPayload pushes one product to the search index, or removes
// it when Delete is set.
type SearchSyncPayload struct {
	ProductID uuid.UUID `json:"product_id"`
	Delete    bool      `json:"delete"`
}
