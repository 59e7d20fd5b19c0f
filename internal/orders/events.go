package orders

import (
	"encoding/json"
	"time"
)

const (
	EventStatusChanged  = "OrderStatusChanged"
	EventBatchCompleted = "OrderStatusBatchCompleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id, or batch id for bulk
	Payload       json.RawMessage `json:"payload"`
}

type StatusChangedPayload struct {
	OrderID   string `json:"order_id"`
	ShortCode string `json:"short_code"`
	OldStatus Status `json:"old_status"`
	NewStatus Status `json:"new_status"`
	Reason    string `json:"reason,omitempty"`
	Actor     string `json:"actor"`
	Origin    Origin `json:"origin"`
}

type FailedOrder struct {
	OrderID string `json:"order_id"`
	Code    Code   `json:"code"`
	Error   string `json:"error"`
}

// BatchCompletedPayload summarizes one bulk status change.
type BatchCompletedPayload struct {
	BatchID    string        `json:"batch_id"`
	Status     Status        `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Actor      string        `json:"actor"`
	Successful []string      `json:"successful"`
	Failed     []FailedOrder `json:"failed,omitempty"`
}
