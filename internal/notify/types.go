package notify

import "time"

// Delivery statuses recorded in notification_history
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// NotificationRecord is a row from notification_history
type NotificationRecord struct {
	ID           int64     `json:"id"`
	Target       string    `json:"target"`
	EventType    string    `json:"event_type"`
	AlertID      string    `json:"alert_id,omitempty"`
	Message      string    `json:"message"`
	Status       string    `json:"status"`
	Attempts     int       `json:"attempts"`
	ErrorMessage string    `json:"error_message,omitempty"`
	SentAt       time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
