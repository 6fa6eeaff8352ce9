package events

import "time"

// EventType identifies what happened in the console
type EventType string

const (
	// Observed by the poller
	AlertRaised   EventType = "alert_raised"
	AlertsCleared EventType = "alerts_cleared"
	FetchFailed   EventType = "fetch_failed"

	// Operator mutations
	EntityCreated    EventType = "entity_created"
	EntityDeleted    EventType = "entity_deleted"
	DetectionStarted EventType = "detection_started"
	DetectionStopped EventType = "detection_stopped"
	StreamStopped    EventType = "stream_stopped"
	ApprovalChanged  EventType = "approval_changed"
	MutationFailed   EventType = "mutation_failed"

	// Sessions
	SessionLogin  EventType = "session_login"
	SessionLogout EventType = "session_logout"
)

// Severity indicates the urgency of an event
type Severity int

const (
	SeverityInfo     Severity = 0
	SeverityWarning  Severity = 1
	SeverityCritical Severity = 2
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Event is the payload published through the bus
type Event struct {
	Type     EventType `json:"type"`
	Severity Severity  `json:"severity"`
	// Actor is the email of the operator whose session caused the event
	Actor    string            `json:"actor,omitempty"`
	Entity   string            `json:"entity,omitempty"`
	EntityID string            `json:"entity_id,omitempty"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
