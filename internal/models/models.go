package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Role is the job function attached to an account
type Role string

const (
	RoleAdmin      Role = "admin"
	RolePolice     Role = "police"
	RoleHospital   Role = "hospital"
	RoleTransport  Role = "transport"
	RoleRoadSafety Role = "road_safety"
)

// Roles lists every role in the order the admin form offers them
var Roles = []Role{RolePolice, RoleHospital, RoleTransport, RoleRoadSafety, RoleAdmin}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// IsAdmin reports whether r grants access to the admin console
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// ApprovalStatus tracks an account through admin review
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid reports whether s is one of the three approval states
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// User is an account as reported by the API
type User struct {
	ID             string         `json:"_id"`
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	Role           Role           `json:"role"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	CreatedAt      Timestamp      `json:"created_at"`
}

// NewUser is the payload for creating an account
type NewUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// Camera is a monitored video source
type Camera struct {
	ID                 string     `json:"_id"`
	Name               string     `json:"name"`
	Location           string     `json:"location"`
	URL                string     `json:"url"`
	Status             string     `json:"status,omitempty"`
	DetectionActive    bool       `json:"detection_active"`
	DetectionStartedAt *Timestamp `json:"detection_started_at,omitempty"`
	DetectionStoppedAt *Timestamp `json:"detection_stopped_at,omitempty"`
	CreatedAt          Timestamp  `json:"created_at"`
}

// NewCamera is the payload for registering a camera
type NewCamera struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	URL      string `json:"url"`
}

// Alert is a recorded accident
type Alert struct {
	ID                string    `json:"_id"`
	Location          string    `json:"location"`
	Details           string    `json:"details"`
	Time              Timestamp `json:"time"`
	NotifiedHospitals []string  `json:"notified_hospitals"`
}

// NewAlert is the payload for raising an alert by hand
type NewAlert struct {
	Location string     `json:"location"`
	Details  string     `json:"details"`
	Time     *Timestamp `json:"time,omitempty"`
}

// Stream is an uploaded video being replayed as a feed
type Stream struct {
	ID        string    `json:"_id"`
	VideoPath string    `json:"video_path"`
	StreamURL string    `json:"stream_url"`
	IsActive  bool      `json:"is_active"`
	CreatedAt Timestamp `json:"created_at"`
}

// Timestamp decodes both RFC 3339 times and the API's naive ISO times,
// which carry no zone and are UTC.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses s using the formats the API is known to emit
func ParseTimestamp(s string) (Timestamp, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Timestamp{t}, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized time %q", s)
}

// UnmarshalJSON implements json.Unmarshaler
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*ts = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*ts = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// MarshalJSON implements json.Marshaler
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339))
}

// Config holds console and client configuration
type Config struct {
	Port            string
	DBPath          string
	APIURL          string
	PollInterval    time.Duration
	SessionTTL      time.Duration
	SessionSecret   string
	DisplayTimezone string
	NotifyURLs      []string
	NotifyTargets   []NotifyTarget
	AuthRateLimit   int
	SecureCookies   bool
}

// NotifyTarget is a notification destination described by provider fields
// instead of a raw Shoutrrr URL.
type NotifyTarget struct {
	Type   string            `yaml:"type"`
	Fields map[string]string `yaml:"fields"`
}

// Location resolves DisplayTimezone, falling back to UTC
func (c Config) Location() *time.Location {
	if c.DisplayTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
