// Package mutate wraps every create, update and delete the console can
// issue. Each call is one request to the API followed by one refetch of
// the caller's views; nothing is retried and nothing is rolled back.
package mutate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"roadguard/internal/api"
	"roadguard/internal/events"
	"roadguard/internal/models"
)

// Action names a mutation as operators read it
type Action string

const (
	CreateUser       Action = "create user"
	UpdateApproval   Action = "update approval status"
	DeleteUser       Action = "delete user"
	CreateCamera     Action = "add camera"
	DeleteCamera     Action = "delete camera"
	StartDetection   Action = "start detection"
	StopDetection    Action = "stop detection"
	CreateAlert      Action = "generate alert"
	DeleteAlert      Action = "delete alert"
	DeleteAllAlerts  Action = "delete all alerts"
	StopStream       Action = "stop stream"
	DeleteStream     Action = "delete stream"
	DeleteAllStreams Action = "delete all streams"
	UploadVideo      Action = "upload video"
)

// Actions lists every action, used to validate confirm requests
var Actions = []Action{
	CreateUser, UpdateApproval, DeleteUser, CreateCamera, DeleteCamera,
	StartDetection, StopDetection, CreateAlert, DeleteAlert, DeleteAllAlerts,
	StopStream, DeleteStream, DeleteAllStreams, UploadVideo,
}

// ParseAction returns the Action named s
func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// IsDestructive reports whether a needs an explicit confirm step
func IsDestructive(a Action) bool {
	switch a {
	case DeleteUser, DeleteCamera, DeleteAlert, DeleteAllAlerts, DeleteStream, DeleteAllStreams:
		return true
	}
	return false
}

// ErrNotConfirmed is returned when a destructive action was not confirmed
var ErrNotConfirmed = errors.New("action not confirmed")

// Error is a failed mutation. Its message names the action.
type Error struct {
	Action Action
	Err    error
}

func (e *Error) Error() string {
	return "Failed to " + string(e.Action)
}

func (e *Error) Unwrap() error { return e.Err }

// Detail is the message plus the underlying cause, for logs and toasts
func (e *Error) Detail() string {
	var apiErr *api.Error
	if errors.As(e.Err, &apiErr) && apiErr.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Error(), apiErr.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Error(), e.Err)
	}
	return e.Error()
}

// Confirmer gates destructive actions. A nil error means go ahead.
type Confirmer interface {
	Confirm(ctx context.Context, action Action, target string) error
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, action Action, target string) error

func (f ConfirmFunc) Confirm(ctx context.Context, action Action, target string) error {
	return f(ctx, action, target)
}

// AlwaysConfirm accepts everything, for --yes on the command line
var AlwaysConfirm = ConfirmFunc(func(context.Context, Action, string) error { return nil })

// API is the part of the upstream client mutations need
type API interface {
	CreateUser(ctx context.Context, u models.NewUser) (*models.User, error)
	UpdateApproval(ctx context.Context, id string, status models.ApprovalStatus) error
	DeleteUser(ctx context.Context, id string) error
	CreateCamera(ctx context.Context, cam models.NewCamera) (*models.Camera, error)
	DeleteCamera(ctx context.Context, id string) error
	StartDetection(ctx context.Context, cameraID string) (*api.Message, error)
	StopDetection(ctx context.Context, cameraID string) (*api.Message, error)
	CreateAlert(ctx context.Context, a models.NewAlert) (*models.Alert, error)
	DeleteAlert(ctx context.Context, id string) error
	DeleteAllAlerts(ctx context.Context) error
	StopStream(ctx context.Context, id string) error
	DeleteStream(ctx context.Context, id string) error
	DeleteAllStreams(ctx context.Context) error
	UploadVideo(ctx context.Context, filename string, video io.Reader) (*models.Stream, error)
}

// Mutator issues mutations on behalf of one session
type Mutator struct {
	API API
	// Refresh re-fetches the caller's mounted views after a success
	Refresh func(ctx context.Context) error
	Bus     *events.Bus
	Confirm Confirmer
	// Actor is the session email attached to published events
	Actor string
	// Optimistic, when set, sees a detection toggle before the refetch so
	// a badge can flip immediately.
	Optimistic func(cameraID string, active bool)
}

func (m *Mutator) do(ctx context.Context, action Action, target string, call func(ctx context.Context) error, ok events.Event) error {
	if IsDestructive(action) {
		if m.Confirm == nil {
			return &Error{Action: action, Err: ErrNotConfirmed}
		}
		if err := m.Confirm.Confirm(ctx, action, target); err != nil {
			return &Error{Action: action, Err: err}
		}
	}

	if err := call(ctx); err != nil {
		mErr := &Error{Action: action, Err: err}
		log.Printf("❌ %s", mErr.Detail())
		m.Bus.Publish(events.Event{
			Type:     events.MutationFailed,
			Severity: events.SeverityWarning,
			Actor:    m.Actor,
			EntityID: target,
			Message:  mErr.Detail(),
			Metadata: map[string]string{"action": string(action)},
		})
		return mErr
	}

	ok.Actor = m.Actor
	if ok.EntityID == "" {
		ok.EntityID = target
	}
	m.Bus.Publish(ok)

	if m.Refresh != nil {
		if err := m.Refresh(ctx); err != nil {
			// The write went through; stale views are a read failure.
			log.Printf("⚠️  refresh after %s failed: %v", action, err)
		}
	}
	return nil
}

// ── Users ───────────────────────────────────────────────────────────────

func (m *Mutator) CreateUser(ctx context.Context, u models.NewUser) (*models.User, error) {
	if !u.Role.Valid() {
		return nil, &Error{Action: CreateUser, Err: fmt.Errorf("unknown role %q", u.Role)}
	}
	var created *models.User
	err := m.do(ctx, CreateUser, u.Email, func(ctx context.Context) (err error) {
		created, err = m.API.CreateUser(ctx, u)
		return err
	}, events.Event{
		Type:    events.EntityCreated,
		Entity:  "user",
		Message: fmt.Sprintf("User %s created as %s", u.Email, u.Role),
	})
	return created, err
}

func (m *Mutator) UpdateApproval(ctx context.Context, userID string, status models.ApprovalStatus) error {
	return m.do(ctx, UpdateApproval, userID, func(ctx context.Context) error {
		return m.API.UpdateApproval(ctx, userID, status)
	}, events.Event{
		Type:     events.ApprovalChanged,
		Entity:   "user",
		Message:  fmt.Sprintf("User %s marked %s", userID, status),
		Metadata: map[string]string{"approval_status": string(status)},
	})
}

func (m *Mutator) DeleteUser(ctx context.Context, userID string) error {
	return m.do(ctx, DeleteUser, userID, func(ctx context.Context) error {
		return m.API.DeleteUser(ctx, userID)
	}, deleted("user", userID))
}

// ── Cameras ─────────────────────────────────────────────────────────────

func (m *Mutator) CreateCamera(ctx context.Context, cam models.NewCamera) (*models.Camera, error) {
	var created *models.Camera
	err := m.do(ctx, CreateCamera, cam.Name, func(ctx context.Context) (err error) {
		created, err = m.API.CreateCamera(ctx, cam)
		return err
	}, events.Event{
		Type:    events.EntityCreated,
		Entity:  "camera",
		Message: fmt.Sprintf("Camera %s added at %s", cam.Name, cam.Location),
	})
	return created, err
}

func (m *Mutator) DeleteCamera(ctx context.Context, cameraID string) error {
	return m.do(ctx, DeleteCamera, cameraID, func(ctx context.Context) error {
		return m.API.DeleteCamera(ctx, cameraID)
	}, deleted("camera", cameraID))
}

// ToggleDetection starts detection when currentlyActive is false and stops
// it otherwise. It returns the state the camera should now be in and the
// API's acknowledgement.
func (m *Mutator) ToggleDetection(ctx context.Context, cameraID string, currentlyActive bool) (bool, string, error) {
	action, evType, want, verb := StartDetection, events.DetectionStarted, true, "started"
	if currentlyActive {
		action, evType, want, verb = StopDetection, events.DetectionStopped, false, "stopped"
	}

	var msg string
	err := m.do(ctx, action, cameraID, func(ctx context.Context) error {
		var ack *api.Message
		var err error
		if want {
			ack, err = m.API.StartDetection(ctx, cameraID)
		} else {
			ack, err = m.API.StopDetection(ctx, cameraID)
		}
		if err != nil {
			return err
		}
		if ack != nil {
			msg = ack.Message
		}
		if m.Optimistic != nil {
			m.Optimistic(cameraID, want)
		}
		return nil
	}, events.Event{
		Type:    evType,
		Entity:  "camera",
		Message: fmt.Sprintf("Detection %s for camera %s", verb, cameraID),
	})
	if err != nil {
		return currentlyActive, "", err
	}
	return want, msg, nil
}

// ── Alerts ──────────────────────────────────────────────────────────────

// CreateAlert raises an alert by hand; the API emails hospitals
func (m *Mutator) CreateAlert(ctx context.Context, a models.NewAlert) (*models.Alert, error) {
	if a.Location == "" || a.Details == "" {
		return nil, &Error{Action: CreateAlert, Err: errors.New("location and details are required")}
	}
	var created *models.Alert
	err := m.do(ctx, CreateAlert, a.Location, func(ctx context.Context) (err error) {
		created, err = m.API.CreateAlert(ctx, a)
		return err
	}, events.Event{
		Type:     events.EntityCreated,
		Severity: events.SeverityCritical,
		Entity:   "alert",
		Message:  fmt.Sprintf("Alert raised at %s: %s", a.Location, a.Details),
	})
	return created, err
}

func (m *Mutator) DeleteAlert(ctx context.Context, alertID string) error {
	return m.do(ctx, DeleteAlert, alertID, func(ctx context.Context) error {
		return m.API.DeleteAlert(ctx, alertID)
	}, deleted("alert", alertID))
}

func (m *Mutator) DeleteAllAlerts(ctx context.Context) error {
	return m.do(ctx, DeleteAllAlerts, "all", func(ctx context.Context) error {
		return m.API.DeleteAllAlerts(ctx)
	}, events.Event{
		Type:    events.AlertsCleared,
		Entity:  "alert",
		Message: "All alerts deleted",
	})
}

// ── Streams ─────────────────────────────────────────────────────────────

func (m *Mutator) StopStream(ctx context.Context, streamID string) error {
	return m.do(ctx, StopStream, streamID, func(ctx context.Context) error {
		return m.API.StopStream(ctx, streamID)
	}, events.Event{
		Type:    events.StreamStopped,
		Entity:  "stream",
		Message: fmt.Sprintf("Stream %s stopped", streamID),
	})
}

func (m *Mutator) DeleteStream(ctx context.Context, streamID string) error {
	return m.do(ctx, DeleteStream, streamID, func(ctx context.Context) error {
		return m.API.DeleteStream(ctx, streamID)
	}, deleted("stream", streamID))
}

func (m *Mutator) DeleteAllStreams(ctx context.Context) error {
	return m.do(ctx, DeleteAllStreams, "all", func(ctx context.Context) error {
		return m.API.DeleteAllStreams(ctx)
	}, events.Event{
		Type:    events.EntityDeleted,
		Entity:  "stream",
		Message: "All streams deleted",
	})
}

// UploadVideo sends a video for replay as a feed
func (m *Mutator) UploadVideo(ctx context.Context, filename string, video io.Reader) (*models.Stream, error) {
	var stream *models.Stream
	err := m.do(ctx, UploadVideo, filename, func(ctx context.Context) (err error) {
		stream, err = m.API.UploadVideo(ctx, filename, video)
		return err
	}, events.Event{
		Type:    events.EntityCreated,
		Entity:  "stream",
		Message: fmt.Sprintf("Video %s uploaded", filename),
	})
	return stream, err
}

func deleted(entity, id string) events.Event {
	return events.Event{
		Type:     events.EntityDeleted,
		Entity:   entity,
		EntityID: id,
		Message:  fmt.Sprintf("Deleted %s %s", entity, id),
	}
}
