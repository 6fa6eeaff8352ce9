package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"roadguard/internal/api"
	"roadguard/internal/auth"
	"roadguard/internal/chart"
	"roadguard/internal/dashboard"
	"roadguard/internal/models"
)

// maxUpload bounds video uploads
const maxUpload = 2 << 30

// ─── Reads ───────────────────────────────────────────────────────────────

// GetSnapshot handles GET /api/snapshot?page=&range=
// A one-shot fetch of a page for clients that do not hold a socket open.
func (c *Console) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	page, err := dashboard.ParsePage(r.URL.Query().Get("page"))
	if err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if page == dashboard.PageAdmin && auth.Decide(sessionOf(r), auth.NeedAdmin) != auth.Allow {
		JSONError(w, "Forbidden", http.StatusForbidden)
		return
	}
	rng := chart.DefaultRange
	if v := r.URL.Query().Get("range"); v != "" {
		if rng, err = chart.ParseRange(v); err != nil {
			JSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	snap, err := c.load(r.Context(), r, page, rng)
	if err != nil {
		c.expire(w, r)
		JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	JSONResponse(w, snap)
}

// GetChart handles GET /api/chart?range=
func (c *Console) GetChart(w http.ResponseWriter, r *http.Request) {
	rng, err := chart.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	alerts, err := c.ClientFor(r).ListAlerts(r.Context())
	if err != nil {
		if api.IsUnauthorized(err) {
			c.expire(w, r)
			JSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		log.Printf("⚠️  chart: fetch alerts failed: %v", err)
		JSONError(w, "Failed to fetch alerts", http.StatusBadGateway)
		return
	}
	if c.ObserveAlerts != nil {
		c.ObserveAlerts(alerts)
	}
	JSONResponse(w, map[string]interface{}{
		"range": rng,
		"title": rng.Title(),
		"bars":  chart.Bucketize(alerts, rng, c.now()),
	})
}

// GetActivity handles GET /api/activity?limit=&mine=1
func (c *Console) GetActivity(w http.ResponseWriter, r *http.Request) {
	limit := ActivitySize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	events := c.Recorder.Recent(limit)
	if r.URL.Query().Get("mine") == "1" {
		if sess := sessionOf(r); sess != nil {
			events = c.Recorder.ForActor(sess.Email, limit)
		}
	}
	JSONResponse(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// ─── Alerts ──────────────────────────────────────────────────────────────

// CreateAlert handles POST /api/alerts
func (c *Console) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var in models.NewAlert
	if !decodeJSON(w, r, &in) {
		return
	}
	created, err := c.mutator(r).CreateAlert(r.Context(), in)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	JSONCreated(w, created)
}

// DeleteAlert handles DELETE /api/alerts/{id}
func (c *Console) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := c.mutator(r).DeleteAlert(r.Context(), r.PathValue("id")); err != nil {
		c.fail(w, r, err)
		return
	}
	JSONResponse(w, map[string]string{"status": "deleted"})
}

// DeleteAllAlerts handles DELETE /api/admin/alerts
func (c *Console) DeleteAllAlerts(w http.ResponseWriter, r *http.Request) {
	if err := c.mutator(r).DeleteAllAlerts(r.Context()); err != nil {
		c.fail(w, r, err)
		return
	}
	JSONResponse(w, map[string]string{"status": "deleted"})
}

// ─── Cameras ─────────────────────────────────────────────────────────────

// CreateCamera handles POST /api/admin/cameras
func (c *Console) CreateCamera(w http.ResponseWriter, r *http.Request) {
	var in models.NewCamera
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Name == "" || in.Location == "" {
		JSONError(w, "Name and location are required", http.StatusBadRequest)
		return
	}
	created, err := c.mutator(r).CreateCamera(r.Context(), in)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	JSONCreated(w, created)
}

// DeleteCamera handles DELETE /api/cameras/{id} and /api/admin/cameras/{id}
func (c *Console) DeleteCamera(w http.ResponseWriter, r *http.Request) {
	if err := c.mutator(r).DeleteCamera(r.Context(), r.PathValue("id")); err != nil {
		c.fail(w, r, err)
		return
	}
	JSONResponse(w, map[string]string{"status": "deleted"})
}

// ToggleDetection handles POST /api/cameras/{id}/detection
// Body: {"active": <current state>}. The response carries the new state.
func (c *Console) ToggleDetection(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Active bool `json:"active"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	active, msg, err := c.mutator(r).ToggleDetection(r.Context(), r.PathValue("id"), in.Active)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	JSONResponse(w, map[string]interface{}{
		"active":  active,
		"message": msg,
	})
}

// ─── Streams ─────────────────────────────────────────────────────────────

// StopStream handles PATCH /api/streams/{id}/stop
func (c *Console) StopStream(w http.ResponseWriter, r *http.Request) {
	if err := c.mutator(r).StopStream(r.Context(), r.PathValue("id")); err != nil {
		c.fail(w, r, err)
		return
	}
	JSONResponse(w, map[string]string{"status": "stopped"})
}

// DeleteStream handles DELETE /api/streams/{id}
func (c *Console) DeleteStream(w http.ResponseWriter, r *http.Request) {
	if err := c.mutator(r).DeleteStream(r.Context(), r.PathValue("id")); err != nil {
		c.fail(w, r, err)
		return
	}
	JSONResponse(w, map[string]string{"status": "deleted"})
}

// DeleteAllStreams handles DELETE /api/streams
func (c *Console) DeleteAllStreams(w http.ResponseWriter, r *http.Request) {
	if err := c.mutator(r).DeleteAllStreams(r.Context()); err != nil {
		c.fail(w, r, err)
		return
	}
	JSONResponse(w, map[string]string{"status": "deleted"})
}

// UploadVideo handles POST /api/admin/streams/upload (multipart "file")
func (c *Console) UploadVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			JSONError(w, "Video is too large", http.StatusRequestEntityTooLarge)
			return
		}
		JSONError(w, "A video file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	stream, err := c.mutator(r).UploadVideo(r.Context(), header.Filename, file)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	JSONCreated(w, stream)
}

// ─── Users ───────────────────────────────────────────────────────────────

// CreateUser handles POST /api/admin/users
func (c *Console) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in models.NewUser
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Name == "" || in.Email == "" || in.Password == "" {
		JSONError(w, "Name, email and password are required", http.StatusBadRequest)
		return
	}
	created, err := c.mutator(r).CreateUser(r.Context(), in)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	JSONCreated(w, created)
}

// UpdateApproval handles PATCH /api/admin/users/{id}/approval
func (c *Console) UpdateApproval(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ApprovalStatus models.ApprovalStatus `json:"approval_status"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if !in.ApprovalStatus.Valid() {
		JSONError(w, "approval_status must be pending, approved or rejected", http.StatusBadRequest)
		return
	}
	if err := c.mutator(r).UpdateApproval(r.Context(), r.PathValue("id"), in.ApprovalStatus); err != nil {
		c.fail(w, r, err)
		return
	}
	JSONResponse(w, map[string]string{"status": "updated", "approval_status": string(in.ApprovalStatus)})
}

// DeleteUser handles DELETE /api/admin/users/{id}
func (c *Console) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := c.mutator(r).DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		c.fail(w, r, err)
		return
	}
	JSONResponse(w, map[string]string{"status": "deleted"})
}
