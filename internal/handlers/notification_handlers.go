package handlers

import (
	"log"
	"net/http"
	"strconv"

	"roadguard/internal/notify"
)

// GetNotifications returns the configured targets and recent deliveries.
// GET /api/admin/notifications?limit=50
func (c *Console) GetNotifications(w http.ResponseWriter, r *http.Request) {
	if c.Notify == nil {
		JSONResponse(w, map[string]interface{}{
			"targets": []string{},
			"history": []notify.NotificationRecord{},
		})
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	history, err := c.Notify.History(limit)
	if err != nil {
		log.Printf("❌ Notification history: %v", err)
		JSONError(w, "Failed to get history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []notify.NotificationRecord{}
	}

	JSONResponse(w, map[string]interface{}{
		"targets": c.Notify.Targets(),
		"history": history,
	})
}

// TestNotifications sends a test message to every target.
// POST /api/admin/notifications/test {"message": "..."}
func (c *Console) TestNotifications(w http.ResponseWriter, r *http.Request) {
	if c.Notify == nil || len(c.Notify.Targets()) == 0 {
		JSONError(w, "No notification targets configured", http.StatusConflict)
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	msg := req.Message
	if msg == "" {
		msg = "RoadGuard test notification"
	}

	results := c.Notify.SendTest(msg)
	sent := 0
	for _, res := range results {
		if res.Success {
			sent++
		}
	}
	log.Printf("🔔 Test notification sent to %d/%d targets", sent, len(results))
	JSONResponse(w, map[string]interface{}{
		"success": sent == len(results),
		"results": results,
	})
}
