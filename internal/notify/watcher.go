package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"roadguard/internal/events"
	"roadguard/internal/models"
)

// AlertWatcher turns alert snapshots into alert_raised events. The first
// snapshot only seeds what has been seen, so starting the console does not
// announce every historical accident.
type AlertWatcher struct {
	Bus *events.Bus
	// Location formats alert times in messages
	Location *time.Location

	mu     sync.Mutex
	seen   map[string]struct{}
	seeded bool
}

func NewAlertWatcher(bus *events.Bus, loc *time.Location) *AlertWatcher {
	if loc == nil {
		loc = time.UTC
	}
	return &AlertWatcher{Bus: bus, Location: loc, seen: make(map[string]struct{})}
}

// Observe records a snapshot and returns the alerts that are new since the
// previous ones. Safe to call from several pollers at once.
func (w *AlertWatcher) Observe(alerts []models.Alert) []models.Alert {
	w.mu.Lock()
	var fresh []models.Alert
	for _, a := range alerts {
		if a.ID == "" {
			continue
		}
		if _, ok := w.seen[a.ID]; ok {
			continue
		}
		w.seen[a.ID] = struct{}{}
		if w.seeded {
			fresh = append(fresh, a)
		}
	}
	w.seeded = true
	w.mu.Unlock()

	for _, a := range fresh {
		w.Bus.Publish(w.event(a))
	}
	return fresh
}

func (w *AlertWatcher) event(a models.Alert) events.Event {
	meta := map[string]string{"location": a.Location}
	if !a.Time.IsZero() {
		meta["time"] = a.Time.In(w.Location).Format("2006-01-02 15:04 MST")
	}
	if len(a.NotifiedHospitals) > 0 {
		meta["hospitals"] = strings.Join(a.NotifiedHospitals, ", ")
	}
	return events.Event{
		Type:     events.AlertRaised,
		Severity: events.SeverityCritical,
		Entity:   "alert",
		EntityID: a.ID,
		Message:  fmt.Sprintf("Accident at %s: %s", a.Location, a.Details),
		Metadata: meta,
	}
}
