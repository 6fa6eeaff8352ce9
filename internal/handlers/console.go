package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"roadguard/internal/api"
	"roadguard/internal/auth"
	"roadguard/internal/chart"
	"roadguard/internal/dashboard"
	"roadguard/internal/events"
	"roadguard/internal/models"
	"roadguard/internal/mutate"
	"roadguard/internal/notify"
	"roadguard/internal/session"
	"roadguard/internal/web"
)

// ActivitySize is how many events the overview's activity log shows
const ActivitySize = 20

// Console serves the pages and the JSON API behind them. Every upstream
// call is made with the requesting session's token.
type Console struct {
	// API is the unauthenticated base client
	API      *api.Client
	Manager  *auth.Manager
	Mounts   *dashboard.Mounts
	Bus      *events.Bus
	Recorder *events.Recorder
	Tokens   *auth.ActionTokenService
	Renderer *web.Renderer
	Location *time.Location
	// Notify is nil when accident notifications are not configured
	Notify *notify.Dispatcher
	// ObserveAlerts sees every alert list fetched, for notifications
	ObserveAlerts func([]models.Alert)
}

// ClientFor returns an API client that carries r's session token
func (c *Console) ClientFor(r *http.Request) *api.Client {
	sess := session.FromContext(r.Context())
	return c.API.WithTransport(session.BearerTransport(c.API.HTTP.Transport, func() *session.Session {
		return sess
	}))
}

// SourceFor is ClientFor as a dashboard.Source, the shape live.Hub wants
func (c *Console) SourceFor(r *http.Request) dashboard.Source {
	return c.ClientFor(r)
}

func (c *Console) now() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc)
}

// load fetches page once for r. A failed fetch still yields a snapshot of
// whatever did load; only a rejected token is reported as an error.
func (c *Console) load(ctx context.Context, r *http.Request, page dashboard.Page, rng chart.Range) (dashboard.Snapshot, error) {
	actor := ""
	if sess := session.FromContext(r.Context()); sess != nil {
		actor = sess.Email
	}
	v := dashboard.NewView(page, c.ClientFor(r), dashboard.Options{
		Bus:           c.Bus,
		Actor:         actor,
		ObserveAlerts: c.ObserveAlerts,
	})
	err := v.Poller.Refresh(ctx)
	if err != nil && api.IsUnauthorized(err) {
		return dashboard.Snapshot{}, err
	}

	snap := v.Snapshot(rng, c.now())
	if page == dashboard.PageOverview && c.Recorder != nil {
		snap.Activity = c.Recorder.Recent(ActivitySize)
	}
	return snap, nil
}

// mutator issues mutations as r's session. Success refreshes every view
// the session has open over /api/live.
func (c *Console) mutator(r *http.Request) *mutate.Mutator {
	id := auth.ConsoleID(r.Context())
	m := &mutate.Mutator{
		API:     c.ClientFor(r),
		Refresh: c.Mounts.RefreshFunc(id),
		Bus:     c.Bus,
		Optimistic: func(cameraID string, active bool) {
			c.Mounts.ApplyDetection(id, cameraID, active)
		},
	}
	if sess := session.FromContext(r.Context()); sess != nil {
		m.Actor = sess.Email
	}
	if c.Tokens != nil {
		m.Confirm = c.Tokens.Confirmer(r)
	}
	return m
}

// endSession ends a console session by id, for callers without a request
// such as a live socket whose poller got a 401
func (c *Console) endSession(sessionID string) {
	if c.Manager != nil {
		store, err := c.Manager.StoreFor(sessionID)
		if err == nil {
			err = store.Logout()
		}
		if err != nil {
			log.Printf("⚠️  Could not end session: %v", err)
		}
	}
	if c.Mounts != nil {
		c.Mounts.StopSession(sessionID)
	}
}

// expire ends the session when the API no longer accepts its token
func (c *Console) expire(w http.ResponseWriter, r *http.Request) {
	if sess := session.FromContext(r.Context()); sess != nil {
		log.Printf("🔒 API rejected token for %s, ending session", sess.Email)
	}
	if c.Manager != nil {
		c.Manager.Expire(w, r)
	}
	if c.Mounts != nil {
		if id := auth.ConsoleID(r.Context()); id != "" {
			c.Mounts.StopSession(id)
		}
	}
}

// fail reports a mutation error, ending the session on a 401
func (c *Console) fail(w http.ResponseWriter, r *http.Request, err error) {
	if api.IsUnauthorized(err) {
		c.expire(w, r)
	}
	mutationError(w, err)
}
