// Package live pushes page snapshots to browsers over WebSocket. An open
// socket is a mounted page: connecting starts the page's poller and
// disconnecting stops it.
package live

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roadguard/internal/api"
	"roadguard/internal/auth"
	"roadguard/internal/chart"
	"roadguard/internal/dashboard"
	"roadguard/internal/events"
	"roadguard/internal/models"
	"roadguard/internal/session"
)

// ─── Frame Protocol ───────────────────────────────────────────────────────

// Frame is the wire format in both directions
type Frame struct {
	Type    string          `json:"type"`              // snapshot, event, error / range, refresh
	Payload json.RawMessage `json:"payload,omitempty"` // type-specific data
}

const (
	FrameSnapshot = "snapshot"
	FrameEvent    = "event"
	FrameError    = "error"

	// Sent by the browser
	FrameRange   = "range"
	FrameRefresh = "refresh"
)

const (
	readLimit    = 16 * 1024
	pongWait     = 90 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 16
)

// CloseSessionExpired closes a socket whose token the API rejected. The
// browser goes to the login page instead of reconnecting.
const CloseSessionExpired = 4401

// ─── Hub ──────────────────────────────────────────────────────────────────

// Hub manages the open page sockets of every session
type Hub struct {
	Mounts   *dashboard.Mounts
	Bus      *events.Bus
	Recorder *events.Recorder
	// SourceFor returns an API client authenticated as the request's session
	SourceFor func(r *http.Request) dashboard.Source
	// Identify returns the console session id and session of r. It
	// defaults to what auth.Manager.LoadSession put in the context.
	Identify      func(r *http.Request) (string, *session.Session)
	Interval      time.Duration
	Location      *time.Location
	ObserveAlerts func([]models.Alert)
	// Expire ends a console session after the API rejected its token
	Expire func(sessionID string)
	// ActivitySize bounds the overview's activity log
	ActivitySize int

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// conn is one open page socket
type conn struct {
	ws        *websocket.Conn
	sessionID string
	email     string
	view      *dashboard.View
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	expired   sync.Once

	mu  sync.Mutex
	rng chart.Range
}

func NewHub(mounts *dashboard.Mounts, bus *events.Bus, recorder *events.Recorder) *Hub {
	return &Hub{
		Mounts:       mounts,
		Bus:          bus,
		Recorder:     recorder,
		Location:     time.UTC,
		ActivitySize: 20,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[*conn]struct{}),
	}
}

func defaultIdentify(r *http.Request) (string, *session.Session) {
	return auth.ConsoleID(r.Context()), session.FromContext(r.Context())
}

// pagePaths maps pages to the routes whose guard applies to them
var pagePaths = map[dashboard.Page]string{
	dashboard.PageOverview: auth.RouteDashboard,
	dashboard.PageFeeds:    auth.RouteFeeds,
	dashboard.PageHistory:  auth.RouteHistory,
	dashboard.PageAdmin:    auth.RouteAdmin,
}

// HandleConnection upgrades GET /api/live to a WebSocket.
//
// Query parameters:
//   - page: overview (default), feeds, history or admin
//   - range: chart range for the overview, 24h by default
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	page, err := dashboard.ParsePage(r.URL.Query().Get("page"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rng := chart.DefaultRange
	if v := r.URL.Query().Get("range"); v != "" {
		if rng, err = chart.ParseRange(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	identify := h.Identify
	if identify == nil {
		identify = defaultIdentify
	}
	sessionID, sess := identify(r)
	switch auth.Decide(sess, auth.RequirementFor(pagePaths[page])) {
	case auth.RedirectLogin:
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	case auth.RedirectDashboard:
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed for %s: %v", sess.Email, err)
		return
	}

	c := &conn{
		ws:        ws,
		sessionID: sessionID,
		email:     sess.Email,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		rng:       rng,
	}
	c.view = dashboard.NewView(page, h.SourceFor(r), dashboard.Options{
		Interval:      h.Interval,
		Bus:           h.Bus,
		Actor:         sess.Email,
		ObserveAlerts: h.ObserveAlerts,
	})
	c.view.Poller.OnUpdate = func() { h.pushSnapshot(c) }
	c.view.Poller.OnError = func(err error) {
		if api.IsUnauthorized(err) {
			h.expire(c)
		}
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	unsubscribe := h.Bus.Subscribe(func(e events.Event) { h.pushEvent(c, e) })
	unmount := h.Mounts.Mount(ctx, sessionID, c.view)

	log.Printf("[WS] %s opened %s", sess.Email, page)

	go h.writeLoop(c)
	go h.pingLoop(c)

	// Blocks until the socket closes
	h.readLoop(ctx, c)

	unsubscribe()
	unmount()
	cancel()
	c.close()

	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()

	log.Printf("[WS] %s closed %s", sess.Email, page)
}

// readLoop handles browser frames until the connection drops
func (h *Hub) readLoop(ctx context.Context, c *conn) {
	c.ws.SetReadLimit(readLimit)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error for %s: %v", c.email, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Printf("[WS] Invalid frame from %s: %v", c.email, err)
			continue
		}
		h.handleFrame(ctx, c, frame)
	}
}

func (h *Hub) handleFrame(ctx context.Context, c *conn, frame Frame) {
	switch frame.Type {
	case FrameRange:
		var s string
		if err := json.Unmarshal(frame.Payload, &s); err != nil {
			h.pushError(c, "range payload must be a string")
			return
		}
		rng, err := chart.ParseRange(s)
		if err != nil {
			h.pushError(c, err.Error())
			return
		}
		c.mu.Lock()
		c.rng = rng
		c.mu.Unlock()
		h.pushSnapshot(c)

	case FrameRefresh:
		// OnUpdate pushes the result
		go c.view.Poller.Refresh(ctx)

	default:
		h.pushError(c, "unknown frame type "+frame.Type)
	}
}

// writeLoop is the only writer of data frames on c
func (h *Hub) writeLoop(c *conn) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.ws.Close()
				return
			}
		}
	}
}

// pingLoop sends periodic pings to keep the connection alive
func (h *Hub) pingLoop(c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(
				websocket.PingMessage, nil,
				time.Now().Add(writeWait),
			); err != nil {
				return
			}
		}
	}
}

// Snapshot builds the frame payload for c's page
func (h *Hub) Snapshot(view *dashboard.View, rng chart.Range) dashboard.Snapshot {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	snap := view.Snapshot(rng, time.Now().In(loc))
	if view.Page == dashboard.PageOverview && h.Recorder != nil {
		snap.Activity = h.Recorder.Recent(h.ActivitySize)
	}
	return snap
}

func (h *Hub) pushSnapshot(c *conn) {
	c.mu.Lock()
	rng := c.rng
	c.mu.Unlock()
	h.push(c, FrameSnapshot, h.Snapshot(c.view, rng))
}

// pushEvent forwards accidents to everyone and other events to the
// session that caused them.
func (h *Hub) pushEvent(c *conn, e events.Event) {
	switch {
	case e.Type == events.AlertRaised, e.Type == events.AlertsCleared:
	case e.Actor != "" && e.Actor == c.email:
	default:
		return
	}
	h.push(c, FrameEvent, e)
}

func (h *Hub) pushError(c *conn, msg string) {
	h.push(c, FrameError, map[string]string{"error": msg})
}

// push queues a frame without blocking. A client too slow to drain its
// buffer misses frames; the next snapshot supersedes them.
func (h *Hub) push(c *conn, typ string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WS] Could not encode %s frame: %v", typ, err)
		return
	}
	msg, err := json.Marshal(Frame{Type: typ, Payload: raw})
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		log.Printf("[WS] Dropped %s frame for %s", typ, c.email)
	}
}

// expire closes c with CloseSessionExpired and ends its session. It runs
// on the poller's goroutine, so the session teardown is handed off.
func (h *Hub) expire(c *conn) {
	c.expired.Do(func() {
		log.Printf("[WS] API rejected token for %s, closing socket", c.email)
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseSessionExpired, "session expired"),
			time.Now().Add(writeWait),
		)
		c.close()
		if h.Expire != nil {
			go h.Expire(c.sessionID)
		}
	})
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// ActiveConnections returns the number of open page sockets
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll terminates every open socket
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.conns {
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(5*time.Second),
		)
		c.close()
		delete(h.conns, c)
	}
}
