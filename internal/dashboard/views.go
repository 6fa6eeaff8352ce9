// Package dashboard defines the console pages as views: the resources each
// page fetches, the slots they land in and the snapshot a page renders.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"roadguard/internal/chart"
	"roadguard/internal/events"
	"roadguard/internal/models"
	"roadguard/internal/poller"
)

// Page identifies a console page
type Page string

const (
	PageOverview Page = "overview"
	PageFeeds    Page = "feeds"
	PageHistory  Page = "history"
	PageAdmin    Page = "admin"
)

// ParsePage maps a page name to a Page
func ParsePage(s string) (Page, error) {
	switch p := Page(s); p {
	case PageOverview, PageFeeds, PageHistory, PageAdmin:
		return p, nil
	case "":
		return PageOverview, nil
	}
	return "", fmt.Errorf("unknown page %q", s)
}

// RecentAlerts is how many alerts the overview's short table shows
const RecentAlerts = 5

// Source is the read side of the upstream API
type Source interface {
	ListAlerts(ctx context.Context) ([]models.Alert, error)
	ListStreams(ctx context.Context) ([]models.Stream, error)
	ListCameras(ctx context.Context) ([]models.Camera, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Options tune a view's poller
type Options struct {
	// Interval applies to the overview only. Other pages fetch on mount
	// and after mutations.
	Interval time.Duration
	Bus      *events.Bus
	Actor    string
	// ObserveAlerts sees every alert list fetched, applied or not
	ObserveAlerts func([]models.Alert)
}

// View is one mounted page
type View struct {
	Page    Page
	Alerts  *poller.Slot[models.Alert]
	Streams *poller.Slot[models.Stream]
	Cameras *poller.Slot[models.Camera]
	Users   *poller.Slot[models.User]
	Poller  *poller.Poller
}

// NewView builds the fetch batch for page. The poller is not started.
func NewView(page Page, src Source, opts Options) *View {
	v := &View{Page: page}

	var jobs []poller.Job
	alerts := func() {
		v.Alerts = &poller.Slot[models.Alert]{}
		fetch := src.ListAlerts
		if opts.ObserveAlerts != nil {
			fetch = func(ctx context.Context) ([]models.Alert, error) {
				items, err := src.ListAlerts(ctx)
				if err == nil {
					opts.ObserveAlerts(items)
				}
				return items, err
			}
		}
		jobs = append(jobs, poller.Bind(poller.ResourceFunc("alerts", fetch), v.Alerts))
	}
	streams := func() {
		v.Streams = &poller.Slot[models.Stream]{}
		jobs = append(jobs, poller.Bind(poller.ResourceFunc("streams", src.ListStreams), v.Streams))
	}
	cameras := func() {
		v.Cameras = &poller.Slot[models.Camera]{}
		jobs = append(jobs, poller.Bind(poller.ResourceFunc("cameras", src.ListCameras), v.Cameras))
	}
	users := func() {
		v.Users = &poller.Slot[models.User]{}
		jobs = append(jobs, poller.Bind(poller.ResourceFunc("users", src.ListUsers), v.Users))
	}

	var interval time.Duration
	switch page {
	case PageOverview:
		alerts()
		streams()
		cameras()
		users()
		interval = opts.Interval
		if interval <= 0 {
			interval = poller.DefaultInterval
		}
	case PageFeeds:
		cameras()
	case PageHistory:
		streams()
	case PageAdmin:
		users()
		cameras()
	}

	p := poller.New(string(page), interval, poller.NewBatch(jobs...))
	p.Bus = opts.Bus
	p.Actor = opts.Actor
	v.Poller = p
	return v
}

// Snapshot is what a page renders and what the live hub pushes
type Snapshot struct {
	Page      Page            `json:"page"`
	Loaded    bool            `json:"loaded"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stats     *chart.Stats    `json:"stats,omitempty"`
	Range     chart.Range     `json:"range,omitempty"`
	Title     string          `json:"chart_title,omitempty"`
	Chart     []chart.Bar     `json:"chart,omitempty"`
	Recent    []models.Alert  `json:"recent_alerts,omitempty"`
	Alerts    []models.Alert  `json:"alerts"`
	Streams   []models.Stream `json:"streams"`
	Cameras   []models.Camera `json:"cameras"`
	Users     []models.User   `json:"users"`
	Activity  []events.Event  `json:"activity,omitempty"`
}

// Snapshot reads every slot of the view. now fixes both the chart window
// and the time zone buckets are labeled in.
func (v *View) Snapshot(r chart.Range, now time.Time) Snapshot {
	s := Snapshot{
		Page:    v.Page,
		Loaded:  true,
		Alerts:  []models.Alert{},
		Streams: []models.Stream{},
		Cameras: []models.Camera{},
		Users:   []models.User{},
	}
	s.Alerts, s.Loaded, s.FetchedAt = read(v.Alerts, s.Alerts, s.Loaded, s.FetchedAt)
	s.Streams, s.Loaded, s.FetchedAt = read(v.Streams, s.Streams, s.Loaded, s.FetchedAt)
	s.Cameras, s.Loaded, s.FetchedAt = read(v.Cameras, s.Cameras, s.Loaded, s.FetchedAt)
	s.Users, s.Loaded, s.FetchedAt = read(v.Users, s.Users, s.Loaded, s.FetchedAt)

	if v.Page == PageOverview {
		stats := chart.ComputeStats(s.Alerts, s.Streams, s.Cameras, s.Users)
		s.Stats = &stats
		s.Range = r
		s.Title = r.Title()
		s.Chart = chart.Bucketize(s.Alerts, r, now)
		s.Recent = chart.Recent(s.Alerts, RecentAlerts)
	}
	return s
}

// read merges one slot into the snapshot: Loaded only if every slot has
// been filled, FetchedAt the newest fetch.
func read[T any](slot *poller.Slot[T], empty []T, loaded bool, fetched time.Time) ([]T, bool, time.Time) {
	if slot == nil {
		return empty, loaded, fetched
	}
	items, at := slot.Get()
	if at.After(fetched) {
		fetched = at
	}
	return items, loaded && slot.Loaded(), fetched
}

// ApplyDetection records a detection toggle locally until the next fetch
// brings the server's value.
func (v *View) ApplyDetection(cameraID string, active bool) {
	if v.Cameras == nil {
		return
	}
	v.Cameras.Patch(func(items []models.Camera) []models.Camera {
		for i := range items {
			if items[i].ID == cameraID {
				items[i].DetectionActive = active
			}
		}
		return items
	})
}
