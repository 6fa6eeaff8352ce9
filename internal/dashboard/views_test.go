package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"roadguard/internal/chart"
	"roadguard/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	alerts  []models.Alert
	streams []models.Stream
	cameras []models.Camera
	users   []models.User
	failOn  string
	calls   atomic.Int32
}

func (f *fakeSource) fail(name string) error {
	f.calls.Add(1)
	if f.failOn == name {
		return errors.New(name + " unavailable")
	}
	return nil
}

func (f *fakeSource) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Alert(nil), f.alerts...), f.fail("alerts")
}

func (f *fakeSource) ListStreams(ctx context.Context) ([]models.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Stream(nil), f.streams...), f.fail("streams")
}

func (f *fakeSource) ListCameras(ctx context.Context) ([]models.Camera, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Camera(nil), f.cameras...), f.fail("cameras")
}

func (f *fakeSource) ListUsers(ctx context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.User(nil), f.users...), f.fail("users")
}

func at(s string) models.Timestamp {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return models.Timestamp{Time: t}
}

func sampleSource() *fakeSource {
	return &fakeSource{
		alerts: []models.Alert{
			{ID: "a1", Location: "M-2", Details: "Collision", Time: at("2026-03-31T12:00:00Z")},
			{ID: "a2", Location: "GT Road", Details: "Rollover", Time: at("2026-03-30T09:00:00Z")},
		},
		streams: []models.Stream{{ID: "s1", IsActive: true}, {ID: "s2"}},
		cameras: []models.Camera{{ID: "c1", Name: "Gate"}},
		users:   []models.User{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}},
	}
}

func TestOverviewSnapshot(t *testing.T) {
	src := sampleSource()
	v := NewView(PageOverview, src, Options{})
	if v.Poller.Interval != 10*time.Second {
		t.Errorf("overview interval = %v", v.Poller.Interval)
	}
	if err := v.Poller.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 31, 14, 30, 0, 0, time.UTC)
	snap := v.Snapshot(chart.Range24h, now)
	if !snap.Loaded {
		t.Error("expected loaded snapshot")
	}
	if snap.Stats == nil {
		t.Fatal("overview must carry stats")
	}
	want := chart.Stats{Alerts: 2, ActiveStreams: 1, Cameras: 1, Users: 3}
	if *snap.Stats != want {
		t.Errorf("stats = %+v, want %+v", *snap.Stats, want)
	}
	if snap.Title != "Accident Trends (24h)" {
		t.Errorf("title = %q", snap.Title)
	}
	if len(snap.Chart) != 6 || snap.Chart[3].Count != 1 {
		t.Errorf("chart = %+v", snap.Chart)
	}
	if len(snap.Recent) != 2 {
		t.Errorf("recent = %d", len(snap.Recent))
	}
}

func TestPagesFetchOnlyWhatTheyShow(t *testing.T) {
	cases := []struct {
		page  Page
		calls int32
	}{
		{PageOverview, 4},
		{PageFeeds, 1},
		{PageHistory, 1},
		{PageAdmin, 2},
	}
	for _, tc := range cases {
		src := sampleSource()
		v := NewView(tc.page, src, Options{})
		if err := v.Poller.Refresh(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := src.calls.Load(); got != tc.calls {
			t.Errorf("%s made %d calls, want %d", tc.page, got, tc.calls)
		}
		if tc.page != PageOverview && v.Poller.Interval != 0 {
			t.Errorf("%s should not poll on an interval", tc.page)
		}
	}
}

func TestSnapshotKeepsStaleDataOnFailure(t *testing.T) {
	src := sampleSource()
	v := NewView(PageAdmin, src, Options{})
	if err := v.Poller.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	src.mu.Lock()
	src.users = nil
	src.cameras = nil
	src.failOn = "users"
	src.mu.Unlock()

	if err := v.Poller.Refresh(context.Background()); err == nil {
		t.Fatal("expected batch failure")
	}
	snap := v.Snapshot(chart.DefaultRange, time.Now())
	if len(snap.Users) != 3 {
		t.Errorf("users should keep last good snapshot, got %d", len(snap.Users))
	}
	if len(snap.Cameras) != 0 {
		t.Errorf("cameras fetch succeeded and should apply, got %d", len(snap.Cameras))
	}
}

func TestEmptySnapshotBeforeFirstFetch(t *testing.T) {
	v := NewView(PageHistory, sampleSource(), Options{})
	snap := v.Snapshot(chart.DefaultRange, time.Now())
	if snap.Loaded {
		t.Error("nothing fetched yet")
	}
	if snap.Streams == nil || len(snap.Streams) != 0 {
		t.Errorf("streams = %#v", snap.Streams)
	}
	if snap.Stats != nil {
		t.Error("only the overview carries stats")
	}
}

func TestObserveAlerts(t *testing.T) {
	var seen int
	v := NewView(PageOverview, sampleSource(), Options{
		ObserveAlerts: func(a []models.Alert) { seen += len(a) },
	})
	if err := v.Poller.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if seen != 2 {
		t.Errorf("observed %d alerts", seen)
	}
}

func TestMountsOptimisticToggleThenServerWins(t *testing.T) {
	src := sampleSource()
	mounts := NewMounts()
	v := NewView(PageFeeds, src, Options{})
	unmount := mounts.Mount(context.Background(), "sess", v)
	// Feeds have no interval, so Wait returns once the mount fetch lands.
	v.Poller.Wait()

	mounts.ApplyDetection("sess", "c1", true)
	if !v.Cameras.Items()[0].DetectionActive {
		t.Fatal("optimistic patch not applied")
	}

	// The server never started detection; the next applied fetch wins.
	if err := mounts.Refresh(context.Background(), "sess"); err != nil {
		t.Fatal(err)
	}
	if v.Cameras.Items()[0].DetectionActive {
		t.Error("server value should replace the optimistic one")
	}

	unmount()
	v.Poller.Wait()
	if got := len(mounts.Views("sess")); got != 0 {
		t.Errorf("views after unmount = %d", got)
	}
	if got := mounts.Registry.Count("sess"); got != 0 {
		t.Errorf("pollers after unmount = %d", got)
	}
}

func TestParsePage(t *testing.T) {
	if p, err := ParsePage(""); err != nil || p != PageOverview {
		t.Errorf("ParsePage(\"\") = %q, %v", p, err)
	}
	if _, err := ParsePage("settings"); err == nil {
		t.Error("expected error")
	}
}
