package dashboard

import (
	"context"
	"sync"

	"roadguard/internal/poller"
)

// Mounts tracks the views each console session has open. Pollers go
// through the registry so a mutation can refresh them all; the views are
// kept alongside for optimistic edits.
type Mounts struct {
	Registry *poller.Registry

	mu    sync.Mutex
	views map[string]map[*View]struct{}
}

func NewMounts() *Mounts {
	return &Mounts{
		Registry: poller.NewRegistry(),
		views:    make(map[string]map[*View]struct{}),
	}
}

// Mount starts v's poller for sessionID. Call the returned func on
// unmount.
func (m *Mounts) Mount(ctx context.Context, sessionID string, v *View) (unmount func()) {
	m.mu.Lock()
	set := m.views[sessionID]
	if set == nil {
		set = make(map[*View]struct{})
		m.views[sessionID] = set
	}
	set[v] = struct{}{}
	m.mu.Unlock()

	stop := m.Registry.Mount(ctx, sessionID, v.Poller)
	return func() {
		stop()
		m.mu.Lock()
		defer m.mu.Unlock()
		if set := m.views[sessionID]; set != nil {
			delete(set, v)
			if len(set) == 0 {
				delete(m.views, sessionID)
			}
		}
	}
}

// Views returns the views sessionID has mounted
func (m *Mounts) Views(sessionID string) []*View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*View, 0, len(m.views[sessionID]))
	for v := range m.views[sessionID] {
		out = append(out, v)
	}
	return out
}

// Refresh re-runs every poller sessionID has mounted
func (m *Mounts) Refresh(ctx context.Context, sessionID string) error {
	return m.Registry.Refresh(ctx, sessionID)
}

// RefreshFunc binds Refresh to one session, the shape mutate.Mutator wants
func (m *Mounts) RefreshFunc(sessionID string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return m.Refresh(ctx, sessionID)
	}
}

// ApplyDetection patches the camera badge in every view of sessionID
func (m *Mounts) ApplyDetection(sessionID, cameraID string, active bool) {
	for _, v := range m.Views(sessionID) {
		v.ApplyDetection(cameraID, active)
	}
}

// StopSession unmounts every view of sessionID
func (m *Mounts) StopSession(sessionID string) {
	m.Registry.StopSession(sessionID)
	m.mu.Lock()
	delete(m.views, sessionID)
	m.mu.Unlock()
}

// StopAll unmounts everything, used on shutdown
func (m *Mounts) StopAll() {
	m.Registry.StopAll()
	m.mu.Lock()
	m.views = make(map[string]map[*View]struct{})
	m.mu.Unlock()
}
