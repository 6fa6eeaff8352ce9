package poller

import (
	"context"
	"errors"
	"sync"
)

// Registry tracks the mounted pollers of every console session so that a
// mutation can refresh all views its session has open.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]map[*Poller]struct{}
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[*Poller]struct{})}
}

// Mount starts p and records it under sessionID. The returned func stops
// and forgets it (the unmount).
func (r *Registry) Mount(ctx context.Context, sessionID string, p *Poller) (unmount func()) {
	r.mu.Lock()
	set := r.sessions[sessionID]
	if set == nil {
		set = make(map[*Poller]struct{})
		r.sessions[sessionID] = set
	}
	set[p] = struct{}{}
	r.mu.Unlock()

	p.Start(ctx)

	return func() {
		p.Stop()
		r.mu.Lock()
		defer r.mu.Unlock()
		if set := r.sessions[sessionID]; set != nil {
			delete(set, p)
			if len(set) == 0 {
				delete(r.sessions, sessionID)
			}
		}
	}
}

// Count returns how many pollers sessionID has mounted
func (r *Registry) Count(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[sessionID])
}

// Refresh re-runs every poller mounted by sessionID
func (r *Registry) Refresh(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	pollers := make([]*Poller, 0, len(r.sessions[sessionID]))
	for p := range r.sessions[sessionID] {
		pollers = append(pollers, p)
	}
	r.mu.Unlock()

	var errs []error
	for _, p := range pollers {
		if err := p.Refresh(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopSession stops and forgets every poller of sessionID, used on logout
func (r *Registry) StopSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := range r.sessions[sessionID] {
		p.Stop()
	}
	delete(r.sessions, sessionID)
}

// StopAll stops every poller, used on shutdown
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, set := range r.sessions {
		for p := range set {
			p.Stop()
		}
		delete(r.sessions, id)
	}
}
