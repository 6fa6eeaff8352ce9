package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"roadguard/internal/events"
)

// DefaultInterval is the overview refresh period
const DefaultInterval = 10 * time.Second

// Poller runs a batch on mount, every Interval, and on demand. A zero
// Interval means mount and on-demand only.
type Poller struct {
	Name     string
	Batch    *Batch
	Interval time.Duration

	// OnUpdate runs after every run whose results were applied, even a
	// partially failed one.
	OnUpdate func()
	// OnError sees the joined error of every failed run that was applied
	OnError func(error)
	Bus     *events.Bus
	// Actor tags fetch_failed events with the owning session's email
	Actor string

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	runs    sync.WaitGroup
}

func New(name string, interval time.Duration, batch *Batch) *Poller {
	return &Poller{Name: name, Batch: batch, Interval: interval}
}

// Start performs the mount fetch and starts the timer. Calling Start twice
// or after Stop does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	p.goRun(ctx)

	if p.Interval <= 0 {
		return
	}
	p.runs.Add(1)
	go func() {
		defer p.runs.Done()
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// Runs are not serialized: a slow fetch can overlap the next tick.
				p.goRun(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Refresh runs the batch once, immediately, and waits for it. Mutators
// call this after a successful write.
func (p *Poller) Refresh(ctx context.Context) error {
	p.runs.Add(1)
	defer p.runs.Done()
	return p.run(ctx)
}

// Stop cancels the timer. Fetches already in flight finish but their
// results are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	if p.stopCh != nil {
		close(p.stopCh)
	}
}

// Stopped reports whether Stop has been called
func (p *Poller) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Wait blocks until the timer loop and every run started so far have
// returned. Call it after Stop.
func (p *Poller) Wait() {
	p.runs.Wait()
}

func (p *Poller) goRun(ctx context.Context) {
	p.runs.Add(1)
	go func() {
		defer p.runs.Done()
		p.run(ctx)
	}()
}

func (p *Poller) run(ctx context.Context) error {
	if p.Stopped() {
		return nil
	}
	accept := func() bool { return !p.Stopped() }

	err := p.Batch.run(ctx, accept)
	if !accept() {
		return err
	}
	if err != nil {
		log.Printf("⚠️  poller: %s fetch failed: %v", p.Name, err)
		p.Bus.Publish(events.Event{
			Type:     events.FetchFailed,
			Severity: events.SeverityWarning,
			Actor:    p.Actor,
			Entity:   p.Name,
			Message:  "Failed to refresh " + p.Name,
			Metadata: map[string]string{"error": err.Error()},
		})
		if p.OnError != nil {
			p.OnError(err)
		}
	}
	if p.OnUpdate != nil {
		p.OnUpdate()
	}
	return err
}
