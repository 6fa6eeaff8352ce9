package events

import "sync"

// Recorder keeps the most recent events in a fixed-size ring for the
// overview activity log.
type Recorder struct {
	mu    sync.Mutex
	buf   []Event
	next  int
	count int
}

// NewRecorder creates a recorder holding up to size events
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 50
	}
	return &Recorder{buf: make([]Event, size)}
}

// Attach subscribes the recorder to every event on bus
func (r *Recorder) Attach(bus *Bus) func() {
	return bus.Subscribe(r.Record)
}

func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
}

// Recent returns up to n events, newest first. n <= 0 returns everything held.
func (r *Recorder) Recent(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// ForActor filters Recent to events caused by actor plus events with no
// actor (poller observations visible to everyone).
func (r *Recorder) ForActor(actor string, n int) []Event {
	all := r.Recent(0)
	out := make([]Event, 0, n)
	for _, e := range all {
		if e.Actor == "" || e.Actor == actor {
			out = append(out, e)
			if n > 0 && len(out) == n {
				break
			}
		}
	}
	return out
}
