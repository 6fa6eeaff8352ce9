package notify

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/nicholas-fedor/shoutrrr"

	"roadguard/internal/events"
)

// Sender abstracts message dispatch so the dispatcher can be tested
// without hitting real services.
type Sender interface {
	Send(shoutrrrURL, message string) error
}

// ShoutrrrSender dispatches via the Shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(url, message string) error {
	return shoutrrr.Send(url, message)
}

const (
	DefaultAttempts = 3
	DefaultDelay    = 2 * time.Second
)

// Dispatcher forwards newly observed accidents to every configured
// Shoutrrr URL and records each delivery in notification_history.
type Dispatcher struct {
	db     *sql.DB
	bus    *events.Bus
	sender Sender
	urls   []string

	// Attempts and Delay bound the backoff for one delivery
	Attempts uint
	Delay    time.Duration

	unsubscribe func()
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher wired to the given bus and database.
func NewDispatcher(conn *sql.DB, bus *events.Bus, sender Sender, urls []string) *Dispatcher {
	if sender == nil {
		sender = ShoutrrrSender{}
	}
	return &Dispatcher{
		db:       conn,
		bus:      bus,
		sender:   sender,
		urls:     urls,
		Attempts: DefaultAttempts,
		Delay:    DefaultDelay,
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to alert events and begins dispatching. With no URLs
// configured it does nothing.
func (d *Dispatcher) Start() {
	if len(d.urls) == 0 {
		log.Println("🔕 notify: no targets configured, accident notifications disabled")
		return
	}
	ch := make(chan events.Event, 256)

	d.unsubscribe = d.bus.Subscribe(func(e events.Event) {
		select {
		case ch <- e:
		default:
			log.Printf("notify: event queue full, dropping %s event", e.Type)
		}
	}, events.AlertRaised)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case e := <-ch:
				d.handle(e)
			case <-d.stopCh:
				for {
					select {
					case e := <-ch:
						d.handle(e)
					default:
						return
					}
				}
			}
		}
	}()
	log.Printf("🔔 notify: dispatching accident alerts to %d target(s)", len(d.urls))
}

// Stop unsubscribes, drains queued events and waits for the worker.
func (d *Dispatcher) Stop() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
	close(d.stopCh)
	d.wg.Wait()
}

// Targets returns the configured URLs with credentials redacted
func (d *Dispatcher) Targets() []string {
	out := make([]string, 0, len(d.urls))
	for _, u := range d.urls {
		out = append(out, Redact(u))
	}
	return out
}

// History returns the latest delivery records, newest first
func (d *Dispatcher) History(limit int) ([]NotificationRecord, error) {
	return RecentHistory(d.db, limit)
}

// TestResult is the outcome of a test send to one target
type TestResult struct {
	Target  string `json:"target"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SendTest sends message once to every target, without retries or history
func (d *Dispatcher) SendTest(message string) []TestResult {
	results := make([]TestResult, 0, len(d.urls))
	for _, u := range d.urls {
		res := TestResult{Target: Redact(u), Success: true}
		if err := d.sender.Send(u, message); err != nil {
			log.Printf("🔔 notify: test send to %s failed: %v", res.Target, err)
			res.Success = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

func (d *Dispatcher) handle(e events.Event) {
	for _, u := range d.urls {
		target := Redact(u)
		if e.EntityID != "" {
			done, err := AlreadyNotified(d.db, target, e.EntityID)
			if err != nil {
				log.Printf("notify: %v", err)
			}
			if done {
				continue
			}
		}
		d.dispatch(u, target, e)
	}
}

// dispatch sends with exponential backoff and records the outcome once.
func (d *Dispatcher) dispatch(rawURL, target string, e events.Event) {
	msg := formatMessage(e)
	attempts := 0

	err := retry.Do(
		func() error {
			attempts++
			return d.sender.Send(rawURL, msg)
		},
		retry.Attempts(d.Attempts),
		retry.Delay(d.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("notify: retry %d to %s: %v", n+1, target, err)
		}),
	)

	rec := &NotificationRecord{
		Target:    target,
		EventType: string(e.Type),
		AlertID:   e.EntityID,
		Message:   msg,
		Attempts:  attempts,
	}
	if err != nil {
		rec.Status = StatusFailed
		rec.ErrorMessage = err.Error()
		log.Printf("❌ notify: send to %s failed: %v", target, err)
	} else {
		rec.Status = StatusSent
		rec.SentAt = time.Now().UTC()
		log.Printf("📣 notify: %s sent to %s", e.Type, target)
	}

	if _, dbErr := RecordNotification(d.db, rec); dbErr != nil {
		log.Printf("notify: record history: %v", dbErr)
	}
}

// formatMessage builds a human-readable notification string.
func formatMessage(e events.Event) string {
	msg := fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	if at := e.Metadata["time"]; at != "" {
		msg += " (" + at + ")"
	}
	if hospitals := e.Metadata["hospitals"]; hospitals != "" {
		msg += "\nNotified hospitals: " + hospitals
	}
	return msg
}
