package notify

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"roadguard/internal/db"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	return conn
}

func TestRecordAndRecentHistory(t *testing.T) {
	conn := setupTestDB(t)

	for i, status := range []string{StatusSent, StatusFailed} {
		rec := &NotificationRecord{
			Target:    "generic+https://hooks.example.com",
			EventType: "alert_raised",
			AlertID:   "a1",
			Message:   "[critical] Accident at M2",
			Status:    status,
			Attempts:  i + 1,
		}
		if status == StatusSent {
			rec.SentAt = time.Now()
		} else {
			rec.ErrorMessage = "timeout"
		}
		if _, err := RecordNotification(conn, rec); err != nil {
			t.Fatal(err)
		}
	}

	hist, err := RecentHistory(conn, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 records, got %d", len(hist))
	}
	if hist[0].Status != StatusFailed || hist[0].ErrorMessage != "timeout" || hist[0].Attempts != 2 {
		t.Errorf("newest record = %+v", hist[0])
	}
	if hist[1].SentAt.IsZero() {
		t.Error("sent record should carry sent_at")
	}
}

func TestAlreadyNotified(t *testing.T) {
	conn := setupTestDB(t)
	target := "generic+https://hooks.example.com"

	RecordNotification(conn, &NotificationRecord{Target: target, EventType: "alert_raised", AlertID: "a1", Message: "m", Status: StatusFailed, Attempts: 3})
	if done, _ := AlreadyNotified(conn, target, "a1"); done {
		t.Error("a failed delivery should not count")
	}

	RecordNotification(conn, &NotificationRecord{Target: target, EventType: "alert_raised", AlertID: "a1", Message: "m", Status: StatusSent, Attempts: 1})
	if done, _ := AlreadyNotified(conn, target, "a1"); !done {
		t.Error("expected a1 to be notified")
	}
	if done, _ := AlreadyNotified(conn, "other://x", "a1"); done {
		t.Error("delivery to one target should not cover another")
	}
}

func TestPruneHistory(t *testing.T) {
	conn := setupTestDB(t)
	conn.Exec(`INSERT INTO notification_history (target, event_type, message, status, created_at)
		VALUES ('t', 'alert_raised', 'old', 'sent', datetime('now', '-40 days'))`)
	RecordNotification(conn, &NotificationRecord{Target: "t", EventType: "alert_raised", Message: "new", Status: StatusSent, Attempts: 1})

	n, err := PruneHistory(conn, 30)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}
}
