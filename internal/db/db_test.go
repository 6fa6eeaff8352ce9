package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := Migrate(conn); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	for _, table := range []string{"console_sessions", "notification_history"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestInitCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "console.db")
	if err := Init(path); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(Close)

	if err := DB.Ping(); err != nil {
		t.Fatal(err)
	}
}

func TestTimeHelpers(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := ParseNullTime(sql.NullString{String: TimeString(ts), Valid: true})
	if !got.Equal(ts) {
		t.Errorf("round trip = %v, want %v", got, ts)
	}
	if NullTimeString(time.Time{}) != nil {
		t.Error("zero time should store as NULL")
	}
	if !ParseNullTime(sql.NullString{}).IsZero() {
		t.Error("NULL should parse as zero time")
	}
	if got := ParseTime(ts.Format(time.RFC3339Nano)); !got.Equal(ts) {
		t.Errorf("RFC 3339 = %v, want %v", got, ts)
	}
	if !ParseTime("yesterday").IsZero() {
		t.Error("garbage should parse as zero time")
	}
}

// DATETIME columns come back from the driver as time.Time; scanning them
// into strings must still round trip.
func TestDatetimeColumnRoundTrip(t *testing.T) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Exec(`CREATE TABLE t (at DATETIME)`); err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2026, 10, 16, 12, 27, 32, 0, time.UTC)
	if _, err := conn.Exec(`INSERT INTO t (at) VALUES (?)`, TimeString(ts)); err != nil {
		t.Fatal(err)
	}

	var ns sql.NullString
	if err := conn.QueryRow(`SELECT at FROM t`).Scan(&ns); err != nil {
		t.Fatal(err)
	}
	if got := ParseNullTime(ns); !got.Equal(ts) {
		t.Errorf("scanned %q, parsed %v, want %v", ns.String, got, ts)
	}
}
