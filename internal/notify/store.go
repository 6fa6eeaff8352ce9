package notify

import (
	"database/sql"
	"fmt"

	"roadguard/internal/db"
)

// RecordNotification inserts a row into notification_history
func RecordNotification(conn *sql.DB, rec *NotificationRecord) (int64, error) {
	var alertID interface{}
	if rec.AlertID != "" {
		alertID = rec.AlertID
	}

	res, err := conn.Exec(`
		INSERT INTO notification_history
			(target, event_type, alert_id, message, status, attempts, error_message, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Target, rec.EventType, alertID, rec.Message, rec.Status,
		rec.Attempts, rec.ErrorMessage, db.NullTimeString(rec.SentAt))
	if err != nil {
		return 0, fmt.Errorf("record notification: %w", err)
	}
	return res.LastInsertId()
}

// RecentHistory returns the latest limit records, newest first
func RecentHistory(conn *sql.DB, limit int) ([]NotificationRecord, error) {
	rows, err := conn.Query(`
		SELECT id, target, event_type, COALESCE(alert_id,''),
		       message, status, COALESCE(attempts,1), COALESCE(error_message,''),
		       sent_at, created_at
		FROM notification_history
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	var out []NotificationRecord
	for rows.Next() {
		var r NotificationRecord
		var sentAt, createdAt sql.NullString
		if err := rows.Scan(&r.ID, &r.Target, &r.EventType, &r.AlertID,
			&r.Message, &r.Status, &r.Attempts, &r.ErrorMessage,
			&sentAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.SentAt = db.ParseNullTime(sentAt)
		r.CreatedAt = db.ParseNullTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AlreadyNotified reports whether alertID was delivered to target before,
// so a console restart does not page twice for the same accident.
func AlreadyNotified(conn *sql.DB, target, alertID string) (bool, error) {
	var n int
	err := conn.QueryRow(`
		SELECT COUNT(*) FROM notification_history
		WHERE target = ? AND alert_id = ? AND status = ?`,
		target, alertID, StatusSent).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check history: %w", err)
	}
	return n > 0, nil
}

// PruneHistory deletes records older than the given number of days
func PruneHistory(conn *sql.DB, days int) (int64, error) {
	res, err := conn.Exec(`
		DELETE FROM notification_history
		WHERE created_at < datetime('now', ?)`, fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}
