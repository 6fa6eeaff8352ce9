package session

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"roadguard/internal/db"
	"roadguard/internal/models"
)

// SQLPersister stores one browser's session in the console_sessions table,
// keyed by the console session id carried in that browser's cookie.
type SQLPersister struct {
	DB     *sql.DB
	ID     string
	Sealer *Sealer
	// TTL bounds sessions whose token carries no expiry
	TTL time.Duration
}

// NewSessionID returns a fresh random console session id
func NewSessionID() string {
	return uuid.NewString()
}

// Load implements Persister
func (p *SQLPersister) Load() (*Session, error) {
	if p.ID == "" {
		return nil, nil
	}

	var s Session
	var role, expiresAt string
	err := p.DB.QueryRow(`
		SELECT token, role, email, expires_at
		FROM console_sessions
		WHERE id = ? AND expires_at > datetime('now')`, p.ID).
		Scan(&s.Token, &role, &s.Email, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load console session: %w", err)
	}

	if s.Token, err = p.Sealer.Open(s.Token); err != nil {
		return nil, err
	}
	s.Role = models.Role(role)
	s.ExpiresAt = db.ParseTime(expiresAt)

	p.DB.Exec(`UPDATE console_sessions SET last_seen = CURRENT_TIMESTAMP WHERE id = ?`, p.ID)
	return &s, nil
}

// Save implements Persister
func (p *SQLPersister) Save(s Session) error {
	if p.ID == "" {
		return fmt.Errorf("console session id is required")
	}
	sealed, err := p.Sealer.Seal(s.Token)
	if err != nil {
		return err
	}

	expires := s.ExpiresAt
	if p.TTL > 0 {
		if limit := time.Now().Add(p.TTL); expires.IsZero() || limit.Before(expires) {
			expires = limit
		}
	}
	if expires.IsZero() {
		expires = time.Now().Add(24 * time.Hour)
	}

	_, err = p.DB.Exec(`
		INSERT INTO console_sessions (id, token, role, email, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token      = excluded.token,
			role       = excluded.role,
			email      = excluded.email,
			expires_at = excluded.expires_at,
			last_seen  = CURRENT_TIMESTAMP`,
		p.ID, sealed, string(s.Role), s.Email, db.TimeString(expires))
	if err != nil {
		return fmt.Errorf("save console session: %w", err)
	}
	return nil
}

// Clear implements Persister
func (p *SQLPersister) Clear() error {
	_, err := p.DB.Exec(`DELETE FROM console_sessions WHERE id = ?`, p.ID)
	return err
}

// CleanupExpired removes expired console sessions
func CleanupExpired(conn *sql.DB) (int64, error) {
	res, err := conn.Exec(`DELETE FROM console_sessions WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
