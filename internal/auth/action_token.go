package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"roadguard/internal/db"
	"roadguard/internal/mutate"
)

// ActionTokenHeader carries a confirm token on destructive requests
const ActionTokenHeader = "X-Action-Token"

// DefaultActionTTL is how long an operator has to use a confirm token
const DefaultActionTTL = 2 * time.Minute

// ActionToken is a single-use confirmation for one destructive action on
// one target, bound to the console session that asked for it.
type ActionToken struct {
	Token     string        `json:"token"`
	Action    mutate.Action `json:"action"`
	Target    string        `json:"target"`
	SessionID string        `json:"-"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// ActionTokenService issues and redeems confirm tokens in action_tokens
type ActionTokenService struct {
	db  *sql.DB
	TTL time.Duration
}

// NewActionTokenService expects the action_tokens table from db.Migrate
func NewActionTokenService(conn *sql.DB) *ActionTokenService {
	return &ActionTokenService{db: conn, TTL: DefaultActionTTL}
}

// Create issues a token for action on target. Only destructive actions can
// be confirmed.
func (s *ActionTokenService) Create(sessionID string, action mutate.Action, target string) (*ActionToken, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	if !mutate.IsDestructive(action) {
		return nil, fmt.Errorf("%q does not need confirmation", action)
	}

	token, err := generateActionToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	expiresAt := time.Now().UTC().Add(s.TTL)

	_, err = s.db.Exec(`
		INSERT INTO action_tokens (token, action, target, session_id, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		token, string(action), target, sessionID, db.TimeString(expiresAt))
	if err != nil {
		return nil, fmt.Errorf("store action token: %w", err)
	}

	return &ActionToken{
		Token:     token,
		Action:    action,
		Target:    target,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	}, nil
}

// Redeem consumes token if it is unused, unexpired and was issued to
// sessionID for exactly this action and target.
func (s *ActionTokenService) Redeem(token, sessionID string, action mutate.Action, target string) error {
	if token == "" {
		return mutate.ErrNotConfirmed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var storedAction, storedTarget, storedSession string
	var used, expired int
	err = tx.QueryRow(`
		SELECT action, target, session_id, used,
		       CASE WHEN expires_at < datetime('now') THEN 1 ELSE 0 END
		FROM action_tokens WHERE token = ?`, token).
		Scan(&storedAction, &storedTarget, &storedSession, &used, &expired)
	if err == sql.ErrNoRows {
		return errors.New("invalid action token")
	}
	if err != nil {
		return fmt.Errorf("lookup token: %w", err)
	}

	switch {
	case used != 0:
		return errors.New("action token already consumed")
	case expired != 0:
		return errors.New("action token expired")
	case storedSession != sessionID:
		return errors.New("action token not bound to this session")
	case storedAction != string(action):
		return fmt.Errorf("action token does not match requested action %q", action)
	case storedTarget != target:
		return fmt.Errorf("action token does not match target %q", target)
	}

	if _, err := tx.Exec(`UPDATE action_tokens SET used = 1 WHERE token = ?`, token); err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	return tx.Commit()
}

// Confirmer returns a mutate.Confirmer that redeems the token carried by r
func (s *ActionTokenService) Confirmer(r *http.Request) mutate.Confirmer {
	token := r.Header.Get(ActionTokenHeader)
	sessionID := ConsoleID(r.Context())
	return mutate.ConfirmFunc(func(ctx context.Context, action mutate.Action, target string) error {
		return s.Redeem(token, sessionID, action, target)
	})
}

// Revoke deletes a token the operator cancelled
func (s *ActionTokenService) Revoke(token string) error {
	_, err := s.db.Exec(`DELETE FROM action_tokens WHERE token = ?`, token)
	return err
}

// CleanupExpired removes expired and consumed tokens
func (s *ActionTokenService) CleanupExpired() {
	res, err := s.db.Exec(`DELETE FROM action_tokens WHERE expires_at < datetime('now') OR used = 1`)
	if err != nil {
		log.Printf("⚠️  Action token cleanup failed: %v", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("🧹 Removed %d stale action tokens", n)
	}
}

// HandleConfirm issues a confirm token: POST /api/confirm {"action","target"}
func (s *ActionTokenService) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		Target string `json:"target"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	action, ok := mutate.ParseAction(req.Action)
	if !ok {
		jsonError(w, "Unknown action", http.StatusBadRequest)
		return
	}
	if action == mutate.DeleteAllAlerts || action == mutate.DeleteAllStreams {
		req.Target = "all"
	}

	tok, err := s.Create(ConsoleID(r.Context()), action, req.Target)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonResponse(w, tok)
}

func generateActionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
