package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roadguard/internal/models"
)

// Claims are the fields the console reads out of an API access token
type Claims struct {
	Subject   string
	Role      models.Role
	ExpiresAt time.Time
}

// ParseClaims decodes the token without verifying its signature. The API
// is the only party that validates tokens; the console only needs the
// subject, role and expiry for display and session lifetime.
func ParseClaims(token string) (*Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	c := &Claims{}
	c.Subject, _ = mc.GetSubject()
	if role, ok := mc["role"].(string); ok {
		c.Role = models.Role(role)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}
