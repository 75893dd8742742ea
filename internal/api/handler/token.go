package handler

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/practicedesk/console/internal/core/domain"
)

// TokenIssuer signs the bearer tokens handed out on login.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a token bound to the identity and the platform session it
// logged in under.
func (t *TokenIssuer) Issue(id domain.AppIdentity, platform domain.PlatformIdentity) (string, time.Time, error) {
	exp := t.now().Add(t.ttl)
	claims := jwt.MapClaims{
		"username": id.Username,
		"role":     string(id.Role),
		"sid":      platform.ID,
		"exp":      exp.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
