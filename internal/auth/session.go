package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session wraps the backend-issued bearer token. The client never verifies
// the signature (it has no signing secret); it only inspects the expiry
// claim so operations that need a live session can fail fast instead of
// round-tripping a doomed request.
type Session struct {
	token  string
	userID int
	exp    time.Time
	hasExp bool
}

// NewSession parses the token claims without verifying them.
func NewSession(token string, userID int) *Session {
	s := &Session{token: token, userID: userID}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return s
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		s.exp = exp.Time
		s.hasExp = true
	}
	return s
}

func (s *Session) Token() string {
	return s.token
}

func (s *Session) UserID() int {
	return s.userID
}

// Valid reports whether the session can still be used. A token without an
// exp claim is treated as valid; expiry is enforced server-side anyway.
func (s *Session) Valid() bool {
	if s.token == "" {
		return false
	}
	if !s.hasExp {
		return true
	}
	return time.Now().Before(s.exp)
}
