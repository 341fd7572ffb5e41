package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the access level carried by a session token.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// IsValid reports whether the role is one of the predefined roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// Claims represents the signed session payload.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// SubjectID returns the subject the token was issued for.
func (c *Claims) SubjectID() string { return c.Subject }

// Codec issues and verifies signed session tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec builds a codec. An empty secret is a configuration error and
// must abort startup, not surface per request.
func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret not configured")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the codec clock; tests only.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token for the subject with the given role, expiring at
// now + TTL.
func (c *Codec) Issue(subjectID string, role Role) (string, error) {
	if subjectID == "" {
		return "", errors.New("token: subject required")
	}
	if !role.IsValid() {
		return "", errors.New("token: unknown role")
	}
	now := c.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify parses and validates a token. It returns nil for anything that is
// not a currently valid token: malformed input, an expired token, or a bad
// signature. Callers cannot tell the cases apart, so neither can clients.
func (c *Codec) Verify(raw string) *Claims {
	if raw == "" {
		return nil
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		return nil
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil
	}
	if claims.Subject == "" || !claims.Role.IsValid() {
		return nil
	}
	return claims
}
