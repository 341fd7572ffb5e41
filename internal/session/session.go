package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"memberportal/internal/token"
)

// CookieName is the session cookie set on login.
const CookieName = "mp_session"

// LegacyRoleCookie predates the signed token and is cleared on logout so
// stale clients do not keep presenting it.
const LegacyRoleCookie = "member_role"

const claimsKey = "session.claims"

// ErrUnauthorized means no valid session was presented.
var ErrUnauthorized = errors.New("session: unauthorized")

// ErrForbidden means the session role is not in the allowed set.
var ErrForbidden = errors.New("session: forbidden")

// Gate extracts and enforces session claims on requests.
type Gate struct {
	codec *token.Codec
}

// NewGate builds a gate over the given codec.
func NewGate(codec *token.Codec) *Gate {
	return &Gate{codec: codec}
}

// Authorize is the service-level guard: it checks that claims exist and
// that the role is in the enumerated allowed set. There is no role
// hierarchy; admin passes a moderator check only when admin is listed.
func Authorize(claims *token.Claims, allowed ...token.Role) error {
	if claims == nil {
		return ErrUnauthorized
	}
	for _, r := range allowed {
		if claims.Role == r {
			return nil
		}
	}
	return ErrForbidden
}

// FromRequest reads the bearer token from the session cookie, falling back
// to the Authorization header, and verifies it. Nil when no valid session
// is present.
func (g *Gate) FromRequest(c *gin.Context) *token.Claims {
	raw, err := c.Cookie(CookieName)
	if err != nil || raw == "" {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return nil
		}
		raw = strings.TrimSpace(authz[len("bearer "):])
	}
	return g.codec.Verify(raw)
}

// Middleware attaches claims to the context when a valid session exists.
// It never rejects; guards decide.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims := g.FromRequest(c); claims != nil {
			c.Set(claimsKey, claims)
		}
		c.Next()
	}
}

// RequireAuth aborts with 401 unless a valid session was attached.
func (g *Gate) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Claims(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Next()
	}
}

// RequireRole aborts with 401 when unauthenticated and 403 when the role
// is not in the allowed set.
func (g *Gate) RequireRole(allowed ...token.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := Authorize(Claims(c), allowed...)
		switch {
		case errors.Is(err, ErrUnauthorized):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		case errors.Is(err, ErrForbidden):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
		default:
			c.Next()
		}
	}
}

// Claims returns the verified claims attached by Middleware, or nil.
func Claims(c *gin.Context) *token.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.Claims)
	return claims
}

// IssueCookie sets the session cookie for an issued token: http-only,
// SameSite=Lax, max-age matching the token TTL.
func (g *Gate) IssueCookie(c *gin.Context, signed string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, signed, int(g.codec.TTL().Seconds()), "/", "", false, true)
}

// ClearCookies expires the session cookie and the legacy role cookie.
// Logout is cookie deletion only; issued tokens stay valid until expiry.
func (g *Gate) ClearCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", false, true)
	c.SetCookie(LegacyRoleCookie, "", -1, "/", "", false, false)
}
