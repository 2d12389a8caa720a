package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

const (
	// AccessTokenCookie is the cookie fallback for the bearer token.
	AccessTokenCookie = "sAccessToken"
	// AccessTokenHeader carries the access token of a newly created session.
	AccessTokenHeader = "st-access-token"

	localsAccessToken = "auth.access_token"
	localsSession     = "auth.session"
)

// SessionMiddleware resolves the request's access token into a session.
type SessionMiddleware struct {
	sessions session.Provider
}

func NewSessionMiddleware(sessions session.Provider) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

// Optional stores the access token when present. Auth APIs resolve it later
// with LoadSessionInAuthAPIIfNeeded, since whether it matters depends on the
// request body.
func (m *SessionMiddleware) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := extractToken(c); token != "" {
			c.Locals(localsAccessToken, token)
		}
		return c.Next()
	}
}

// Require rejects requests without a valid session.
func (m *SessionMiddleware) Require() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractToken(c)
		if token == "" {
			return session.ErrUnauthorised().WithDetail("reason", "missing access token")
		}

		sess, err := m.sessions.GetSession(c.UserContext(), token)
		if err != nil {
			return err
		}

		ctx := kernel.WithUserID(c.UserContext(), sess.UserID())
		ctx = kernel.WithTenantID(ctx, sess.TenantID())
		c.SetUserContext(ctx)
		c.Locals(localsAccessToken, token)
		c.Locals(localsSession, sess)
		return c.Next()
	}
}

// AccessToken returns the token stored by the middleware.
func AccessToken(c *fiber.Ctx) string {
	token, _ := c.Locals(localsAccessToken).(string)
	return token
}

// SessionFrom returns the session resolved by Require, or nil.
func SessionFrom(c *fiber.Ctx) session.Session {
	sess, _ := c.Locals(localsSession).(session.Session)
	return sess
}

func extractToken(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
			return parts[1]
		}
	}
	return c.Cookies(AccessTokenCookie)
}

// AttachSession returns the access token of sess in the response header and
// as an http only cookie living for ttl.
func AttachSession(c *fiber.Ctx, sess session.Session, ttl time.Duration) {
	c.Set(AccessTokenHeader, sess.AccessToken())
	c.Cookie(&fiber.Cookie{
		Name:     AccessTokenCookie,
		Value:    sess.AccessToken(),
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
