package auth_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/core/coremem"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/session/sessionmem"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

func newMiddlewareApp(t *testing.T) (*fiber.App, session.Session) {
	t.Helper()
	ctx := context.Background()
	users := coremem.New(coremem.WithTestMode())
	res, err := users.CreateEmailPasswordUser(ctx, kernel.DefaultTenantID, "alice@x.com", "password1")
	require.NoError(t, err)

	sessions := sessionmem.NewProvider(session.NewTokenCodec("secret", "", time.Hour), users)
	sess, err := sessions.CreateNewSession(ctx, kernel.DefaultTenantID, res.RecipeUserID)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(errx.HTTPStatusOf(err)).SendString(err.Error())
		},
	})
	mw := auth.NewSessionMiddleware(sessions)
	app.Get("/me", mw.Require(), func(c *fiber.Ctx) error {
		userID, _ := kernel.UserIDFromContext(c.UserContext())
		return c.SendString(string(userID) + "|" + auth.SessionFrom(c).Handle())
	})
	app.Get("/token", mw.Optional(), func(c *fiber.Ctx) error {
		return c.SendString(auth.AccessToken(c))
	})
	return app, sess
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestSessionMiddleware_RequireWithBearer(t *testing.T) {
	app, sess := newMiddlewareApp(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(sess.UserID())+"|"+sess.Handle(), body(t, resp))
}

func TestSessionMiddleware_RequireWithCookie(t *testing.T) {
	app, sess := newMiddlewareApp(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.AccessTokenCookie, Value: sess.AccessToken()})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionMiddleware_RequireRejects(t *testing.T) {
	app, _ := newMiddlewareApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionMiddleware_OptionalStoresToken(t *testing.T) {
	app, sess := newMiddlewareApp(t)

	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken(), body(t, resp))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/token", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body(t, resp))
}
