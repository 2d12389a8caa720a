package authsrv_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/auth/authsrv"
)

func newApp(e *env, guards ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(errx.HTTPStatusOf(err)).SendString(err.Error())
		},
	})
	authsrv.NewHandler(e.svc).RegisterRoutes(app.Group("/auth"), auth.NewSessionMiddleware(e.sessions), guards...)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestHandler_UnlinkAndHistory(t *testing.T) {
	e := newEnv()
	app := newApp(e)
	alice, epRid, sess := e.linkedAlice(t)

	status, body := call(t, app, http.MethodPost, "/auth/accounts/unlink", sess.AccessToken(),
		`{"recipeUserId":"`+epRid.String()+`"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["wasLinked"])

	for _, event := range e.published {
		require.NoError(t, e.events.Save(t.Context(), event))
	}

	status, body = call(t, app, http.MethodGet, "/auth/users/"+string(alice.ID)+"/link-events?page=1&page_size=10", sess.AccessToken(), "")
	require.Equal(t, http.StatusOK, status)
	items, ok := body["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "unlinked", items[0].(map[string]any)["kind"])
}

func TestHandler_Rejections(t *testing.T) {
	e := newEnv()
	app := newApp(e)
	_, _, sess := e.linkedAlice(t)

	status, _ := call(t, app, http.MethodPost, "/auth/accounts/unlink", "", `{"recipeUserId":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, app, http.MethodPost, "/auth/accounts/unlink", sess.AccessToken(), `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, app, http.MethodGet, "/auth/users/someone-else/link-events", sess.AccessToken(), "")
	assert.Equal(t, http.StatusForbidden, status)
}

func TestHandler_GuardsRunAfterSession(t *testing.T) {
	e := newEnv()
	_, _, sess := e.linkedAlice(t)

	var seen bool
	app := newApp(e, func(c *fiber.Ctx) error {
		seen = auth.SessionFrom(c) != nil
		return errx.Validation("blocked by guard")
	})

	status, _ := call(t, app, http.MethodGet, "/auth/users/x/link-events", sess.AccessToken(), "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.True(t, seen)
}
