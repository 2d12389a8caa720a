package emailpasswordsrv

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/emailpassword"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

type Handler struct {
	service *Service
	orch    *auth.Orchestrator
	ttl     time.Duration
}

// NewHandler builds the sign in/up API. ttl bounds the access token cookie.
func NewHandler(service *Service, orch *auth.Orchestrator, ttl time.Duration) *Handler {
	return &Handler{service: service, orch: orch, ttl: ttl}
}

func (h *Handler) RegisterRoutes(r fiber.Router, mw *auth.SessionMiddleware) {
	r.Post("/signup", mw.Optional(), h.signUp)
	r.Post("/signin", mw.Optional(), h.signIn)
}

type formField struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type signInUpRequest struct {
	FormFields                      []formField `json:"formFields"`
	TenantID                        string      `json:"tenantId"`
	ShouldTryLinkingWithSessionUser *bool       `json:"shouldTryLinkingWithSessionUser"`
}

func (h *Handler) signUp(c *fiber.Ctx) error {
	return h.handle(c, h.service.SignUp)
}

func (h *Handler) signIn(c *fiber.Ctx) error {
	return h.handle(c, h.service.SignIn)
}

func (h *Handler) handle(c *fiber.Ctx, run func(ctx context.Context, in emailpassword.Credentials) (emailpassword.Result, error)) error {
	var req signInUpRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithDetail("error", err.Error())
	}

	in := emailpassword.Credentials{
		TenantID:           kernel.NewTenantID(req.TenantID).OrDefault(),
		LinkingWithSession: auth.ParseLinkingWithSession(req.ShouldTryLinkingWithSessionUser),
	}
	for _, f := range req.FormFields {
		switch f.ID {
		case emailpassword.FieldEmail:
			in.Email = f.Value
		case emailpassword.FieldPassword:
			in.Password = f.Value
		}
	}

	sess, err := h.orch.LoadSessionInAuthAPIIfNeeded(c.UserContext(), auth.AccessToken(c), in.LinkingWithSession)
	if err != nil {
		return err
	}
	in.Session = sess

	res, err := run(c.UserContext(), in)
	if errx.IsCode(err, emailpassword.CodeFieldError) {
		return fieldError(c, err)
	}
	if err != nil {
		return err
	}

	if res.Status != auth.StatusOK {
		return c.JSON(auth.StatusResponse{Status: res.Status, Reason: res.Reason})
	}
	auth.AttachSession(c, res.Session, h.ttl)
	return c.JSON(fiber.Map{"status": res.Status, "user": res.User})
}

func fieldError(c *fiber.Ctx, err error) error {
	var e *errx.Error
	errx.As(err, &e)
	field, _ := e.Details["field"].(string)
	return c.JSON(fiber.Map{
		"status":     "FIELD_ERROR",
		"formFields": []fiber.Map{{"id": field, "error": e.Message}},
	})
}
