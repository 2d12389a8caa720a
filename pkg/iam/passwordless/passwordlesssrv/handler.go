package passwordlesssrv

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/passwordless"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

type Handler struct {
	service *Service
	orch    *auth.Orchestrator
	ttl     time.Duration
}

// NewHandler builds the passwordless API. ttl bounds the access token cookie.
func NewHandler(service *Service, orch *auth.Orchestrator, ttl time.Duration) *Handler {
	return &Handler{service: service, orch: orch, ttl: ttl}
}

func (h *Handler) RegisterRoutes(r fiber.Router, mw *auth.SessionMiddleware) {
	r.Post("/signinup/code", mw.Optional(), h.createCode)
	r.Post("/signinup/code/consume", mw.Optional(), h.consumeCode)
}

type createCodeRequest struct {
	Email                           string `json:"email"`
	PhoneNumber                     string `json:"phoneNumber"`
	TenantID                        string `json:"tenantId"`
	ShouldTryLinkingWithSessionUser *bool  `json:"shouldTryLinkingWithSessionUser"`
}

type consumeCodeRequest struct {
	DeviceID                        string `json:"deviceId"`
	UserInputCode                   string `json:"userInputCode"`
	TenantID                        string `json:"tenantId"`
	ShouldTryLinkingWithSessionUser *bool  `json:"shouldTryLinkingWithSessionUser"`
}

func (h *Handler) createCode(c *fiber.Ctx) error {
	var req createCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithDetail("error", err.Error())
	}

	in := passwordless.CreateCodeInput{
		Contact:            passwordless.Contact{Email: req.Email, PhoneNumber: req.PhoneNumber},
		TenantID:           kernel.NewTenantID(req.TenantID).OrDefault(),
		LinkingWithSession: auth.ParseLinkingWithSession(req.ShouldTryLinkingWithSessionUser),
	}
	sess, err := h.orch.LoadSessionInAuthAPIIfNeeded(c.UserContext(), auth.AccessToken(c), in.LinkingWithSession)
	if err != nil {
		return err
	}
	in.Session = sess

	res, err := h.service.CreateCode(c.UserContext(), in)
	if err != nil {
		return err
	}
	if res.Status != auth.StatusOK {
		return c.JSON(auth.StatusResponse{Status: res.Status, Reason: res.Reason})
	}
	return c.JSON(fiber.Map{
		"status":                   res.Status,
		"deviceId":                 res.DeviceID,
		"flowType":                 res.FlowType,
		"codeLifetime":             res.CodeLifetime.Milliseconds(),
		"maximumCodeInputAttempts": res.AttemptsAllowed,
	})
}

func (h *Handler) consumeCode(c *fiber.Ctx) error {
	var req consumeCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithDetail("error", err.Error())
	}

	in := passwordless.ConsumeCodeInput{
		DeviceID:           req.DeviceID,
		UserInputCode:      req.UserInputCode,
		TenantID:           kernel.NewTenantID(req.TenantID).OrDefault(),
		LinkingWithSession: auth.ParseLinkingWithSession(req.ShouldTryLinkingWithSessionUser),
	}
	sess, err := h.orch.LoadSessionInAuthAPIIfNeeded(c.UserContext(), auth.AccessToken(c), in.LinkingWithSession)
	if err != nil {
		return err
	}
	in.Session = sess

	res, err := h.service.ConsumeCode(c.UserContext(), in)
	if err != nil {
		return err
	}
	switch res.Status {
	case auth.StatusOK:
	case passwordless.StatusIncorrectCode:
		return c.JSON(fiber.Map{
			"status":                      res.Status,
			"failedCodeInputAttemptCount": res.FailedAttempts,
			"maximumCodeInputAttempts":    res.MaxAttempts,
		})
	default:
		return c.JSON(auth.StatusResponse{Status: res.Status, Reason: res.Reason})
	}

	auth.AttachSession(c, res.Session, h.ttl)
	return c.JSON(fiber.Map{
		"status":               res.Status,
		"createdNewRecipeUser": res.CreatedNewRecipeUser,
		"user":                 res.User,
	})
}
