package emailverificationsrv

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/emailverification"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

type Handler struct {
	service  *Service
	sessions session.Provider
	ttl      time.Duration
}

// NewHandler builds the email verification API. ttl bounds the access token
// cookie of a replaced session.
func NewHandler(service *Service, sessions session.Provider, ttl time.Duration) *Handler {
	return &Handler{service: service, sessions: sessions, ttl: ttl}
}

// RegisterRoutes mounts the email verification API under r.
func (h *Handler) RegisterRoutes(r fiber.Router, mw *auth.SessionMiddleware) {
	r.Post("/user/email/verify/token", mw.Require(), h.sendToken)
	r.Post("/user/email/verify", mw.Optional(), h.verify)
	r.Get("/user/email/verify", mw.Require(), h.isVerified)
}

// RequireVerified guards routes behind a verified email when the mode is
// REQUIRED. It must run after SessionMiddleware.Require.
func (h *Handler) RequireVerified() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if h.service.Mode() != emailverification.ModeRequired {
			return c.Next()
		}
		sess := auth.SessionFrom(c)
		if _, err := h.service.IsVerified(c.UserContext(), sess); err != nil {
			return err
		}
		if err := sess.AssertClaims(c.UserContext(), emailverification.IsVerified()); err != nil {
			return err
		}
		return c.Next()
	}
}

type verifyRequest struct {
	Method   string `json:"method"`
	Token    string `json:"token"`
	TenantID string `json:"tenantId"`
}

func (h *Handler) sendToken(c *fiber.Ctx) error {
	status, err := h.service.SendEmail(c.UserContext(), auth.SessionFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

func (h *Handler) verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithDetail("error", err.Error())
	}
	if req.Method != "" && req.Method != "token" {
		return errx.Validation("unsupported verification method").WithDetail("method", req.Method)
	}

	var sess session.Session
	if token := auth.AccessToken(c); token != "" {
		s, err := h.sessions.GetSession(c.UserContext(), token)
		if err != nil {
			return err
		}
		sess = s
	}

	res, err := h.service.VerifyEmail(c.UserContext(), kernel.NewTenantID(req.TenantID).OrDefault(), req.Token, sess)
	if err != nil {
		return err
	}
	if res.Session != nil {
		auth.AttachSession(c, res.Session, h.ttl)
	}
	return c.JSON(res)
}

func (h *Handler) isVerified(c *fiber.Ctx) error {
	verified, err := h.service.IsVerified(c.UserContext(), auth.SessionFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "OK", "isVerified": verified})
}
