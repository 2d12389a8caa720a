package authsrv

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

type Handler struct {
	accounts *AccountService
}

func NewHandler(accounts *AccountService) *Handler {
	return &Handler{accounts: accounts}
}

// RegisterRoutes mounts the account API. guards run after the session is
// resolved.
func (h *Handler) RegisterRoutes(r fiber.Router, mw *auth.SessionMiddleware, guards ...fiber.Handler) {
	chain := func(last fiber.Handler) []fiber.Handler {
		handlers := append([]fiber.Handler{mw.Require()}, guards...)
		return append(handlers, last)
	}
	r.Get("/users/:id/link-events", chain(h.listLinkEvents)...)
	r.Post("/accounts/unlink", chain(h.unlink)...)
}

func (h *Handler) listLinkEvents(c *fiber.Ctx) error {
	opts := kernel.PaginationOptions{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
	}
	page, err := h.accounts.ListLinkEvents(c.UserContext(), auth.SessionFrom(c), kernel.NewUserID(c.Params("id")), opts)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

type unlinkRequest struct {
	RecipeUserID string `json:"recipeUserId"`
}

func (h *Handler) unlink(c *fiber.Ctx) error {
	var req unlinkRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body").WithDetail("error", err.Error())
	}
	if req.RecipeUserID == "" {
		return errx.Validation("recipeUserId is required")
	}

	res, err := h.accounts.Unlink(c.UserContext(), auth.SessionFrom(c), kernel.NewRecipeUserID(req.RecipeUserID))
	if err != nil {
		return err
	}
	return c.JSON(res)
}
