package authsrv

import (
	"context"

	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

// LinkEventPublisher hands an event to the background recorder.
type LinkEventPublisher func(ctx context.Context, event auth.LinkEvent) error

// AccountService lets a signed in user inspect and undo the links of their
// account.
type AccountService struct {
	users   core.UserReader
	linking *accountlinking.Engine
	events  auth.LinkEventRepository
	publish LinkEventPublisher
}

func NewAccountService(users core.UserReader, linking *accountlinking.Engine, events auth.LinkEventRepository, publish LinkEventPublisher) *AccountService {
	return &AccountService{users: users, linking: linking, events: events, publish: publish}
}

// ListLinkEvents returns the linking history of userID, which must be the
// session user.
func (s *AccountService) ListLinkEvents(ctx context.Context, sess session.Session, userID kernel.UserID, opts kernel.PaginationOptions) (kernel.Paginated[auth.LinkEvent], error) {
	if userID != sess.UserID() {
		return kernel.Paginated[auth.LinkEvent]{}, auth.ErrForbidden().WithDetail("user_id", userID)
	}
	return s.events.ListByUser(ctx, userID, opts.Normalize())
}

// Unlink detaches recipeUserID from the session user.
func (s *AccountService) Unlink(ctx context.Context, sess session.Session, recipeUserID kernel.RecipeUserID) (core.UnlinkResult, error) {
	u, err := s.users.GetUser(ctx, sess.UserID())
	if err != nil {
		return core.UnlinkResult{}, err
	}
	if u == nil {
		return core.UnlinkResult{}, session.ErrUnauthorised().WithDetail("reason", "session user not found")
	}
	lm, ok := u.LoginMethodFor(recipeUserID)
	if !ok {
		return core.UnlinkResult{}, auth.ErrForbidden().WithDetail("recipe_user_id", recipeUserID)
	}
	unlinked := *lm

	res, err := s.linking.UnlinkAccount(ctx, recipeUserID)
	if err != nil {
		return core.UnlinkResult{}, err
	}
	if res.WasLinked && s.publish != nil {
		s.record(ctx, u.ID, unlinked, sess.TenantID())
	}
	return res, nil
}

func (s *AccountService) record(ctx context.Context, primaryUserID kernel.UserID, lm user.LoginMethod, tenantID kernel.TenantID) {
	err := s.publish(ctx, auth.LinkEvent{
		Kind:          auth.LinkEventUnlinked,
		PrimaryUserID: primaryUserID,
		RecipeUserID:  lm.RecipeUserID,
		RecipeID:      lm.RecipeID,
		TenantID:      tenantID,
	})
	if err != nil {
		logx.WithContext(ctx).WithError(err).
			WithField("recipe_user_id", lm.RecipeUserID).
			Error("auth: failed to publish unlink event")
	}
}
