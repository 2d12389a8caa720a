package auth

import (
	"context"
	"time"

	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

// AuditService records authentication events.
type AuditService interface {
	LogSignIn(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, method user.RecipeID, success bool)
	LogAccountCreated(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, method user.RecipeID)
	LogAccountLinked(ctx context.Context, primaryUserID kernel.UserID, recipeUserID kernel.RecipeUserID, tenantID kernel.TenantID, method user.RecipeID)
}

// NopAuditService discards every event.
type NopAuditService struct{}

func (NopAuditService) LogSignIn(context.Context, kernel.UserID, kernel.TenantID, user.RecipeID, bool) {}

func (NopAuditService) LogAccountCreated(context.Context, kernel.UserID, kernel.TenantID, user.RecipeID) {}

func (NopAuditService) LogAccountLinked(context.Context, kernel.UserID, kernel.RecipeUserID, kernel.TenantID, user.RecipeID) {}

// ============================================================================
// Link events
// ============================================================================

type LinkEventKind string

const (
	LinkEventLinked   LinkEventKind = "linked"
	LinkEventUnlinked LinkEventKind = "unlinked"
)

// LinkEvent is one entry of a user's linking history.
type LinkEvent struct {
	ID            string              `db:"id" json:"id"`
	Kind          LinkEventKind       `db:"kind" json:"kind"`
	PrimaryUserID kernel.UserID       `db:"primary_user_id" json:"primaryUserId"`
	RecipeUserID  kernel.RecipeUserID `db:"recipe_user_id" json:"recipeUserId"`
	RecipeID      user.RecipeID       `db:"recipe_id" json:"recipeId"`
	TenantID      kernel.TenantID     `db:"tenant_id" json:"tenantId"`
	CreatedAt     time.Time           `db:"created_at" json:"createdAt"`
}

// LinkEventRepository persists the linking history.
type LinkEventRepository interface {
	Save(ctx context.Context, event LinkEvent) error
	ListByUser(ctx context.Context, primaryUserID kernel.UserID, opts kernel.PaginationOptions) (kernel.Paginated[LinkEvent], error)
}
