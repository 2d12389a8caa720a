package session

import (
	"context"
	"time"

	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

// Session is an authenticated session. UserID is the primary user id when
// the login method is linked, RecipeUserID is the login method that created
// the session.
type Session interface {
	UserID() kernel.UserID
	RecipeUserID() kernel.RecipeUserID
	TenantID() kernel.TenantID
	Handle() string
	AccessToken() string

	ClaimValue(ctx context.Context, claim Claim) (any, bool)
	SetClaimValue(ctx context.Context, claim Claim, value any) error
	AssertClaims(ctx context.Context, validators ...Validator) error
}

// Provider creates and resolves sessions.
type Provider interface {
	CreateNewSession(ctx context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID) (Session, error)
	// GetSession returns ErrUnauthorised for a missing, expired or revoked token.
	GetSession(ctx context.Context, accessToken string) (Session, error)
	RevokeSession(ctx context.Context, handle string) error
}

// Store persists session documents keyed by handle.
type Store interface {
	Put(ctx context.Context, doc *Document, ttl time.Duration) error
	// Get returns nil, nil when the handle is unknown.
	Get(ctx context.Context, handle string) (*Document, error)
	Delete(ctx context.Context, handle string) error
}

// Document is the stored state of a session.
type Document struct {
	Handle       string              `json:"handle"`
	UserID       kernel.UserID       `json:"userId"`
	RecipeUserID kernel.RecipeUserID `json:"recipeUserId"`
	TenantID     kernel.TenantID     `json:"tenantId"`
	Claims       map[string]any      `json:"claims"`
	CreatedAt    time.Time           `json:"createdAt"`
	ExpiresAt    time.Time           `json:"expiresAt"`
}

// Claim is a named value kept in the session.
type Claim interface {
	Key() string
}

// FetchableClaim computes its initial value when a session is created.
type FetchableClaim interface {
	Claim
	Fetch(ctx context.Context, u *user.User, recipeUserID kernel.RecipeUserID, tenantID kernel.TenantID) (value any, ok bool, err error)
}

// Validator checks a claim value. present is false when the claim is unset.
type Validator struct {
	ClaimKey string
	ID       string
	Validate func(value any, present bool) bool
}
