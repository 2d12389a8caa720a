package emailverification

import (
	"context"

	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

// ClaimKey is the session claim holding whether the session's login method
// has a verified email.
const ClaimKey = "st-ev"

type Mode string

const (
	ModeRequired Mode = "REQUIRED"
	ModeOptional Mode = "OPTIONAL"
)

// Claim is the email verification session claim. Its value is a bool.
type Claim struct {
	session.BooleanClaim
	store core.EmailVerificationStore
}

var _ session.FetchableClaim = (*Claim)(nil)

func NewClaim(store core.EmailVerificationStore) *Claim {
	return &Claim{BooleanClaim: session.NewBooleanClaim(ClaimKey), store: store}
}

// Fetch reports the verification state of the session's login method. A
// login method without an email counts as verified.
func (c *Claim) Fetch(ctx context.Context, u *user.User, recipeUserID kernel.RecipeUserID, _ kernel.TenantID) (any, bool, error) {
	lm, ok := u.LoginMethodFor(recipeUserID)
	if !ok {
		return nil, false, core.ErrUnknownUser().WithDetail("recipe_user_id", recipeUserID)
	}
	if lm.Email == nil {
		return true, true, nil
	}
	verified, err := c.store.IsEmailVerified(ctx, recipeUserID, *lm.Email)
	if err != nil {
		return nil, false, err
	}
	return verified, true, nil
}

// IsVerified passes when the session's email is verified.
func IsVerified() session.Validator {
	return session.NewBooleanClaim(ClaimKey).IsTrue()
}

// SessionClaimVerifier implements accountlinking.EmailVerifier on top of
// the session claim.
type SessionClaimVerifier struct{}

var _ accountlinking.EmailVerifier = SessionClaimVerifier{}

func (SessionClaimVerifier) RequireVerification(ctx context.Context, sess session.Session) error {
	claim := session.NewBooleanClaim(ClaimKey)
	if v, present := claim.Value(ctx, sess); !present || v {
		if err := sess.SetClaimValue(ctx, claim, false); err != nil {
			return err
		}
	}
	return sess.AssertClaims(ctx, IsVerified())
}
