package accountlinking

import (
	"context"

	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

// SignInAllowedInput describes a sign in by an existing user.
type SignInAllowedInput struct {
	User        *user.User
	AccountInfo user.AccountInfoWithRecipeID
	// SignInVerifiesLoginMethod is true when a successful sign in proves
	// ownership of the contact identity, as with a passwordless code.
	SignInVerifiesLoginMethod bool
	TenantID                  kernel.TenantID
	Session                   session.Session
}

// SignUpAllowedInput describes the login method a sign up would create.
type SignUpAllowedInput struct {
	NewUser    user.AccountInfoWithRecipeID
	IsVerified bool
	TenantID   kernel.TenantID
	Session    session.Session
}

// IsSignInAllowed runs before credentials are checked. It never mutates
// anything.
func (e *Engine) IsSignInAllowed(ctx context.Context, in SignInAllowedInput) (bool, error) {
	if in.User.IsPrimaryUser || in.User.FirstLoginMethod().Verified || in.SignInVerifiesLoginMethod {
		return true, nil
	}
	return e.isSignInUpAllowed(ctx, in.AccountInfo, false, in.Session, in.TenantID, in.User)
}

// IsSignUpAllowed runs before a new recipe user is created. A sign up
// candidate carries a single contact identity.
func (e *Engine) IsSignUpAllowed(ctx context.Context, in SignUpAllowedInput) (bool, error) {
	if in.NewUser.Email != nil && in.NewUser.PhoneNumber != nil {
		return false, ErrBadInput("sign up with both an email and a phone number is not supported")
	}
	return e.isSignInUpAllowed(ctx, in.NewUser, in.IsVerified, in.Session, in.TenantID, nil)
}

// isSignInUpAllowed refuses attempts that would leave an unverified look-alike
// account linkable to a legitimate owner later on. signInUser is nil for a
// sign up.
func (e *Engine) isSignInUpAllowed(ctx context.Context, info user.AccountInfoWithRecipeID, isVerified bool, sess session.Session, tenantID kernel.TenantID, signInUser *user.User) (bool, error) {
	isSignIn := signInUser != nil
	log := logx.WithContext(ctx).WithFields(logx.Fields{"tenant_id": tenantID, "sign_in": isSignIn})

	users, err := e.core.ListUsersByAccountInfo(ctx, tenantID, info.AccountInfo, true)
	if err != nil {
		return false, err
	}
	if len(users) == 0 {
		log.Debug("linking: allowed, no user shares this identity")
		return true, nil
	}
	if isSignIn && len(users) == 1 {
		log.Debug("linking: allowed, signing into the only matching account")
		return true, nil
	}

	var primaries []*user.User
	for i := range users {
		if users[i].IsPrimaryUser {
			primaries = append(primaries, &users[i])
		}
	}

	switch len(primaries) {
	case 0:
		decision, err := e.ShouldDoAutomaticAccountLinking(ctx, info, nil, sess, tenantID)
		if err != nil {
			return false, err
		}
		if !decision.ShouldAutomaticallyLink || !decision.ShouldRequireVerification {
			return true, nil
		}

		for _, other := range users {
			if isSignIn && other.ID == signInUser.ID {
				continue
			}
			lm := other.FirstLoginMethod()
			if !lm.Verified || !lm.HasSameEmailOrPhoneAs(info.AccountInfo) {
				log.WithField("other_user_id", other.ID).
					Debug("linking: refused, another unverified user shares this identity")
				return false, nil
			}
		}
		return true, nil

	case 1:
		primary := primaries[0]
		decision, err := e.ShouldDoAutomaticAccountLinking(ctx, info, primary, sess, tenantID)
		if err != nil {
			return false, err
		}
		if !decision.ShouldAutomaticallyLink || !decision.ShouldRequireVerification {
			return true, nil
		}
		if !isVerified {
			log.WithField("primary_user_id", primary.ID).
				Debug("linking: refused, identity is unverified and a primary user holds it")
			return false, nil
		}
		if primary.HasVerifiedContact(info.AccountInfo) {
			return true, nil
		}
		log.WithField("primary_user_id", primary.ID).
			Debug("linking: refused, primary user has not verified this identity")
		return false, nil

	default:
		return false, ErrInvariantViolation().WithDetail("tenant_id", tenantID)
	}
}
