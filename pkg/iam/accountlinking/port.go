package accountlinking

import (
	"context"

	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

// ============================================================================
// Host application hooks
// ============================================================================

// LinkDecision is the answer of the host application's linking policy.
type LinkDecision struct {
	ShouldAutomaticallyLink   bool
	ShouldRequireVerification bool
}

// NoLink declines automatic linking.
var NoLink = LinkDecision{}

// ShouldLinkFunc decides whether newAccount may be linked automatically.
// existing is nil when the question is whether newAccount may become a
// primary user.
type ShouldLinkFunc func(ctx context.Context, newAccount user.AccountInfoWithRecipeID, existing *user.User, sess session.Session, tenantID kernel.TenantID) (LinkDecision, error)

// OnAccountLinkedFunc is called after a login method was linked to a
// primary user.
type OnAccountLinkedFunc func(ctx context.Context, primary *user.User, linked user.LoginMethod)

// AlwaysLink links every account, requiring verification when asked to.
func AlwaysLink(requireVerification bool) ShouldLinkFunc {
	return func(context.Context, user.AccountInfoWithRecipeID, *user.User, session.Session, kernel.TenantID) (LinkDecision, error) {
		return LinkDecision{ShouldAutomaticallyLink: true, ShouldRequireVerification: requireVerification}, nil
	}
}

// ============================================================================
// Capabilities
// ============================================================================

// EmailVerifier is the part of email verification the linking engine needs.
type EmailVerifier interface {
	// RequireVerification sets the session's email verification claim to
	// false and asserts it. It returns the failed claim assertion.
	RequireVerification(ctx context.Context, sess session.Session) error
}

// AccountLinker is the part of the linking engine email verification needs.
type AccountLinker interface {
	CreatePrimaryUserIDOrLinkAccounts(ctx context.Context, tenantID kernel.TenantID, u *user.User, sess session.Session) (*user.User, error)
}

// ============================================================================
// Results
// ============================================================================

// LinkStatus is the outcome of a link attempt.
type LinkStatus string

const (
	LinkOK                                   LinkStatus = "OK"
	LinkNoLink                               LinkStatus = "NO_LINK"
	LinkRecipeUserIDAlreadyLinkedWithPrimary LinkStatus = "RECIPE_USER_ID_ALREADY_LINKED_WITH_PRIMARY_USER_ID_ERROR"
	LinkRecipeUserIDAlreadyLinkedWithAnother LinkStatus = "RECIPE_USER_ID_ALREADY_LINKED_WITH_ANOTHER_PRIMARY_USER_ID_ERROR"
	LinkInputUserIsNotPrimary                LinkStatus = "INPUT_USER_IS_NOT_A_PRIMARY_USER"
	LinkAccountInfoAlreadyAssociated         LinkStatus = "ACCOUNT_INFO_ALREADY_ASSOCIATED_WITH_ANOTHER_PRIMARY_USER_ID_ERROR"
)

// Retryable reports whether the status is a race the caller resolves by
// deciding again from scratch.
func (s LinkStatus) Retryable() bool {
	switch s {
	case LinkRecipeUserIDAlreadyLinkedWithPrimary, LinkInputUserIsNotPrimary, LinkAccountInfoAlreadyAssociated:
		return true
	case LinkOK, LinkNoLink, LinkRecipeUserIDAlreadyLinkedWithAnother:
		return false
	}
	return false
}

// LinkResult is the outcome of an account info or pairwise link attempt.
// User is set for OK, NO_LINK and RECIPE_USER_ID_ALREADY_LINKED_WITH_ANOTHER.
type LinkResult struct {
	Status        LinkStatus
	User          *user.User
	PrimaryUserID kernel.UserID
}

// SessionLinkStatus is the outcome of linking to the session user.
type SessionLinkStatus string

const (
	SessionLinkOK     SessionLinkStatus = "OK"
	SessionLinkFailed SessionLinkStatus = "LINKING_TO_SESSION_USER_FAILED"
)

// SessionLinkFailure is why linking to the session user failed.
type SessionLinkFailure string

const (
	FailureEmailVerificationRequired               SessionLinkFailure = "EMAIL_VERIFICATION_REQUIRED"
	FailureRecipeUserIDAlreadyLinkedWithAnother    SessionLinkFailure = "RECIPE_USER_ID_ALREADY_LINKED_WITH_ANOTHER_PRIMARY_USER_ID_ERROR"
	FailureAccountInfoAlreadyAssociated            SessionLinkFailure = "ACCOUNT_INFO_ALREADY_ASSOCIATED_WITH_ANOTHER_PRIMARY_USER_ID_ERROR"
	FailureSessionUserAccountInfoAlreadyAssociated SessionLinkFailure = "SESSION_USER_ACCOUNT_INFO_ALREADY_ASSOCIATED_WITH_ANOTHER_PRIMARY_USER_ID_ERROR"
	// FailureInputUserIsNotPrimary means the session user lost its primary
	// status. Callers retry from promoting the session user.
	FailureInputUserIsNotPrimary SessionLinkFailure = "INPUT_USER_IS_NOT_A_PRIMARY_USER"
)

// SessionLinkInput links AuthLoginMethod, the login method that just
// authenticated, to the primary SessionUser.
type SessionLinkInput struct {
	SessionUser                 *user.User
	AuthLoginMethod             user.LoginMethod
	LinkingRequiresVerification bool
}

// SessionLinkResult holds the primary user when Status is OK.
type SessionLinkResult struct {
	Status SessionLinkStatus
	Reason SessionLinkFailure
	User   *user.User
}

type PrimarySessionUserStatus string

const (
	PrimarySessionUserOK                           PrimarySessionUserStatus = "OK"
	PrimarySessionUserShouldNotLink                PrimarySessionUserStatus = "SHOULD_AUTOMATICALLY_LINK_FALSE"
	PrimarySessionUserAccountInfoAlreadyAssociated PrimarySessionUserStatus = "ACCOUNT_INFO_ALREADY_ASSOCIATED_WITH_ANOTHER_PRIMARY_USER_ID_ERROR"
)

type PrimarySessionUserResult struct {
	Status      PrimarySessionUserStatus
	SessionUser *user.User
}

type EmailChangeReason string

const (
	EmailChangePrimaryUserConflict EmailChangeReason = "PRIMARY_USER_CONFLICT"
	EmailChangeAccountTakeoverRisk EmailChangeReason = "ACCOUNT_TAKEOVER_RISK"
)

type EmailChangeResult struct {
	Allowed bool
	Reason  EmailChangeReason
}
