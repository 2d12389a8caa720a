package auth

import (
	"context"
	"net/http"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/mfa"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

// ============================================================================
// Linking with the session user
// ============================================================================

// LinkingWithSession is what the client asked for when it sent a request
// with an active session.
type LinkingWithSession int

const (
	// LinkIfPossible links to the session user when allowed and falls back
	// to a first factor sign in/up otherwise.
	LinkIfPossible LinkingWithSession = iota
	// LinkRequired fails the request when linking is not possible.
	LinkRequired
	// LinkDisabled ignores the session.
	LinkDisabled
)

// ParseLinkingWithSession maps the optional boolean request field.
func ParseLinkingWithSession(v *bool) LinkingWithSession {
	switch {
	case v == nil:
		return LinkIfPossible
	case *v:
		return LinkRequired
	default:
		return LinkDisabled
	}
}

func (l LinkingWithSession) String() string {
	switch l {
	case LinkIfPossible:
		return "if_possible"
	case LinkRequired:
		return "required"
	case LinkDisabled:
		return "disabled"
	}
	return "unknown"
}

// ============================================================================
// Statuses
// ============================================================================

// Status is the outcome of an auth step as reported by the API.
type Status string

const (
	StatusOK                         Status = "OK"
	StatusSignUpNotAllowed           Status = "SIGN_UP_NOT_ALLOWED"
	StatusSignInNotAllowed           Status = "SIGN_IN_NOT_ALLOWED"
	StatusSignInUpNotAllowed         Status = "SIGN_IN_UP_NOT_ALLOWED"
	StatusLinkingToSessionUserFailed Status = "LINKING_TO_SESSION_USER_FAILED"
	StatusEmailAlreadyExists         Status = "EMAIL_ALREADY_EXISTS_ERROR"
	StatusWrongCredentials           Status = "WRONG_CREDENTIALS_ERROR"
)

// ============================================================================
// Results
// ============================================================================

// AuthTypeResult says whether a request is a first factor sign in/up or a
// secondary factor completed against the session user.
type AuthTypeResult struct {
	Status Status
	Reason accountlinking.SessionLinkFailure

	IsFirstFactor                            bool
	InputUserAlreadyLinkedToSessionUser      bool
	SessionUser                              *user.User
	LinkingToSessionUserRequiresVerification bool
}

var firstFactor = AuthTypeResult{Status: StatusOK, IsFirstFactor: true}

// PreAuthInput describes a sign in/up attempt before credentials are checked.
type PreAuthInput struct {
	AccountInfo user.AccountInfoWithRecipeID
	// AuthenticatingUser is nil for a sign up.
	AuthenticatingUser          *user.User
	TenantID                    kernel.TenantID
	FactorIDs                   []mfa.FactorID
	IsSignUp                    bool
	IsVerified                  bool
	SignInVerifiesLoginMethod   bool
	SkipSessionUserUpdateInCore bool
	Session                     session.Session
	LinkingWithSession          LinkingWithSession
}

// PreAuthResult carries the factors the attempt may complete.
type PreAuthResult struct {
	Status         Status
	Reason         accountlinking.SessionLinkFailure
	ValidFactorIDs []mfa.FactorID
	IsFirstFactor  bool
}

// PostAuthInput describes a successful authentication.
type PostAuthInput struct {
	AuthenticatedUser *user.User
	RecipeUserID      kernel.RecipeUserID
	IsSignUp          bool
	FactorID          mfa.FactorID
	Session           session.Session
	TenantID          kernel.TenantID
}

// PostAuthResult holds the session the response should carry.
type PostAuthResult struct {
	Status  Status
	Session session.Session
	User    *user.User
}

// LinkInput names the recipe user to link after authentication.
type LinkInput struct {
	TenantID           kernel.TenantID
	InputUser          *user.User
	RecipeUserID       kernel.RecipeUserID
	Session            session.Session
	LinkingWithSession LinkingWithSession
}

// LinkOutput is the user the recipe user ended up in.
type LinkOutput struct {
	Status Status
	Reason accountlinking.SessionLinkFailure
	User   *user.User
}

// CredentialsChecker reports whether the credentials of the request are
// valid for a login method that lives in tenantID.
type CredentialsChecker func(ctx context.Context, tenantID kernel.TenantID) (bool, error)

// AuthenticatingUserInput describes a sign in to resolve to a user.
type AuthenticatingUserInput struct {
	RecipeID                 user.RecipeID
	AccountInfo              user.AccountInfo
	TenantID                 kernel.TenantID
	Session                  session.Session
	CheckCredentialsOnTenant CredentialsChecker
}

// AuthenticatingUser is the user a sign in targets together with the login
// method that matched.
type AuthenticatingUser struct {
	User        *user.User
	LoginMethod user.LoginMethod
}

// ============================================================================
// Error Registry
// ============================================================================

// ErrRegistry holds the AUTH error codes.
var ErrRegistry = errx.NewRegistry("AUTH")

var (
	CodeBadInput           = ErrRegistry.Register("BAD_INPUT", errx.TypeValidation, http.StatusBadRequest, "Invalid authentication request")
	CodeUnmappedStatus     = ErrRegistry.Register("UNMAPPED_STATUS", errx.TypeInternal, http.StatusInternalServerError, "Unmapped error status")
	CodeInconsistentInput  = ErrRegistry.Register("INCONSISTENT_INPUT", errx.TypeInternal, http.StatusInternalServerError, "Inconsistent input passed to the auth flow")
	CodeMultipleCandidates = ErrRegistry.Register("MULTIPLE_CANDIDATES", errx.TypeInternal, http.StatusInternalServerError, "More than one user matches the authenticating login method")
	CodeForbidden          = ErrRegistry.Register("FORBIDDEN", errx.TypeAuthorization, http.StatusForbidden, "The session user does not own this resource")
)

// ErrBadInput reports a malformed auth request.
func ErrBadInput(message string) *errx.Error {
	return ErrRegistry.NewWithMessage(CodeBadInput, message)
}

func ErrUnmappedStatus(status Status, reason string) *errx.Error {
	return ErrRegistry.New(CodeUnmappedStatus).
		WithDetail("status", status).
		WithDetail("reason", reason)
}

func ErrInconsistentInput(message string) *errx.Error {
	return ErrRegistry.NewWithMessage(CodeInconsistentInput, message)
}

func ErrMultipleCandidates() *errx.Error { return ErrRegistry.New(CodeMultipleCandidates) }

func ErrForbidden() *errx.Error { return ErrRegistry.New(CodeForbidden) }
