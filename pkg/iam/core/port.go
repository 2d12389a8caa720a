package core

import (
	"context"

	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

// Client is the port to the user store ("core"). It owns users, login
// methods and the uniqueness invariant: no two primary users may share an
// email, phone number, third-party identity or webauthn credential within a
// tenant. Every mutating call enforces it atomically.
type Client interface {
	UserReader
	LinkingWriter
	TenantAssociator
	EmailPasswordStore
	EmailVerificationStore
	PasswordlessStore
}

type UserReader interface {
	// GetUser returns nil, nil when the user does not exist. A recipe user
	// id resolves to the primary user holding it.
	GetUser(ctx context.Context, userID kernel.UserID) (*user.User, error)

	// ListUsersByAccountInfo lists users with a login method matching info
	// in tenantID. With doUnion any field may match, otherwise all given
	// fields must match the same login method.
	ListUsersByAccountInfo(ctx context.Context, tenantID kernel.TenantID, info user.AccountInfo, doUnion bool) ([]user.User, error)
}

type LinkingWriter interface {
	CreatePrimaryUser(ctx context.Context, recipeUserID kernel.RecipeUserID) (CreatePrimaryUserResult, error)
	LinkAccounts(ctx context.Context, recipeUserID kernel.RecipeUserID, primaryUserID kernel.UserID) (LinkAccountsResult, error)
	UnlinkAccount(ctx context.Context, recipeUserID kernel.RecipeUserID) (UnlinkResult, error)
}

type TenantAssociator interface {
	AssociateUserToTenant(ctx context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID) (AssociateStatus, error)
}

// EmailPasswordStore holds password credentials. Hashing is the store's job.
type EmailPasswordStore interface {
	CreateEmailPasswordUser(ctx context.Context, tenantID kernel.TenantID, email, password string) (SignUpResult, error)
	VerifyEmailPasswordCredentials(ctx context.Context, tenantID kernel.TenantID, email, password string) (SignInResult, error)
}

// PasswordlessStore signs in or up the passwordless login method of an email
// or phone number whose ownership a one time code already proved. The email
// of the login method is verified as part of the call.
type PasswordlessStore interface {
	SignInUpPasswordlessUser(ctx context.Context, tenantID kernel.TenantID, info user.AccountInfo) (PasswordlessResult, error)
}

type EmailVerificationStore interface {
	CreateEmailVerificationToken(ctx context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID, email string) (VerificationTokenResult, error)
	VerifyEmailUsingToken(ctx context.Context, tenantID kernel.TenantID, token string) (VerifyEmailResult, error)
	IsEmailVerified(ctx context.Context, recipeUserID kernel.RecipeUserID, email string) (bool, error)
	// MarkEmailAsVerified verifies without a token. tenantID is a tenant the
	// login method belongs to.
	MarkEmailAsVerified(ctx context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID, email string) error
}

// ============================================================================
// Result types
// ============================================================================

type CreatePrimaryUserStatus string

const (
	CreatePrimaryUserOK                                   CreatePrimaryUserStatus = "OK"
	CreatePrimaryUserRecipeUserIDAlreadyLinkedWithPrimary CreatePrimaryUserStatus = "RECIPE_USER_ID_ALREADY_LINKED_WITH_PRIMARY_USER_ID_ERROR"
	CreatePrimaryUserAccountInfoAlreadyAssociated         CreatePrimaryUserStatus = "ACCOUNT_INFO_ALREADY_ASSOCIATED_WITH_ANOTHER_PRIMARY_USER_ID_ERROR"
)

type CreatePrimaryUserResult struct {
	Status            CreatePrimaryUserStatus `json:"status"`
	User              *user.User              `json:"user,omitempty"`
	WasAlreadyPrimary bool                    `json:"wasAlreadyAPrimaryUser,omitempty"`
	PrimaryUserID     kernel.UserID           `json:"primaryUserId,omitempty"`
	Description       string                  `json:"description,omitempty"`
}

type LinkAccountsStatus string

const (
	LinkAccountsOK                                      LinkAccountsStatus = "OK"
	LinkAccountsRecipeUserIDAlreadyLinkedWithAnother    LinkAccountsStatus = "RECIPE_USER_ID_ALREADY_LINKED_WITH_ANOTHER_PRIMARY_USER_ID_ERROR"
	LinkAccountsInputUserIsNotPrimary                   LinkAccountsStatus = "INPUT_USER_IS_NOT_A_PRIMARY_USER"
	LinkAccountsAccountInfoAlreadyAssociatedWithAnother LinkAccountsStatus = "ACCOUNT_INFO_ALREADY_ASSOCIATED_WITH_ANOTHER_PRIMARY_USER_ID_ERROR"
)

type LinkAccountsResult struct {
	Status                LinkAccountsStatus `json:"status"`
	User                  *user.User         `json:"user,omitempty"`
	AccountsAlreadyLinked bool               `json:"accountsAlreadyLinked,omitempty"`
	PrimaryUserID         kernel.UserID      `json:"primaryUserId,omitempty"`
	Description           string             `json:"description,omitempty"`
}

type UnlinkStatus string

const (
	UnlinkOK UnlinkStatus = "OK"
)

type UnlinkResult struct {
	Status               UnlinkStatus `json:"status"`
	WasRecipeUserDeleted bool         `json:"wasRecipeUserDeleted"`
	WasLinked            bool         `json:"wasLinked"`
}

type AssociateStatus string

const (
	AssociateOK                       AssociateStatus = "OK"
	AssociateUnknownUserID            AssociateStatus = "UNKNOWN_USER_ID_ERROR"
	AssociateEmailAlreadyExists       AssociateStatus = "EMAIL_ALREADY_EXISTS_ERROR"
	AssociatePhoneNumberAlreadyExists AssociateStatus = "PHONE_NUMBER_ALREADY_EXISTS_ERROR"
	AssociateThirdPartyAlreadyExists  AssociateStatus = "THIRD_PARTY_USER_ALREADY_EXISTS_ERROR"
	AssociationNotAllowed             AssociateStatus = "ASSOCIATION_NOT_ALLOWED_ERROR"
)

type SignUpStatus string

const (
	SignUpOK                 SignUpStatus = "OK"
	SignUpEmailAlreadyExists SignUpStatus = "EMAIL_ALREADY_EXISTS_ERROR"
)

type SignUpResult struct {
	Status       SignUpStatus        `json:"status"`
	User         *user.User          `json:"user,omitempty"`
	RecipeUserID kernel.RecipeUserID `json:"recipeUserId,omitempty"`
}

type SignInStatus string

const (
	SignInOK               SignInStatus = "OK"
	SignInWrongCredentials SignInStatus = "WRONG_CREDENTIALS_ERROR"
)

type SignInResult struct {
	Status       SignInStatus        `json:"status"`
	User         *user.User          `json:"user,omitempty"`
	RecipeUserID kernel.RecipeUserID `json:"recipeUserId,omitempty"`
}

type PasswordlessStatus string

const (
	PasswordlessOK PasswordlessStatus = "OK"
)

type PasswordlessResult struct {
	Status               PasswordlessStatus  `json:"status"`
	CreatedNewRecipeUser bool                `json:"createdNewUser"`
	User                 *user.User          `json:"user,omitempty"`
	RecipeUserID         kernel.RecipeUserID `json:"recipeUserId,omitempty"`
}

type VerificationTokenStatus string

const (
	VerificationTokenOK                   VerificationTokenStatus = "OK"
	VerificationTokenEmailAlreadyVerified VerificationTokenStatus = "EMAIL_ALREADY_VERIFIED_ERROR"
)

type VerificationTokenResult struct {
	Status VerificationTokenStatus `json:"status"`
	Token  string                  `json:"token,omitempty"`
}

type VerifyEmailStatus string

const (
	VerifyEmailOK           VerifyEmailStatus = "OK"
	VerifyEmailInvalidToken VerifyEmailStatus = "EMAIL_VERIFICATION_INVALID_TOKEN_ERROR"
)

type VerifyEmailResult struct {
	Status       VerifyEmailStatus   `json:"status"`
	RecipeUserID kernel.RecipeUserID `json:"userId,omitempty"`
	Email        string              `json:"email,omitempty"`
}
