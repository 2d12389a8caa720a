package mfa

import (
	"context"
	"slices"

	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

type FactorID string

const (
	FactorEmailPassword FactorID = "emailpassword"
	FactorOTPEmail      FactorID = "otp-email"
	FactorOTPPhone      FactorID = "otp-phone"
	FactorLinkEmail     FactorID = "link-email"
	FactorLinkPhone     FactorID = "link-phone"
	FactorThirdParty    FactorID = "thirdparty"
	FactorTOTP          FactorID = "totp"
	FactorWebAuthn      FactorID = "webauthn"
)

func (f FactorID) String() string { return string(f) }

type FirstFactorStatus string

const (
	FirstFactorOK             FirstFactorStatus = "OK"
	FirstFactorInvalid        FirstFactorStatus = "INVALID_FIRST_FACTOR_ERROR"
	FirstFactorTenantNotFound FirstFactorStatus = "TENANT_NOT_FOUND_ERROR"
)

// FirstFactorValidator decides which factors may start a session.
type FirstFactorValidator interface {
	IsValidFirstFactor(ctx context.Context, tenantID kernel.TenantID, factorID FactorID) (FirstFactorStatus, error)
}

// Requirement is satisfied by completing any one of OneOf.
type Requirement struct {
	OneOf []FactorID `json:"oneOf"`
}

// RequirementList must be satisfied in order.
type RequirementList []Requirement

// NextUnsatisfied returns the factors of the first requirement not met by
// completed, or nil when every requirement is met.
func (l RequirementList) NextUnsatisfied(completed []FactorID) []FactorID {
	for _, r := range l {
		if !slices.ContainsFunc(r.OneOf, func(f FactorID) bool { return slices.Contains(completed, f) }) {
			return r.OneOf
		}
	}
	return nil
}

// Recipe is the multi-factor capability. It is optional: a nil Recipe means
// multi-factor auth is not configured.
type Recipe interface {
	FactorsSetUpForUser(ctx context.Context, u *user.User, tenantID kernel.TenantID) ([]FactorID, error)
	RequirementsForAuth(ctx context.Context, sess session.Session, u *user.User, factorsSetUp []FactorID, tenantID kernel.TenantID) (RequirementList, error)
	// AssertAllowedToSetupFactor takes values the caller computed once for
	// all factors it checks.
	AssertAllowedToSetupFactor(ctx context.Context, sess session.Session, factorID FactorID, factorsSetUp []FactorID, requirements RequirementList) error
	MarkFactorAsCompleteInSession(ctx context.Context, sess session.Session, factorID FactorID) error
}

// FactorsForLoginMethod lists the factors a login method provides.
func FactorsForLoginMethod(lm user.LoginMethod) []FactorID {
	switch lm.RecipeID {
	case user.RecipeEmailPassword:
		return []FactorID{FactorEmailPassword}
	case user.RecipeThirdParty:
		return []FactorID{FactorThirdParty}
	case user.RecipeWebAuthn:
		return []FactorID{FactorWebAuthn}
	case user.RecipePasswordless:
		var out []FactorID
		if lm.Email != nil {
			out = append(out, FactorOTPEmail, FactorLinkEmail)
		}
		if lm.PhoneNumber != nil {
			out = append(out, FactorOTPPhone, FactorLinkPhone)
		}
		return out
	}
	return nil
}
