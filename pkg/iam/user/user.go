package user

import (
	"slices"
	"strings"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/ptrx"
)

// ============================================================================
// Recipes
// ============================================================================

// RecipeID names the authentication method that created a login method.
type RecipeID string

const (
	RecipeEmailPassword RecipeID = "emailpassword"
	RecipePasswordless  RecipeID = "passwordless"
	RecipeThirdParty    RecipeID = "thirdparty"
	RecipeWebAuthn      RecipeID = "webauthn"
)

func (r RecipeID) String() string { return string(r) }

// ============================================================================
// Account info
// ============================================================================

// ThirdParty identifies a social login: the provider id and the user id the
// provider assigned.
type ThirdParty struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// WebAuthn lists the credential ids registered for a login method.
type WebAuthn struct {
	CredentialIDs []string `json:"credentialIds"`
}

// AccountInfo is the candidate identity being authenticated.
type AccountInfo struct {
	Email       *string     `json:"email,omitempty"`
	PhoneNumber *string     `json:"phoneNumber,omitempty"`
	ThirdParty  *ThirdParty `json:"thirdParty,omitempty"`
	WebAuthn    *WebAuthn   `json:"webauthn,omitempty"`
}

// IsEmpty reports whether no identity field is set.
func (a AccountInfo) IsEmpty() bool {
	return a.Email == nil && a.PhoneNumber == nil && a.ThirdParty == nil &&
		(a.WebAuthn == nil || len(a.WebAuthn.CredentialIDs) == 0)
}

// AccountInfoWithRecipeID binds an AccountInfo to the recipe authenticating it.
type AccountInfoWithRecipeID struct {
	AccountInfo
	RecipeID RecipeID `json:"recipeId"`
}

// ============================================================================
// Login methods
// ============================================================================

// LoginMethod is a single recipe level user.
type LoginMethod struct {
	RecipeID     RecipeID            `json:"recipeId"`
	RecipeUserID kernel.RecipeUserID `json:"recipeUserId"`
	TenantIDs    []kernel.TenantID   `json:"tenantIds"`
	Email        *string             `json:"email,omitempty"`
	PhoneNumber  *string             `json:"phoneNumber,omitempty"`
	ThirdParty   *ThirdParty         `json:"thirdParty,omitempty"`
	WebAuthn     *WebAuthn           `json:"webauthn,omitempty"`
	Verified     bool                `json:"verified"`
	TimeJoined   int64               `json:"timeJoined"`
}

// HasSameEmailAs compares emails case-insensitively. A nil email never matches.
func (lm LoginMethod) HasSameEmailAs(email *string) bool {
	if email == nil || lm.Email == nil {
		return false
	}
	return NormalizeEmail(*lm.Email) == NormalizeEmail(*email)
}

// HasSamePhoneNumberAs compares phone numbers ignoring formatting characters.
func (lm LoginMethod) HasSamePhoneNumberAs(phone *string) bool {
	if phone == nil || lm.PhoneNumber == nil {
		return false
	}
	a, b := NormalizePhoneNumber(*lm.PhoneNumber), NormalizePhoneNumber(*phone)
	return a != "" && a == b
}

func (lm LoginMethod) HasSameThirdPartyInfoAs(tp *ThirdParty) bool {
	if tp == nil || lm.ThirdParty == nil {
		return false
	}
	return strings.TrimSpace(lm.ThirdParty.ID) == strings.TrimSpace(tp.ID) &&
		strings.TrimSpace(lm.ThirdParty.UserID) == strings.TrimSpace(tp.UserID)
}

// HasSameWebAuthnInfoAs matches when any credential id is shared.
func (lm LoginMethod) HasSameWebAuthnInfoAs(w *WebAuthn) bool {
	if w == nil || lm.WebAuthn == nil {
		return false
	}
	for _, id := range w.CredentialIDs {
		if slices.Contains(lm.WebAuthn.CredentialIDs, id) {
			return true
		}
	}
	return false
}

// Matches reports whether any identity field of info is held by lm.
func (lm LoginMethod) Matches(info AccountInfo) bool {
	return lm.HasSameEmailAs(info.Email) ||
		lm.HasSamePhoneNumberAs(info.PhoneNumber) ||
		lm.HasSameThirdPartyInfoAs(info.ThirdParty) ||
		lm.HasSameWebAuthnInfoAs(info.WebAuthn)
}

// HasSameEmailOrPhoneAs is the contact-identity comparison used by the
// verification checks.
func (lm LoginMethod) HasSameEmailOrPhoneAs(info AccountInfo) bool {
	return lm.HasSameEmailAs(info.Email) || lm.HasSamePhoneNumberAs(info.PhoneNumber)
}

// InTenant reports whether the login method is associated with tenantID.
func (lm LoginMethod) InTenant(tenantID kernel.TenantID) bool {
	return slices.Contains(lm.TenantIDs, tenantID)
}

// AccountInfo projects the login method into the candidate identity shape.
func (lm LoginMethod) AccountInfo() AccountInfoWithRecipeID {
	return AccountInfoWithRecipeID{
		RecipeID: lm.RecipeID,
		AccountInfo: AccountInfo{
			Email:       ptrx.Clone(lm.Email),
			PhoneNumber: ptrx.Clone(lm.PhoneNumber),
			ThirdParty:  ptrx.Clone(lm.ThirdParty),
			WebAuthn:    ptrx.Clone(lm.WebAuthn),
		},
	}
}

// Clone returns a deep copy of lm.
func (lm LoginMethod) Clone() LoginMethod {
	lm.TenantIDs = slices.Clone(lm.TenantIDs)
	lm.Email = ptrx.Clone(lm.Email)
	lm.PhoneNumber = ptrx.Clone(lm.PhoneNumber)
	lm.ThirdParty = ptrx.Clone(lm.ThirdParty)
	if lm.WebAuthn != nil {
		lm.WebAuthn = &WebAuthn{CredentialIDs: slices.Clone(lm.WebAuthn.CredentialIDs)}
	}
	return lm
}

// ============================================================================
// User
// ============================================================================

// User is a possibly multi-method user. For a non primary user ID equals the
// recipe user id of its only login method.
type User struct {
	ID            kernel.UserID     `json:"id"`
	IsPrimaryUser bool              `json:"isPrimaryUser"`
	TimeJoined    int64             `json:"timeJoined"`
	TenantIDs     []kernel.TenantID `json:"tenantIds"`
	LoginMethods  []LoginMethod     `json:"loginMethods"`
}

// Validate checks the shape invariant of a user returned by the core.
func (u *User) Validate() error {
	if len(u.LoginMethods) == 0 {
		return ErrInvalidUser().WithDetail("user_id", u.ID).WithDetail("reason", "no login methods")
	}
	if !u.IsPrimaryUser && len(u.LoginMethods) != 1 {
		return ErrInvalidUser().
			WithDetail("user_id", u.ID).
			WithDetail("reason", "non primary user with more than one login method")
	}
	return nil
}

// FirstLoginMethod returns the login method of a non primary user.
func (u *User) FirstLoginMethod() LoginMethod {
	return u.LoginMethods[0]
}

// LoginMethodFor returns the login method with the given recipe user id.
func (u *User) LoginMethodFor(id kernel.RecipeUserID) (*LoginMethod, bool) {
	for i := range u.LoginMethods {
		if u.LoginMethods[i].RecipeUserID == id {
			return &u.LoginMethods[i], true
		}
	}
	return nil, false
}

// HasLoginMethod reports whether the recipe user id is part of u.
func (u *User) HasLoginMethod(id kernel.RecipeUserID) bool {
	_, ok := u.LoginMethodFor(id)
	return ok
}

// SharesIdentityWith reports whether any login method of u matches info.
func (u *User) SharesIdentityWith(info AccountInfo) bool {
	return slices.ContainsFunc(u.LoginMethods, func(lm LoginMethod) bool {
		return lm.Matches(info)
	})
}

// HasVerifiedContact reports whether some verified login method of u holds
// the email or phone number of info.
func (u *User) HasVerifiedContact(info AccountInfo) bool {
	return slices.ContainsFunc(u.LoginMethods, func(lm LoginMethod) bool {
		return lm.Verified && lm.HasSameEmailOrPhoneAs(info)
	})
}

func (u *User) Emails() []string {
	var out []string
	for _, lm := range u.LoginMethods {
		if lm.Email != nil && !slices.Contains(out, *lm.Email) {
			out = append(out, *lm.Email)
		}
	}
	return out
}

func (u *User) PhoneNumbers() []string {
	var out []string
	for _, lm := range u.LoginMethods {
		if lm.PhoneNumber != nil && !slices.Contains(out, *lm.PhoneNumber) {
			out = append(out, *lm.PhoneNumber)
		}
	}
	return out
}

func (u *User) ThirdParties() []ThirdParty {
	var out []ThirdParty
	for _, lm := range u.LoginMethods {
		if lm.ThirdParty != nil && !slices.Contains(out, *lm.ThirdParty) {
			out = append(out, *lm.ThirdParty)
		}
	}
	return out
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.TenantIDs = slices.Clone(u.TenantIDs)
	c.LoginMethods = make([]LoginMethod, len(u.LoginMethods))
	for i, lm := range u.LoginMethods {
		c.LoginMethods[i] = lm.Clone()
	}
	return &c
}

// ============================================================================
// Normalization
// ============================================================================

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhoneNumber strips spaces, dashes, dots and parentheses.
func NormalizePhoneNumber(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeInvalidUser = ErrRegistry.Register("INVALID_USER", errx.TypeInternal, 500, "User record violates the login method invariant")
)

func ErrInvalidUser() *errx.Error { return ErrRegistry.New(CodeInvalidUser) }
