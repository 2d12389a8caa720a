package emailpassword

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

// Form field ids.
const (
	FieldEmail    = "email"
	FieldPassword = "password"
)

// Credentials is the input of both sign up and sign in.
type Credentials struct {
	Email              string
	Password           string
	TenantID           kernel.TenantID
	Session            session.Session
	LinkingWithSession auth.LinkingWithSession
}

// AccountInfo is the identity the credentials claim.
func (c Credentials) AccountInfo() user.AccountInfoWithRecipeID {
	email := user.NormalizeEmail(c.Email)
	return user.AccountInfoWithRecipeID{
		RecipeID:    user.RecipeEmailPassword,
		AccountInfo: user.AccountInfo{Email: &email},
	}
}

// Result is the outcome of a sign up or sign in. Reason is only set for
// non OK statuses that carry a user facing message.
type Result struct {
	Status  auth.Status
	Reason  string
	User    *user.User
	Session session.Session
}

// ============================================================================
// Validation
// ============================================================================

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	hasLetter = regexp.MustCompile(`[A-Za-z]`)
	hasDigit  = regexp.MustCompile(`[0-9]`)
)

// Validate checks the form fields. The first failing field is returned.
func (c Credentials) Validate() error {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return ErrFieldError(FieldEmail, "Field is not optional")
	}
	if !emailPattern.MatchString(email) {
		return ErrFieldError(FieldEmail, "Email is invalid")
	}
	if c.Password == "" {
		return ErrFieldError(FieldPassword, "Field is not optional")
	}
	return nil
}

// ValidatePassword applies the sign up password rules.
func ValidatePassword(password string) error {
	switch {
	case len(password) < 8:
		return ErrFieldError(FieldPassword, "Password must contain at least 8 characters, including a number")
	case len(password) >= 100:
		return ErrFieldError(FieldPassword, "Password's length must be lesser than 100 characters")
	case !hasLetter.MatchString(password):
		return ErrFieldError(FieldPassword, "Password must contain at least one alphabet")
	case !hasDigit.MatchString(password):
		return ErrFieldError(FieldPassword, "Password must contain at least one number")
	}
	return nil
}

// ============================================================================
// Errors
// ============================================================================

var ErrRegistry = errx.NewRegistry("EMAILPASSWORD")

var CodeFieldError = ErrRegistry.Register("FIELD_ERROR", errx.TypeValidation, http.StatusBadRequest, "Invalid form field")

func ErrFieldError(field, message string) *errx.Error {
	return ErrRegistry.NewWithMessage(CodeFieldError, message).WithDetail("field", field)
}
