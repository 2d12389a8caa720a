package passwordless

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/mfa"
	"github.com/Abraxas-365/authlink/pkg/iam/otp"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

// FlowUserInputCode is the only flow: the user types the code they received.
const FlowUserInputCode = "USER_INPUT_CODE"

// Consume statuses besides the shared auth ones.
const (
	StatusIncorrectCode auth.Status = "INCORRECT_USER_INPUT_CODE_ERROR"
	StatusExpiredCode   auth.Status = "EXPIRED_USER_INPUT_CODE_ERROR"
	StatusRestartFlow   auth.Status = "RESTART_FLOW_ERROR"
)

// Contact is the email or phone number a code is sent to. Exactly one is set.
type Contact struct {
	Email       string
	PhoneNumber string
}

// CreateCodeInput starts a sign in/up for a contact.
type CreateCodeInput struct {
	Contact
	TenantID           kernel.TenantID
	Session            session.Session
	LinkingWithSession auth.LinkingWithSession
}

// CreateCodeResult tells the client which device to consume the code with.
type CreateCodeResult struct {
	Status          auth.Status
	Reason          string
	DeviceID        string
	FlowType        string
	CodeLifetime    time.Duration
	AttemptsAllowed int
}

// ConsumeCodeInput finishes a sign in/up with the code the user typed.
type ConsumeCodeInput struct {
	DeviceID           string
	UserInputCode      string
	TenantID           kernel.TenantID
	Session            session.Session
	LinkingWithSession auth.LinkingWithSession
}

// ConsumeCodeResult is the outcome of ConsumeCode. FailedAttempts and
// MaxAttempts are set for StatusIncorrectCode.
type ConsumeCodeResult struct {
	Status               auth.Status
	Reason               string
	User                 *user.User
	Session              session.Session
	CreatedNewRecipeUser bool
	FailedAttempts       int
	MaxAttempts          int
}

// ============================================================================
// Contacts
// ============================================================================

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// Validate requires exactly one well formed contact.
func (c Contact) Validate() error {
	email, phone := strings.TrimSpace(c.Email), strings.TrimSpace(c.PhoneNumber)
	switch {
	case email == "" && phone == "":
		return ErrBadInput("Please provide exactly one of email or phoneNumber")
	case email != "" && phone != "":
		return ErrBadInput("Please provide exactly one of email or phoneNumber")
	case email != "" && !emailPattern.MatchString(email):
		return ErrBadInput("Email is invalid").WithDetail("field", "email")
	case phone != "" && !phonePattern.MatchString(user.NormalizePhoneNumber(phone)):
		return ErrBadInput("Phone number is invalid").WithDetail("field", "phoneNumber")
	}
	return nil
}

// Channel is where the code for c is delivered.
func (c Contact) Channel() otp.Channel {
	if strings.TrimSpace(c.Email) != "" {
		return otp.ChannelEmail
	}
	return otp.ChannelPhone
}

// Normalized returns the contact the way codes and login methods store it.
func (c Contact) Normalized() string {
	if c.Channel() == otp.ChannelEmail {
		return user.NormalizeEmail(c.Email)
	}
	return user.NormalizePhoneNumber(c.PhoneNumber)
}

// AccountInfo is the identity a code for c proves.
func (c Contact) AccountInfo() user.AccountInfoWithRecipeID {
	value := c.Normalized()
	info := user.AccountInfoWithRecipeID{RecipeID: user.RecipePasswordless}
	if c.Channel() == otp.ChannelEmail {
		info.Email = &value
	} else {
		info.PhoneNumber = &value
	}
	return info
}

// Factor is the MFA factor completed by a code sent to c.
func (c Contact) Factor() mfa.FactorID {
	if c.Channel() == otp.ChannelEmail {
		return mfa.FactorOTPEmail
	}
	return mfa.FactorOTPPhone
}

// ContactOf rebuilds the contact a code was sent to.
func ContactOf(o *otp.OTP) Contact {
	if o.Channel == otp.ChannelPhone {
		return Contact{PhoneNumber: o.Contact}
	}
	return Contact{Email: o.Contact}
}

// ============================================================================
// Errors
// ============================================================================

var ErrRegistry = errx.NewRegistry("PASSWORDLESS")

var CodeBadInput = ErrRegistry.Register("BAD_INPUT", errx.TypeValidation, http.StatusBadRequest, "Invalid passwordless request")

func ErrBadInput(message string) *errx.Error {
	return ErrRegistry.NewWithMessage(CodeBadInput, message)
}
