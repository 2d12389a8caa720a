package emailverification

import (
	"net/http"

	"github.com/Abraxas-365/authlink/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("EMAILVERIFICATION")

var (
	CodeSendFailed    = ErrRegistry.Register("SEND_FAILED", errx.TypeExternal, http.StatusBadGateway, "Could not send the verification email")
	CodeMissingToken  = ErrRegistry.Register("MISSING_TOKEN", errx.TypeValidation, http.StatusBadRequest, "Verification token is required")
	CodeNotConfigured = ErrRegistry.Register("NOT_CONFIGURED", errx.TypeConfiguration, http.StatusInternalServerError, "Email verification is not configured")
)

func ErrSendFailed(cause error) *errx.Error { return ErrRegistry.NewWithCause(CodeSendFailed, cause) }
func ErrMissingToken() *errx.Error          { return ErrRegistry.New(CodeMissingToken) }
func ErrNotConfigured(reason string) *errx.Error {
	return ErrRegistry.New(CodeNotConfigured).WithDetail("reason", reason)
}
