package core

import "github.com/Abraxas-365/authlink/pkg/errx"

var ErrRegistry = errx.NewRegistry("CORE")

var (
	CodeUnreachable     = ErrRegistry.Register("UNREACHABLE", errx.TypeExternal, 502, "User store is unreachable")
	CodeBadResponse     = ErrRegistry.Register("BAD_RESPONSE", errx.TypeExternal, 502, "User store returned an unexpected response")
	CodeUnknownUser     = ErrRegistry.Register("UNKNOWN_USER", errx.TypeNotFound, 404, "Unknown user id")
	CodeUnknownStatus   = ErrRegistry.Register("UNKNOWN_STATUS", errx.TypeInternal, 500, "User store returned an unknown status")
	CodeResetNotAllowed = ErrRegistry.Register("RESET_NOT_ALLOWED", errx.TypeConfiguration, 500, "Reset is only allowed in test mode")
	CodeInvalidInput    = ErrRegistry.Register("INVALID_INPUT", errx.TypeValidation, 400, "Invalid input for the user store")
)

func ErrUnreachable(cause error) *errx.Error { return ErrRegistry.NewWithCause(CodeUnreachable, cause) }
func ErrBadResponse(cause error) *errx.Error { return ErrRegistry.NewWithCause(CodeBadResponse, cause) }
func ErrUnknownUser() *errx.Error            { return ErrRegistry.New(CodeUnknownUser) }
func ErrUnknownStatus(status string) *errx.Error {
	return ErrRegistry.New(CodeUnknownStatus).WithDetail("status", status)
}
func ErrResetNotAllowed() *errx.Error { return ErrRegistry.New(CodeResetNotAllowed) }
func ErrInvalidInput() *errx.Error    { return ErrRegistry.New(CodeInvalidInput) }
