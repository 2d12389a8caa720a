package otp

import (
	"net/http"

	"github.com/Abraxas-365/authlink/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("OTP")

var (
	CodeInvalidOTP         = ErrRegistry.Register("INVALID_OTP", errx.TypeValidation, http.StatusBadRequest, "Invalid or incorrect OTP code")
	CodeOTPExpired         = ErrRegistry.Register("OTP_EXPIRED", errx.TypeValidation, http.StatusBadRequest, "OTP code has expired")
	CodeTooManyAttempts    = ErrRegistry.Register("TOO_MANY_ATTEMPTS", errx.TypeBusiness, http.StatusTooManyRequests, "Too many verification attempts")
	CodeTooManyRequests    = ErrRegistry.Register("TOO_MANY_REQUESTS", errx.TypeBusiness, http.StatusTooManyRequests, "Too many OTP requests")
	CodeUnknownDevice      = ErrRegistry.Register("UNKNOWN_DEVICE", errx.TypeNotFound, http.StatusNotFound, "No pending code for this device")
	CodeChannelUnsupported = ErrRegistry.Register("CHANNEL_UNSUPPORTED", errx.TypeConfiguration, http.StatusInternalServerError, "No delivery for this channel")
	CodeStoreFailure       = ErrRegistry.Register("STORE_FAILURE", errx.TypeInternal, http.StatusInternalServerError, "OTP store failure")
)

func ErrInvalidOTP() *errx.Error      { return ErrRegistry.New(CodeInvalidOTP) }
func ErrOTPExpired() *errx.Error      { return ErrRegistry.New(CodeOTPExpired) }
func ErrTooManyAttempts() *errx.Error { return ErrRegistry.New(CodeTooManyAttempts) }
func ErrTooManyRequests() *errx.Error { return ErrRegistry.New(CodeTooManyRequests) }
func ErrUnknownDevice() *errx.Error   { return ErrRegistry.New(CodeUnknownDevice) }

func ErrChannelUnsupported(channel Channel) *errx.Error {
	return ErrRegistry.New(CodeChannelUnsupported).WithDetail("channel", channel)
}

func ErrStoreFailure(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeStoreFailure, cause)
}
