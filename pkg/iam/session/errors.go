package session

import (
	"github.com/Abraxas-365/authlink/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("SESSION")

var (
	CodeUnauthorised    = ErrRegistry.Register("UNAUTHORISED", errx.TypeAuthorization, 401, "Session does not exist or has expired")
	CodeInvalidClaims   = ErrRegistry.Register("INVALID_CLAIMS", errx.TypeAuthorization, 403, "Session claims validation failed")
	CodeTokenGeneration = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, 500, "Failed to issue access token")
	CodeStoreFailure    = ErrRegistry.Register("STORE_FAILURE", errx.TypeExternal, 502, "Session store failure")
)

func ErrUnauthorised() *errx.Error { return ErrRegistry.New(CodeUnauthorised) }

func ErrInvalidClaims(claimID string) *errx.Error {
	return ErrRegistry.New(CodeInvalidClaims).WithDetail("claim_id", claimID)
}

func ErrTokenGeneration(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeTokenGeneration, cause)
}

func ErrStoreFailure(cause error) *errx.Error { return ErrRegistry.NewWithCause(CodeStoreFailure, cause) }

// IsUnauthorised reports whether err is the UNAUTHORISED condition.
func IsUnauthorised(err error) bool { return errx.IsCode(err, CodeUnauthorised) }

// IsInvalidClaims reports whether err is a failed claim assertion.
func IsInvalidClaims(err error) bool { return errx.IsCode(err, CodeInvalidClaims) }
