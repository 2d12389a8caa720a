package accountlinking

import (
	"net/http"

	"github.com/Abraxas-365/authlink/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("LINKING")

var (
	CodeInvariantViolation = ErrRegistry.Register("INVARIANT_VIOLATION", errx.TypeInternal, http.StatusInternalServerError, "More than one primary user shares an identity")
	CodeBadInput           = ErrRegistry.Register("BAD_INPUT", errx.TypeValidation, http.StatusBadRequest, "Invalid input")
	CodeRetriesExhausted   = ErrRegistry.Register("RETRIES_EXHAUSTED", errx.TypeInternal, http.StatusInternalServerError, "Ran out of retries while linking accounts")
)

func ErrInvariantViolation() *errx.Error { return ErrRegistry.New(CodeInvariantViolation) }

func ErrBadInput(message string) *errx.Error {
	return ErrRegistry.NewWithMessage(CodeBadInput, message)
}

func ErrRetriesExhausted(operation string) *errx.Error {
	return ErrRegistry.New(CodeRetriesExhausted).WithDetail("operation", operation)
}
