package errx

import "net/http"

// Type represents the category of error
type Type string

const (
	TypeInternal      Type = "INTERNAL"
	TypeValidation    Type = "VALIDATION"
	TypeAuthorization Type = "AUTHORIZATION"
	TypeNotFound      Type = "NOT_FOUND"
	TypeConflict      Type = "CONFLICT"
	TypeBusiness      Type = "BUSINESS"
	// TypeExternal is a failure of a remote dependency such as the core
	TypeExternal Type = "EXTERNAL"
	// TypeConfiguration is a misconfigured host application
	TypeConfiguration Type = "CONFIGURATION"
)

func (t Type) String() string {
	return string(t)
}

// HTTPStatus is the default status for errors of type t. Registered codes
// may override it (e.g. 403 for an AUTHORIZATION code).
func (t Type) HTTPStatus() int {
	switch t {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeAuthorization:
		return http.StatusUnauthorized
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeBusiness:
		return http.StatusUnprocessableEntity
	case TypeExternal:
		return http.StatusBadGateway
	case TypeInternal, TypeConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Internal creates an internal server error
func Internal(message string) *Error {
	return New(message, TypeInternal)
}

// Validation creates a validation error
func Validation(message string) *Error {
	return New(message, TypeValidation)
}

// Configuration reports a host application wired in a way the library
// cannot work with, such as a missing callback.
func Configuration(message string) *Error {
	return New(message, TypeConfiguration)
}
