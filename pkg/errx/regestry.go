package errx

import (
	"fmt"
	"sort"
	"sync"
)

// ErrorCode is a code registered once per package, usually as a package
// level var, and instantiated with Registry.New for every failure.
type ErrorCode struct {
	Code       string
	Type       Type
	HTTPStatus int
	Message    string
}

// Registry owns the codes of one package. Codes are published as
// PREFIX_CODE, e.g. "LINKING_RETRIES_EXHAUSTED".
type Registry struct {
	prefix string
	codes  map[string]*ErrorCode
	mu     sync.RWMutex
}

func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix: prefix,
		codes:  make(map[string]*ErrorCode),
	}
}

// Register adds code to the registry. A zero httpStatus takes the default
// of errType. Registering the same code twice panics.
func (r *Registry) Register(code string, errType Type, httpStatus int, message string) *ErrorCode {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.codes[code]; dup {
		panic(fmt.Sprintf("errx: code %s_%s registered twice", r.prefix, code))
	}
	if httpStatus == 0 {
		httpStatus = errType.HTTPStatus()
	}

	ec := &ErrorCode{
		Code:       r.prefix + "_" + code,
		Type:       errType,
		HTTPStatus: httpStatus,
		Message:    message,
	}
	r.codes[code] = ec
	return ec
}

// New creates a new error from a registered code
func (r *Registry) New(code *ErrorCode) *Error {
	return r.build(code, code.Message, nil)
}

// NewWithMessage replaces the registered message.
func (r *Registry) NewWithMessage(code *ErrorCode, message string) *Error {
	return r.build(code, message, nil)
}

// NewWithCause keeps the registered message and wraps cause.
func (r *Registry) NewWithCause(code *ErrorCode, cause error) *Error {
	return r.build(code, code.Message, cause)
}

func (r *Registry) build(code *ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:       code.Code,
		Message:    message,
		Type:       code.Type,
		HTTPStatus: code.HTTPStatus,
		Details:    make(map[string]interface{}),
		Err:        cause,
	}
}

// Get looks up a code by its unprefixed name.
func (r *Registry) Get(code string) (*ErrorCode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ec, ok := r.codes[code]
	return ec, ok
}

// Codes returns the registered codes sorted by full code.
func (r *Registry) Codes() []*ErrorCode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ErrorCode, 0, len(r.codes))
	for _, ec := range r.codes {
		out = append(out, ec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
