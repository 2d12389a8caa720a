package kernel

import "context"

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const (
	// TenantContextKey holds the TenantID of the current request
	TenantContextKey ContextKey = "tenant_id"

	// UserContextKey holds the UserID of the authenticated caller
	UserContextKey ContextKey = "user_id"

	// RequestIDKey holds the request id assigned by the HTTP layer
	RequestIDKey ContextKey = "request_id"
)

// WithTenantID returns a copy of ctx carrying tenantID.
func WithTenantID(ctx context.Context, tenantID TenantID) context.Context {
	return context.WithValue(ctx, TenantContextKey, tenantID)
}

// TenantIDFromContext returns the tenant stored in ctx, or DefaultTenantID.
func TenantIDFromContext(ctx context.Context) TenantID {
	if t, ok := ctx.Value(TenantContextKey).(TenantID); ok && !t.IsEmpty() {
		return t
	}
	return DefaultTenantID
}

// WithRequestID returns a copy of ctx carrying the request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID UserID) context.Context {
	return context.WithValue(ctx, UserContextKey, userID)
}

// UserIDFromContext returns the user id stored in ctx, if any.
func UserIDFromContext(ctx context.Context) (UserID, bool) {
	id, ok := ctx.Value(UserContextKey).(UserID)
	return id, ok && !id.IsEmpty()
}
