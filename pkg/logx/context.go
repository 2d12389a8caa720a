package logx

import (
	"context"

	"github.com/Abraxas-365/authlink/pkg/kernel"
)

type fieldsKey struct{}

// ContextWithFields returns a copy of ctx that carries fields. Entries built
// with WithContext pick them up, together with the request and tenant ids
// stored through the kernel helpers.
func ContextWithFields(ctx context.Context, fields Fields) context.Context {
	merged := make(Fields, len(fields))
	for k, v := range FieldsFromContext(ctx) {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// FieldsFromContext returns the fields attached to ctx.
func FieldsFromContext(ctx context.Context) Fields {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).(Fields)
	return fields
}

func contextFields(ctx context.Context) Fields {
	out := Fields{}
	if ctx == nil {
		return out
	}
	if id := kernel.RequestIDFromContext(ctx); id != "" {
		out["request_id"] = id
	}
	if t, ok := ctx.Value(kernel.TenantContextKey).(kernel.TenantID); ok && !t.IsEmpty() {
		out["tenant_id"] = t.String()
	}
	for k, v := range FieldsFromContext(ctx) {
		out[k] = v
	}
	return out
}
