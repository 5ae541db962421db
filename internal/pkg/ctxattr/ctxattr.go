// Package ctxattr stores telemetry attributes in the context.
// The attributes are added to each log message created with the context.
package ctxattr

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

type ctxKey string

const attrsCtxKey = ctxKey("attrs")

// ContextWith returns a new context with the attributes, later attributes overwrite the earlier ones.
func ContextWith(ctx context.Context, attrs ...attribute.KeyValue) context.Context {
	set := Attributes(ctx)
	merged := append(set.ToSlice(), attrs...)
	newSet := attribute.NewSet(merged...)
	return context.WithValue(ctx, attrsCtxKey, &newSet)
}

// Attributes returns all attributes from the context.
func Attributes(ctx context.Context) *attribute.Set {
	if set, ok := ctx.Value(attrsCtxKey).(*attribute.Set); ok {
		return set
	}
	return attribute.EmptySet()
}
