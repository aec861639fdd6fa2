package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// ContextWithRequestID stores the request id in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext returns the base logger enriched with the request id from ctx.
func FromContext(ctx context.Context) zerolog.Logger {
	l := Base()
	if rid := RequestIDFromContext(ctx); rid != "" {
		return l.With().Str(FieldRequestID, rid).Logger()
	}
	return l
}

// WithComponentFromContext is FromContext annotated with a component name.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	l := FromContext(ctx)
	return l.With().Str(FieldComponent, component).Logger()
}
