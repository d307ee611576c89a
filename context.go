package webauth

import "context"

type requestIDContextKey struct{}
type withoutBearerContextKey struct{}
type withoutUnauthorizedPolicyContextKey struct{}

// WithRequestID attaches the X-Request-ID the client sends. Without it the
// client generates one per request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// WithoutBearer stops the client from attaching the session token.
func WithoutBearer(ctx context.Context) context.Context {
	return context.WithValue(ctx, withoutBearerContextKey{}, true)
}

// WithoutUnauthorizedPolicy keeps a 401 from logging the session out. The
// request still fails with a *StatusError.
func WithoutUnauthorizedPolicy(ctx context.Context) context.Context {
	return context.WithValue(ctx, withoutUnauthorizedPolicyContextKey{}, true)
}

// RequestIDFromContext returns the id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

func bearerDisabled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(withoutBearerContextKey{}).(bool)
	return v
}

func unauthorizedPolicyDisabled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(withoutUnauthorizedPolicyContextKey{}).(bool)
	return v
}
