package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/inference-observe/internal/classify"
	"github.com/upb/inference-observe/internal/tenant"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// TenantKey is the context key for the resolved tenant
	TenantKey contextKey = "tenant"

	// DecisionKey is the context key for the classification decision
	DecisionKey contextKey = "decision"
)

// GetRequestIDFromContext retrieves the request ID from context, falling
// back to the one chi's RequestID middleware assigned.
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetTenantFromContext retrieves the tenant resolved for this request.
// Requests that bypassed the observe middleware report unknown/unknown.
func GetTenantFromContext(ctx context.Context) tenant.Context {
	if val := ctx.Value(TenantKey); val != nil {
		if tc, ok := val.(tenant.Context); ok {
			return tc
		}
	}
	return tenant.Context{Organization: tenant.Unknown, App: tenant.Unknown}
}

// WithTenant adds the resolved tenant to the context
func WithTenant(ctx context.Context, tc tenant.Context) context.Context {
	return context.WithValue(ctx, TenantKey, tc)
}

// GetDecisionFromContext retrieves the classification decision
func GetDecisionFromContext(ctx context.Context) (classify.Decision, bool) {
	if val := ctx.Value(DecisionKey); val != nil {
		if d, ok := val.(classify.Decision); ok {
			return d, true
		}
	}
	return classify.Decision{}, false
}

// WithDecision adds the classification decision to the context
func WithDecision(ctx context.Context, d classify.Decision) context.Context {
	return context.WithValue(ctx, DecisionKey, d)
}
