package tap

import (
	"context"
	"net/http"
	"strings"
)

type RequestContext struct {
	// Agent identity URI carried alongside the signature
	//
	// Example: "https://agents.example.com/shopper"
	SignatureAgent string
	// Signature coverage and parameters
	//
	// Example: sig2=("@authority" "@path"); created=1756200000; ...
	SignatureInput string
	// Base64 encoded signature over the covered components
	//
	// Example: sig2=:MEUCIQ...:
	Signature string
	// Information about the client making this request
	//
	// Example: tap-agent/1.2 (Linux; x86_64)
	UserAgent string
	// Key used to ensure requests are idempotent
	//
	// Example: idempotency_key_123
	IdempotencyKey string
	// Unique key for each request for tracing purposes
	//
	// Example: request_id_123
	RequestID string
	// API version
	//
	// Example: 2025-08-12
	APIVersion string
}

func requestContextFromRequest(r *http.Request) *RequestContext {
	return &RequestContext{
		SignatureAgent: strings.TrimSpace(r.Header.Get("Signature-Agent")),
		SignatureInput: strings.TrimSpace(r.Header.Get("Signature-Input")),
		Signature:      strings.TrimSpace(r.Header.Get("Signature")),
		UserAgent:      strings.TrimSpace(r.Header.Get("User-Agent")),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		RequestID:      strings.TrimSpace(r.Header.Get("Request-Id")),
		APIVersion:     strings.TrimSpace(r.Header.Get("API-Version")),
	}
}

type requestContextKey struct{}

func contextWithRequestContext(ctx context.Context, requestCtx *RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, requestCtx)
}

// RequestContextFromContext extracts the HTTP request metadata previously stored in the context.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	if requestCtx, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return requestCtx
	}
	return nil
}

// VerifiedAgent is the identity established by signature verification.
type VerifiedAgent struct {
	ID    string
	Name  string
	Nonce string
}

type verifiedAgentKey struct{}

func contextWithVerifiedAgent(ctx context.Context, agent *VerifiedAgent) context.Context {
	if agent == nil {
		return ctx
	}
	return context.WithValue(ctx, verifiedAgentKey{}, agent)
}

// VerifiedAgentFromContext returns the agent whose signature verified on the
// current request, or nil for unsigned requests.
func VerifiedAgentFromContext(ctx context.Context) *VerifiedAgent {
	if ctx == nil {
		return nil
	}
	if agent, ok := ctx.Value(verifiedAgentKey{}).(*VerifiedAgent); ok {
		return agent
	}
	return nil
}
