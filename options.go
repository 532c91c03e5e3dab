package tap

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tapgate/tap/httpsig"
)

type config struct {
	signatureVerifier     *httpsig.Verifier
	requireSignedRequests bool
	middleware            []Middleware
	logger                *slog.Logger
	clock                 func() time.Time
	webhook               *webhookConfig
}

type Middleware func(http.HandlerFunc) http.HandlerFunc

func applyMiddleware(h http.HandlerFunc, middleware ...Middleware) http.HandlerFunc {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

// Option customizes the handler behavior.
type Option func(*config)

// WithSignatureVerifier enables detached HTTP message signature verification
// on every payment route.
func WithSignatureVerifier(verifier *httpsig.Verifier) Option {
	return func(cfg *config) {
		cfg.signatureVerifier = verifier
	}
}

// WithRequireSignedRequests rejects requests that carry no signature headers
// at all. Without it unsigned requests pass through as untrusted.
func WithRequireSignedRequests() Option {
	return func(cfg *config) {
		cfg.requireSignedRequests = true
	}
}

// WithMiddleware appends custom middleware in the order provided.
func WithMiddleware(mw ...Middleware) Option {
	return func(cfg *config) {
		for _, m := range mw {
			if m == nil {
				continue
			}
			cfg.middleware = append(cfg.middleware, m)
		}
	}
}

// WithLogger sets the structured logger. slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithWebhookOptions enables order event delivery to endpoint, signed with
// secret.
func WithWebhookOptions(endpoint, secret string, opts ...WebhookOption) Option {
	return func(cfg *config) {
		wh := &webhookConfig{
			endpoint:        endpoint,
			secret:          secret,
			signatureHeader: defaultWebhookSignatureHeader,
			client:          http.DefaultClient,
		}
		for _, opt := range opts {
			if opt == nil {
				continue
			}
			opt(wh)
		}
		cfg.webhook = wh
	}
}

// withClock provides deterministic time in tests.
func paymentWithClock(fn func() time.Time) Option {
	return func(cfg *config) {
		cfg.clock = fn
	}
}
