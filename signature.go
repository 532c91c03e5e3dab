package tap

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tapgate/tap/httpsig"
)

type signatureMiddlewareConfig struct {
	Verifier      *httpsig.Verifier
	RequireSigned bool
	Logger        *slog.Logger
}

func newSignatureMiddleware(cfg signatureMiddlewareConfig) func(http.HandlerFunc) http.HandlerFunc {
	if cfg.Verifier == nil {
		return nil
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			agentHeader := strings.TrimSpace(r.Header.Get("Signature-Agent"))
			inputHeader := strings.TrimSpace(r.Header.Get("Signature-Input"))
			sigHeader := strings.TrimSpace(r.Header.Get("Signature"))
			if agentHeader == "" && inputHeader == "" && sigHeader == "" {
				if cfg.RequireSigned {
					writeJSONError(w, NewHTTPError(http.StatusUnauthorized, InvalidRequest, SignatureRequired, "Signature-Agent, Signature-Input and Signature headers are required"))
					return
				}
				next(w, r)
				return
			}
			if agentHeader == "" || inputHeader == "" || sigHeader == "" {
				writeJSONError(w, NewHTTPError(http.StatusBadRequest, InvalidRequest, MalformedSignature, "Signature-Agent, Signature-Input and Signature headers must all be provided"))
				return
			}

			authority := r.Host
			if authority == "" {
				authority = r.URL.Host
			}
			result := cfg.Verifier.Verify(agentHeader, inputHeader, sigHeader, httpsig.RequestValues{
				Authority: authority,
				Path:      r.URL.Path,
				Header:    lowercaseHeaderMap(r.Header),
			})
			if !result.Trusted {
				writeJSONError(w, signatureError(result, cfg.Logger, r))
				return
			}

			ctx := contextWithVerifiedAgent(r.Context(), &VerifiedAgent{
				ID:    result.AgentID,
				Name:  result.AgentName,
				Nonce: result.Nonce,
			})
			next(w, r.WithContext(ctx))
		}
	}
}

// lowercaseHeaderMap flattens request headers into the lowercase single-value
// form signature components use.
func lowercaseHeaderMap(header http.Header) map[string]string {
	values := make(map[string]string, len(header))
	for name, vals := range header {
		if len(vals) == 0 {
			continue
		}
		values[strings.ToLower(name)] = strings.TrimSpace(vals[0])
	}
	return values
}

// signatureError maps a failed verification to the wire error. Format errors
// are client mistakes; a signature that parses but does not verify is the
// interesting case and gets logged.
func signatureError(result httpsig.Result, logger *slog.Logger, r *http.Request) *Error {
	switch result.Reason {
	case httpsig.ReasonInvalidFormat, httpsig.ReasonUnsupportedAlgorithm:
		return NewHTTPError(http.StatusBadRequest, InvalidRequest, MalformedSignature, "signature headers are malformed")
	case httpsig.ReasonUnknownAgent:
		return NewHTTPError(http.StatusUnauthorized, InvalidRequest, UnknownAgent, "signing agent is not trusted")
	case httpsig.ReasonNotYetValid, httpsig.ReasonExpired, httpsig.ReasonWindowTooLarge:
		return NewHTTPError(http.StatusUnauthorized, InvalidRequest, SignatureExpired, "signature validity window check failed")
	default:
		logger.Warn("request signature rejected",
			slog.String("reason", result.Reason),
			slog.String("agent_id", result.AgentID),
			slog.String("path", r.URL.Path))
		return NewHTTPError(http.StatusUnauthorized, InvalidRequest, InvalidSignature, "signature verification failed")
	}
}
