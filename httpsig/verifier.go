package httpsig

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"time"
)

// Result is the trust decision for one request. Reason is a stable,
// client-visible string when Trusted is false.
type Result struct {
	Trusted   bool
	AgentID   string
	AgentName string
	Nonce     string
	Reason    string
}

// Untrusted reasons surfaced to callers.
const (
	ReasonInvalidFormat        = "invalid signature format"
	ReasonUnknownAgent         = "unknown agent"
	ReasonNotYetValid          = "not yet valid"
	ReasonExpired              = "expired"
	ReasonWindowTooLarge       = "window too large"
	ReasonUnexpectedTag        = "unexpected tag"
	ReasonUnsupportedAlgorithm = "unsupported algorithm"
	ReasonInvalidSignature     = "invalid signature"
)

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithExpectedTag requires incoming signatures to carry the given tag.
func WithExpectedTag(tag string) VerifierOption {
	return func(v *Verifier) {
		v.expectedTag = tag
	}
}

// WithMaxWindow caps expires-created to bound replay exposure. The window is
// agent-chosen; reference agents sign 8 minutes.
func WithMaxWindow(window time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.maxWindow = window
	}
}

// WithClock provides deterministic time in tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// Verifier decides whether a signed request comes from a trusted agent.
// Verification is stateless and side-effect-free, so a single Verifier is
// safe for concurrent and speculative use.
type Verifier struct {
	keys        *KeyStore
	expectedTag string
	maxWindow   time.Duration
	now         func() time.Time
}

// NewVerifier builds a Verifier over a trusted agent keystore.
func NewVerifier(keys *KeyStore, opts ...VerifierOption) *Verifier {
	if keys == nil {
		panic("httpsig: verifier requires a keystore")
	}
	v := &Verifier{
		keys: keys,
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(v)
	}
	return v
}

// Verify checks the three signature headers against the verifier's own view
// of the request. The signature base is rebuilt locally from values; the
// client's rendering is never trusted.
func (v *Verifier) Verify(signatureAgent, signatureInput, signature string, values RequestValues) Result {
	agentID, err := ParseSignatureAgent(signatureAgent)
	if err != nil {
		return Result{Reason: ReasonInvalidFormat}
	}
	params, err := ParseSignatureInput(signatureInput)
	if err != nil {
		return Result{Reason: ReasonInvalidFormat}
	}
	raw, err := ParseSignature(signature)
	if err != nil {
		return Result{Reason: ReasonInvalidFormat}
	}

	key, ok := v.keys.Lookup(agentID)
	if !ok {
		return Result{AgentID: agentID, Reason: ReasonUnknownAgent}
	}

	now := v.now().Unix()
	if now < params.Created {
		return Result{AgentID: agentID, Reason: ReasonNotYetValid}
	}
	if now > params.Expires {
		return Result{AgentID: agentID, Reason: ReasonExpired}
	}
	if v.maxWindow > 0 && params.Expires-params.Created > int64(v.maxWindow/time.Second) {
		return Result{AgentID: agentID, Reason: ReasonWindowTooLarge}
	}
	if v.expectedTag != "" && params.Tag != v.expectedTag {
		return Result{AgentID: agentID, Reason: ReasonUnexpectedTag}
	}

	base := SignatureBase(params, values)
	switch params.Algorithm {
	case AlgorithmRSAPSSSHA256:
		rsaKey, ok := key.PublicKey.(*rsa.PublicKey)
		if !ok {
			return Result{AgentID: agentID, Reason: ReasonInvalidSignature}
		}
		digest := sha256.Sum256(base)
		if err := rsa.VerifyPSS(rsaKey, crypto.SHA256, digest[:], raw, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthAuto,
			Hash:       crypto.SHA256,
		}); err != nil {
			return Result{AgentID: agentID, Reason: ReasonInvalidSignature}
		}
	case AlgorithmEd25519:
		edKey, ok := key.PublicKey.(ed25519.PublicKey)
		if !ok || !ed25519.Verify(edKey, base, raw) {
			return Result{AgentID: agentID, Reason: ReasonInvalidSignature}
		}
	default:
		// ParseSignatureInput restricts the algorithm set; this guards
		// future additions to the enum.
		return Result{AgentID: agentID, Reason: ReasonUnsupportedAlgorithm}
	}

	return Result{
		Trusted:   true,
		AgentID:   agentID,
		AgentName: key.Name,
		Nonce:     params.Nonce,
	}
}
