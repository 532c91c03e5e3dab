package httpsig

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Headers carries the three header values emitted for a signed request.
type Headers struct {
	SignatureAgent string
	SignatureInput string
	Signature      string
}

// Apply sets the signature headers on an outgoing request.
func (h Headers) Apply(header http.Header) {
	header.Set("Signature-Agent", h.SignatureAgent)
	header.Set("Signature-Input", h.SignatureInput)
	header.Set("Signature", h.Signature)
}

// SignerConfig declares the signing identity of an agent.
type SignerConfig struct {
	// AgentID is the agent identifier URI sent in Signature-Agent.
	AgentID string
	// KeyID names the key within the agent's registration.
	KeyID string
	// Tag declares the intent of signatures produced by this signer,
	// for example "agent-browser-auth" or "agent-payer-auth".
	Tag       string
	Algorithm Algorithm
	// PrivateKeyPEM holds the PEM-encoded PKCS#8 private key.
	PrivateKeyPEM string
	// Components overrides the covered components. Defaults to
	// @authority and @path.
	Components []string
}

// Signer produces detached signatures binding an agent identity to a request.
type Signer struct {
	agentID    string
	keyID      string
	tag        string
	algorithm  Algorithm
	components []string
	rsaKey     *rsa.PrivateKey
	edKey      ed25519.PrivateKey
}

// NewSigner parses the private key and validates it against the declared
// algorithm.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("httpsig: agent identifier is required")
	}
	if cfg.Tag == "" {
		return nil, fmt.Errorf("httpsig: signature tag is required")
	}
	components := cfg.Components
	if len(components) == 0 {
		components = []string{ComponentAuthority, ComponentPath}
	}
	for _, component := range components {
		if err := validateComponent(component); err != nil {
			return nil, err
		}
	}
	s := &Signer{
		agentID:    cfg.AgentID,
		keyID:      cfg.KeyID,
		tag:        cfg.Tag,
		algorithm:  cfg.Algorithm,
		components: components,
	}
	key, err := parsePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	switch cfg.Algorithm {
	case AlgorithmRSAPSSSHA256:
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("httpsig: algorithm %s requires an RSA private key, got %T", cfg.Algorithm, key)
		}
		s.rsaKey = rsaKey
	case AlgorithmEd25519:
		edKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("httpsig: algorithm %s requires an Ed25519 private key, got %T", cfg.Algorithm, key)
		}
		s.edKey = edKey
	default:
		return nil, fmt.Errorf("httpsig: unsupported algorithm %q", cfg.Algorithm)
	}
	return s, nil
}

// Sign builds the signature base for the request values and window, signs
// it, and returns the three header values.
func (s *Signer) Sign(values RequestValues, created, expires time.Time, nonce string) (Headers, error) {
	params := Params{
		Components: s.components,
		Created:    created.Unix(),
		Expires:    expires.Unix(),
		KeyID:      s.keyID,
		Algorithm:  s.algorithm,
		Nonce:      nonce,
		Tag:        s.tag,
	}
	base := SignatureBase(params, values)
	signature, err := s.sign(base)
	if err != nil {
		return Headers{}, err
	}
	return Headers{
		SignatureAgent: FormatSignatureAgent(s.agentID),
		SignatureInput: FormatSignatureInput(params),
		Signature:      FormatSignature(signature),
	}, nil
}

func (s *Signer) sign(base []byte) ([]byte, error) {
	switch s.algorithm {
	case AlgorithmRSAPSSSHA256:
		digest := sha256.Sum256(base)
		return rsa.SignPSS(rand.Reader, s.rsaKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthAuto,
			Hash:       crypto.SHA256,
		})
	case AlgorithmEd25519:
		return ed25519.Sign(s.edKey, base), nil
	default:
		return nil, fmt.Errorf("httpsig: unsupported algorithm %q", s.algorithm)
	}
}

func parsePrivateKey(pemData string) (crypto.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("httpsig: no PEM block in private key material")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("httpsig: parse private key: %w", err)
	}
	return key, nil
}

// DefaultSignatureWindow mirrors the window reference agents sign with.
const DefaultSignatureWindow = 8 * time.Minute

// Transport is an http.RoundTripper that signs every outgoing request with a
// fresh nonce and a bounded validity window.
type Transport struct {
	Signer *Signer
	// Base is the underlying transport; http.DefaultTransport when nil.
	Base http.RoundTripper
	// Window bounds created..expires; DefaultSignatureWindow when zero.
	Window time.Duration
	// Now is the clock, for tests.
	Now func() time.Time
}

// RoundTrip signs the request and delegates to the base transport.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Signer == nil {
		return nil, fmt.Errorf("httpsig: transport requires a signer")
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	window := t.Window
	if window <= 0 {
		window = DefaultSignatureWindow
	}
	authority := req.Host
	if authority == "" {
		authority = req.URL.Host
	}
	values := RequestValues{Authority: authority, Path: req.URL.Path}
	created := now()
	headers, err := t.Signer.Sign(values, created, created.Add(window), uuid.NewString())
	if err != nil {
		return nil, err
	}
	signed := req.Clone(req.Context())
	headers.Apply(signed.Header)
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(signed)
}
