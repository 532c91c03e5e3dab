package httpsig

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAgentID = "https://agents.example.com/shopper"
	testTag     = "agent-payer-auth"
)

func generateEd25519Pair(t *testing.T) (publicPEM, privatePEM string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return marshalPublicKey(t, pub), marshalPrivateKey(t, priv)
}

func generateRSAPair(t *testing.T) (publicPEM, privatePEM string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return marshalPublicKey(t, &priv.PublicKey), marshalPrivateKey(t, priv)
}

func marshalPublicKey(t *testing.T, key any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func marshalPrivateKey(t *testing.T, key any) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func newTestVerifier(t *testing.T, alg Algorithm, publicPEM string, opts ...VerifierOption) *Verifier {
	t.Helper()
	keys, err := NewKeyStore([]AgentKeyConfig{{
		AgentID:      testAgentID,
		Name:         "Example Shopper",
		Algorithm:    alg,
		PublicKeyPEM: publicPEM,
	}})
	require.NoError(t, err)
	return NewVerifier(keys, opts...)
}

func signTestRequest(t *testing.T, alg Algorithm, privatePEM string, values RequestValues, created time.Time) Headers {
	t.Helper()
	signer, err := NewSigner(SignerConfig{
		AgentID:       testAgentID,
		KeyID:         "key-1",
		Tag:           testTag,
		Algorithm:     alg,
		PrivateKeyPEM: privatePEM,
	})
	require.NoError(t, err)
	headers, err := signer.Sign(values, created, created.Add(DefaultSignatureWindow), "nonce-1")
	require.NoError(t, err)
	return headers
}

func TestVerifySignedRequest(t *testing.T) {
	values := RequestValues{Authority: "merchant.example.com", Path: "/cart/cart_1/finalize"}
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	for _, alg := range []Algorithm{AlgorithmEd25519, AlgorithmRSAPSSSHA256} {
		t.Run(string(alg), func(t *testing.T) {
			var publicPEM, privatePEM string
			if alg == AlgorithmEd25519 {
				publicPEM, privatePEM = generateEd25519Pair(t)
			} else {
				publicPEM, privatePEM = generateRSAPair(t)
			}
			verifier := newTestVerifier(t, alg, publicPEM, WithClock(func() time.Time { return now.Add(time.Minute) }))
			headers := signTestRequest(t, alg, privatePEM, values, now)

			result := verifier.Verify(headers.SignatureAgent, headers.SignatureInput, headers.Signature, values)
			assert.True(t, result.Trusted)
			assert.Equal(t, testAgentID, result.AgentID)
			assert.Equal(t, "Example Shopper", result.AgentName)
			assert.Equal(t, "nonce-1", result.Nonce)
		})
	}
}

func TestVerifyRejectsTamperedValues(t *testing.T) {
	publicPEM, privatePEM := generateEd25519Pair(t)
	values := RequestValues{Authority: "merchant.example.com", Path: "/cart/cart_1/finalize"}
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	verifier := newTestVerifier(t, AlgorithmEd25519, publicPEM, WithClock(func() time.Time { return now.Add(time.Minute) }))
	headers := signTestRequest(t, AlgorithmEd25519, privatePEM, values, now)

	t.Run("different path", func(t *testing.T) {
		tampered := values
		tampered.Path = "/cart/cart_2/finalize"
		result := verifier.Verify(headers.SignatureAgent, headers.SignatureInput, headers.Signature, tampered)
		assert.False(t, result.Trusted)
		assert.Equal(t, ReasonInvalidSignature, result.Reason)
	})

	t.Run("different authority", func(t *testing.T) {
		tampered := values
		tampered.Authority = "evil.example.com"
		result := verifier.Verify(headers.SignatureAgent, headers.SignatureInput, headers.Signature, tampered)
		assert.False(t, result.Trusted)
		assert.Equal(t, ReasonInvalidSignature, result.Reason)
	})

	t.Run("flipped signature byte", func(t *testing.T) {
		raw, err := ParseSignature(headers.Signature)
		require.NoError(t, err)
		raw[0] ^= 0x01
		result := verifier.Verify(headers.SignatureAgent, headers.SignatureInput, FormatSignature(raw), values)
		assert.False(t, result.Trusted)
		assert.Equal(t, ReasonInvalidSignature, result.Reason)
	})

	t.Run("reused input with altered nonce", func(t *testing.T) {
		params, err := ParseSignatureInput(headers.SignatureInput)
		require.NoError(t, err)
		params.Nonce = "nonce-2"
		result := verifier.Verify(headers.SignatureAgent, FormatSignatureInput(params), headers.Signature, values)
		assert.False(t, result.Trusted)
		assert.Equal(t, ReasonInvalidSignature, result.Reason)
	})
}

func TestVerifyTimeWindow(t *testing.T) {
	publicPEM, privatePEM := generateEd25519Pair(t)
	values := RequestValues{Authority: "merchant.example.com", Path: "/cart/cart_1/finalize"}
	created := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	headers := signTestRequest(t, AlgorithmEd25519, privatePEM, values, created)

	tests := map[string]struct {
		now        time.Time
		opts       []VerifierOption
		wantReason string
	}{
		"not yet valid": {
			now:        created.Add(-time.Minute),
			wantReason: ReasonNotYetValid,
		},
		"expired": {
			now:        created.Add(DefaultSignatureWindow + time.Minute),
			wantReason: ReasonExpired,
		},
		"window exceeds cap": {
			now:        created.Add(time.Minute),
			opts:       []VerifierOption{WithMaxWindow(5 * time.Minute)},
			wantReason: ReasonWindowTooLarge,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			opts := append([]VerifierOption{WithClock(func() time.Time { return tt.now })}, tt.opts...)
			verifier := newTestVerifier(t, AlgorithmEd25519, publicPEM, opts...)
			result := verifier.Verify(headers.SignatureAgent, headers.SignatureInput, headers.Signature, values)
			assert.False(t, result.Trusted)
			assert.Equal(t, tt.wantReason, result.Reason)
		})
	}
}

func TestVerifyUnknownAgent(t *testing.T) {
	publicPEM, _ := generateEd25519Pair(t)
	_, otherPrivatePEM := generateEd25519Pair(t)
	values := RequestValues{Authority: "merchant.example.com", Path: "/cart/cart_1/finalize"}
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	verifier := newTestVerifier(t, AlgorithmEd25519, publicPEM, WithClock(func() time.Time { return now }))

	signer, err := NewSigner(SignerConfig{
		AgentID:       "https://agents.example.com/stranger",
		KeyID:         "key-9",
		Tag:           testTag,
		Algorithm:     AlgorithmEd25519,
		PrivateKeyPEM: otherPrivatePEM,
	})
	require.NoError(t, err)
	headers, err := signer.Sign(values, now, now.Add(DefaultSignatureWindow), "nonce-1")
	require.NoError(t, err)

	result := verifier.Verify(headers.SignatureAgent, headers.SignatureInput, headers.Signature, values)
	assert.False(t, result.Trusted)
	assert.Equal(t, ReasonUnknownAgent, result.Reason)
	assert.Equal(t, "https://agents.example.com/stranger", result.AgentID)
}

func TestVerifyExpectedTag(t *testing.T) {
	publicPEM, privatePEM := generateEd25519Pair(t)
	values := RequestValues{Authority: "merchant.example.com", Path: "/cart/cart_1/finalize"}
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	verifier := newTestVerifier(t, AlgorithmEd25519, publicPEM,
		WithClock(func() time.Time { return now.Add(time.Minute) }),
		WithExpectedTag("agent-browser-auth"))
	headers := signTestRequest(t, AlgorithmEd25519, privatePEM, values, now)

	result := verifier.Verify(headers.SignatureAgent, headers.SignatureInput, headers.Signature, values)
	assert.False(t, result.Trusted)
	assert.Equal(t, ReasonUnexpectedTag, result.Reason)
}

func TestVerifyMalformedHeaders(t *testing.T) {
	publicPEM, privatePEM := generateEd25519Pair(t)
	values := RequestValues{Authority: "merchant.example.com", Path: "/cart/cart_1/finalize"}
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	verifier := newTestVerifier(t, AlgorithmEd25519, publicPEM, WithClock(func() time.Time { return now.Add(time.Minute) }))
	headers := signTestRequest(t, AlgorithmEd25519, privatePEM, values, now)

	tests := map[string]Headers{
		"unquoted agent": {SignatureAgent: testAgentID, SignatureInput: headers.SignatureInput, Signature: headers.Signature},
		"garbage input":  {SignatureAgent: headers.SignatureAgent, SignatureInput: "sig2=bogus", Signature: headers.Signature},
		"garbage sig":    {SignatureAgent: headers.SignatureAgent, SignatureInput: headers.SignatureInput, Signature: "sig2=::"},
		"all empty":      {},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			result := verifier.Verify(h.SignatureAgent, h.SignatureInput, h.Signature, values)
			assert.False(t, result.Trusted)
			assert.Equal(t, ReasonInvalidFormat, result.Reason)
		})
	}
}

func TestTransportSignsRequests(t *testing.T) {
	publicPEM, privatePEM := generateEd25519Pair(t)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	signer, err := NewSigner(SignerConfig{
		AgentID:       testAgentID,
		KeyID:         "key-1",
		Tag:           testTag,
		Algorithm:     AlgorithmEd25519,
		PrivateKeyPEM: privatePEM,
	})
	require.NoError(t, err)

	verifier := newTestVerifier(t, AlgorithmEd25519, publicPEM, WithClock(func() time.Time { return now }))

	var captured Headers
	transport := &Transport{
		Signer: signer,
		Now:    func() time.Time { return now },
		Base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			captured = Headers{
				SignatureAgent: req.Header.Get("Signature-Agent"),
				SignatureInput: req.Header.Get("Signature-Input"),
				Signature:      req.Header.Get("Signature"),
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
	}

	client := &http.Client{Transport: transport}
	req, err := http.NewRequest(http.MethodPost, "https://merchant.example.com/cart/cart_1/finalize", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	result := verifier.Verify(captured.SignatureAgent, captured.SignatureInput, captured.Signature, RequestValues{
		Authority: "merchant.example.com",
		Path:      "/cart/cart_1/finalize",
	})
	assert.True(t, result.Trusted)
	assert.NotEmpty(t, result.Nonce)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
