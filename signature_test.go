package tap

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tapgate/tap/httpsig"
)

const testAgentID = "https://agents.example.com/shopper"

func testKeyMaterial(t *testing.T) (publicPEM, privatePEM string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	return publicPEM, privatePEM
}

func testVerifier(t *testing.T, publicPEM string) *httpsig.Verifier {
	t.Helper()
	keys, err := httpsig.NewKeyStore([]httpsig.AgentKeyConfig{{
		AgentID:      testAgentID,
		Name:         "Example Shopper",
		Algorithm:    httpsig.AlgorithmEd25519,
		PublicKeyPEM: publicPEM,
	}})
	if err != nil {
		t.Fatalf("build keystore: %v", err)
	}
	return httpsig.NewVerifier(keys)
}

func testSigner(t *testing.T, privatePEM string) *httpsig.Signer {
	t.Helper()
	signer, err := httpsig.NewSigner(httpsig.SignerConfig{
		AgentID:       testAgentID,
		KeyID:         "key-1",
		Tag:           "agent-payer-auth",
		Algorithm:     httpsig.AlgorithmEd25519,
		PrivateKeyPEM: privatePEM,
	})
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	return signer
}

func signRequest(t *testing.T, signer *httpsig.Signer, req *http.Request) {
	t.Helper()
	now := time.Now()
	headers, err := signer.Sign(httpsig.RequestValues{
		Authority: req.Host,
		Path:      req.URL.Path,
	}, now, now.Add(httpsig.DefaultSignatureWindow), "nonce-test")
	if err != nil {
		t.Fatalf("sign request: %v", err)
	}
	headers.Apply(req.Header)
}

func TestSignedRequestIdentifiesAgent(t *testing.T) {
	t.Parallel()

	publicPEM, privatePEM := testKeyMaterial(t)
	var agent *VerifiedAgent
	handler := NewPaymentHandler(&stubPaymentService{
		finalize: func(ctx context.Context, cartID string, req *CartFinalizeRequest) (*CartFinalizeResponse, error) {
			agent = VerifiedAgentFromContext(ctx)
			return &CartFinalizeResponse{PaymentMethods: []PaymentMethodSpec{}}, nil
		},
	}, WithSignatureVerifier(testVerifier(t, publicPEM)), WithRequireSignedRequests())

	body := `{"shipping_address":{"street":"1 Main St","city":"Springfield","country":"US"},"customer_info":{"name":"Jane","email":"jane@example.com"}}`
	req := httptest.NewRequest(http.MethodPost, "/cart/cart_1/finalize", strings.NewReader(body))
	signRequest(t, testSigner(t, privatePEM), req)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d, body=%s", rec.Code, rec.Body.String())
	}
	if agent == nil {
		t.Fatal("expected verified agent in context")
	}
	if agent.ID != testAgentID || agent.Name != "Example Shopper" || agent.Nonce != "nonce-test" {
		t.Fatalf("unexpected agent %+v", agent)
	}
}

func TestUnsignedRequests(t *testing.T) {
	t.Parallel()

	publicPEM, _ := testKeyMaterial(t)
	body := `{"shipping_address":{"street":"1 Main St","city":"Springfield","country":"US"},"customer_info":{"name":"Jane","email":"jane@example.com"}}`

	t.Run("rejected when required", func(t *testing.T) {
		handler := NewPaymentHandler(&stubPaymentService{},
			WithSignatureVerifier(testVerifier(t, publicPEM)), WithRequireSignedRequests())
		req := httptest.NewRequest(http.MethodPost, "/cart/cart_1/finalize", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), string(SignatureRequired)) {
			t.Fatalf("unexpected body %s", rec.Body.String())
		}
	})

	t.Run("passed through as untrusted otherwise", func(t *testing.T) {
		var agent *VerifiedAgent
		handler := NewPaymentHandler(&stubPaymentService{
			finalize: func(ctx context.Context, cartID string, req *CartFinalizeRequest) (*CartFinalizeResponse, error) {
				agent = VerifiedAgentFromContext(ctx)
				return &CartFinalizeResponse{PaymentMethods: []PaymentMethodSpec{}}, nil
			},
		}, WithSignatureVerifier(testVerifier(t, publicPEM)))
		req := httptest.NewRequest(http.MethodPost, "/cart/cart_1/finalize", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusPaymentRequired {
			t.Fatalf("expected 402 got %d", rec.Code)
		}
		if agent != nil {
			t.Fatalf("expected no verified agent, got %+v", agent)
		}
	})
}

func TestPartialSignatureHeadersRejected(t *testing.T) {
	t.Parallel()

	publicPEM, privatePEM := testKeyMaterial(t)
	handler := NewPaymentHandler(&stubPaymentService{},
		WithSignatureVerifier(testVerifier(t, publicPEM)))

	req := httptest.NewRequest(http.MethodPost, "/cart/cart_1/finalize", strings.NewReader("{}"))
	signRequest(t, testSigner(t, privatePEM), req)
	req.Header.Del("Signature-Input")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(MalformedSignature)) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestTamperedSignatureRejected(t *testing.T) {
	t.Parallel()

	publicPEM, privatePEM := testKeyMaterial(t)
	handler := NewPaymentHandler(&stubPaymentService{},
		WithSignatureVerifier(testVerifier(t, publicPEM)))

	// Signed for one cart, replayed against another.
	signed := httptest.NewRequest(http.MethodPost, "/cart/cart_1/finalize", nil)
	signRequest(t, testSigner(t, privatePEM), signed)

	req := httptest.NewRequest(http.MethodPost, "/cart/cart_2/finalize", strings.NewReader("{}"))
	req.Header = signed.Header.Clone()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(InvalidSignature)) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestUnknownAgentRejected(t *testing.T) {
	t.Parallel()

	publicPEM, _ := testKeyMaterial(t)
	_, strangerPEM := testKeyMaterial(t)
	handler := NewPaymentHandler(&stubPaymentService{},
		WithSignatureVerifier(testVerifier(t, publicPEM)))

	signer, err := httpsig.NewSigner(httpsig.SignerConfig{
		AgentID:       "https://agents.example.com/stranger",
		KeyID:         "key-9",
		Tag:           "agent-payer-auth",
		Algorithm:     httpsig.AlgorithmEd25519,
		PrivateKeyPEM: strangerPEM,
	})
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/cart/cart_1/finalize", strings.NewReader("{}"))
	signRequest(t, signer, req)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(UnknownAgent)) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}
