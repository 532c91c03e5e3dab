package tap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSendOrderWebhook(t *testing.T) {
	t.Parallel()

	const secret = "webhook-secret"

	var gotSignature string
	var gotBody []byte
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("Merchant-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	handler := NewPaymentHandler(&stubPaymentService{},
		WithWebhookOptions(receiver.URL, secret))

	order := &OrderResult{
		ID:          "ord_123",
		OrderNumber: "ORD-20260826120000-ABCDEF",
		TotalAmount: 53.19,
		Status:      OrderStatusShipped,
		CreatedAt:   time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
	if err := handler.SendOrderWebhook(context.Background(), OrderEventUpdated, order); err != nil {
		t.Fatalf("send webhook: %v", err)
	}

	if gotSignature == "" {
		t.Fatal("expected Merchant-Signature header")
	}
	if !VerifyWebhookSignature(secret, gotBody, gotSignature) {
		t.Fatal("signature does not verify over delivered body")
	}
	if VerifyWebhookSignature("wrong-secret", gotBody, gotSignature) {
		t.Fatal("signature verified with the wrong secret")
	}
	if !strings.Contains(string(gotBody), `"type":"order_updated"`) {
		t.Fatalf("unexpected payload %s", gotBody)
	}
	if !strings.Contains(string(gotBody), `"order_number":"ORD-20260826120000-ABCDEF"`) {
		t.Fatalf("unexpected payload %s", gotBody)
	}
}

func TestSendOrderWebhookErrors(t *testing.T) {
	t.Parallel()

	t.Run("not configured", func(t *testing.T) {
		handler := NewPaymentHandler(&stubPaymentService{})
		err := handler.SendOrderWebhook(context.Background(), OrderEventUpdated, &OrderResult{})
		if err == nil {
			t.Fatal("expected error when webhook is not configured")
		}
	})

	t.Run("endpoint failure surfaces", func(t *testing.T) {
		receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer receiver.Close()

		handler := NewPaymentHandler(&stubPaymentService{},
			WithWebhookOptions(receiver.URL, "secret"))
		err := handler.SendOrderWebhook(context.Background(), OrderEventCreated, &OrderResult{ID: "ord_1"})
		if err == nil || !strings.Contains(err.Error(), "502") {
			t.Fatalf("expected delivery error, got %v", err)
		}
	})

	t.Run("custom header name", func(t *testing.T) {
		var got string
		receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("X-Store-Signature")
		}))
		defer receiver.Close()

		handler := NewPaymentHandler(&stubPaymentService{},
			WithWebhookOptions(receiver.URL, "secret", WebhookWithHeader("X-Store-Signature")))
		if err := handler.SendOrderWebhook(context.Background(), OrderEventCreated, &OrderResult{ID: "ord_1"}); err != nil {
			t.Fatalf("send webhook: %v", err)
		}
		if got == "" {
			t.Fatal("expected signature under custom header name")
		}
	})
}
