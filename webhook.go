package tap

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	canonicaljson "github.com/gibson042/canonicaljson-go"
)

const defaultWebhookSignatureHeader = "Merchant-Signature"

// OrderEventType enumerates the supported order webhook events.
type OrderEventType string

const (
	OrderEventCreated OrderEventType = "order_created"
	OrderEventUpdated OrderEventType = "order_updated"
)

// OrderEvent is the webhook payload describing an order lifecycle change.
type OrderEvent struct {
	Type       OrderEventType `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Order      *OrderResult   `json:"order"`
}

func newOrderEvent(eventType OrderEventType, order *OrderResult, occurredAt time.Time) OrderEvent {
	return OrderEvent{
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Order:      order,
	}
}

type webhookConfig struct {
	endpoint        string
	secret          string
	signatureHeader string
	client          *http.Client
}

// WebhookOption customizes webhook delivery.
type WebhookOption func(*webhookConfig)

// WebhookWithHeader overrides the signature header name.
func WebhookWithHeader(name string) WebhookOption {
	return func(wh *webhookConfig) {
		wh.signatureHeader = name
	}
}

// WebhookWithClient overrides the HTTP client used for delivery.
func WebhookWithClient(client *http.Client) WebhookOption {
	return func(wh *webhookConfig) {
		wh.client = client
	}
}

// SendOrderWebhook posts an order event to the endpoint configured via
// [WithWebhookOptions]. Order creation events fire automatically; call this
// for later status changes.
func (h *PaymentHandler) SendOrderWebhook(ctx context.Context, eventType OrderEventType, order *OrderResult) error {
	if h.cfg.webhook == nil {
		return errors.New("tap: webhook options must be configured")
	}
	event := newOrderEvent(eventType, order, h.cfg.clock())
	return h.cfg.webhook.sendContext(ctx, event)
}

func (wh *webhookConfig) send(event OrderEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return wh.sendContext(ctx, event)
}

// sendContext serializes the event in canonical JSON form and ships those
// exact bytes, so the receiver verifies the signature over what arrived
// rather than re-canonicalizing.
func (wh *webhookConfig) sendContext(ctx context.Context, event OrderEvent) error {
	body, err := canonicaljson.Marshal(event)
	if err != nil {
		return fmt.Errorf("tap: marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tap: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API-Version", APIVersion)
	req.Header.Set(wh.signatureHeader, signWebhookPayload([]byte(wh.secret), body))

	resp, err := wh.client.Do(req)
	if err != nil {
		return fmt.Errorf("tap: send webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("tap: webhook endpoint %s returned %s: %s", wh.endpoint, resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func signWebhookPayload(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks a received webhook payload against the
// shared secret. It is exported for webhook consumers.
func VerifyWebhookSignature(secret string, payload []byte, signature string) bool {
	expected := signWebhookPayload([]byte(secret), payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
