package tap

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultFacilitatorTimeout bounds the blocking settle call; on timeout the
// facilitator is treated as unreachable, never as settled.
const DefaultFacilitatorTimeout = 30 * time.Second

// SettlementRequest is posted to the facilitator's /x402/settle endpoint.
type SettlementRequest struct {
	DelegationToken   string     `json:"delegation_token"`
	MerchantID        string     `json:"merchant_id"`
	MerchantName      string     `json:"merchant_name"`
	CartID            string     `json:"cart_id"`
	Amount            float64    `json:"amount"`
	Currency          string     `json:"currency"`
	Items             []CartItem `json:"items"`
	MerchantSignature string     `json:"merchant_signature"`
}

// SettlementDeniedError reports that the facilitator explicitly refused the
// settlement. Reason carries the facilitator's response verbatim.
type SettlementDeniedError struct {
	StatusCode int
	Reason     string
}

func (e *SettlementDeniedError) Error() string {
	return fmt.Sprintf("settlement denied (%d): %s", e.StatusCode, e.Reason)
}

// FacilitatorUnreachableError reports a transport failure or timeout before
// a settlement decision was received. No order or cart mutation has
// happened, so retrying the whole cycle is safe.
type FacilitatorUnreachableError struct {
	Err error
}

func (e *FacilitatorUnreachableError) Error() string {
	return fmt.Sprintf("payment facilitator unreachable: %v", e.Err)
}

func (e *FacilitatorUnreachableError) Unwrap() error {
	return e.Err
}

// FacilitatorClient settles delegated payments against the external payment
// facilitator.
type FacilitatorClient struct {
	baseURL string
	client  *http.Client
}

// FacilitatorOption customizes a FacilitatorClient.
type FacilitatorOption func(*FacilitatorClient)

// FacilitatorWithHTTPClient overrides the HTTP client, keeping its timeout.
func FacilitatorWithHTTPClient(client *http.Client) FacilitatorOption {
	return func(c *FacilitatorClient) {
		c.client = client
	}
}

// FacilitatorWithTimeout overrides DefaultFacilitatorTimeout.
func FacilitatorWithTimeout(timeout time.Duration) FacilitatorOption {
	return func(c *FacilitatorClient) {
		c.client.Timeout = timeout
	}
}

// NewFacilitatorClient builds a client for the facilitator at baseURL.
func NewFacilitatorClient(baseURL string, opts ...FacilitatorOption) *FacilitatorClient {
	c := &FacilitatorClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultFacilitatorTimeout},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

// Settle redeems a delegation token. Non-2xx responses become
// *SettlementDeniedError, transport failures *FacilitatorUnreachableError.
func (c *FacilitatorClient) Settle(ctx context.Context, settlement SettlementRequest) (*SettlementResponse, error) {
	body, err := json.Marshal(settlement)
	if err != nil {
		return nil, fmt.Errorf("marshal settlement request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/x402/settle", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build settlement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FacilitatorUnreachableError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &SettlementDeniedError{
			StatusCode: resp.StatusCode,
			Reason:     strings.TrimSpace(string(snippet)),
		}
	}

	var settled SettlementResponse
	if err := json.NewDecoder(resp.Body).Decode(&settled); err != nil {
		return nil, &FacilitatorUnreachableError{Err: fmt.Errorf("decode settlement response: %w", err)}
	}
	return &settled, nil
}

// MerchantSignature authenticates the merchant to the facilitator:
// hex(HMAC-SHA256(secret, "<merchantID>:<cartID>:<total>")) with the total
// rendered to cents.
func MerchantSignature(secret, merchantID, cartID string, total float64) string {
	payload := merchantID + ":" + cartID + ":" + strconv.FormatFloat(total, 'f', 2, 64)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
