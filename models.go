package tap

import (
	"encoding/json"
	"time"

	"github.com/oapi-codegen/runtime"
)

// CartItem is one line of a cart or of an order's immutable snapshot.
type CartItem struct {
	ProductID int     `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// TotalPrice returns the extended price of the line.
func (i CartItem) TotalPrice() float64 {
	return round2(float64(i.Quantity) * i.UnitPrice)
}

// Cart is the live, mutable cart an agent or shopper fills before payment.
type Cart struct {
	ID    string     `json:"id"`
	Items []CartItem `json:"items"`
}

// Address identifies a shipping or billing destination.
type Address struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country" validate:"required"`
}

// CustomerInfo identifies the buyer on the resulting order.
type CustomerInfo struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty"`
}

// Quote is the priced breakdown of a cart at finalize time.
type Quote struct {
	Subtotal float64 `json:"subtotal"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

// PaymentSession is a finalized-but-unpaid cart snapshot. It is created by
// finalize, consumed exactly once by fulfill, and never mutated in between.
type PaymentSession struct {
	ID              string       `json:"payment_session_id"`
	CartID          string       `json:"cart_id"`
	Items           []CartItem   `json:"items"`
	Quote           Quote        `json:"amount"`
	ShippingAddress Address      `json:"shipping_address"`
	BillingAddress  Address      `json:"billing_address"`
	Customer        CustomerInfo `json:"customer_info"`
	CouponCode      string       `json:"coupon_code,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
}

// SettlementReceipt is returned by the payment facilitator once a delegated
// settlement clears. It is copied verbatim into the order's payment metadata.
type SettlementReceipt struct {
	ReceiptID       string  `json:"receipt_id"`
	TransactionID   string  `json:"transaction_id"`
	PaymentRailUsed string  `json:"payment_rail_used"`
	Amount          float64 `json:"amount"`
	ProcessingFee   float64 `json:"processing_fee"`
	NetAmount       float64 `json:"net_amount"`
}

// SettlementResponse is the facilitator's response to a settle call.
type SettlementResponse struct {
	TransactionReceipt       SettlementReceipt `json:"transaction_receipt"`
	RemainingDelegationLimit float64           `json:"remaining_delegation_limit"`
}

// OrderStatus tracks an order through fulfillment.
type OrderStatus string

const (
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCanceled  OrderStatus = "canceled"
)

// Order is created only on confirmed settlement. It references the payment
// session's cart snapshot by value, so later catalog changes cannot alter a
// placed order.
type Order struct {
	ID            string             `json:"id"`
	OrderNumber   string             `json:"order_number"`
	CartID        string             `json:"cart_id"`
	CustomerName  string             `json:"customer_name"`
	CustomerEmail string             `json:"customer_email"`
	Items         []CartItem         `json:"items"`
	Quote         Quote              `json:"amount"`
	Status        OrderStatus        `json:"status"`
	PaymentMethod string             `json:"payment_method"`
	PaymentStatus string             `json:"payment_status"`
	CardBrand     string             `json:"card_brand,omitempty"`
	CardLastFour  string             `json:"card_last_four,omitempty"`
	Receipt       *SettlementReceipt `json:"settlement_receipt,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// CartFinalizeRequest carries the checkout details needed to quote a cart.
type CartFinalizeRequest struct {
	ShippingAddress Address      `json:"shipping_address" validate:"required"`
	BillingAddress  *Address     `json:"billing_address,omitempty" validate:"omitempty"`
	CustomerInfo    CustomerInfo `json:"customer_info" validate:"required"`
	CouponCode      string       `json:"coupon_code,omitempty"`
}

// OrderSummary echoes the quoted cart back in the 402 response.
type OrderSummary struct {
	Items           []CartItem   `json:"items"`
	ShippingAddress Address      `json:"shipping_address"`
	Customer        CustomerInfo `json:"customer"`
}

// CartFinalizeResponse is the 402 Payment Required body emitted by finalize.
type CartFinalizeResponse struct {
	Error            string              `json:"error"`
	Message          string              `json:"message"`
	PaymentSessionID string              `json:"payment_session_id"`
	Amount           Quote               `json:"amount"`
	PaymentMethods   []PaymentMethodSpec `json:"payment_methods"`
	ExpiresAt        time.Time           `json:"expires_at"`
	OrderSummary     OrderSummary        `json:"order_summary"`

	// Provider feeds the X-Payment-Provider header; it is not part of
	// the JSON body.
	Provider string `json:"-"`
}

// CartFulfillRequest redeems card details against a payment session.
type CartFulfillRequest struct {
	PaymentSessionID string `json:"payment_session_id" validate:"required"`
	CardNumber       string `json:"card_number" validate:"required"`
	ExpiryDate       string `json:"expiry_date" validate:"required,card_expiry"`
	CVV              string `json:"cvv" validate:"required,numeric,min=3,max=4"`
	CardholderName   string `json:"cardholder_name" validate:"required"`
}

// OrderResult summarizes the created order in payment responses.
type OrderResult struct {
	ID            string      `json:"id"`
	OrderNumber   string      `json:"order_number"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	Subtotal      float64     `json:"subtotal"`
	TaxAmount     float64     `json:"tax_amount"`
	ShippingCost  float64     `json:"shipping_cost"`
	TotalAmount   float64     `json:"total_amount"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	Items         []CartItem  `json:"items"`
}

// PaymentResult summarizes how the order was paid.
type PaymentResult struct {
	Method            string  `json:"method"`
	TransactionID     string  `json:"transaction_id"`
	ProviderReference string  `json:"provider_reference,omitempty"`
	ReceiptID         string  `json:"receipt_id,omitempty"`
	PaymentRail       string  `json:"payment_rail,omitempty"`
	AmountCharged     float64 `json:"amount_charged"`
	ProcessingFee     float64 `json:"processing_fee,omitempty"`
	NetAmount         float64 `json:"net_amount,omitempty"`
	CardBrand         string  `json:"card_brand,omitempty"`
	LastFour          string  `json:"last_four,omitempty"`
	Status            string  `json:"status"`
}

// FulfillmentResult carries the mock shipping details attached to new orders.
type FulfillmentResult struct {
	TrackingNumber    string `json:"tracking_number"`
	ShippingCarrier   string `json:"shipping_carrier"`
	EstimatedDelivery string `json:"estimated_delivery"`
	Status            string `json:"status"`
}

// CartFulfillResponse completes the finalize/fulfill handshake.
type CartFulfillResponse struct {
	Status      string            `json:"status"`
	Message     string            `json:"message"`
	Order       OrderResult       `json:"order"`
	Payment     PaymentResult     `json:"payment"`
	Fulfillment FulfillmentResult `json:"fulfillment"`
}

// DelegatedCheckoutRequest settles a cart in one machine-to-machine call
// using a delegation token instead of card credentials.
type DelegatedCheckoutRequest struct {
	DelegationToken string `json:"delegation_token" validate:"required"`
	AgentID         string `json:"agent_id" validate:"required"`
}

// DelegationResult reports the remaining pre-authorized spending authority.
type DelegationResult struct {
	RemainingLimit float64 `json:"remaining_limit"`
	AgentID        string  `json:"agent_id"`
}

// DelegatedCheckoutResponse is returned to the agent after settlement.
type DelegatedCheckoutResponse struct {
	Status      string            `json:"status"`
	Message     string            `json:"message"`
	Order       OrderResult       `json:"order"`
	Payment     PaymentResult     `json:"payment"`
	Delegation  DelegationResult  `json:"delegation"`
	Fulfillment FulfillmentResult `json:"fulfillment"`
}

// CardPaymentMethod advertises the direct-card fulfill endpoint.
type CardPaymentMethod struct {
	Type           string   `json:"type"`
	Provider       string   `json:"provider"`
	Endpoint       string   `json:"endpoint"`
	Method         string   `json:"method"`
	RequiredFields []string `json:"required_fields"`
}

// DelegatedPaymentMethod advertises the x402 delegated checkout endpoint.
type DelegatedPaymentMethod struct {
	Type           string   `json:"type"`
	Provider       string   `json:"provider"`
	Endpoint       string   `json:"endpoint"`
	Method         string   `json:"method"`
	RequiredFields []string `json:"required_fields"`
}

// PaymentMethodSpec is the union of the accepted payment method entries in
// the 402 response.
type PaymentMethodSpec struct {
	union json.RawMessage
}

// AsCardPaymentMethod returns the union data as a CardPaymentMethod.
func (t PaymentMethodSpec) AsCardPaymentMethod() (CardPaymentMethod, error) {
	var body CardPaymentMethod
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromCardPaymentMethod overwrites the union with the provided CardPaymentMethod.
func (t *PaymentMethodSpec) FromCardPaymentMethod(v CardPaymentMethod) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// MergeCardPaymentMethod merges the provided CardPaymentMethod into the union.
func (t *PaymentMethodSpec) MergeCardPaymentMethod(v CardPaymentMethod) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	merged, err := runtime.JSONMerge(t.union, b)
	t.union = merged
	return err
}

// AsDelegatedPaymentMethod returns the union data as a DelegatedPaymentMethod.
func (t PaymentMethodSpec) AsDelegatedPaymentMethod() (DelegatedPaymentMethod, error) {
	var body DelegatedPaymentMethod
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromDelegatedPaymentMethod overwrites the union with the provided DelegatedPaymentMethod.
func (t *PaymentMethodSpec) FromDelegatedPaymentMethod(v DelegatedPaymentMethod) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// MergeDelegatedPaymentMethod merges the provided DelegatedPaymentMethod into the union.
func (t *PaymentMethodSpec) MergeDelegatedPaymentMethod(v DelegatedPaymentMethod) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	merged, err := runtime.JSONMerge(t.union, b)
	t.union = merged
	return err
}

// Type reports the discriminator of the stored payment method entry.
func (t PaymentMethodSpec) Type() (string, error) {
	var discriminator struct {
		Type string `json:"type"`
	}
	err := json.Unmarshal(t.union, &discriminator)
	return discriminator.Type, err
}

// MarshalJSON serializes the underlying union.
func (t PaymentMethodSpec) MarshalJSON() ([]byte, error) {
	b, err := t.union.MarshalJSON()
	return b, err
}

// UnmarshalJSON loads union data.
func (t *PaymentMethodSpec) UnmarshalJSON(b []byte) error {
	err := t.union.UnmarshalJSON(b)
	return err
}
