package tap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// PaymentService implements the three settlement operations behind the
// payment routes. Orchestrator is the production implementation; tests stub
// this interface.
type PaymentService interface {
	Finalize(ctx context.Context, cartID string, req *CartFinalizeRequest) (*CartFinalizeResponse, error)
	Fulfill(ctx context.Context, cartID string, req *CartFulfillRequest) (*CartFulfillResponse, error)
	DelegatedCheckout(ctx context.Context, cartID string, req *DelegatedCheckoutRequest) (*DelegatedCheckoutResponse, error)
}

// SettlementClient is the facilitator surface the orchestrator depends on.
type SettlementClient interface {
	Settle(ctx context.Context, settlement SettlementRequest) (*SettlementResponse, error)
}

// MerchantConfig identifies the merchant to buyers and to the facilitator.
type MerchantConfig struct {
	ID       string
	Name     string
	Secret   string
	Currency string
	BaseURL  string
	Provider string
}

// Orchestrator drives the finalize, fulfill and delegated checkout flows. An
// order is created and the cart cleared only after settlement is confirmed;
// every failure before that point leaves cart and catalog untouched.
type Orchestrator struct {
	merchant    MerchantConfig
	carts       CartProvider
	orders      OrderStore
	sessions    SessionStore
	processor   CardProcessor
	facilitator SettlementClient
	clock       func() time.Time
	logger      *slog.Logger
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// OrchestratorWithSessionStore replaces the default in-memory session store.
func OrchestratorWithSessionStore(sessions SessionStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sessions = sessions
	}
}

// OrchestratorWithCardProcessor replaces the default mock processor.
func OrchestratorWithCardProcessor(processor CardProcessor) OrchestratorOption {
	return func(o *Orchestrator) {
		o.processor = processor
	}
}

// OrchestratorWithFacilitator enables the delegated checkout path.
func OrchestratorWithFacilitator(facilitator SettlementClient) OrchestratorOption {
	return func(o *Orchestrator) {
		o.facilitator = facilitator
	}
}

// OrchestratorWithLogger sets the structured logger.
func OrchestratorWithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// orchestratorWithClock provides deterministic time in tests.
func orchestratorWithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.clock = now
	}
}

// NewOrchestrator wires the settlement flows over the given cart and order
// stores.
func NewOrchestrator(merchant MerchantConfig, carts CartProvider, orders OrderStore, opts ...OrchestratorOption) *Orchestrator {
	if carts == nil || orders == nil {
		panic("tap: orchestrator requires cart and order stores")
	}
	if merchant.Currency == "" {
		merchant.Currency = "USD"
	}
	o := &Orchestrator{
		merchant:  merchant,
		carts:     carts,
		orders:    orders,
		sessions:  NewMemorySessionStore(0),
		processor: MockProcessor{},
		clock:     time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(o)
	}
	return o
}

// Finalize quotes the cart, opens a payment session and returns the 402
// payload advertising how to pay.
func (o *Orchestrator) Finalize(ctx context.Context, cartID string, req *CartFinalizeRequest) (*CartFinalizeResponse, error) {
	cart, err := o.lookupCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}
	quote := PriceCart(cart.Items, req.ShippingAddress.Country, req.CouponCode, o.merchant.Currency)

	session := o.sessions.Create(PaymentSession{
		CartID:          cartID,
		Items:           cart.Items,
		Quote:           quote,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		Customer:        req.CustomerInfo,
		CouponCode:      req.CouponCode,
	})

	methods, err := o.paymentMethods(cartID)
	if err != nil {
		return nil, NewProcessingError("unable to build payment method list")
	}

	o.logger.InfoContext(ctx, "payment session created",
		slog.String("cart_id", cartID),
		slog.String("payment_session_id", session.ID),
		slog.Float64("total", quote.Total))

	return &CartFinalizeResponse{
		Error:            "payment_required",
		Message:          "Payment required to complete this order",
		PaymentSessionID: session.ID,
		Amount:           quote,
		PaymentMethods:   methods,
		ExpiresAt:        session.ExpiresAt,
		OrderSummary: OrderSummary{
			Items:           cart.Items,
			ShippingAddress: req.ShippingAddress,
			Customer:        req.CustomerInfo,
		},
		Provider: o.merchant.Provider,
	}, nil
}

// Fulfill redeems the payment session with card credentials. The session is
// consumed before the charge is attempted, so a duplicate submission can
// never charge twice; a failed charge requires a fresh finalize.
func (o *Orchestrator) Fulfill(ctx context.Context, cartID string, req *CartFulfillRequest) (*CartFulfillResponse, error) {
	session, ok := o.sessions.Consume(req.PaymentSessionID)
	if !ok {
		return nil, NewNotFoundError(SessionNotFound, "Payment session not found or expired")
	}
	if session.CartID != cartID {
		return nil, NewInvalidRequestError("Payment session does not belong to this cart", WithOffendingParam("$.payment_session_id"))
	}

	payment, err := o.processor.ProcessCard(ctx, CardDetails{
		Number:         req.CardNumber,
		ExpiryDate:     req.ExpiryDate,
		CVV:            req.CVV,
		CardholderName: req.CardholderName,
	}, session.Quote.Total)
	if err != nil {
		var serviceErr *Error
		if errors.As(err, &serviceErr) {
			return nil, serviceErr
		}
		o.logger.ErrorContext(ctx, "card charge failed",
			slog.String("cart_id", cartID),
			slog.Any("error", err))
		return nil, NewPaymentRequiredError(PaymentDeclined, "Card payment was declined")
	}

	now := o.clock()
	order := &Order{
		ID:            uuid.NewString(),
		OrderNumber:   orderNumber(now),
		CartID:        session.CartID,
		CustomerName:  session.Customer.Name,
		CustomerEmail: session.Customer.Email,
		Items:         session.Items,
		Quote:         session.Quote,
		Status:        OrderStatusConfirmed,
		PaymentMethod: "credit_card",
		PaymentStatus: "processed",
		CardBrand:     payment.CardBrand,
		CardLastFour:  payment.LastFour,
		CreatedAt:     now,
	}
	if err := o.placeOrder(ctx, order); err != nil {
		return nil, err
	}

	return &CartFulfillResponse{
		Status:  "success",
		Message: "Payment processed and order created",
		Order:   orderResult(order),
		Payment: PaymentResult{
			Method:            "credit_card",
			TransactionID:     payment.TransactionID,
			ProviderReference: payment.ProviderReference,
			AmountCharged:     session.Quote.Total,
			CardBrand:         payment.CardBrand,
			LastFour:          payment.LastFour,
			Status:            "completed",
		},
		Fulfillment: o.fulfillment(now),
	}, nil
}

// DelegatedCheckout settles a cart in one call by redeeming a delegation
// token with the payment facilitator.
func (o *Orchestrator) DelegatedCheckout(ctx context.Context, cartID string, req *DelegatedCheckoutRequest) (*DelegatedCheckoutResponse, error) {
	if o.facilitator == nil {
		return nil, NewServiceUnavailableError(FacilitatorUnreachable, "Delegated payments are not configured")
	}
	cart, err := o.lookupCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	quote := PriceDelegatedCart(cart.Items, o.merchant.Currency)
	settled, err := o.facilitator.Settle(ctx, SettlementRequest{
		DelegationToken:   req.DelegationToken,
		MerchantID:        o.merchant.ID,
		MerchantName:      o.merchant.Name,
		CartID:            cartID,
		Amount:            quote.Total,
		Currency:          quote.Currency,
		Items:             cart.Items,
		MerchantSignature: MerchantSignature(o.merchant.Secret, o.merchant.ID, cartID, quote.Total),
	})
	if err != nil {
		return nil, o.settlementError(ctx, cartID, err)
	}
	receipt := settled.TransactionReceipt

	now := o.clock()
	order := &Order{
		ID:            uuid.NewString(),
		OrderNumber:   orderNumber(now),
		CartID:        cartID,
		CustomerName:  "Delegated Agent Purchase",
		CustomerEmail: req.AgentID,
		Items:         cart.Items,
		Quote:         quote,
		Status:        OrderStatusConfirmed,
		PaymentMethod: "x402_delegation",
		PaymentStatus: "processed",
		Receipt:       &receipt,
		CreatedAt:     now,
	}
	if err := o.placeOrder(ctx, order); err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "delegated settlement confirmed",
		slog.String("cart_id", cartID),
		slog.String("agent_id", req.AgentID),
		slog.String("receipt_id", receipt.ReceiptID),
		slog.Float64("amount", receipt.Amount))

	return &DelegatedCheckoutResponse{
		Status:  "success",
		Message: "Delegated payment settled and order created",
		Order:   orderResult(order),
		Payment: PaymentResult{
			Method:        "x402_delegation",
			TransactionID: receipt.TransactionID,
			ReceiptID:     receipt.ReceiptID,
			PaymentRail:   receipt.PaymentRailUsed,
			AmountCharged: receipt.Amount,
			ProcessingFee: receipt.ProcessingFee,
			NetAmount:     receipt.NetAmount,
			Status:        "completed",
		},
		Delegation: DelegationResult{
			RemainingLimit: settled.RemainingDelegationLimit,
			AgentID:        req.AgentID,
		},
		Fulfillment: o.fulfillment(now),
	}, nil
}

func (o *Orchestrator) lookupCart(ctx context.Context, cartID string) (*Cart, error) {
	cart, err := o.carts.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil, NewNotFoundError(CartNotFound, "Cart not found")
		}
		return nil, NewProcessingError("unable to load cart")
	}
	if len(cart.Items) == 0 {
		return nil, NewHTTPError(http.StatusBadRequest, InvalidRequest, CartEmpty, "Cart is empty")
	}
	return cart, nil
}

// placeOrder persists the order and clears the cart. Settlement has already
// happened, so a cart-clear failure is logged rather than surfaced: the
// buyer has paid and must receive their order.
func (o *Orchestrator) placeOrder(ctx context.Context, order *Order) error {
	if err := o.orders.CreateOrder(ctx, order); err != nil {
		o.logger.ErrorContext(ctx, "order persistence failed after settlement",
			slog.String("cart_id", order.CartID),
			slog.String("order_number", order.OrderNumber),
			slog.Any("error", err))
		return NewProcessingError("Payment settled but order persistence failed; contact support")
	}
	if err := o.carts.ClearCart(ctx, order.CartID); err != nil {
		o.logger.ErrorContext(ctx, "cart clear failed after order creation",
			slog.String("cart_id", order.CartID),
			slog.String("order_id", order.ID),
			slog.Any("error", err))
	}
	return nil
}

func (o *Orchestrator) settlementError(ctx context.Context, cartID string, err error) *Error {
	var denied *SettlementDeniedError
	if errors.As(err, &denied) {
		o.logger.WarnContext(ctx, "delegated settlement denied",
			slog.String("cart_id", cartID),
			slog.Int("facilitator_status", denied.StatusCode))
		return NewPaymentRequiredError(SettlementDenied, denied.Reason)
	}
	var unreachable *FacilitatorUnreachableError
	if errors.As(err, &unreachable) {
		o.logger.ErrorContext(ctx, "payment facilitator unreachable",
			slog.String("cart_id", cartID),
			slog.Any("error", unreachable.Err))
		return NewServiceUnavailableError(FacilitatorUnreachable, "Payment facilitator is unreachable", WithRetryAfter(30*time.Second))
	}
	o.logger.ErrorContext(ctx, "delegated settlement failed",
		slog.String("cart_id", cartID),
		slog.Any("error", err))
	return NewProcessingError("Delegated settlement failed")
}

func (o *Orchestrator) paymentMethods(cartID string) ([]PaymentMethodSpec, error) {
	var card PaymentMethodSpec
	if err := card.FromCardPaymentMethod(CardPaymentMethod{
		Type:           "credit_card",
		Provider:       o.merchant.Provider,
		Endpoint:       o.merchant.BaseURL + "/cart/" + cartID + "/fulfill",
		Method:         http.MethodPost,
		RequiredFields: []string{"payment_session_id", "card_number", "expiry_date", "cvv", "cardholder_name"},
	}); err != nil {
		return nil, err
	}
	var delegated PaymentMethodSpec
	if err := delegated.FromDelegatedPaymentMethod(DelegatedPaymentMethod{
		Type:           "x402_delegation",
		Provider:       "facilitator",
		Endpoint:       o.merchant.BaseURL + "/cart/" + cartID + "/x402/checkout",
		Method:         http.MethodPost,
		RequiredFields: []string{"delegation_token", "agent_id"},
	}); err != nil {
		return nil, err
	}
	return []PaymentMethodSpec{card, delegated}, nil
}

func (o *Orchestrator) fulfillment(now time.Time) FulfillmentResult {
	return FulfillmentResult{
		TrackingNumber:    trackingNumber(),
		ShippingCarrier:   "UPS",
		EstimatedDelivery: now.AddDate(0, 0, 5).Format("2006-01-02"),
		Status:            "processing",
	}
}

func orderResult(order *Order) OrderResult {
	return OrderResult{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		Subtotal:      order.Quote.Subtotal,
		TaxAmount:     order.Quote.Tax,
		ShippingCost:  order.Quote.Shipping,
		TotalAmount:   order.Quote.Total,
		Status:        order.Status,
		CreatedAt:     order.CreatedAt,
		Items:         order.Items,
	}
}
