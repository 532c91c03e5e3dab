package tap

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// PaymentHandler wires the payment routes to a [PaymentService].
type PaymentHandler struct {
	service PaymentService
	mux     *http.ServeMux
	cfg     config
}

// NewPaymentHandler builds a [PaymentHandler] backed by net/http's ServeMux.
func NewPaymentHandler(service PaymentService, opts ...Option) *PaymentHandler {
	cfg := config{
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.requireSignedRequests && cfg.signatureVerifier == nil {
		panic("tap: signature verifier required when signed requests are enforced")
	}
	h := &PaymentHandler{
		service: service,
		mux:     http.NewServeMux(),
		cfg:     cfg,
	}
	var middleware []Middleware
	if mw := newSignatureMiddleware(signatureMiddlewareConfig{
		Verifier:      cfg.signatureVerifier,
		RequireSigned: cfg.requireSignedRequests,
		Logger:        cfg.logger,
	}); mw != nil {
		middleware = append(middleware, Middleware(mw))
	}
	middleware = append(middleware, cfg.middleware...)
	h.registerRoutes(middleware...)
	return h
}

// ServeHTTP satisfies http.Handler.
func (h *PaymentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestCtx := requestContextFromRequest(r)
	ctx := contextWithRequestContext(r.Context(), requestCtx)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *PaymentHandler) registerRoutes(middleware ...Middleware) {
	h.mux.HandleFunc("POST /cart/{id}/finalize", applyMiddleware(h.handleFinalize, middleware...))
	h.mux.HandleFunc("POST /cart/{id}/fulfill", applyMiddleware(h.handleFulfill, middleware...))
	h.mux.HandleFunc("POST /cart/{id}/x402/checkout", applyMiddleware(h.handleDelegatedCheckout, middleware...))
}

func (h *PaymentHandler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSONError(w, NewInvalidRequestError("cart_id is required"))
		return
	}
	var req CartFinalizeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}
	resp, err := h.service.Finalize(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The 402 advertises the pending payment in headers as well so agents
	// can react without parsing the body.
	w.Header().Set("X-Payment-Required", "true")
	w.Header().Set("X-Payment-Session-ID", resp.PaymentSessionID)
	w.Header().Set("X-Payment-Amount", strconv.FormatFloat(resp.Amount.Total, 'f', 2, 64))
	w.Header().Set("X-Payment-Currency", resp.Amount.Currency)
	if resp.Provider != "" {
		w.Header().Set("X-Payment-Provider", resp.Provider)
	}
	writeJSON(w, http.StatusPaymentRequired, resp)
}

func (h *PaymentHandler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSONError(w, NewInvalidRequestError("cart_id is required"))
		return
	}
	var req CartFulfillRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}
	resp, err := h.service.Fulfill(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.notifyOrderCreated(r, &resp.Order)
	writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentHandler) handleDelegatedCheckout(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSONError(w, NewInvalidRequestError("cart_id is required"))
		return
	}
	var req DelegatedCheckoutRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}
	resp, err := h.service.DelegatedCheckout(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.notifyOrderCreated(r, &resp.Order)
	writeJSON(w, http.StatusOK, resp)
}

// notifyOrderCreated fires the order_created webhook when one is configured.
// Delivery failures are logged; they never affect the payment response.
func (h *PaymentHandler) notifyOrderCreated(r *http.Request, order *OrderResult) {
	if h.cfg.webhook == nil {
		return
	}
	event := newOrderEvent(OrderEventCreated, order, h.cfg.clock())
	go func() {
		if err := h.cfg.webhook.send(event); err != nil {
			h.cfg.logger.Error("order webhook delivery failed",
				slog.String("order_id", order.ID),
				slog.String("event", string(event.Type)),
				slog.Any("error", err))
		}
	}()
}
