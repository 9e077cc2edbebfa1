package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/arjunvn/kaapi-store/internal/middleware"
	"github.com/arjunvn/kaapi-store/internal/model"
	"github.com/arjunvn/kaapi-store/internal/pricing"
	"github.com/arjunvn/kaapi-store/internal/repository"
	"github.com/arjunvn/kaapi-store/internal/service"
)

type cartItemRequest struct {
	Name     string         `json:"name"`
	Price    pricing.Amount `json:"price"`
	Quantity float64        `json:"quantity"`
}

// sanitizeCart converts the flexible wire representation into order items,
// coercing prices and quantities the same way the storefront UI does.
func sanitizeCart(items []cartItemRequest) []model.OrderItem {
	out := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		out = append(out, model.OrderItem{
			Name:     it.Name,
			Price:    float64(it.Price),
			Quantity: pricing.CoerceQuantity(it.Quantity),
		})
	}
	return out
}

type checkoutRequest struct {
	Cart  []cartItemRequest `json:"cart"`
	Total pricing.Amount    `json:"total"`
	model.ShippingAddress
}

type orderResponse struct {
	ID                int64                 `json:"id"`
	Username          string                `json:"username"`
	Items             []model.OrderItem     `json:"items"`
	ShippingAddress   model.ShippingAddress `json:"shipping_address"`
	Total             float64               `json:"total"`
	PaymentStatus     string                `json:"payment_status"`
	PaymentProvider   string                `json:"payment_provider"`
	ProviderOrderID   string                `json:"provider_order_id,omitempty"`
	ProviderPaymentID string                `json:"provider_payment_id,omitempty"`
	CreatedAt         string                `json:"created_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		ID:                o.ID,
		Username:          o.Username,
		Items:             o.Items,
		ShippingAddress:   o.Shipping,
		Total:             o.Total(),
		PaymentStatus:     string(o.PaymentStatus),
		PaymentProvider:   string(o.PaymentProvider),
		ProviderOrderID:   o.ProviderOrderID,
		ProviderPaymentID: o.ProviderPaymentID,
		CreatedAt:         o.CreatedAt.Format(time.RFC3339),
	}
}

// Checkout creates an order from the submitted cart. When the payment
// gateway is configured the response carries everything the storefront needs
// to open the payment widget; otherwise the order completes immediately.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Checkout(r.Context(), username, sanitizeCart(req.Cart), float64(req.Total), req.ShippingAddress)
	if err != nil {
		if errors.Is(err, service.ErrEmptyCart) {
			respondMessage(w, http.StatusBadRequest, "Cart is empty")
			return
		}
		h.serverError(w, "checkout error", err, zap.String("username", username))
		return
	}

	if result.Mode == model.ProviderSimulation {
		respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"mode":    result.Mode,
			"message": "Order placed successfully",
			"orderId": result.OrderID,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"mode":          result.Mode,
		"orderId":       result.OrderID,
		"keyId":         result.KeyID,
		"razorpayOrder": result.ProviderOrder,
		"currency":      result.Currency,
	})
}

type verifyPaymentRequest struct {
	OrderID           int64  `json:"orderId"`
	ProviderOrderID   string `json:"razorpay_order_id"`
	ProviderPaymentID string `json:"razorpay_payment_id"`
	ProviderSignature string `json:"razorpay_signature"`
}

// VerifyPayment checks the gateway signature for a pending order and settles
// the order as completed or failed.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.OrderID == 0 || req.ProviderOrderID == "" || req.ProviderPaymentID == "" || req.ProviderSignature == "" {
		respondFailure(w, http.StatusBadRequest, "Missing payment verification data")
		return
	}

	result, err := h.service.VerifyPayment(r.Context(), username, req.OrderID, req.ProviderOrderID, req.ProviderPaymentID, req.ProviderSignature)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGatewayNotConfigured):
			respondFailure(w, http.StatusBadRequest, "Payment gateway not configured")
		case errors.Is(err, repository.ErrOrderNotFound):
			respondMessage(w, http.StatusNotFound, "Order not found")
		case errors.Is(err, service.ErrProviderOrderMismatch):
			respondFailure(w, http.StatusBadRequest, "Order reference mismatch")
		default:
			h.serverError(w, "verify payment error", err,
				zap.String("username", username),
				zap.Int64("order_id", req.OrderID))
		}
		return
	}

	if result.Settled() {
		respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Payment verified successfully",
			"orderId": result.OrderID,
		})
		return
	}

	respondJSON(w, http.StatusBadRequest, map[string]any{
		"success": false,
		"message": "Payment verification failed",
		"orderId": result.OrderID,
	})
}

// CheckoutSuccess returns the order shown on the post-checkout page.
func (h *Handler) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id, username)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			respondMessage(w, http.StatusNotFound, "Order not found")
			return
		}
		h.serverError(w, "get order error", err,
			zap.String("username", username),
			zap.Int64("order_id", id))
		return
	}

	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

// GetOrders returns the caller's orders, newest first.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), username)
	if err != nil {
		h.serverError(w, "get orders error", err, zap.String("username", username))
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	respondJSON(w, http.StatusOK, resp)
}
