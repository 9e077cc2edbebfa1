package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/arjunvn/kaapi-store/internal/gateway"
	"github.com/arjunvn/kaapi-store/internal/model"
	"github.com/arjunvn/kaapi-store/internal/pricing"
)

// PaymentGateway is the contract of the external payment provider. A nil
// gateway means the service runs in simulation mode.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amountPaise int64, receipt string, notes map[string]string) (*gateway.Order, error)
	VerifySignature(providerOrderID, providerPaymentID, signature string) bool
	KeyID() string
	Currency() string
}

// ErrEmptyCart is returned when checkout is attempted with no items.
var ErrEmptyCart = errors.New("cart is empty")

// ErrGatewayNotConfigured is returned when a payment operation needs the
// gateway and none is configured.
var ErrGatewayNotConfigured = errors.New("payment gateway not configured")

// ErrProviderOrderMismatch is returned when the supplied provider order id
// does not match the one recorded at checkout. It blocks replaying a
// signature from one order against another.
var ErrProviderOrderMismatch = errors.New("provider order reference mismatch")

// CheckoutResult describes a placed order and, in gateway mode, the data the
// browser widget needs to collect the payment.
type CheckoutResult struct {
	OrderID       int64
	Mode          model.PaymentProvider
	KeyID         string
	ProviderOrder *gateway.Order
	Currency      string
}

// Checkout places an order for the given cart. Without a gateway the order is
// settled immediately in simulation mode; with one, the order is created in
// pending_payment and a provider-side payment intent is attached. The
// declared total is trusted when it is a finite positive number, otherwise
// the calculated item total is charged.
func (s *Service) Checkout(ctx context.Context, username string, items []model.OrderItem, declaredTotal float64, shipping model.ShippingAddress) (*CheckoutResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	var calculated float64
	for _, item := range items {
		calculated += item.Price * float64(item.Quantity)
	}

	total := pricing.NormalizeTotal(declaredTotal, calculated)

	order := &model.Order{
		Username:        username,
		Items:           items,
		Shipping:        shipping,
		TotalPaise:      pricing.ToPaise(total),
		PaymentStatus:   model.PaymentStatusCompleted,
		PaymentProvider: model.ProviderSimulation,
	}
	if s.gateway != nil {
		order.PaymentStatus = model.PaymentStatusPendingPayment
		order.PaymentProvider = model.ProviderRazorpay
	}

	orderID, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	if s.gateway == nil {
		return &CheckoutResult{
			OrderID: orderID,
			Mode:    model.ProviderSimulation,
		}, nil
	}

	amountPaise := pricing.ToPaise(total)
	if amountPaise < 1 {
		amountPaise = 1
	}

	providerOrder, err := s.gateway.CreateOrder(ctx, amountPaise, fmt.Sprintf("order_%d", orderID), map[string]string{
		"orderId":  strconv.FormatInt(orderID, 10),
		"customer": username,
	})
	if err != nil {
		// The order row stays in pending_payment for reconciliation.
		return nil, err
	}

	if err := s.repo.SetProviderOrderID(ctx, orderID, providerOrder.ID); err != nil {
		return nil, err
	}

	return &CheckoutResult{
		OrderID:       orderID,
		Mode:          model.ProviderRazorpay,
		KeyID:         s.gateway.KeyID(),
		ProviderOrder: providerOrder,
		Currency:      s.gateway.Currency(),
	}, nil
}

// VerificationResult is the outcome of a payment verification attempt.
// Verified reports whether the submitted signature matched; Status is the
// order's payment status after the attempt. A repeat verification of a
// settled order reports the settled status without changing it.
type VerificationResult struct {
	OrderID  int64
	Verified bool
	Status   model.PaymentStatus
}

// Settled reports whether the verification left the order completed.
func (r *VerificationResult) Settled() bool {
	return r.Verified && r.Status == model.PaymentStatusCompleted
}

// VerifyPayment validates a client-submitted payment confirmation against the
// gateway signature and transitions the order accordingly. Completed and
// failed are terminal: a later attempt, with any signature, cannot change
// them. The persisted cart is cleared only on the attempt that actually
// completes the order, so the side effect never applies twice.
func (s *Service) VerifyPayment(ctx context.Context, username string, orderID int64, providerOrderID, providerPaymentID, signature string) (*VerificationResult, error) {
	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}

	order, err := s.repo.GetOrder(ctx, orderID, username)
	if err != nil {
		return nil, err
	}

	if order.ProviderOrderID != "" && order.ProviderOrderID != providerOrderID {
		return nil, ErrProviderOrderMismatch
	}

	verified := s.gateway.VerifySignature(providerOrderID, providerPaymentID, signature)

	target := model.PaymentStatusFailed
	if verified {
		target = model.PaymentStatusCompleted
	}

	transitioned, err := s.repo.SettlePayment(ctx, orderID, username, target, providerPaymentID)
	if err != nil {
		return nil, err
	}

	status := target
	if !transitioned {
		// Already settled; the earlier outcome stands.
		status = order.PaymentStatus
	}

	if transitioned && target == model.PaymentStatusCompleted {
		_ = s.repo.ClearCart(ctx, username)
	}

	return &VerificationResult{
		OrderID:  orderID,
		Verified: verified,
		Status:   status,
	}, nil
}
