// Package model contains the domain entities of the kaapi-store backend.
package model

import "time"

// User represents a registered storefront customer.
type User struct {
	ID           int64
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// PaymentStatus describes the payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusPendingPayment PaymentStatus = "pending_payment"
	PaymentStatusCompleted      PaymentStatus = "completed"
	PaymentStatusFailed         PaymentStatus = "failed"
)

// PaymentProvider identifies which path settles an order.
type PaymentProvider string

const (
	ProviderSimulation PaymentProvider = "simulation"
	ProviderRazorpay   PaymentProvider = "razorpay"
)

// OrderItem is a snapshot of one cart line at purchase time.
type OrderItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// ShippingAddress holds the postal fields captured at checkout.
type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Order describes a placed order and its payment lifecycle.
// ProviderOrderID and ProviderPaymentID stay empty until the gateway assigns
// them. The completed and failed statuses are terminal.
type Order struct {
	ID                int64
	Username          string
	Items             []OrderItem
	Shipping          ShippingAddress
	TotalPaise        int64
	PaymentStatus     PaymentStatus
	PaymentProvider   PaymentProvider
	ProviderOrderID   string
	ProviderPaymentID string
	CreatedAt         time.Time
}

// Total returns the order total in rupees.
func (o *Order) Total() float64 {
	return float64(o.TotalPaise) / 100
}

// Address is a saved address-book entry owned by one user.
type Address struct {
	ID         int64
	Username   string
	Label      string
	FullName   string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
	CreatedAt  time.Time
}

// Review is a product review left by a user.
type Review struct {
	ID        int64
	Username  string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// Account aggregates the data shown on the account page.
type Account struct {
	Username     string
	Addresses    []Address
	IsSubscribed bool
}
