// Package model contains the domain entities of the luckybox service.
package model

import "time"

// User represents a registered account of the shop.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	IsAdmin      bool
	CreatedAt    time.Time
}

// Product is a catalog item that can appear inside a box.
type Product struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// BoxProduct is one entry of a box's product pool with its draw weight.
// Weights are positive reals and do not have to sum to any fixed total;
// the draw is proportional.
type BoxProduct struct {
	Product Product `json:"product"`
	Weight  float64 `json:"weight"`
}

// Box is a purchasable bundle that yields exactly one product via weighted draw.
type Box struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Price    int64        `json:"price"`
	IsPublic bool         `json:"isPublic"`
	Products []BoxProduct `json:"products,omitempty"`
}

// PaymentType describes how an order was paid for.
type PaymentType string

const (
	PaymentTypePoint PaymentType = "point"
	PaymentTypeCard  PaymentType = "card"
	PaymentTypeMixed PaymentType = "mixed"
)

// Valid reports whether t is one of the known payment types.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypePoint, PaymentTypeCard, PaymentTypeMixed:
		return true
	}
	return false
}

// OrderStatus describes the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusCancelRequested OrderStatus = "cancel_requested"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRefunded        OrderStatus = "refunded"
	OrderStatusShipped         OrderStatus = "shipped"
)

// UnboxedProduct holds the draw outcome bound to an order. Product stays nil
// until the draw claims the order; once set it is never overwritten.
type UnboxedProduct struct {
	Product   *Product   `json:"product"`
	DecidedAt *time.Time `json:"decidedAt"`
}

// Decided reports whether the order's draw outcome is already bound.
func (u UnboxedProduct) Decided() bool {
	return u.Product != nil
}

// Money splits an amount between points and cash.
type Money struct {
	Point int64 `json:"point"`
	Cash  int64 `json:"cash"`
}

// Order is one purchased box unit. Multi-count purchases fan out into N
// orders so that draw and refund stay atomic per physical box.
type Order struct {
	ID              int64          `json:"id"`
	UserID          int64          `json:"userId"`
	BoxID           int64          `json:"boxId"`
	Box             *Box           `json:"box,omitempty"`
	PaymentType     PaymentType    `json:"paymentType"`
	PaymentAmount   int64          `json:"paymentAmount"`
	PointUsed       int64          `json:"pointUsed"`
	Status          OrderStatus    `json:"status"`
	Unboxed         UnboxedProduct `json:"unboxedProduct"`
	Refunded        Money          `json:"refunded"`
	DeliveryFee     Money          `json:"deliveryFee"`
	ExternalOrderNo string         `json:"externalOrderNo,omitempty"`
	TrackingNumber  string         `json:"trackingNumber,omitempty"`
	TrackingCompany string         `json:"trackingCompany,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// PointType tags a ledger entry. Credit and refund add to the balance,
// debit subtracts from it.
type PointType string

const (
	PointTypeCredit PointType = "credit"
	PointTypeDebit  PointType = "debit"
	PointTypeRefund PointType = "refund"
)

// Valid reports whether t is one of the known ledger entry types.
func (t PointType) Valid() bool {
	switch t {
	case PointTypeCredit, PointTypeDebit, PointTypeRefund:
		return true
	}
	return false
}

// PointEntry is one append-only ledger record. TotalAmount is a snapshot of
// the running balance at insert time; the authoritative balance is always
// recomputable by folding entries.
type PointEntry struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	Type           PointType `json:"type"`
	Amount         int64     `json:"amount"`
	Description    string    `json:"description"`
	RelatedOrderID *int64    `json:"relatedOrder,omitempty"`
	TotalAmount    int64     `json:"totalAmount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Notification is a message shown to a user, created as an unboxing side effect.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	OrderID   *int64    `json:"orderId,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
