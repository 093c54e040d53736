package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
)

var (
	ErrInvalidQuantity   = errors.New("order quantity must be > 0")
	ErrInvalidLimitPrice = errors.New("limit price must be > 0")
	ErrTerminalOrder     = errors.New("order already in terminal state")
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus tracks the lifecycle of an order.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
)

// Terminal reports whether the status permits no further transition.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// Order is a single trade instruction. Identity is fixed at creation;
// only the lifecycle fields move, and only forward.
type Order struct {
	ID       string
	Symbol   string
	Side     Side
	Type     OrderType
	Quantity float64
	Price    float64 // limit price, 0 for market orders
	Status   OrderStatus
	Reason   string // populated when Status is rejected

	CreatedAt   time.Time
	FilledAt    time.Time
	FilledPrice float64
}

// NewOrder creates an open order with a generated id.
func NewOrder(symbol string, side Side, typ OrderType, quantity, price float64) (*Order, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if typ == OrderTypeLimit && price <= 0 {
		return nil, ErrInvalidLimitPrice
	}
	if typ == OrderTypeMarket {
		price = 0
	}
	return &Order{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		Quantity:  quantity,
		Price:     price,
		Status:    OrderStatusOpen,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewMarketOrder creates an open market order.
func NewMarketOrder(symbol string, side Side, quantity float64) (*Order, error) {
	return NewOrder(symbol, side, OrderTypeMarket, quantity, 0)
}

// Fill marks the order filled at the given price.
func (o *Order) Fill(price float64, at time.Time) error {
	if o.Status.Terminal() {
		return ErrTerminalOrder
	}
	o.Status = OrderStatusFilled
	o.FilledPrice = price
	o.FilledAt = at
	return nil
}

// Cancel marks an open order canceled. Terminal orders are left untouched.
func (o *Order) Cancel() error {
	if o.Status.Terminal() {
		return ErrTerminalOrder
	}
	o.Status = OrderStatusCanceled
	return nil
}

// Reject marks the order rejected with a business reason.
func (o *Order) Reject(reason string) error {
	if o.Status.Terminal() {
		return ErrTerminalOrder
	}
	o.Status = OrderStatusRejected
	o.Reason = reason
	return nil
}
