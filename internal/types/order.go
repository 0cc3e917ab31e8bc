package types

import (
	"time"
)

// Direction is the side of an order or position.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Sign returns +1 for buy, -1 for sell.
func (d Direction) Sign() int {
	if d == DirectionSell {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// OrderStatus is the lifecycle state of an order.
//
// pending -> submitted -> filled | rejected | cancelled
// Only the execution gateway may move submitted -> filled/rejected.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderFilled    OrderStatus = "filled"
	OrderRejected  OrderStatus = "rejected"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderRejected, OrderCancelled:
		return true
	}
	return false
}

// Order is a proposed or submitted trade.
type Order struct {
	ID            string      `json:"id"`
	MarketID      string      `json:"market_id"`
	OutcomeID     string      `json:"outcome_id"`
	Direction     Direction   `json:"direction"`
	Size          float64     `json:"size"`
	LimitPrice    float64     `json:"limit_price"`
	Strategy      string      `json:"strategy"`
	SignalID      string      `json:"signal_id,omitempty"`
	Status        OrderStatus `json:"status"`
	Reason        string      `json:"reason,omitempty"`
	StopLoss      float64     `json:"stop_loss,omitempty"`
	TakeProfit    float64     `json:"take_profit,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	ExecutedAt    *time.Time  `json:"executed_at,omitempty"`
	ExecutedPrice float64     `json:"executed_price,omitempty"`
}

// Notional returns the order value at its limit price.
func (o Order) Notional() float64 {
	return o.Size * o.LimitPrice
}
