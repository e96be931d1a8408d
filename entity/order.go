package entity

import "fmt"

type OrderStatus string

const (
	StatusUnprocessed OrderStatus = "unprocessed"
	StatusOpen        OrderStatus = "open"
	StatusFilled      OrderStatus = "filled"
	StatusCanceled    OrderStatus = "canceled"
	// StatusUnknown marks a broker state the mapping table does not cover.
	StatusUnknown OrderStatus = "unknown"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderType string

const (
	OrderLimit     OrderType = "limit"
	OrderMarket    OrderType = "market"
	OrderStop      OrderType = "stop"
	OrderStopLimit OrderType = "stop_limit"
)

// OrderClass is empty for a simple order.
type OrderClass string

const (
	ClassSimple  OrderClass = ""
	ClassBracket OrderClass = "bracket"
	ClassOCO     OrderClass = "oco"
	ClassOTO     OrderClass = "oto"
)

type Order struct {
	Strategy   string
	Asset      Asset
	Quantity   float64
	Side       Side
	Type       OrderType
	Class      OrderClass
	LimitPrice float64
	Exchange   string

	Identifier string
	Status     OrderStatus
	Raw        any
	Err        error
}

// NewLimitOrder builds a locally pending limit order.
func NewLimitOrder(strategy string, asset Asset, quantity float64, side Side, limit float64, exchange string) *Order {
	return &Order{
		Strategy:   strategy,
		Asset:      asset,
		Quantity:   quantity,
		Side:       side,
		Type:       OrderLimit,
		LimitPrice: limit,
		Exchange:   exchange,
		Status:     StatusUnprocessed,
	}
}

func (o *Order) Symbol() string {
	return o.Asset.Symbol
}

func (o *Order) Instrument() Instrument {
	return Instrument{Venue: o.Exchange, Symbol: o.Asset.Symbol}
}

func (o *Order) SetIdentifier(id string) {
	o.Identifier = id
}

func (o *Order) UpdateRaw(raw any) {
	o.Raw = raw
}

func (o *Order) SetError(err error) {
	o.Err = err
}

func (o *Order) IsTerminal() bool {
	return o.Status == StatusFilled || o.Status == StatusCanceled
}

func (o *Order) IsCanceled() bool {
	return o.Status == StatusCanceled
}

// SetCanceled is a no-op on a filled order.
func (o *Order) SetCanceled() {
	if o.IsTerminal() {
		return
	}
	o.Status = StatusCanceled
}

func (o *Order) String() string {
	return fmt.Sprintf("%s order of | %v %s %s @ %v | %s", o.Type, o.Quantity, o.Exchange+","+o.Asset.Symbol, o.Side, o.LimitPrice, o.Status)
}
