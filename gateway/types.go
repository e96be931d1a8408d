package gateway

import (
	"fmt"

	"github.com/goccy/go-json"
)

// ScopeAll queries every account behind the gateway.
const ScopeAll = "all"

type OrderState string

const (
	StateSubmitting     OrderState = "SUBMITTING"
	StateNotTraded      OrderState = "NOT_TRADED"
	StatePartTraded     OrderState = "PART_TRADED"
	StateAllTraded      OrderState = "ALL_TRADED"
	StateCancelled      OrderState = "CANCELLED"
	StateRejected       OrderState = "REJECTED"
	StateCancelRejected OrderState = "CANCEL_REJECTED"
)

type Account struct {
	AccountID      string  `json:"account_id"`
	AvailableFunds float64 `json:"available_funds"`
	Equity         float64 `json:"equity"`
	FrozenFunds    float64 `json:"frozen_funds"`
	Margin         float64 `json:"margin"`
}

type Position struct {
	InstrumentName string  `json:"instrument_name"`
	Size           float64 `json:"size"`
	Direction      string  `json:"direction"`
	AveragePrice   float64 `json:"average_price"`
	FloatProfit    float64 `json:"float_profit"`
}

type Order struct {
	ID             OrderID    `json:"id"`
	InstrumentName string     `json:"instrument_name"`
	Amount         float64    `json:"amount"`
	Direction      string     `json:"direction"`
	Price          float64    `json:"price"`
	OrderState     OrderState `json:"order_state"`
	Traded         float64    `json:"traded"`
	InsertTime     string     `json:"insert_time"`
	Message        string     `json:"message"`
}

type OrderResponse struct {
	ID OrderID `json:"id"`
}

// OrderID accepts both string and numeric ids on the wire.
type OrderID string

func (id *OrderID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = OrderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("order id %s: %w", data, err)
	}
	*id = OrderID(n.String())
	return nil
}

func (id OrderID) String() string {
	return string(id)
}

type orderRequest struct {
	Instrument string  `json:"instrument"`
	Price      float64 `json:"price"`
	Volume     int     `json:"volume"`
}

type cancelRequest struct {
	Instrument string `json:"instrument"`
	OrderID    string `json:"order_id"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type APIError struct {
	Status int
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gateway error status %d (%d): %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("gateway error status %d: %s", e.Status, e.Msg)
}
