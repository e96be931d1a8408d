package entity

import "fmt"

type Position struct {
	Strategy string
	Asset    Asset
	Quantity float64
	Orders   []*Order
}

func NewPosition(strategy string, asset Asset, quantity float64, orders ...*Order) Position {
	return Position{Strategy: strategy, Asset: asset, Quantity: quantity, Orders: orders}
}

func (p Position) String() string {
	return fmt.Sprintf("%s qty=%v", p.Asset.Symbol, p.Quantity)
}

// Balance is a (cash, positions value, total) snapshot. PositionsValue is
// not marked to market by the broker; PositionsValueModeled reports that.
type Balance struct {
	Cash                  float64
	PositionsValue        float64
	Total                 float64
	PositionsValueModeled bool
}

func (b Balance) Tuple() (float64, float64, float64) {
	return b.Cash, b.PositionsValue, b.Total
}
