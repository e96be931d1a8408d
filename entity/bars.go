package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Bar struct {
	Date         time.Time
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
	Volume       decimal.Decimal
	OpenInterest decimal.Decimal
	Settle       decimal.Decimal
}

// Bars holds daily rows, oldest first.
type Bars struct {
	Source string
	Asset  Asset
	Quote  *Asset
	Rows   []Bar
}

func (b *Bars) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

func (b *Bars) Last() (Bar, bool) {
	if b.Len() == 0 {
		return Bar{}, false
	}
	return b.Rows[len(b.Rows)-1], true
}

func (b *Bars) Closes() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, b.Len())
	for _, r := range b.Rows {
		out = append(out, r.Close)
	}
	return out
}

func (b *Bars) MaxClose() (decimal.Decimal, bool) {
	if b.Len() == 0 {
		return decimal.Zero, false
	}
	return decimal.Max(b.Rows[0].Close, b.Closes()[1:]...), true
}
