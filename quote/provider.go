package quote

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/pseudocodes/lite-vanilla/entity"
)

// SpotRow is one realtime quote row. Only CurrentPrice is required.
type SpotRow struct {
	Symbol       string
	Name         string
	Time         string
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	LastClose    decimal.Decimal
	Bid          decimal.Decimal
	Ask          decimal.Decimal
	CurrentPrice decimal.Decimal
	LastSettle   decimal.Decimal
	Hold         decimal.Decimal
	Volume       decimal.Decimal
}

type SpotProvider interface {
	Spot(ctx context.Context, symbol string) ([]SpotRow, error)
}

type DailyProvider interface {
	DailyBars(ctx context.Context, symbol string) ([]entity.Bar, error)
}

type Provider interface {
	SpotProvider
	DailyProvider
}
