package entity

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedInstrument = errors.New("malformed instrument name")

type AssetType string

const (
	AssetFuture AssetType = "future"
	AssetStock  AssetType = "stock"
	AssetForex  AssetType = "forex"
)

type Asset struct {
	Symbol string
	Type   AssetType
}

func NewAsset(symbol string) Asset {
	return Asset{Symbol: symbol, Type: AssetStock}
}

func (a Asset) String() string {
	return a.Symbol
}

// Instrument is a venue-qualified symbol as the gateway names it,
// "<venue>,<symbol>", e.g. "DCE,i2405".
type Instrument struct {
	Venue  string
	Symbol string
}

func ParseInstrument(name string) (Instrument, error) {
	parts := strings.Split(name, ",")
	if len(parts) != 2 {
		return Instrument{}, fmt.Errorf("%w: %q", ErrMalformedInstrument, name)
	}
	venue, symbol := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if venue == "" || symbol == "" {
		return Instrument{}, fmt.Errorf("%w: %q", ErrMalformedInstrument, name)
	}
	return Instrument{Venue: venue, Symbol: symbol}, nil
}

func (i Instrument) String() string {
	return i.Venue + "," + i.Symbol
}

func (i Instrument) Asset() Asset {
	return Asset{Symbol: i.Symbol, Type: AssetFuture}
}
