// Package quote answers price questions for domestic futures.
package quote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pseudocodes/lite-vanilla/entity"
)

const (
	SourceName  = "Vanilla"
	MinTimestep = "day"
)

var (
	ErrNoData              = errors.New("quote: no data")
	ErrUnsupportedTimestep = errors.New("quote: only daily bars are supported")
	ErrInvalidLength       = errors.New("quote: bar count must be positive")
	ErrChainsUnsupported   = errors.New("quote: Vanilla does not support options data, use a different data source")
)

// timestep representations accepted as "day"
var dayTimesteps = map[string]bool{"": true, "day": true, "1d": true}

// Chains maps exchange to expiry to strikes.
type Chains map[string]map[string][]float64

type Source struct {
	daily  DailyProvider
	spot   SpotProvider
	logger *zap.Logger
}

type Option func(*Source)

func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSpotProvider serves latest prices from p instead of the main provider.
func WithSpotProvider(p SpotProvider) Option {
	return func(s *Source) {
		if p != nil {
			s.spot = p
		}
	}
}

func New(p Provider, opts ...Option) *Source {
	s := &Source{daily: p, spot: p, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) SourceName() string {
	return SourceName
}

// FetchLastPrice returns the current price of the first spot row.
func (s *Source) FetchLastPrice(ctx context.Context, asset entity.Asset) (decimal.Decimal, error) {
	symbol := strings.ToUpper(asset.Symbol)
	rows, err := s.spot.Spot(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("spot %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return decimal.Zero, fmt.Errorf("spot %s: %w", symbol, ErrNoData)
	}
	return rows[0].CurrentPrice, nil
}

// LastPrice reports ok=false for both "no data" and provider errors.
func (s *Source) LastPrice(ctx context.Context, asset entity.Asset) (decimal.Decimal, bool) {
	price, err := s.FetchLastPrice(ctx, asset)
	if err != nil {
		if !errors.Is(err, ErrNoData) {
			s.logger.Error("get last price failed", zap.String("asset", asset.Symbol), zap.Error(err))
		}
		return decimal.Zero, false
	}
	return price, true
}

// FetchHistoricalPrices returns at most length daily bars, newest last.
func (s *Source) FetchHistoricalPrices(ctx context.Context, asset entity.Asset, length int, timestep string) (*entity.Bars, error) {
	if !dayTimesteps[strings.ToLower(timestep)] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTimestep, timestep)
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	symbol := strings.ToUpper(asset.Symbol)
	rows, err := s.daily.DailyBars(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("daily bars %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("daily bars %s: %w", symbol, ErrNoData)
	}
	rows = append([]entity.Bar(nil), rows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	if len(rows) > length {
		rows = rows[len(rows)-length:]
	}
	return &entity.Bars{Source: SourceName, Asset: asset, Rows: rows}, nil
}

// HistoricalPrices is FetchHistoricalPrices returning nil on any failure.
func (s *Source) HistoricalPrices(ctx context.Context, asset entity.Asset, length int, timestep string) *entity.Bars {
	bars, err := s.FetchHistoricalPrices(ctx, asset, length, timestep)
	if err != nil {
		if !errors.Is(err, ErrNoData) {
			s.logger.Error("get historical prices failed", zap.String("asset", asset.Symbol), zap.Int("length", length), zap.Error(err))
		}
		return nil
	}
	return bars
}

func (s *Source) Chains(_ context.Context, _ entity.Asset) (Chains, error) {
	return nil, ErrChainsUnsupported
}
