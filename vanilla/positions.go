package vanilla

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pseudocodes/lite-vanilla/entity"
	"github.com/pseudocodes/lite-vanilla/gateway"
)

// Balances maps the all-accounts snapshot to (available, 0, equity). The
// positions value is not marked to market.
func (b *Broker) Balances(ctx context.Context) (entity.Balance, error) {
	acct, err := b.client.Account(ctx, gateway.ScopeAll)
	if err != nil {
		return entity.Balance{}, fmt.Errorf("query account: %w", err)
	}
	return entity.Balance{
		Cash:           acct.AvailableFunds,
		PositionsValue: 0,
		Total:          acct.Equity,
	}, nil
}

func (b *Broker) PullPositions(ctx context.Context) ([]gateway.Position, error) {
	raw, err := b.client.Positions(ctx, gateway.ScopeAll)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	return raw, nil
}

func (b *Broker) ParsePosition(raw gateway.Position, strategy string) (entity.Position, error) {
	ins, err := entity.ParseInstrument(raw.InstrumentName)
	if err != nil {
		return entity.Position{}, err
	}
	return entity.NewPosition(strategy, ins.Asset(), raw.Size), nil
}

// FetchPositions is the strict bulk pull. Rows with a malformed instrument
// name are skipped.
func (b *Broker) FetchPositions(ctx context.Context, strategy string) ([]entity.Position, error) {
	raw, err := b.PullPositions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Position, 0, len(raw))
	for _, r := range raw {
		pos, err := b.ParsePosition(r, strategy)
		if err != nil {
			b.logger.Warn("skip position", zap.String("instrument", r.InstrumentName), zap.Error(err))
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}

// Positions trades any failure for an empty result.
func (b *Broker) Positions(ctx context.Context, strategy string) []entity.Position {
	out, err := b.FetchPositions(ctx, strategy)
	if err != nil {
		b.logger.Error("pull positions failed", zap.String("strategy", strategy), zap.Error(err))
		return []entity.Position{}
	}
	return out
}

// PullPosition returns the first raw position whose instrument name
// contains the asset symbol.
func (b *Broker) PullPosition(ctx context.Context, asset entity.Asset) (gateway.Position, bool) {
	raw, err := b.PullPositions(ctx)
	if err != nil {
		b.logger.Error("pull positions failed", zap.String("asset", asset.Symbol), zap.Error(err))
		return gateway.Position{}, false
	}
	for _, r := range raw {
		if strings.Contains(r.InstrumentName, asset.Symbol) {
			return r, true
		}
	}
	return gateway.Position{}, false
}

func (b *Broker) Position(ctx context.Context, strategy string, asset entity.Asset) (entity.Position, bool) {
	raw, ok := b.PullPosition(ctx, asset)
	if !ok {
		return entity.Position{}, false
	}
	pos, err := b.ParsePosition(raw, strategy)
	if err != nil {
		b.logger.Warn("skip position", zap.String("instrument", raw.InstrumentName), zap.Error(err))
		return entity.Position{}, false
	}
	return pos, true
}
