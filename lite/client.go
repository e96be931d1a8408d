package lite

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pseudocodes/lite-vanilla/entity"
	"github.com/pseudocodes/lite-vanilla/gateway"
	"github.com/pseudocodes/lite-vanilla/quote"
)

// Account refreshes the trading account and reports it. CTP logs in one
// investor per session, so scope is ignored.
func (t *Trader) Account(ctx context.Context, _ string) (gateway.Account, error) {
	if t.tdctp == nil {
		return gateway.Account{}, ErrNotConnected
	}
	if err := t.tdctp.query(ctx, t.tdctp.ReqQryAccount); err != nil {
		return gateway.Account{}, fmt.Errorf("query account: %w", err)
	}
	return t.accountSnapshot(), nil
}

func (t *Trader) accountSnapshot() gateway.Account {
	p := t.portfolio
	p.Lock()
	defer p.Unlock()
	id := p.AccountID
	if id == "" {
		id = t.config.UserID
	}
	return gateway.Account{
		AccountID:      id,
		AvailableFunds: p.Available,
		Equity:         p.Balance,
		FrozenFunds:    p.FrozenBalance,
		Margin:         p.CurrMargin,
	}
}

func (t *Trader) Positions(ctx context.Context, _ string) ([]gateway.Position, error) {
	if t.tdctp == nil {
		return nil, ErrNotConnected
	}
	if err := t.tdctp.query(ctx, t.tdctp.ReqQryPosition); err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	return t.positionSnapshot(), nil
}

func (t *Trader) positionSnapshot() []gateway.Position {
	out := make([]gateway.Position, 0)
	for _, pos := range t.portfolio.Snapshot() {
		ct, _ := t.ContractMap.Load(pos.Instrument)
		out = append(out, pos.Gateway(ct)...)
	}
	return out
}

// OpenOrders serves live orders from the order book kept by OnRtnOrder.
func (t *Trader) OpenOrders(ctx context.Context, instrument string) ([]gateway.Order, error) {
	return t.gatewayOrders(ctx, instrument, func(o *Order) bool { return !o.IsFinished() })
}

func (t *Trader) ClosedOrders(ctx context.Context, instrument string) ([]gateway.Order, error) {
	return t.gatewayOrders(ctx, instrument, (*Order).IsFinished)
}

func (t *Trader) gatewayOrders(ctx context.Context, instrument string, keep func(*Order) bool) ([]gateway.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := entity.ParseInstrument(instrument); err != nil {
		return nil, err
	}
	orders := t.orders(instrument, keep)
	out := make([]gateway.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Gateway())
	}
	return out, nil
}

func (t *Trader) OpenLong(ctx context.Context, instrument string, price float64, volume int) (gateway.OrderResponse, error) {
	return t.open(ctx, instrument, price, volume, t.BuyOpen)
}

func (t *Trader) OpenShort(ctx context.Context, instrument string, price float64, volume int) (gateway.OrderResponse, error) {
	return t.open(ctx, instrument, price, volume, t.SellOpen)
}

func (t *Trader) open(ctx context.Context, instrument string, price float64, volume int, insert func(ins, exchange string, limit float64, vol int) (string, error)) (gateway.OrderResponse, error) {
	if err := ctx.Err(); err != nil {
		return gateway.OrderResponse{}, err
	}
	ins, err := parseVenue(instrument)
	if err != nil {
		return gateway.OrderResponse{}, err
	}
	if volume <= 0 {
		return gateway.OrderResponse{}, fmt.Errorf("ctp: volume must be positive, got %d", volume)
	}
	id, err := insert(ins.Symbol, ins.Venue, price, volume)
	if err != nil {
		return gateway.OrderResponse{}, err
	}
	return gateway.OrderResponse{ID: gateway.OrderID(id)}, nil
}

// CancelOrder sends the delete action and echoes the order id once the
// front has accepted the request.
func (t *Trader) CancelOrder(ctx context.Context, instrument, orderID string) (gateway.OrderResponse, error) {
	if err := ctx.Err(); err != nil {
		return gateway.OrderResponse{}, err
	}
	if o, ok := t.OrderMap.Load(orderID); ok && o.Name() != instrument {
		return gateway.OrderResponse{}, fmt.Errorf("%w: %s is not on %s", ErrUnknownOrder, orderID, instrument)
	}
	if err := t.cancelOrder(orderID); err != nil {
		return gateway.OrderResponse{}, err
	}
	return gateway.OrderResponse{ID: gateway.OrderID(orderID)}, nil
}

func parseVenue(instrument string) (entity.Instrument, error) {
	ins, err := entity.ParseInstrument(instrument)
	if err != nil {
		return ins, err
	}
	if !slices.Contains(Exchanges, strings.ToUpper(ins.Venue)) {
		return ins, fmt.Errorf("ctp: unknown exchange %q", ins.Venue)
	}
	ins.Venue = strings.ToUpper(ins.Venue)
	return ins, nil
}

// Spot answers from the tick cache. An instrument without ticks yields no
// rows.
func (t *Trader) Spot(_ context.Context, symbol string) ([]quote.SpotRow, error) {
	tick, ok := t.Ticks.Load(strings.ToUpper(symbol))
	if !ok || tick.Last == 0 {
		return nil, nil
	}
	name := tick.InstrumentID
	if ct, ok := t.ContractMap.Load(tick.InstrumentID); ok && ct.Name != "" {
		name = ct.Name
	}
	return []quote.SpotRow{{
		Symbol:       symbol,
		Name:         name,
		Time:         tick.UpdateTime,
		Open:         decimal.NewFromFloat(tick.Open),
		High:         decimal.NewFromFloat(tick.High),
		Low:          decimal.NewFromFloat(tick.Low),
		LastClose:    decimal.NewFromFloat(tick.PreClose),
		Bid:          decimal.NewFromFloat(tick.Bid),
		Ask:          decimal.NewFromFloat(tick.Ask),
		CurrentPrice: decimal.NewFromFloat(tick.Last),
		LastSettle:   decimal.NewFromFloat(tick.PreSettle),
		Hold:         decimal.NewFromFloat(tick.OpenInterest),
		Volume:       decimal.NewFromInt(int64(tick.Volume)),
	}}, nil
}
