package vanilla

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pseudocodes/lite-vanilla/entity"
	"github.com/pseudocodes/lite-vanilla/gateway"
)

var orderStatus = map[gateway.OrderState]entity.OrderStatus{
	gateway.StateSubmitting:     entity.StatusOpen,
	gateway.StateNotTraded:      entity.StatusOpen,
	gateway.StatePartTraded:     entity.StatusOpen,
	gateway.StateAllTraded:      entity.StatusFilled,
	gateway.StateCancelled:      entity.StatusCanceled,
	gateway.StateRejected:       entity.StatusCanceled,
	gateway.StateCancelRejected: entity.StatusCanceled,
}

// StatusOf maps a gateway order state to a canonical status. Unlisted
// states map to StatusUnknown.
func StatusOf(state gateway.OrderState) (entity.OrderStatus, bool) {
	s, ok := orderStatus[state]
	if !ok {
		return entity.StatusUnknown, false
	}
	return s, true
}

func sideOf(direction string) entity.Side {
	switch d := strings.ToLower(strings.TrimSpace(direction)); d {
	case "buy", "long", "0":
		return entity.SideBuy
	case "sell", "short", "1":
		return entity.SideSell
	default:
		return entity.Side(d)
	}
}

func (b *Broker) ParseOrder(raw gateway.Order, strategy string) (*entity.Order, error) {
	ins, err := entity.ParseInstrument(raw.InstrumentName)
	if err != nil {
		return nil, err
	}
	status, ok := StatusOf(raw.OrderState)
	if !ok {
		b.logger.Warn("unknown order state", zap.String("id", raw.ID.String()), zap.String("state", string(raw.OrderState)))
	}
	return &entity.Order{
		Strategy:   strategy,
		Asset:      ins.Asset(),
		Quantity:   raw.Amount,
		Side:       sideOf(raw.Direction),
		Type:       entity.OrderLimit,
		LimitPrice: raw.Price,
		Exchange:   ins.Venue,
		Identifier: raw.ID.String(),
		Status:     status,
		Raw:        raw,
	}, nil
}

func (b *Broker) PullOpenOrders(ctx context.Context) ([]gateway.Order, error) {
	return b.pullOrders(ctx, "open", b.client.OpenOrders)
}

func (b *Broker) PullClosedOrders(ctx context.Context) ([]gateway.Order, error) {
	return b.pullOrders(ctx, "closed", b.client.ClosedOrders)
}

// pullOrders makes one call per trade list entry, in order.
func (b *Broker) pullOrders(ctx context.Context, kind string, query func(context.Context, string) ([]gateway.Order, error)) ([]gateway.Order, error) {
	var out []gateway.Order
	for _, ins := range b.tradeList {
		orders, err := query(ctx, ins.String())
		if err != nil {
			return nil, fmt.Errorf("query %s orders %s: %w", kind, ins, err)
		}
		out = append(out, orders...)
	}
	return out, nil
}

func (b *Broker) pullAllOrders(ctx context.Context) ([]gateway.Order, error) {
	open, err := b.PullOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	closed, err := b.PullClosedOrders(ctx)
	if err != nil {
		return nil, err
	}
	return append(open, closed...), nil
}

// PullOrder scans open then closed orders of the trade list for id.
func (b *Broker) PullOrder(ctx context.Context, id string) (gateway.Order, bool, error) {
	all, err := b.pullAllOrders(ctx)
	if err != nil {
		return gateway.Order{}, false, err
	}
	for _, o := range all {
		if o.ID.String() == id {
			return o, true, nil
		}
	}
	return gateway.Order{}, false, nil
}

func (b *Broker) Order(ctx context.Context, strategy, id string) (*entity.Order, bool, error) {
	raw, ok, err := b.PullOrder(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	o, err := b.ParseOrder(raw, strategy)
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

// Orders returns every open and closed order of the trade list.
func (b *Broker) Orders(ctx context.Context, strategy string) ([]*entity.Order, error) {
	all, err := b.pullAllOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Order, 0, len(all))
	for _, raw := range all {
		o, err := b.ParseOrder(raw, strategy)
		if err != nil {
			b.logger.Warn("skip order", zap.String("id", raw.ID.String()), zap.String("instrument", raw.InstrumentName), zap.Error(err))
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// FlattenOrder returns the order itself. Child legs of compound orders are
// not tracked.
func (b *Broker) FlattenOrder(o *entity.Order) []*entity.Order {
	return []*entity.Order{o}
}

// SubmitOrder sends a simple limit order with exactly one client call. A
// failed call is recorded on the order, never returned.
func (b *Broker) SubmitOrder(ctx context.Context, o *entity.Order) *entity.Order {
	if o.Class != entity.ClassSimple {
		b.logger.Error("compound orders are not accepted, only simple limit orders work with futures markets",
			zap.String("class", string(o.Class)), zap.Stringer("order", o))
		return o
	}
	if o.Type != entity.OrderLimit {
		b.logger.Error("only limit orders work with futures markets",
			zap.String("type", string(o.Type)), zap.Stringer("order", o))
		return o
	}

	instrument := o.Instrument().String()
	volume := int(o.Quantity)
	var (
		resp gateway.OrderResponse
		err  error
	)
	if o.Side == entity.SideBuy {
		resp, err = b.client.OpenLong(ctx, instrument, o.LimitPrice, volume)
	} else {
		resp, err = b.client.OpenShort(ctx, instrument, o.LimitPrice, volume)
	}
	if err != nil {
		o.SetError(err)
		b.logger.Error("order did not go through", zap.Stringer("order", o), zap.Error(err))
		return o
	}

	o.SetIdentifier(resp.ID.String())
	o.Status = entity.StatusOpen
	o.UpdateRaw(resp)
	return o
}

type CancelOutcome int

const (
	CancelConfirmed CancelOutcome = iota
	// CancelUnconfirmed: the gateway answered with another order id.
	CancelUnconfirmed
	CancelFailed
)

func (c CancelOutcome) String() string {
	switch c {
	case CancelConfirmed:
		return "confirmed"
	case CancelUnconfirmed:
		return "unconfirmed"
	case CancelFailed:
		return "failed"
	default:
		return fmt.Sprintf("CancelOutcome(%d)", int(c))
	}
}

// CancelOrder marks o canceled only when the gateway echoes its id.
func (b *Broker) CancelOrder(ctx context.Context, o *entity.Order) CancelOutcome {
	resp, err := b.client.CancelOrder(ctx, o.Instrument().String(), o.Identifier)
	if err != nil {
		b.logger.Error("cancel order failed", zap.Stringer("order", o), zap.String("id", o.Identifier), zap.Error(err))
		return CancelFailed
	}
	if resp.ID.String() != o.Identifier {
		b.logger.Warn("cancel not confirmed", zap.String("id", o.Identifier), zap.String("response_id", resp.ID.String()))
		return CancelUnconfirmed
	}
	o.SetCanceled()
	return CancelConfirmed
}
