package vanilla_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pseudocodes/lite-vanilla/entity"
	"github.com/pseudocodes/lite-vanilla/gateway"
	"github.com/pseudocodes/lite-vanilla/session"
	"github.com/pseudocodes/lite-vanilla/vanilla"
)

// call is one client invocation captured by fakeClient.
type call struct {
	Method     string
	Instrument string
	Price      float64
	Volume     int
	OrderID    string
}

// fakeClient records every call it receives. Each test builds its own.
type fakeClient struct {
	account   gateway.Account
	positions []gateway.Position
	open      map[string][]gateway.Order
	closed    map[string][]gateway.Order
	resp      gateway.OrderResponse
	err       error

	calls []call
}

func (f *fakeClient) record(c call) {
	f.calls = append(f.calls, c)
}

func (f *fakeClient) Account(context.Context, string) (gateway.Account, error) {
	f.record(call{Method: "Account"})
	return f.account, f.err
}

func (f *fakeClient) Positions(context.Context, string) ([]gateway.Position, error) {
	f.record(call{Method: "Positions"})
	return f.positions, f.err
}

func (f *fakeClient) OpenOrders(_ context.Context, instrument string) ([]gateway.Order, error) {
	f.record(call{Method: "OpenOrders", Instrument: instrument})
	return f.open[instrument], f.err
}

func (f *fakeClient) ClosedOrders(_ context.Context, instrument string) ([]gateway.Order, error) {
	f.record(call{Method: "ClosedOrders", Instrument: instrument})
	return f.closed[instrument], f.err
}

func (f *fakeClient) OpenLong(_ context.Context, instrument string, price float64, volume int) (gateway.OrderResponse, error) {
	f.record(call{Method: "OpenLong", Instrument: instrument, Price: price, Volume: volume})
	return f.resp, f.err
}

func (f *fakeClient) OpenShort(_ context.Context, instrument string, price float64, volume int) (gateway.OrderResponse, error) {
	f.record(call{Method: "OpenShort", Instrument: instrument, Price: price, Volume: volume})
	return f.resp, f.err
}

func (f *fakeClient) CancelOrder(_ context.Context, instrument, orderID string) (gateway.OrderResponse, error) {
	f.record(call{Method: "CancelOrder", Instrument: instrument, OrderID: orderID})
	return f.resp, f.err
}

type fakeSource struct {
	name string
}

func (s fakeSource) SourceName() string {
	return s.name
}

func (s fakeSource) LastPrice(context.Context, entity.Asset) (decimal.Decimal, bool) {
	return decimal.Zero, false
}

func (s fakeSource) HistoricalPrices(context.Context, entity.Asset, int, string) *entity.Bars {
	return nil
}

var tradeList = []string{"DCE,i2405", "INE,ec2404"}

func newBroker(t *testing.T, client *fakeClient, opts ...vanilla.Option) *vanilla.Broker {
	t.Helper()
	opts = append([]vanilla.Option{
		vanilla.WithTradeClient(client),
		vanilla.WithDataSource(fakeSource{name: "Vanilla"}),
	}, opts...)
	b, err := vanilla.New(vanilla.Config{ClientURL: "127.0.0.1:6000", TradeList: tradeList}, opts...)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return b
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	cases := []struct {
		name string
		cfg  vanilla.Config
		ds   vanilla.DataSource
		want error
	}{
		{"wrong source type", vanilla.Config{TradeList: tradeList}, fakeSource{name: "Yahoo"}, vanilla.ErrDataSourceMismatch},
		{"wrong configured source", vanilla.Config{TradeList: tradeList, DataSource: "Tushare"}, fakeSource{name: "Vanilla"}, vanilla.ErrDataSourceMismatch},
		{"empty trade list", vanilla.Config{}, fakeSource{name: "Vanilla"}, vanilla.ErrEmptyTradeList},
		{"malformed trade list", vanilla.Config{TradeList: []string{"i2405"}}, fakeSource{name: "Vanilla"}, entity.ErrMalformedInstrument},
	}
	for _, tc := range cases {
		_, err := vanilla.New(tc.cfg, vanilla.WithTradeClient(client), vanilla.WithDataSource(tc.ds))
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: error=%v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestTradeListDeduplicated(t *testing.T) {
	t.Parallel()

	b, err := vanilla.New(vanilla.Config{TradeList: []string{"DCE,i2405", "INE,ec2404", "DCE,i2405"}},
		vanilla.WithTradeClient(&fakeClient{}), vanilla.WithDataSource(fakeSource{name: "Vanilla"}))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	got := b.TradeList()
	if len(got) != 2 || got[0].String() != "DCE,i2405" || got[1].String() != "INE,ec2404" {
		t.Fatalf("trade list=%v", got)
	}
}

func TestClock(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 18, 9, 30, 0, 0, time.UTC)
	b := newBroker(t, &fakeClient{}, vanilla.WithClock(func() time.Time { return now }))

	if b.Timestamp() != float64(now.Unix()) {
		t.Fatalf("timestamp=%v", b.Timestamp())
	}
	if !b.IsMarketOpen() {
		t.Fatal("continuous session should be open")
	}
	if _, ok := b.TimeToOpen(); ok {
		t.Fatal("time to open should be unknown")
	}
	if _, ok := b.TimeToClose(); ok {
		t.Fatal("time to close should be unknown")
	}

	sat := time.Date(2024, 3, 16, 10, 0, 0, 0, time.UTC)
	scheduled := newBroker(t, &fakeClient{},
		vanilla.WithClock(func() time.Time { return sat }),
		vanilla.WithSession(session.CTP()))
	if scheduled.IsMarketOpen() {
		t.Fatal("CTP session should be closed on Saturday")
	}
	if _, ok := scheduled.TimeToOpen(); !ok {
		t.Fatal("CTP session should know the next open")
	}
}

func TestBalances(t *testing.T) {
	t.Parallel()

	b := newBroker(t, &fakeClient{account: gateway.Account{AvailableFunds: 1000, Equity: 1500}})
	bal, err := b.Balances(context.Background())
	if err != nil {
		t.Fatalf("Balances error: %v", err)
	}
	cash, value, total := bal.Tuple()
	if cash != 1000 || value != 0 || total != 1500 {
		t.Fatalf("balance=(%v,%v,%v), want (1000,0,1500)", cash, value, total)
	}
	if bal.PositionsValueModeled {
		t.Fatal("positions value must be flagged as unmodeled")
	}
}

func TestPositions(t *testing.T) {
	t.Parallel()

	client := &fakeClient{positions: []gateway.Position{
		{InstrumentName: "DCE,i2405", Size: 3},
		{InstrumentName: "garbage", Size: 9},
		{InstrumentName: "INE,ec2404", Size: -2},
	}}
	b := newBroker(t, client)

	got := b.Positions(context.Background(), "mm")
	if len(got) != 2 {
		t.Fatalf("positions=%v, want 2 (malformed skipped)", got)
	}
	if got[0].Asset.Symbol != "i2405" || got[0].Quantity != 3 || got[0].Strategy != "mm" {
		t.Fatalf("first=%+v", got[0])
	}
	if got[1].Asset.Type != entity.AssetFuture || got[1].Quantity != -2 {
		t.Fatalf("second=%+v", got[1])
	}

	pos, ok := b.Position(context.Background(), "mm", entity.NewAsset("ec2404"))
	if !ok || pos.Quantity != -2 {
		t.Fatalf("Position=%+v ok=%v", pos, ok)
	}
	if _, ok := b.Position(context.Background(), "mm", entity.NewAsset("rb2410")); ok {
		t.Fatal("expected not found")
	}
}

func TestPositionsSwallowClientError(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	client := &fakeClient{err: errors.New("connection refused")}
	b := newBroker(t, client, vanilla.WithLogger(zap.New(core)))

	got := b.Positions(context.Background(), "mm")
	if got == nil || len(got) != 0 {
		t.Fatalf("positions=%v, want empty", got)
	}
	if logs.FilterMessage("pull positions failed").Len() != 1 {
		t.Fatalf("expected error log, got %v", logs.All())
	}
	if _, err := b.FetchPositions(context.Background(), "mm"); err == nil {
		t.Fatal("strict pull should surface the error")
	}
}

func TestParseOrderStatusTable(t *testing.T) {
	t.Parallel()

	b := newBroker(t, &fakeClient{})
	cases := map[gateway.OrderState]entity.OrderStatus{
		gateway.StateSubmitting:     entity.StatusOpen,
		gateway.StateNotTraded:      entity.StatusOpen,
		gateway.StatePartTraded:     entity.StatusOpen,
		gateway.StateAllTraded:      entity.StatusFilled,
		gateway.StateCancelled:      entity.StatusCanceled,
		gateway.StateRejected:       entity.StatusCanceled,
		gateway.StateCancelRejected: entity.StatusCanceled,
		"EXPIRED":                   entity.StatusUnknown,
	}
	for state, want := range cases {
		raw := gateway.Order{ID: "42", InstrumentName: "DCE,i2405", Amount: 2, Direction: "long", Price: 812.5, OrderState: state}
		o, err := b.ParseOrder(raw, "mm")
		if err != nil {
			t.Fatalf("%s: ParseOrder error: %v", state, err)
		}
		if o.Status != want {
			t.Fatalf("%s: status=%s, want %s", state, o.Status, want)
		}
		if o.Exchange != "DCE" || o.Asset.Symbol != "i2405" || o.Type != entity.OrderLimit {
			t.Fatalf("%s: order=%+v", state, o)
		}
		if o.Identifier != "42" || o.Side != entity.SideBuy || o.LimitPrice != 812.5 || o.Quantity != 2 {
			t.Fatalf("%s: order=%+v", state, o)
		}
	}
}

func TestPullOrder(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		open: map[string][]gateway.Order{
			"DCE,i2405": {{ID: "1", InstrumentName: "DCE,i2405", OrderState: gateway.StateNotTraded}},
		},
		closed: map[string][]gateway.Order{
			"INE,ec2404": {{ID: "2", InstrumentName: "INE,ec2404", OrderState: gateway.StateAllTraded}},
		},
	}
	b := newBroker(t, client)
	ctx := context.Background()

	if _, ok, err := b.PullOrder(ctx, "999"); ok || err != nil {
		t.Fatalf("PullOrder(999) ok=%v err=%v, want not found", ok, err)
	}
	want := []call{
		{Method: "OpenOrders", Instrument: "DCE,i2405"},
		{Method: "OpenOrders", Instrument: "INE,ec2404"},
		{Method: "ClosedOrders", Instrument: "DCE,i2405"},
		{Method: "ClosedOrders", Instrument: "INE,ec2404"},
	}
	if fmt.Sprint(client.calls) != fmt.Sprint(want) {
		t.Fatalf("calls=%v, want %v", client.calls, want)
	}

	o, ok, err := b.Order(ctx, "mm", "2")
	if err != nil || !ok {
		t.Fatalf("Order(2) ok=%v err=%v", ok, err)
	}
	if o.Status != entity.StatusFilled || o.Exchange != "INE" {
		t.Fatalf("order=%+v", o)
	}

	all, err := b.Orders(ctx, "mm")
	if err != nil || len(all) != 2 {
		t.Fatalf("Orders=%v err=%v", all, err)
	}
}

func TestFlattenOrder(t *testing.T) {
	t.Parallel()

	b := newBroker(t, &fakeClient{})
	o := entity.NewLimitOrder("mm", entity.NewAsset("i2405"), 1, entity.SideBuy, 800, "DCE")
	o.Class = entity.ClassBracket
	got := b.FlattenOrder(o)
	if len(got) != 1 || got[0] != o {
		t.Fatalf("flatten=%v", got)
	}
}

func TestSubmitOrder(t *testing.T) {
	t.Parallel()

	client := &fakeClient{resp: gateway.OrderResponse{ID: "77"}}
	b := newBroker(t, client)

	buy := b.SubmitOrder(context.Background(), entity.NewLimitOrder("mm", entity.NewAsset("i2405"), 2, entity.SideBuy, 812.5, "DCE"))
	sell := b.SubmitOrder(context.Background(), entity.NewLimitOrder("mm", entity.NewAsset("ec2404"), 1, entity.SideSell, 2100, "INE"))

	want := []call{
		{Method: "OpenLong", Instrument: "DCE,i2405", Price: 812.5, Volume: 2},
		{Method: "OpenShort", Instrument: "INE,ec2404", Price: 2100, Volume: 1},
	}
	if fmt.Sprint(client.calls) != fmt.Sprint(want) {
		t.Fatalf("calls=%v, want %v", client.calls, want)
	}
	for _, o := range []*entity.Order{buy, sell} {
		if o.Identifier != "77" || o.Status != entity.StatusOpen || o.Err != nil {
			t.Fatalf("order=%+v", o)
		}
		if _, ok := o.Raw.(gateway.OrderResponse); !ok {
			t.Fatalf("raw=%T, want gateway.OrderResponse", o.Raw)
		}
	}
}

func TestSubmitOrderRejectsUnsupported(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	client := &fakeClient{resp: gateway.OrderResponse{ID: "77"}}
	b := newBroker(t, client, vanilla.WithLogger(zap.New(core)))

	market := entity.NewLimitOrder("mm", entity.NewAsset("i2405"), 1, entity.SideBuy, 0, "DCE")
	market.Type = entity.OrderMarket
	bracket := entity.NewLimitOrder("mm", entity.NewAsset("i2405"), 1, entity.SideBuy, 800, "DCE")
	bracket.Class = entity.ClassBracket

	for _, o := range []*entity.Order{market, bracket} {
		before := *o
		got := b.SubmitOrder(context.Background(), o)
		if got.Identifier != "" || got.Status != before.Status || got.Err != nil || got.Raw != nil {
			t.Fatalf("order modified: %+v", got)
		}
	}
	if len(client.calls) != 0 {
		t.Fatalf("calls=%v, want none", client.calls)
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 2 {
		t.Fatalf("expected two error logs, got %v", logs.All())
	}
}

func TestSubmitOrderAnnotatesError(t *testing.T) {
	t.Parallel()

	boom := &gateway.APIError{Status: 200, Code: 1001, Msg: "insufficient margin"}
	client := &fakeClient{err: boom}
	b := newBroker(t, client)

	o := b.SubmitOrder(context.Background(), entity.NewLimitOrder("mm", entity.NewAsset("i2405"), 1, entity.SideBuy, 800, "DCE"))
	if !errors.Is(o.Err, boom) {
		t.Fatalf("err=%v, want gateway error", o.Err)
	}
	if o.Identifier != "" || o.Status != entity.StatusUnprocessed {
		t.Fatalf("order=%+v", o)
	}
	if len(client.calls) != 1 {
		t.Fatalf("calls=%d, want exactly one", len(client.calls))
	}
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()

	newOrder := func() *entity.Order {
		o := entity.NewLimitOrder("mm", entity.NewAsset("i2405"), 1, entity.SideBuy, 800, "DCE")
		o.SetIdentifier("77")
		o.Status = entity.StatusOpen
		return o
	}

	cases := []struct {
		name   string
		client *fakeClient
		want   vanilla.CancelOutcome
		status entity.OrderStatus
	}{
		{"confirmed", &fakeClient{resp: gateway.OrderResponse{ID: "77"}}, vanilla.CancelConfirmed, entity.StatusCanceled},
		{"mismatch", &fakeClient{resp: gateway.OrderResponse{ID: "78"}}, vanilla.CancelUnconfirmed, entity.StatusOpen},
		{"failed", &fakeClient{err: errors.New("timeout")}, vanilla.CancelFailed, entity.StatusOpen},
	}
	for _, tc := range cases {
		b := newBroker(t, tc.client)
		o := newOrder()
		if got := b.CancelOrder(context.Background(), o); got != tc.want {
			t.Fatalf("%s: outcome=%s, want %s", tc.name, got, tc.want)
		}
		if o.Status != tc.status {
			t.Fatalf("%s: status=%s, want %s", tc.name, o.Status, tc.status)
		}
		want := call{Method: "CancelOrder", Instrument: "DCE,i2405", OrderID: "77"}
		if len(tc.client.calls) != 1 || tc.client.calls[0] != want {
			t.Fatalf("%s: calls=%v", tc.name, tc.client.calls)
		}
	}
}

func TestUnsupportedCapabilities(t *testing.T) {
	t.Parallel()

	b := newBroker(t, &fakeClient{})
	ctx := context.Background()
	o := entity.NewLimitOrder("mm", entity.NewAsset("i2405"), 1, entity.SideBuy, 800, "DCE")

	errs := []error{
		b.WaitForOrderRegistration(ctx, o),
		b.WaitForOrderRegistrations(ctx, []*entity.Order{o}),
		b.WaitForOrderExecution(ctx, o),
		b.WaitForOrderExecutions(ctx, []*entity.Order{o}),
	}
	for i, err := range errs {
		if !errors.Is(err, vanilla.ErrStreamingUnsupported) {
			t.Fatalf("wait %d: error=%v", i, err)
		}
	}
	if _, err := b.HistoricalAccountValue(ctx); !errors.Is(err, vanilla.ErrHistoricalAccountValueUnsupported) {
		t.Fatalf("HistoricalAccountValue error=%v", err)
	}
}
