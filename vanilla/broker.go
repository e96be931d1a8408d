// Package vanilla plugs the futures trade gateway into the strategy
// framework's broker contract.
package vanilla

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pseudocodes/lite-vanilla/entity"
	"github.com/pseudocodes/lite-vanilla/gateway"
	"github.com/pseudocodes/lite-vanilla/quote"
	"github.com/pseudocodes/lite-vanilla/session"
)

const Name = "Vanilla"

var (
	ErrDataSourceMismatch                = fmt.Errorf("vanilla broker's data source must be of type %s", quote.SourceName)
	ErrEmptyTradeList                    = errors.New("vanilla: trade list is empty")
	ErrStreamingUnsupported              = errors.New("vanilla: waiting on orders requires streaming, which is not implemented; check the order status at each interval")
	ErrHistoricalAccountValueUnsupported = errors.New("vanilla: historical account value is not implemented")
)

// TradeClient is the gateway call set the broker needs. *gateway.Client and
// *lite.Trader both satisfy it.
type TradeClient interface {
	Account(ctx context.Context, scope string) (gateway.Account, error)
	Positions(ctx context.Context, scope string) ([]gateway.Position, error)
	OpenOrders(ctx context.Context, instrument string) ([]gateway.Order, error)
	ClosedOrders(ctx context.Context, instrument string) ([]gateway.Order, error)
	OpenLong(ctx context.Context, instrument string, price float64, volume int) (gateway.OrderResponse, error)
	OpenShort(ctx context.Context, instrument string, price float64, volume int) (gateway.OrderResponse, error)
	CancelOrder(ctx context.Context, instrument, orderID string) (gateway.OrderResponse, error)
}

type DataSource interface {
	SourceName() string
	LastPrice(ctx context.Context, asset entity.Asset) (decimal.Decimal, bool)
	HistoricalPrices(ctx context.Context, asset entity.Asset, length int, timestep string) *entity.Bars
}

type Config struct {
	ClientURL  string
	TradeList  []string
	Margin     bool
	DataSource string
	Timeout    time.Duration
}

type Broker struct {
	cfg       Config
	client    TradeClient
	data      DataSource
	session   session.Session
	logger    *zap.Logger
	clock     func() time.Time
	tradeList []entity.Instrument
}

type Option func(*Broker)

func WithTradeClient(c TradeClient) Option {
	return func(b *Broker) {
		b.client = c
	}
}

func WithDataSource(ds DataSource) Option {
	return func(b *Broker) {
		b.data = ds
	}
}

func WithSession(s session.Session) Option {
	return func(b *Broker) {
		if s != nil {
			b.session = s
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		if now != nil {
			b.clock = now
		}
	}
}

// New builds a broker. Without WithTradeClient it dials the gateway at
// cfg.ClientURL; without WithDataSource it reads quotes from Sina.
func New(cfg Config, opts ...Option) (*Broker, error) {
	b := &Broker{
		cfg:     cfg,
		session: session.Continuous{},
		logger:  zap.NewNop(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	if cfg.DataSource != "" && cfg.DataSource != quote.SourceName {
		return nil, fmt.Errorf("%w, got %s", ErrDataSourceMismatch, cfg.DataSource)
	}
	if b.data == nil {
		b.data = quote.New(quote.NewSina(quote.SinaConf{}, b.logger), quote.WithLogger(b.logger))
	}
	if b.data.SourceName() != quote.SourceName {
		return nil, fmt.Errorf("%w, got %s", ErrDataSourceMismatch, b.data.SourceName())
	}

	list, err := parseTradeList(cfg.TradeList)
	if err != nil {
		return nil, err
	}
	b.tradeList = list

	if b.client == nil {
		client, err := gateway.NewTradeClient(gateway.Conf{URL: cfg.ClientURL, Timeout: cfg.Timeout}, gateway.WithLogger(b.logger))
		if err != nil {
			return nil, err
		}
		b.client = client
	}
	return b, nil
}

// parseTradeList drops duplicates, keeping first-seen order.
func parseTradeList(names []string) ([]entity.Instrument, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]entity.Instrument, 0, len(names))
	for _, name := range names {
		ins, err := entity.ParseInstrument(name)
		if err != nil {
			return nil, fmt.Errorf("trade list: %w", err)
		}
		if !seen.Add(ins.String()) {
			continue
		}
		out = append(out, ins)
	}
	if len(out) == 0 {
		return nil, ErrEmptyTradeList
	}
	return out, nil
}

func (b *Broker) Name() string {
	return Name
}

func (b *Broker) DataSource() DataSource {
	return b.data
}

func (b *Broker) TradeList() []entity.Instrument {
	return append([]entity.Instrument(nil), b.tradeList...)
}

// =========Clock functions=====================

// Timestamp is the current UNIX time in seconds.
func (b *Broker) Timestamp() float64 {
	return float64(b.clock().UnixNano()) / float64(time.Second)
}

func (b *Broker) IsMarketOpen() bool {
	return b.session.IsOpen(b.clock())
}

func (b *Broker) TimeToOpen() (time.Duration, bool) {
	return b.session.TimeToOpen(b.clock())
}

func (b *Broker) TimeToClose() (time.Duration, bool) {
	return b.session.TimeToClose(b.clock())
}

func (b *Broker) IsMarginEnabled() bool {
	return b.cfg.Margin
}

// =========Streaming (not supported)=============

func (b *Broker) WaitForOrderRegistration(context.Context, *entity.Order) error {
	return ErrStreamingUnsupported
}

func (b *Broker) WaitForOrderRegistrations(context.Context, []*entity.Order) error {
	return ErrStreamingUnsupported
}

func (b *Broker) WaitForOrderExecution(context.Context, *entity.Order) error {
	return ErrStreamingUnsupported
}

func (b *Broker) WaitForOrderExecutions(context.Context, []*entity.Order) error {
	return ErrStreamingUnsupported
}

type AccountValueHistory struct {
	Hourly []float64
	Daily  []float64
}

func (b *Broker) HistoricalAccountValue(context.Context) (AccountValueHistory, error) {
	b.logger.Error("historical account value is not implemented for Vanilla")
	return AccountValueHistory{}, ErrHistoricalAccountValueUnsupported
}
