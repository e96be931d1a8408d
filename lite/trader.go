// Package lite talks to a CTP front directly and serves the same trade
// calls as the HTTP gateway.
package lite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pseudocodes/go2ctp/thost"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("ctp: trader not connected")
	ErrUnknownOrder = errors.New("ctp: unknown order")
	ErrOrderClosed  = errors.New("ctp: order already finished")
)

type Config struct {
	UserID      string        `mapstructure:"user_id"`
	BrokerID    string        `mapstructure:"broker_id"`
	Password    string        `mapstructure:"password"`
	AppID       string        `mapstructure:"app_id"`
	AuthCode    string        `mapstructure:"auth_code"`
	MdFronts    []string      `mapstructure:"md_fronts"`
	TdFronts    []string      `mapstructure:"td_fronts"`
	Instruments []string      `mapstructure:"instruments"`
	FlowPath    string        `mapstructure:"flow_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type Trader struct {
	portfolio *Portfolio
	tdctp     *TdCtp
	mdctp     *MdCtp

	liteSpi LiteSpi
	config  *Config
	logger  *zap.Logger

	// set on the login callback thread
	frontId   atomic.Int32
	sessionId atomic.Int32
	orderRef  atomic.Int64

	reqid atomic.Int32

	InputOrderSet mapset.Set[string]
	OrderMap      xsync.MapOf[string, *Order]
	ContractMap   xsync.MapOf[string, *Contract]
	Ticks         xsync.MapOf[string, Tick]
}

type Option func(*Trader)

func WithLogger(l *zap.Logger) Option {
	return func(t *Trader) {
		if l != nil {
			t.logger = l
		}
	}
}

func WithLiteSpi(spi LiteSpi) Option {
	return func(t *Trader) {
		if spi != nil {
			t.liteSpi = spi
		}
	}
}

func NewTrader(config *Config, opts ...Option) *Trader {
	t := &Trader{
		config:        config,
		logger:        zap.NewNop(),
		liteSpi:       &BaseLiteSpi{},
		ContractMap:   *xsync.NewMapOf[string, *Contract](),
		OrderMap:      *xsync.NewMapOf[string, *Order](),
		Ticks:         *xsync.NewMapOf[string, Tick](),
		InputOrderSet: mapset.NewSet[string](),
		portfolio:     NewPortfolio(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start logs in on the trade front, runs the initial query chain and then
// subscribes the configured instruments on the market data front.
func (t *Trader) Start(ctx context.Context) error {
	if t.tdctp == nil {
		t.tdctp = CreateTdCtp(t)
	}
	if t.mdctp == nil {
		t.mdctp = CreateMdCtp(t)
	}
	if err := t.tdctp.Connect(ctx); err != nil {
		return fmt.Errorf("tdctp connect: %w", err)
	}
	if len(t.config.MdFronts) == 0 {
		return nil
	}
	if err := t.mdctp.Connect(ctx); err != nil {
		return fmt.Errorf("mdctp connect: %w", err)
	}
	if len(t.config.Instruments) > 0 {
		t.Subscribe(t.config.Instruments...)
	}
	return nil
}

func (t *Trader) Stop() {
	if t.mdctp != nil {
		t.mdctp.Close()
	}
	if t.tdctp != nil {
		t.tdctp.Close()
	}
}

func (t *Trader) Portfolio() *Portfolio {
	return t.portfolio
}

func (t *Trader) Subscribe(ins ...string) {
	if r := t.mdctp.Subscribe(ins...); r != 0 {
		t.logger.Warn("subscribe market data failed", zap.Strings("instruments", ins), zap.Int("ret", r))
	}
}

func (t *Trader) nextReqID() int {
	return int(t.reqid.Add(1))
}

func (t *Trader) BuyOpen(ins, exchange string, limit float64, vol int) (string, error) {
	return t.InsertOrder(ins, exchange, limit, vol, thost.THOST_FTDC_D_Buy, thost.THOST_FTDC_OF_Open)
}

func (t *Trader) SellOpen(ins, exchange string, limit float64, vol int) (string, error) {
	return t.InsertOrder(ins, exchange, limit, vol, thost.THOST_FTDC_D_Sell, thost.THOST_FTDC_OF_Open)
}

// InsertOrder sends a GFD limit order and returns its order key.
func (t *Trader) InsertOrder(ins string, exchange string, limit float64, vol int, dir thost.TThostFtdcDirectionType, off thost.TThostFtdcOffsetFlagType) (string, error) {
	if t.tdctp == nil || !t.tdctp.bLogin.Load() {
		return "", ErrNotConnected
	}
	frontId, sessionId := t.frontId.Load(), t.sessionId.Load()
	refStr := cast.ToString(t.orderRef.Add(1))
	orderId := GetOrderKey(frontId, sessionId, refStr)
	var inputOrder = &thost.CThostFtdcInputOrderField{
		OrderPriceType:      thost.THOST_FTDC_OPT_LimitPrice,
		Direction:           dir,
		VolumeCondition:     thost.THOST_FTDC_VC_AV,
		TimeCondition:       thost.THOST_FTDC_TC_GFD,
		LimitPrice:          thost.TThostFtdcPriceType(limit),
		VolumeTotalOriginal: thost.TThostFtdcVolumeType(vol),
		MinVolume:           1,
		ContingentCondition: thost.THOST_FTDC_CC_Immediately,
		ForceCloseReason:    thost.THOST_FTDC_FCC_NotForceClose,
	}
	inputOrder.CombHedgeFlag[0] = byte(thost.THOST_FTDC_HF_Speculation)
	inputOrder.CombOffsetFlag[0] = byte(off)
	copy(inputOrder.BrokerID[:], []byte(t.config.BrokerID))
	copy(inputOrder.UserID[:], []byte(t.config.UserID))
	copy(inputOrder.InvestorID[:], []byte(t.config.UserID))
	copy(inputOrder.ExchangeID[:], []byte(exchange))
	copy(inputOrder.InstrumentID[:], []byte(ins))
	copy(inputOrder.OrderRef[:], []byte(refStr))

	order := OrderFromInput(inputOrder)
	order.OrderID = orderId
	order.FrontID = frontId
	order.SessionID = sessionId
	order.OrderRef = refStr

	// the front may answer on its own thread before ReqOrderInsert returns,
	// so the local copy goes in first and callbacks overwrite it
	t.InputOrderSet.Add(orderId)
	t.OrderMap.Store(orderId, order)
	if r := t.tdctp.tdapi.ReqOrderInsert(inputOrder, t.nextReqID()); r != 0 {
		t.OrderMap.Delete(orderId)
		t.InputOrderSet.Remove(orderId)
		return "", fmt.Errorf("insert order [%s] error: %d", order, r)
	}
	return orderId, nil
}

func (t *Trader) cancelOrder(orderId string) error {
	order, ok := t.OrderMap.Load(orderId)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderId)
	}
	if order.IsFinished() {
		return fmt.Errorf("%w: %s", ErrOrderClosed, orderId)
	}
	if t.tdctp == nil || !t.tdctp.bLogin.Load() {
		return ErrNotConnected
	}

	var f thost.CThostFtdcInputOrderActionField
	copy(f.BrokerID[:], []byte(t.config.BrokerID))
	copy(f.UserID[:], []byte(t.config.UserID))
	copy(f.InvestorID[:], []byte(t.config.UserID))
	copy(f.OrderRef[:], []byte(order.OrderRef))
	copy(f.ExchangeID[:], []byte(order.Exchange))
	copy(f.InstrumentID[:], []byte(order.InstrumentID))
	f.FrontID = thost.TThostFtdcFrontIDType(order.FrontID)
	f.SessionID = thost.TThostFtdcSessionIDType(order.SessionID)
	f.ActionFlag = thost.THOST_FTDC_AF_Delete

	if r := t.tdctp.tdapi.ReqOrderAction(&f, t.nextReqID()); r != 0 {
		return fmt.Errorf("cancel order [%s] error: %d", order, r)
	}
	return nil
}

// rejectOrder marks a locally inserted order as rejected by the front.
func (t *Trader) rejectOrder(orderRef, msg string) {
	orderId := GetOrderKey(t.frontId.Load(), t.sessionId.Load(), orderRef)
	order, ok := t.OrderMap.Load(orderId)
	if !ok {
		return
	}
	rejected := *order
	rejected.Status = thost.THOST_FTDC_OST_Canceled
	rejected.SubmitStatus = thost.THOST_FTDC_OSS_InsertRejected
	rejected.VolumeLeft = 0
	rejected.LastMsg = msg
	t.OrderMap.Store(orderId, &rejected)
	t.InputOrderSet.Remove(orderId)
	t.liteSpi.OnOrder(&rejected)
}

func (t *Trader) onOrder(rtnOrder *Order) {
	t.OrderMap.Store(rtnOrder.OrderID, rtnOrder)
	if rtnOrder.IsFinished() {
		t.InputOrderSet.Remove(rtnOrder.OrderID)
	} else if rtnOrder.VolumeLeft > 0 {
		t.InputOrderSet.Add(rtnOrder.OrderID)
	}
	if rtnOrder.Offset != thost.THOST_FTDC_OF_Open {
		t.portfolio.CalcFrozen(rtnOrder.InstrumentID, rtnOrder.Exchange, t.activeOrders(rtnOrder.InstrumentID))
	}
}

func (t *Trader) setContract(pInstrument *thost.CThostFtdcInstrumentField) {
	contract := FromInstrument(pInstrument)
	t.ContractMap.Store(contract.Ins, contract)
}

func (t *Trader) activeOrders(ins string) []*Order {
	var orders = make([]*Order, 0)
	t.OrderMap.Range(func(_ string, order *Order) bool {
		if order.InstrumentID == ins && order.VolumeLeft > 0 && !order.IsFinished() {
			orders = append(orders, order)
		}
		return true
	})
	return orders
}

// orders returns the orders of "<exchange>,<instrument>" matching keep,
// oldest first.
func (t *Trader) orders(name string, keep func(*Order) bool) []*Order {
	var out []*Order
	t.OrderMap.Range(func(_ string, order *Order) bool {
		if order.Name() == name && keep(order) {
			out = append(out, order)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].InsertDateTime != out[j].InsertDateTime {
			return out[i].InsertDateTime < out[j].InsertDateTime
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out
}
