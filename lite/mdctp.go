package lite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pseudocodes/go2ctp/ctp"
	"github.com/pseudocodes/go2ctp/thost"
	"go.uber.org/zap"
)

const defaultMdTimeout = 15 * time.Second

// Tick is the latest depth snapshot kept per instrument.
type Tick struct {
	InstrumentID string
	UpdateTime   string
	Open         float64
	High         float64
	Low          float64
	PreClose     float64
	PreSettle    float64
	Last         float64
	Bid          float64
	Ask          float64
	Volume       int
	OpenInterest float64
}

func TickFrom(f *thost.CThostFtdcDepthMarketDataField) Tick {
	return Tick{
		InstrumentID: f.InstrumentID.String(),
		UpdateTime:   f.UpdateTime.String(),
		Open:         validOrZero(float64(f.OpenPrice)),
		High:         validOrZero(float64(f.HighestPrice)),
		Low:          validOrZero(float64(f.LowestPrice)),
		PreClose:     validOrZero(float64(f.PreClosePrice)),
		PreSettle:    validOrZero(float64(f.PreSettlementPrice)),
		Last:         validOrZero(float64(f.LastPrice)),
		Bid:          validOrZero(float64(f.BidPrice1)),
		Ask:          validOrZero(float64(f.AskPrice1)),
		Volume:       int(f.Volume),
		OpenInterest: validOrZero(float64(f.OpenInterest)),
	}
}

// CTP sends DBL_MAX for prices it has not seen yet
func validOrZero(x float64) float64 {
	if !IsValid(x) {
		return 0
	}
	return x
}

type MdCtp struct {
	ctp.BaseMdSpi
	trader *Trader
	logger *zap.Logger
	loginC chan int
	mdapi  thost.MdApi
}

func CreateMdCtp(trader *Trader) *MdCtp {
	c := &MdCtp{
		trader: trader,
		logger: trader.logger.Named("md"),
		loginC: make(chan int, 1),
	}
	c.mdapi = ctp.CreateMdApi(ctp.MdFlowPath(flowPath(trader.config.FlowPath, "mdcons")), ctp.MdUsingUDP(false), ctp.MdMultiCast(false))
	return c
}

func (c *MdCtp) Connect(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultMdTimeout)
		defer cancel()
	}
	for _, front := range c.trader.config.MdFronts {
		c.mdapi.RegisterFront(front)
	}
	c.mdapi.RegisterSpi(c)
	c.mdapi.Init()

	select {
	case <-ctx.Done():
		return fmt.Errorf("md connect: %w", ctx.Err())
	case r := <-c.loginC:
		if r != 0 {
			return fmt.Errorf("mdapi connect error: %d", r)
		}
	}
	return nil
}

func (c *MdCtp) Close() {
	c.mdapi.Release()
}

func (c *MdCtp) loginDone(code int) {
	select {
	case c.loginC <- code:
	default:
	}
}

func (c *MdCtp) OnFrontConnected() {
	c.logger.Info("on_front_connected")
	var f thost.CThostFtdcReqUserLoginField
	if ret := c.mdapi.ReqUserLogin(&f, c.trader.nextReqID()); ret < 0 {
		c.logger.Error("mdapi login failed", zap.Int("ret", ret))
		c.loginDone(ret)
	}
}

func (c *MdCtp) OnFrontDisconnected(nReason int) {
	c.logger.Warn("front disconnected", zap.String("reason", fmt.Sprintf("%#x", nReason)))
}

// /登录请求响应
func (c *MdCtp) OnRspUserLogin(pRspUserLogin *thost.CThostFtdcRspUserLoginField, pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		c.logger.Error("md login failed", zap.Error(err))
		c.loginDone(int(pRspInfo.ErrorID))
		return
	}
	if bIsLast {
		c.loginDone(0)
	}
}

func (c *MdCtp) OnRspError(pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		c.logger.Error("rsp error", zap.Error(err))
	}
}

// /订阅行情应答
func (c *MdCtp) OnRspSubMarketData(pSpecificInstrument *thost.CThostFtdcSpecificInstrumentField, pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil && pSpecificInstrument != nil {
		c.logger.Error("subscribe failed", zap.String("instrument", pSpecificInstrument.InstrumentID.String()), zap.Error(err))
	}
}

// /深度行情通知
func (c *MdCtp) OnRtnDepthMarketData(pDepthMarketData *thost.CThostFtdcDepthMarketDataField) {
	if pDepthMarketData == nil {
		return
	}
	c.trader.onTick(TickFrom(pDepthMarketData))
	c.trader.liteSpi.OnData(pDepthMarketData)
}

func (c *MdCtp) Subscribe(instruments ...string) int {
	return c.mdapi.SubscribeMarketData(instruments...)
}

// onTick caches the snapshot under the upper-cased instrument id.
func (t *Trader) onTick(tick Tick) {
	t.Ticks.Store(strings.ToUpper(tick.InstrumentID), tick)
	t.portfolio.UpdateTick(tick.InstrumentID, tick.Last, tick.PreSettle)
}
