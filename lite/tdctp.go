package lite

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pseudocodes/go2ctp/ctp"
	"github.com/pseudocodes/go2ctp/thost"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	defaultTdTimeout = 60 * time.Second
	// CTP allows one query per second per session
	queryInterval = 1100 * time.Millisecond
)

var (
	Exchanges = []string{"SHFE", "INE", "DCE", "CZCE", "CFFEX", "GFEX"}
)

// RspError is a non-zero ErrorID in a CTP response.
type RspError struct {
	ID  int
	Msg string
}

func (e *RspError) Error() string {
	return fmt.Sprintf("ctp error %d: %s", e.ID, e.Msg)
}

func rspError(info *thost.CThostFtdcRspInfoField) error {
	if info == nil || info.ErrorID == 0 {
		return nil
	}
	return &RspError{ID: int(info.ErrorID), Msg: info.ErrorMsg.GBString()}
}

type TdCtp struct {
	ctp.BaseTraderSpi
	trader *Trader
	logger *zap.Logger

	bLogin atomic.Bool
	bInit  atomic.Bool
	initC  chan int
	tdapi  thost.TraderApi

	// in-flight queries issued after the initial chain, keyed by request id
	pending xsync.MapOf[int, chan error]
	// position rows of a query still being answered, keyed by request id
	posRows xsync.MapOf[int, []thost.CThostFtdcInvestorPositionField]
}

func CreateTdCtp(trader *Trader) *TdCtp {
	return newTdCtp(trader, ctp.CreateTraderApi(ctp.TraderFlowPath(flowPath(trader.config.FlowPath, "tdcons"))))
}

func newTdCtp(trader *Trader, api thost.TraderApi) *TdCtp {
	return &TdCtp{
		trader:  trader,
		logger:  trader.logger.Named("td"),
		initC:   make(chan int, 1),
		tdapi:   api,
		pending: *xsync.NewMapOf[int, chan error](),
		posRows: *xsync.NewMapOf[int, []thost.CThostFtdcInvestorPositionField](),
	}
}

func flowPath(base, sub string) string {
	if base == "" {
		base = "."
	}
	return base + "/" + sub + "/"
}

func (s *TdCtp) Connect(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		timeout := s.trader.config.Timeout
		if timeout <= 0 {
			timeout = defaultTdTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.tdapi.RegisterSpi(s)
	s.tdapi.SubscribePublicTopic(thost.THOST_TERT_QUICK)
	s.tdapi.SubscribePrivateTopic(thost.THOST_TERT_QUICK)
	for _, front := range s.trader.config.TdFronts {
		s.tdapi.RegisterFront(front)
	}
	s.tdapi.Init()

	select {
	case <-ctx.Done():
		return fmt.Errorf("td connect: %w", ctx.Err())
	case r := <-s.initC:
		if r != 0 {
			return fmt.Errorf("tdapi init error: %d", r)
		}
	}
	return nil
}

func (s *TdCtp) Close() {
	s.tdapi.Release()
}

// initDone reports the outcome of the initial chain once.
func (s *TdCtp) initDone(code int) {
	select {
	case s.initC <- code:
	default:
	}
}

// query issues req with a fresh request id and waits for the last response.
func (s *TdCtp) query(ctx context.Context, req func(reqid int) int) error {
	if !s.bInit.Load() {
		return ErrNotConnected
	}
	reqid := s.trader.nextReqID()
	done := make(chan error, 1)
	s.pending.Store(reqid, done)
	defer s.pending.Delete(reqid)

	if r := req(reqid); r != 0 {
		return fmt.Errorf("ctp request %d rejected: %d", reqid, r)
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TdCtp) resolve(reqid int, err error) bool {
	done, ok := s.pending.LoadAndDelete(reqid)
	if ok {
		done <- err
	}
	return ok
}

// settle routes the final reply of a query. It reports true when the reply
// belongs to the initial chain, which must then go on. Replies arriving
// after their caller gave up are dropped.
func (s *TdCtp) settle(reqid int, err error) bool {
	if s.resolve(reqid, err) {
		return false
	}
	if s.bInit.Load() {
		s.logger.Debug("drop reply of abandoned query", zap.Int("request_id", reqid), zap.Error(err))
		return false
	}
	return true
}

// /当客户端与交易后台建立起通信连接时（还未登录前），该方法被调用。
func (s *TdCtp) OnFrontConnected() {
	s.logger.Info("on_front_connected")
	if ret := s.ReqAuth(); ret < 0 {
		s.initDone(ret)
	}
}

// /当客户端与交易后台通信连接断开时，该方法被调用。当发生这个情况后，API会自动重新连接，客户端可不做处理。
func (s *TdCtp) OnFrontDisconnected(nReason int) {
	s.bLogin.Store(false)
	s.logger.Warn("front disconnected", zap.String("reason", fmt.Sprintf("%#x", nReason)))
}

// /客户端认证响应
func (s *TdCtp) OnRspAuthenticate(pRspAuthenticateField *thost.CThostFtdcRspAuthenticateField, pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		s.logger.Error("authenticate failed", zap.String("broker", s.trader.config.BrokerID), zap.String("user", s.trader.config.UserID), zap.Error(err))
		s.initDone(int(pRspInfo.ErrorID))
		return
	}
	if bIsLast {
		if ret := s.ReqUserLogin(); ret < 0 {
			s.initDone(ret)
		}
	}
}

// /登录请求响应
func (s *TdCtp) OnRspUserLogin(pRspUserLogin *thost.CThostFtdcRspUserLoginField, pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		s.logger.Error("login failed", zap.String("broker", s.trader.config.BrokerID), zap.String("user", s.trader.config.UserID), zap.Error(err))
		s.initDone(int(pRspInfo.ErrorID))
		return
	}
	if !bIsLast {
		return
	}
	s.trader.sessionId.Store(int32(pRspUserLogin.SessionID))
	s.trader.frontId.Store(int32(pRspUserLogin.FrontID))
	s.trader.orderRef.Store(cast.ToInt64(pRspUserLogin.MaxOrderRef.String()))
	s.bLogin.Store(true)
	s.logger.Info("logged in",
		zap.String("trading_day", pRspUserLogin.TradingDay.String()),
		zap.String("sys_version", pRspUserLogin.SysVersion.GBString()),
		zap.Int32("front_id", s.trader.frontId.Load()),
		zap.Int32("session_id", s.trader.sessionId.Load()))
	if s.bInit.Load() {
		return
	}
	if ret := s.ReqSettlementConfirm(); ret < 0 {
		s.initDone(ret)
	}
}

// /报单录入请求响应
func (s *TdCtp) OnRspOrderInsert(pInputOrder *thost.CThostFtdcInputOrderField, pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		s.logger.Error("order insert rejected", zap.Error(err))
		if pInputOrder != nil {
			s.trader.rejectOrder(pInputOrder.OrderRef.String(), pRspInfo.ErrorMsg.GBString())
		}
	}
}

// /报单操作请求响应
func (s *TdCtp) OnRspOrderAction(pInputOrderAction *thost.CThostFtdcInputOrderActionField, pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		s.logger.Error("order action rejected", zap.Error(err))
	}
}

// /投资者结算结果确认响应
func (s *TdCtp) OnRspSettlementInfoConfirm(pSettlementInfoConfirm *thost.CThostFtdcSettlementInfoConfirmField, pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		s.logger.Error("settlement confirm failed", zap.Error(err))
		s.initDone(int(pRspInfo.ErrorID))
		return
	}
	if pSettlementInfoConfirm != nil {
		s.logger.Info("settlement confirmed",
			zap.String("date", pSettlementInfoConfirm.ConfirmDate.String()),
			zap.String("time", pSettlementInfoConfirm.ConfirmTime.String()))
	}
	if bIsLast {
		if ret := s.ReqQryAccount(s.trader.nextReqID()); ret < 0 {
			s.initDone(ret)
		}
	}
}

// /请求查询报单响应
func (s *TdCtp) OnRspQryOrder(pOrder *thost.CThostFtdcOrderField, pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		s.logger.Error("query orders failed", zap.Error(err))
		if s.settle(nRequestID, err) {
			s.initDone(int(pRspInfo.ErrorID))
		}
		return
	}
	if pOrder != nil {
		s.trader.onOrder(OrderFrom(&Order{}, pOrder))
	}
	if !bIsLast || !s.settle(nRequestID, nil) {
		return
	}
	time.Sleep(queryInterval)
	if ret := s.ReqQryClassifiedInstrument("", "", thost.THOST_FTDC_INS_FUTURE, thost.THOST_FTDC_TD_TRADE); ret < 0 {
		s.initDone(ret)
	}
}

// /请求查询投资者持仓响应
func (s *TdCtp) OnRspQryInvestorPosition(pInvestorPosition *thost.CThostFtdcInvestorPositionField, pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		s.logger.Error("query positions failed", zap.Error(err))
		s.posRows.Delete(nRequestID)
		if s.settle(nRequestID, err) {
			s.initDone(int(pRspInfo.ErrorID))
		}
		return
	}
	// the reply is the whole book: rows are staged and swapped in at the end
	// so holdings the front no longer reports drop to zero
	rows, _ := s.posRows.LoadAndDelete(nRequestID)
	if pInvestorPosition != nil {
		rows = append(rows, *pInvestorPosition)
	}
	if !bIsLast {
		s.posRows.Store(nRequestID, rows)
		return
	}
	s.trader.portfolio.ReplacePositions(rows)
	if !s.settle(nRequestID, nil) {
		return
	}
	time.Sleep(queryInterval)
	if ret := s.ReqQryOrder(s.trader.nextReqID()); ret < 0 {
		s.initDone(ret)
	}
}

// /请求查询资金账户响应
func (s *TdCtp) OnRspQryTradingAccount(pTradingAccount *thost.CThostFtdcTradingAccountField, pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		s.logger.Error("query account failed", zap.Error(err))
		if s.settle(nRequestID, err) {
			s.initDone(int(pRspInfo.ErrorID))
		}
		return
	}
	if pTradingAccount != nil {
		s.trader.portfolio.UpdateAccount(pTradingAccount)
		s.logger.Debug("account", zap.Float64("balance", float64(pTradingAccount.Balance)), zap.Float64("available", float64(pTradingAccount.Available)))
	}
	if !bIsLast || !s.settle(nRequestID, nil) {
		return
	}
	time.Sleep(queryInterval)
	if ret := s.ReqQryPosition(s.trader.nextReqID()); ret < 0 {
		s.initDone(ret)
	}
}

// 请求查询分类合约响应
func (s *TdCtp) OnRspQryClassifiedInstrument(pInstrument *thost.CThostFtdcInstrumentField, pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		s.logger.Error("query instruments failed", zap.Error(err))
		s.initDone(int(pRspInfo.ErrorID))
		return
	}
	if pInstrument != nil {
		s.trader.setContract(pInstrument)
	}
	if bIsLast {
		s.bInit.Store(true)
		s.logger.Info("initial queries finished", zap.Int("contracts", s.trader.ContractMap.Size()))
		s.initDone(0)
	}
}

// /错误应答
func (s *TdCtp) OnRspError(pRspInfo *thost.CThostFtdcRspInfoField, nRequestID int, bIsLast bool) {
	if err := rspError(pRspInfo); err != nil {
		s.logger.Error("rsp error", zap.Int("request_id", nRequestID), zap.Error(err))
		s.resolve(nRequestID, err)
	}
}

// /报单通知
func (s *TdCtp) OnRtnOrder(pOrder *thost.CThostFtdcOrderField) {
	if pOrder == nil {
		return
	}
	rtnOrder := OrderFrom(&Order{}, pOrder)
	s.trader.onOrder(rtnOrder)
	s.logger.Info("rtn order", zap.Stringer("order", rtnOrder))
	s.trader.liteSpi.OnOrder(rtnOrder)
}

// /成交通知
func (s *TdCtp) OnRtnTrade(pTrade *thost.CThostFtdcTradeField) {
	if pTrade == nil {
		return
	}
	s.logger.Info("rtn trade", zap.String("trade", tradeString(pTrade)))
	posi := s.trader.portfolio.UpdateTrade(pTrade)
	s.trader.liteSpi.OnTrade(pTrade)
	s.trader.liteSpi.OnPositionUpdated(posi)
}

// /报单录入错误回报
func (s *TdCtp) OnErrRtnOrderInsert(pInputOrder *thost.CThostFtdcInputOrderField, pRspInfo *thost.CThostFtdcRspInfoField) {
	if err := rspError(pRspInfo); err != nil {
		s.logger.Error("err rtn order insert", zap.Error(err))
		if pInputOrder != nil {
			s.trader.rejectOrder(pInputOrder.OrderRef.String(), pRspInfo.ErrorMsg.GBString())
		}
	}
}

// /报单操作错误回报
func (s *TdCtp) OnErrRtnOrderAction(pOrderAction *thost.CThostFtdcOrderActionField, pRspInfo *thost.CThostFtdcRspInfoField) {
	if err := rspError(pRspInfo); err != nil {
		fields := []zap.Field{zap.Error(err)}
		if pOrderAction != nil {
			fields = append(fields, zap.String("order_ref", pOrderAction.OrderRef.String()))
		}
		s.logger.Error("order cancel failed", fields...)
	}
}

// /交易通知
func (s *TdCtp) OnRtnTradingNotice(pTradingNoticeInfo *thost.CThostFtdcTradingNoticeInfoField) {
	if pTradingNoticeInfo != nil {
		s.logger.Info("trading notice", zap.String("content", pTradingNoticeInfo.FieldContent.GBString()))
	}
}

func (s *TdCtp) ReqAuth() int {
	var f thost.CThostFtdcReqAuthenticateField
	copy(f.BrokerID[:], []byte(s.trader.config.BrokerID))
	copy(f.UserID[:], []byte(s.trader.config.UserID))
	copy(f.AppID[:], []byte(s.trader.config.AppID))
	copy(f.AuthCode[:], []byte(s.trader.config.AuthCode))
	r := s.tdapi.ReqAuthenticate(&f, s.trader.nextReqID())
	if r != 0 {
		s.logger.Error("ReqAuthenticate failed", zap.Int("ret", r))
	}
	return r
}

func (s *TdCtp) ReqUserLogin() int {
	var f thost.CThostFtdcReqUserLoginField
	copy(f.BrokerID[:], []byte(s.trader.config.BrokerID))
	copy(f.UserID[:], []byte(s.trader.config.UserID))
	copy(f.Password[:], []byte(s.trader.config.Password))
	r := s.tdapi.ReqUserLogin(&f, s.trader.nextReqID())
	if r != 0 {
		s.logger.Error("ReqUserLogin failed", zap.Int("ret", r))
	}
	return r
}

func (s *TdCtp) ReqSettlementConfirm() int {
	var f thost.CThostFtdcSettlementInfoConfirmField
	copy(f.BrokerID[:], []byte(s.trader.config.BrokerID))
	copy(f.InvestorID[:], []byte(s.trader.config.UserID))
	r := s.tdapi.ReqSettlementInfoConfirm(&f, s.trader.nextReqID())
	if r != 0 {
		s.logger.Error("ReqSettlementInfoConfirm failed", zap.Int("ret", r))
	}
	return r
}

func (s *TdCtp) ReqQryAccount(reqid int) int {
	var f thost.CThostFtdcQryTradingAccountField
	copy(f.BrokerID[:], []byte(s.trader.config.BrokerID))
	copy(f.InvestorID[:], []byte(s.trader.config.UserID))
	r := s.tdapi.ReqQryTradingAccount(&f, reqid)
	if r != 0 {
		s.logger.Error("ReqQryTradingAccount failed", zap.Int("ret", r))
	}
	return r
}

func (s *TdCtp) ReqQryPosition(reqid int) int {
	var f thost.CThostFtdcQryInvestorPositionField
	copy(f.BrokerID[:], []byte(s.trader.config.BrokerID))
	copy(f.InvestorID[:], []byte(s.trader.config.UserID))
	r := s.tdapi.ReqQryInvestorPosition(&f, reqid)
	if r != 0 {
		s.logger.Error("ReqQryInvestorPosition failed", zap.Int("ret", r))
	}
	return r
}

func (s *TdCtp) ReqQryOrder(reqid int) int {
	var f thost.CThostFtdcQryOrderField
	copy(f.BrokerID[:], []byte(s.trader.config.BrokerID))
	copy(f.InvestorID[:], []byte(s.trader.config.UserID))
	r := s.tdapi.ReqQryOrder(&f, reqid)
	if r != 0 {
		s.logger.Error("ReqQryOrder failed", zap.Int("ret", r))
	}
	return r
}

func (s *TdCtp) ReqQryClassifiedInstrument(ins, exchange string, classType thost.TThostFtdcClassTypeType, tradingType thost.TThostFtdcTradingTypeType) int {
	var f thost.CThostFtdcQryClassifiedInstrumentField
	copy(f.InstrumentID[:], []byte(ins))
	copy(f.ExchangeID[:], []byte(exchange))
	f.ClassType = classType
	f.TradingType = tradingType
	r := s.tdapi.ReqQryClassifiedInstrument(&f, s.trader.nextReqID())
	if r != 0 {
		s.logger.Error("ReqQryClassifiedInstrument failed", zap.Int("ret", r))
	}
	return r
}
