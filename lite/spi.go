package lite

import (
	"github.com/pseudocodes/go2ctp/thost"
	"go.uber.org/zap"
)

// LiteSpi receives trader events on the CTP callback goroutine.
type LiteSpi interface {
	OnData(*thost.CThostFtdcDepthMarketDataField)
	OnOrder(*Order)
	OnTrade(*thost.CThostFtdcTradeField)
	OnPositionUpdated(*Position)
}

type BaseLiteSpi struct {
}

func (l *BaseLiteSpi) OnData(_ *thost.CThostFtdcDepthMarketDataField) {
}

func (l *BaseLiteSpi) OnOrder(_ *Order) {
}

func (l *BaseLiteSpi) OnTrade(_ *thost.CThostFtdcTradeField) {
}

func (l *BaseLiteSpi) OnPositionUpdated(*Position) {
}

// LogSpi writes order and position events to a logger.
type LogSpi struct {
	BaseLiteSpi
	logger *zap.Logger
}

func NewLogSpi(logger *zap.Logger) *LogSpi {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSpi{logger: logger}
}

func (l *LogSpi) OnOrder(order *Order) {
	l.logger.Info("order update",
		zap.String("id", order.OrderID),
		zap.String("instrument", order.Name()),
		zap.String("state", string(order.State())),
		zap.Int("traded", order.VolumeTraded),
		zap.Int("left", order.VolumeLeft))
}

func (l *LogSpi) OnPositionUpdated(posi *Position) {
	if posi == nil {
		return
	}
	l.logger.Info("position update",
		zap.String("instrument", posi.Exchange+","+posi.Instrument),
		zap.Int("long", posi.VolumeLong()),
		zap.Int("short", posi.VolumeShort()))
}
