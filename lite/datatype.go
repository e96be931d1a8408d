package lite

import (
	"fmt"
	"strings"
	"time"

	"github.com/pseudocodes/go2ctp/thost"
	"github.com/spf13/cast"

	"github.com/pseudocodes/lite-vanilla/gateway"
)

const (
	DefaultLayout = "20060102 15:04:05"
)

type Order struct {
	InstrumentID    string
	Exchange        string
	UserID          string
	ExchangeOrderID string // OrderSysID
	VolumeOrigin    int
	VolumeLeft      int
	VolumeTraded    int
	LimitPrice      float64

	Direction      thost.TThostFtdcDirectionType
	Offset         thost.TThostFtdcOffsetFlagType
	PriceType      thost.TThostFtdcOrderPriceTypeType
	InsertDateTime int64

	SubmitStatus thost.TThostFtdcOrderSubmitStatusType
	Status       thost.TThostFtdcOrderStatusType
	LastMsg      string

	FrontID   int32
	SessionID int32
	OrderRef  string
	OrderID   string
}

func OrderFrom(order *Order, f *thost.CThostFtdcOrderField) *Order {
	order.InstrumentID = f.InstrumentID.String()
	order.Exchange = f.ExchangeID.String()
	order.UserID = f.UserID.String()
	order.ExchangeOrderID = strings.TrimSpace(f.OrderSysID.String())
	order.VolumeOrigin = int(f.VolumeTotalOriginal)
	order.VolumeLeft = int(f.VolumeTotal)
	order.VolumeTraded = int(f.VolumeTraded)
	order.Direction = f.Direction
	order.Offset = thost.TThostFtdcOffsetFlagType(f.CombOffsetFlag[0])
	order.PriceType = f.OrderPriceType
	order.LimitPrice = float64(f.LimitPrice)
	order.Status = f.OrderStatus
	order.SubmitStatus = f.OrderSubmitStatus
	order.LastMsg = f.StatusMsg.GBString()
	order.FrontID = int32(f.FrontID)
	order.SessionID = int32(f.SessionID)
	order.OrderRef = strings.TrimSpace(f.OrderRef.String())
	order.OrderID = GetOrderKey(order.FrontID, order.SessionID, order.OrderRef)

	// a zero time is kept when the front sends no insert time
	if tt, err := time.ParseInLocation(DefaultLayout, f.InsertDate.String()+" "+f.InsertTime.String(), time.Local); err == nil {
		order.InsertDateTime = tt.UnixNano()
	}
	return order
}

func OrderFromInput(f *thost.CThostFtdcInputOrderField) *Order {
	return &Order{
		InstrumentID:   f.InstrumentID.String(),
		Exchange:       f.ExchangeID.String(),
		UserID:         f.UserID.String(),
		VolumeOrigin:   int(f.VolumeTotalOriginal),
		VolumeLeft:     int(f.VolumeTotalOriginal),
		Direction:      f.Direction,
		Offset:         thost.TThostFtdcOffsetFlagType(f.CombOffsetFlag[0]),
		PriceType:      f.OrderPriceType,
		InsertDateTime: time.Now().UnixNano(),
		LimitPrice:     float64(f.LimitPrice),
		Status:         thost.THOST_FTDC_OST_Unknown,
		SubmitStatus:   thost.THOST_FTDC_OSS_InsertSubmitted,
		OrderRef:       f.OrderRef.String(),
	}
}

// GetOrderKey identifies an order across sessions: ref.session.front
func GetOrderKey(frontID int32, session int32, orderRef string) string {
	return fmt.Sprintf("%s.%08x.%d", orderRef, session, frontID)
}

func (o *Order) IsFinished() bool {
	return o.Status == thost.THOST_FTDC_OST_AllTraded || o.Status == thost.THOST_FTDC_OST_Canceled
}

// Name is the gateway-style "<exchange>,<instrument>" name.
func (o *Order) Name() string {
	return o.Exchange + "," + o.InstrumentID
}

// State maps the CTP order status onto the gateway order state.
func (o *Order) State() gateway.OrderState {
	switch o.Status {
	case thost.THOST_FTDC_OST_AllTraded:
		return gateway.StateAllTraded
	case thost.THOST_FTDC_OST_PartTradedQueueing, thost.THOST_FTDC_OST_PartTradedNotQueueing:
		return gateway.StatePartTraded
	case thost.THOST_FTDC_OST_NoTradeQueueing, thost.THOST_FTDC_OST_NoTradeNotQueueing,
		thost.THOST_FTDC_OST_Touched, thost.THOST_FTDC_OST_NotTouched:
		return gateway.StateNotTraded
	case thost.THOST_FTDC_OST_Canceled:
		if o.SubmitStatus == thost.THOST_FTDC_OSS_InsertRejected {
			return gateway.StateRejected
		}
		return gateway.StateCancelled
	default:
		return gateway.StateSubmitting
	}
}

func (o *Order) Gateway() gateway.Order {
	direction := "long"
	if o.Direction == thost.THOST_FTDC_D_Sell {
		direction = "short"
	}
	var insertTime string
	if o.InsertDateTime > 0 {
		insertTime = time.Unix(0, o.InsertDateTime).Format(DefaultLayout)
	}
	return gateway.Order{
		ID:             gateway.OrderID(o.OrderID),
		InstrumentName: o.Name(),
		Amount:         float64(o.VolumeOrigin),
		Direction:      direction,
		Price:          o.LimitPrice,
		OrderState:     o.State(),
		Traded:         float64(o.VolumeTraded),
		InsertTime:     insertTime,
		Message:        o.LastMsg,
	}
}

func (o *Order) String() string {
	var b strings.Builder
	b.WriteString(o.OrderID + "| " + o.Exchange + "." + o.InstrumentID)
	b.WriteString("|[" + o.ExchangeOrderID + "]")
	if o.Direction == thost.THOST_FTDC_D_Buy {
		b.WriteString("|Buy")
	} else {
		b.WriteString("|Sell")
	}
	b.WriteString("|" + offsetName(o.Offset))
	if o.PriceType == thost.THOST_FTDC_OPT_LimitPrice {
		b.WriteString("|LimitPrice:" + cast.ToString(o.LimitPrice))
	} else {
		b.WriteString("|AnyPrice")
	}
	b.WriteString("|TotalOri:" + cast.ToString(o.VolumeOrigin))
	b.WriteString("|VolLeft:" + cast.ToString(o.VolumeLeft))
	b.WriteString("|" + string(o.State()))
	if o.LastMsg != "" {
		b.WriteString("|" + o.LastMsg)
	}
	return b.String()
}

func offsetName(off thost.TThostFtdcOffsetFlagType) string {
	switch off {
	case thost.THOST_FTDC_OF_Open:
		return "Open"
	case thost.THOST_FTDC_OF_Close:
		return "Close"
	case thost.THOST_FTDC_OF_ForceClose:
		return "ForceClose"
	case thost.THOST_FTDC_OF_CloseToday:
		return "CloseToday"
	case thost.THOST_FTDC_OF_CloseYesterday:
		return "CloseYesterday"
	default:
		return "Unknown"
	}
}

func tradeString(trade *thost.CThostFtdcTradeField) string {
	dir := "Sell"
	if trade.Direction == thost.THOST_FTDC_D_Buy {
		dir = "Buy"
	}
	return trade.ExchangeID.String() + "." + trade.InstrumentID.String() +
		"|" + dir +
		"|" + offsetName(trade.OffsetFlag) +
		"|Vol:" + cast.ToString(int(trade.Volume)) +
		"|Price:" + fmt.Sprintf("%.2f", float64(trade.Price)) +
		"|OrderSysID:" + strings.TrimSpace(trade.OrderSysID.String())
}

type Position struct {
	Instrument string
	Exchange   string

	VolumeLongTd        int // 多今仓
	VolumeLongHis       int // 多昨仓
	VolumeLongFrozenTd  int
	VolumeLongFrozenHis int

	VolumeShortTd        int // 空今仓
	VolumeShortHis       int // 空昨仓
	VolumeShortFrozenTd  int
	VolumeShortFrozenHis int

	PositionCostLongToday  float64
	PositionCostLongHis    float64
	PositionCostShortToday float64
	PositionCostShortHis   float64

	OpenCostLongToday  float64
	OpenCostLongHis    float64
	OpenCostShortToday float64
	OpenCostShortHis   float64

	MarginLongToday  float64
	MarginLongHis    float64
	MarginShortToday float64
	MarginShortHis   float64

	LastPrice          float64
	PreSettlementPrice float64
}

func (ps *Position) VolumeLong() int {
	return ps.VolumeLongTd + ps.VolumeLongHis
}

func (ps *Position) VolumeShort() int {
	return ps.VolumeShortTd + ps.VolumeShortHis
}

func (ps *Position) LongAvailable() int {
	return ps.VolumeLong() - ps.VolumeLongFrozenTd - ps.VolumeLongFrozenHis
}

func (ps *Position) ShortAvailable() int {
	return ps.VolumeShort() - ps.VolumeShortFrozenTd - ps.VolumeShortFrozenHis
}

func (ps *Position) Margin() float64 {
	return ps.MarginLongToday + ps.MarginLongHis + ps.MarginShortToday + ps.MarginShortHis
}

// Gateway reports one record per held direction: long with a positive size,
// short with a negative one.
func (ps *Position) Gateway(ct *Contract) []gateway.Position {
	multiple := 1
	if ct != nil && ct.VolumeMultiple > 0 {
		multiple = ct.VolumeMultiple
	}
	price := ps.LastPrice
	if !IsValid(price) || price == 0 {
		price = ps.PreSettlementPrice
	}
	priced := IsValid(price) && price > 0
	name := ps.Exchange + "," + ps.Instrument

	var out []gateway.Position
	if vol := ps.VolumeLong(); vol > 0 {
		notional := float64(vol * multiple)
		g := gateway.Position{
			InstrumentName: name,
			Size:           float64(vol),
			Direction:      "long",
			AveragePrice:   (ps.PositionCostLongToday + ps.PositionCostLongHis) / notional,
		}
		if priced {
			g.FloatProfit = price*notional - (ps.OpenCostLongToday + ps.OpenCostLongHis)
		}
		out = append(out, g)
	}
	if vol := ps.VolumeShort(); vol > 0 {
		notional := float64(vol * multiple)
		g := gateway.Position{
			InstrumentName: name,
			Size:           -float64(vol),
			Direction:      "short",
			AveragePrice:   (ps.PositionCostShortToday + ps.PositionCostShortHis) / notional,
		}
		if priced {
			g.FloatProfit = (ps.OpenCostShortToday + ps.OpenCostShortHis) - price*notional
		}
		out = append(out, g)
	}
	return out
}

type Contract struct {
	Ins              string                           `json:"ins,omitempty"`
	Name             string                           `json:"name,omitempty"`
	Exchange         string                           `json:"exchange,omitempty"`
	ProductClass     thost.TThostFtdcProductClassType `json:"product_class,omitempty"`
	LongMarginRatio  float64                          `json:"long_margin_ratio,omitempty"`
	ShortMarginRatio float64                          `json:"short_margin_ratio,omitempty"`
	VolumeMultiple   int                              `json:"volume_multiple,omitempty"`
	PriceTick        float64                          `json:"price_tick,omitempty"`
}

func FromInstrument(ins *thost.CThostFtdcInstrumentField) *Contract {
	return &Contract{
		Ins:              ins.InstrumentID.String(),
		Name:             ins.InstrumentName.GBString(),
		Exchange:         ins.ExchangeID.String(),
		ProductClass:     ins.ProductClass,
		LongMarginRatio:  float64(ins.LongMarginRatio),
		ShortMarginRatio: float64(ins.ShortMarginRatio),
		VolumeMultiple:   int(ins.VolumeMultiple),
		PriceTick:        float64(ins.PriceTick),
	}
}
