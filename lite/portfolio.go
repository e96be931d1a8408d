package lite

import (
	"math"
	"sort"
	"sync"

	"github.com/pseudocodes/go2ctp/thost"
	"github.com/puzpuzpuz/xsync/v3"
)

type Portfolio struct {
	AccountID     string
	Balance       float64
	Available     float64
	FrozenBalance float64
	CurrMargin    float64

	Holdings xsync.MapOf[string, *Position]

	sync.Mutex
}

func NewPortfolio() *Portfolio {
	return &Portfolio{
		Holdings: *xsync.NewMapOf[string, *Position](),
	}
}

// hold returns the position for ins, creating it when absent. Callers hold p.
func (p *Portfolio) hold(ins, exchange string) *Position {
	posi, ok := p.Holdings.Load(ins)
	if !ok {
		posi = &Position{Instrument: ins, Exchange: exchange}
		p.Holdings.Store(ins, posi)
	}
	if posi.Exchange == "" {
		posi.Exchange = exchange
	}
	return posi
}

func (p *Portfolio) UpdateTick(ins string, last, preSettle float64) {
	p.Lock()
	defer p.Unlock()
	posi, ok := p.Holdings.Load(ins)
	if !ok {
		return
	}
	posi.LastPrice = last
	posi.PreSettlementPrice = preSettle
}

func (p *Portfolio) UpdatePosi(f *thost.CThostFtdcInvestorPositionField) {
	p.Lock()
	defer p.Unlock()
	p.applyPosi(f)
}

// ReplacePositions takes rows as the complete position book. Holdings
// missing from rows keep their prices but lose their volumes.
func (p *Portfolio) ReplacePositions(rows []thost.CThostFtdcInvestorPositionField) {
	p.Lock()
	defer p.Unlock()
	p.Holdings.Range(func(_ string, posi *Position) bool {
		*posi = Position{
			Instrument:         posi.Instrument,
			Exchange:           posi.Exchange,
			LastPrice:          posi.LastPrice,
			PreSettlementPrice: posi.PreSettlementPrice,
		}
		return true
	})
	for i := range rows {
		p.applyPosi(&rows[i])
	}
}

// applyPosi folds one position row into the holdings. Callers hold p.
func (p *Portfolio) applyPosi(f *thost.CThostFtdcInvestorPositionField) {
	var (
		ins      = f.InstrumentID.String()
		exchange = f.ExchangeID.String()
		today    = f.PositionDate == thost.THOST_FTDC_PSD_Today
	)

	posi := p.hold(ins, exchange)
	if f.PosiDirection == thost.THOST_FTDC_PD_Long {
		if today {
			posi.VolumeLongTd = int(f.Position)
			posi.VolumeLongFrozenTd = int(f.ShortFrozen)
			posi.PositionCostLongToday = float64(f.PositionCost)
			posi.OpenCostLongToday = float64(f.OpenCost)
			posi.MarginLongToday = float64(f.UseMargin)
		} else {
			posi.VolumeLongHis = int(f.Position)
			posi.VolumeLongFrozenHis = int(f.ShortFrozen)
			posi.PositionCostLongHis = float64(f.PositionCost)
			posi.OpenCostLongHis = float64(f.OpenCost)
			posi.MarginLongHis = float64(f.UseMargin)
		}
	} else {
		if today {
			posi.VolumeShortTd = int(f.Position)
			posi.VolumeShortFrozenTd = int(f.LongFrozen)
			posi.PositionCostShortToday = float64(f.PositionCost)
			posi.OpenCostShortToday = float64(f.OpenCost)
			posi.MarginShortToday = float64(f.UseMargin)
		} else {
			posi.VolumeShortHis = int(f.Position)
			posi.VolumeShortFrozenHis = int(f.LongFrozen)
			posi.PositionCostShortHis = float64(f.PositionCost)
			posi.OpenCostShortHis = float64(f.OpenCost)
			posi.MarginShortHis = float64(f.UseMargin)
		}
	}
	if IsValid(float64(f.PreSettlementPrice)) {
		posi.PreSettlementPrice = float64(f.PreSettlementPrice)
	}
}

// CalcFrozen recomputes frozen close volume from the live orders of ins.
func (p *Portfolio) CalcFrozen(ins, exchange string, actives []*Order) {
	p.Lock()
	defer p.Unlock()
	posi := p.hold(ins, exchange)
	posi.VolumeLongFrozenTd = 0
	posi.VolumeLongFrozenHis = 0
	posi.VolumeShortFrozenTd = 0
	posi.VolumeShortFrozenHis = 0

	for _, order := range actives {
		if order.Offset == thost.THOST_FTDC_OF_Open {
			continue
		}
		frozen := order.VolumeLeft
		// a buy closes short volume, a sell closes long volume
		td, his, tdVol := &posi.VolumeLongFrozenTd, &posi.VolumeLongFrozenHis, posi.VolumeLongTd
		if order.Direction == thost.THOST_FTDC_D_Buy {
			td, his, tdVol = &posi.VolumeShortFrozenTd, &posi.VolumeShortFrozenHis, posi.VolumeShortTd
		}
		switch order.Offset {
		case thost.THOST_FTDC_OF_CloseToday:
			*td += frozen
		case thost.THOST_FTDC_OF_CloseYesterday:
			*his += frozen
		default:
			*td += frozen
			if *td > tdVol {
				*his += *td - tdVol
				*td = tdVol
			}
		}
	}
}

func (p *Portfolio) UpdateTrade(fill *thost.CThostFtdcTradeField) *Position {
	ins := fill.InstrumentID.String()
	exchange := fill.ExchangeID.String()
	vol := int(fill.Volume)

	p.Lock()
	defer p.Unlock()
	pos := p.hold(ins, exchange)

	if fill.OffsetFlag == thost.THOST_FTDC_OF_Open {
		if fill.Direction == thost.THOST_FTDC_D_Buy {
			pos.VolumeLongTd += vol
		} else {
			pos.VolumeShortTd += vol
		}
		return pos
	}

	// SHFE and INE distinguish today from history on close
	closeHis := (exchange == "SHFE" || exchange == "INE") && fill.OffsetFlag != thost.THOST_FTDC_OF_CloseToday
	switch {
	case fill.Direction == thost.THOST_FTDC_D_Buy && closeHis:
		pos.VolumeShortHis -= vol
	case fill.Direction == thost.THOST_FTDC_D_Buy:
		pos.VolumeShortTd -= vol
	case closeHis:
		pos.VolumeLongHis -= vol
	default:
		pos.VolumeLongTd -= vol
	}
	pos.VolumeLongTd, pos.VolumeLongHis = rebalance(pos.VolumeLongTd, pos.VolumeLongHis)
	pos.VolumeShortTd, pos.VolumeShortHis = rebalance(pos.VolumeShortTd, pos.VolumeShortHis)
	return pos
}

// rebalance moves a negative leg onto the other one.
func rebalance(td, his int) (int, int) {
	if td < 0 {
		his += td
		td = 0
	}
	if his < 0 {
		td += his
		his = 0
	}
	return td, his
}

func (p *Portfolio) UpdateAccount(account *thost.CThostFtdcTradingAccountField) {
	p.Lock()
	defer p.Unlock()
	p.AccountID = account.AccountID.String()
	p.Balance = float64(account.Balance)
	p.Available = float64(account.Available)
	p.FrozenBalance = float64(account.FrozenCash + account.FrozenMargin + account.FrozenCommission)
	p.CurrMargin = float64(account.CurrMargin)
}

func (p *Portfolio) Position(symbol string) *Position {
	pos, _ := p.Holdings.Load(symbol)
	return pos
}

// Snapshot copies every holding, sorted by instrument.
func (p *Portfolio) Snapshot() []Position {
	p.Lock()
	defer p.Unlock()
	var out []Position
	p.Holdings.Range(func(_ string, pos *Position) bool {
		out = append(out, *pos)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

func IsValid(x float64) bool {
	return !math.IsNaN(x) && (x < 1e20) && (x > -1e20)
}
