package entity_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pseudocodes/lite-vanilla/entity"
)

func TestParseInstrument(t *testing.T) {
	t.Parallel()

	ins, err := entity.ParseInstrument("DCE,i2405")
	if err != nil {
		t.Fatalf("ParseInstrument error: %v", err)
	}
	if ins.Venue != "DCE" || ins.Symbol != "i2405" {
		t.Fatalf("instrument=%+v, want DCE/i2405", ins)
	}
	if ins.String() != "DCE,i2405" {
		t.Fatalf("String()=%q", ins.String())
	}
	if got := ins.Asset(); got.Type != entity.AssetFuture || got.Symbol != "i2405" {
		t.Fatalf("Asset()=%+v", got)
	}
}

func TestParseInstrumentMalformed(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "i2405", "DCE,", ",i2405", "DCE,i2405,x"} {
		if _, err := entity.ParseInstrument(name); !errors.Is(err, entity.ErrMalformedInstrument) {
			t.Fatalf("ParseInstrument(%q) error=%v, want ErrMalformedInstrument", name, err)
		}
	}
}

func TestOrderSetCanceledKeepsTerminalState(t *testing.T) {
	t.Parallel()

	o := entity.NewLimitOrder("s", entity.NewAsset("i2405"), 1, entity.SideBuy, 800, "DCE")
	if o.Status != entity.StatusUnprocessed {
		t.Fatalf("status=%s, want unprocessed", o.Status)
	}
	o.Status = entity.StatusFilled
	o.SetCanceled()
	if o.Status != entity.StatusFilled {
		t.Fatalf("filled order became %s", o.Status)
	}

	o2 := entity.NewLimitOrder("s", entity.NewAsset("i2405"), 1, entity.SideBuy, 800, "DCE")
	o2.Status = entity.StatusOpen
	o2.SetCanceled()
	if !o2.IsCanceled() {
		t.Fatalf("status=%s, want canceled", o2.Status)
	}
}

func TestBarsHelpers(t *testing.T) {
	t.Parallel()

	var empty *entity.Bars
	if empty.Len() != 0 {
		t.Fatal("nil bars should be empty")
	}
	if _, ok := empty.Last(); ok {
		t.Fatal("nil bars should have no last row")
	}

	bars := &entity.Bars{Rows: []entity.Bar{
		{Close: decimal.NewFromInt(810)},
		{Close: decimal.NewFromInt(835)},
		{Close: decimal.NewFromInt(820)},
	}}
	max, ok := bars.MaxClose()
	if !ok || !max.Equal(decimal.NewFromInt(835)) {
		t.Fatalf("MaxClose=%s ok=%v", max, ok)
	}
	last, _ := bars.Last()
	if !last.Close.Equal(decimal.NewFromInt(820)) {
		t.Fatalf("Last close=%s", last.Close)
	}
}
