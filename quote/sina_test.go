package quote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/pseudocodes/lite-vanilla/entity"
	"github.com/pseudocodes/lite-vanilla/quote"
)

func gbk(t *testing.T, s string) []byte {
	t.Helper()
	out, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encode gbk: %v", err)
	}
	return out
}

func newSinaServer(t *testing.T) *quote.Sina {
	t.Helper()

	spot := gbk(t, `var hq_str_nf_I2405="铁矿石2405,145959,820.000,831.500,812.000,818.000,823.000,823.500,823.500,821.000,817.500,12,30,812345,223344,铁,铁矿石,2024-03-20";`+"\n")

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Referer") == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		switch req.URL.Query().Get("list") {
		case "nf_I2405":
			_, _ = w.Write(spot)
		default:
			_, _ = w.Write([]byte(`var hq_str_nf_XX="";` + "\n"))
		}
	})
	r.Get("/daily/*", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("symbol") != "I2405" {
			_, _ = w.Write([]byte(`/*<script>location.href='//sina.com';</script>*/` + "\nvar _X=(null);"))
			return
		}
		_, _ = w.Write([]byte(`/*<script>location.href='//sina.com';</script>*/
var _I2405202432=([{"d":"2024-03-18","o":"800.000","h":"810.000","l":"795.000","c":"805.000","v":"1000","p":"5000","s":"804.000"},{"d":"2024-03-19","o":"805.000","h":"820.000","l":"801.000","c":"818.000","v":"1200","p":"5100","s":"815.000"},{"d":"bad","o":"0","h":"0","l":"0","c":"0","v":"0","p":"0","s":"0"}]);`))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return quote.NewSina(quote.SinaConf{SpotURL: srv.URL, DailyURL: srv.URL + "/daily"}, nil)
}

func TestSinaSpot(t *testing.T) {
	t.Parallel()

	sina := newSinaServer(t)
	rows, err := sina.Spot(context.Background(), "I2405")
	if err != nil {
		t.Fatalf("Spot error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d, want 1", len(rows))
	}
	row := rows[0]
	if row.Name != "铁矿石2405" {
		t.Fatalf("name=%q, gbk not decoded", row.Name)
	}
	if !row.CurrentPrice.Equal(decimal.RequireFromString("823.5")) {
		t.Fatalf("current=%s", row.CurrentPrice)
	}
	if !row.Open.Equal(decimal.NewFromInt(820)) || !row.LastSettle.Equal(decimal.RequireFromString("817.5")) {
		t.Fatalf("row=%+v", row)
	}

	rows, err = sina.Spot(context.Background(), "XX")
	if err != nil || len(rows) != 0 {
		t.Fatalf("unknown contract rows=%v err=%v, want empty", rows, err)
	}
}

func TestSinaDailyBars(t *testing.T) {
	t.Parallel()

	sina := newSinaServer(t)
	bars, err := sina.DailyBars(context.Background(), "I2405")
	if err != nil {
		t.Fatalf("DailyBars error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars=%d, want 2 (bad date skipped)", len(bars))
	}
	if bars[1].Date.Format("2006-01-02") != "2024-03-19" || !bars[1].Close.Equal(decimal.NewFromInt(818)) {
		t.Fatalf("last bar=%+v", bars[1])
	}
	if !bars[0].OpenInterest.Equal(decimal.NewFromInt(5000)) || !bars[0].Settle.Equal(decimal.NewFromInt(804)) {
		t.Fatalf("first bar=%+v", bars[0])
	}

	empty, err := sina.DailyBars(context.Background(), "XX")
	if err != nil || len(empty) != 0 {
		t.Fatalf("null payload bars=%v err=%v", empty, err)
	}
}

func TestSinaThroughSource(t *testing.T) {
	t.Parallel()

	src := quote.New(newSinaServer(t))
	price, ok := src.LastPrice(context.Background(), entity.NewAsset("i2405"))
	if !ok || !price.Equal(decimal.RequireFromString("823.5")) {
		t.Fatalf("LastPrice=%s ok=%v", price, ok)
	}
	bars := src.HistoricalPrices(context.Background(), entity.NewAsset("i2405"), 1, "day")
	if bars.Len() != 1 {
		t.Fatalf("bars=%d, want 1", bars.Len())
	}
	last, _ := bars.Last()
	if !last.Close.Equal(decimal.NewFromInt(818)) {
		t.Fatalf("newest close=%s, want 818", last.Close)
	}
}

func TestSinaHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	sina := quote.NewSina(quote.SinaConf{SpotURL: srv.URL, DailyURL: srv.URL}, nil)
	if _, err := sina.Spot(context.Background(), "I2405"); err == nil {
		t.Fatal("expected error for 500")
	}
	if _, err := sina.DailyBars(context.Background(), "I2405"); err == nil {
		t.Fatal("expected error for 500")
	}
}
