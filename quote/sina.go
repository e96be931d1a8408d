package quote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/pseudocodes/lite-vanilla/entity"
)

const (
	DefaultSinaSpotURL  = "https://hq.sinajs.cn"
	DefaultSinaDailyURL = "https://stock2.finance.sina.com.cn/futures/api/jsonp.php"

	sinaReferer = "https://finance.sina.com.cn/"
	dateLayout  = "2006-01-02"
)

// nf_ quote field positions
const (
	fieldName = iota
	fieldTime
	fieldOpen
	fieldHigh
	fieldLow
	fieldLastClose
	fieldBid
	fieldAsk
	fieldCurrent
	fieldAvg
	fieldLastSettle
	fieldBidVol
	fieldAskVol
	fieldHold
	fieldVolume
)

type SinaConf struct {
	SpotURL  string
	DailyURL string
	Timeout  time.Duration
}

// Sina reads domestic futures quotes from Sina Finance.
type Sina struct {
	conf   SinaConf
	client *http.Client
	clock  func() time.Time
	logger *zap.Logger
}

func NewSina(conf SinaConf, logger *zap.Logger) *Sina {
	if conf.SpotURL == "" {
		conf.SpotURL = DefaultSinaSpotURL
	}
	if conf.DailyURL == "" {
		conf.DailyURL = DefaultSinaDailyURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sina{
		conf:   conf,
		client: &http.Client{Timeout: conf.Timeout},
		clock:  time.Now,
		logger: logger,
	}
}

// Spot returns the realtime row for a commodity future such as "I2405".
func (s *Sina) Spot(ctx context.Context, symbol string) ([]SpotRow, error) {
	q := url.Values{}
	q.Set("rn", strconv.FormatInt(s.clock().UnixMilli(), 10))
	q.Set("list", "nf_"+symbol)
	body, err := s.fetch(ctx, strings.TrimRight(s.conf.SpotURL, "/")+"/?"+q.Encode())
	if err != nil {
		return nil, err
	}
	text, err := decodeGBK(body)
	if err != nil {
		return nil, err
	}
	var rows []SpotRow
	for _, line := range strings.Split(text, ";") {
		row, ok := parseSpotLine(symbol, line)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// DailyBars returns every daily bar Sina has for the contract, oldest first.
func (s *Sina) DailyBars(ctx context.Context, symbol string) ([]entity.Bar, error) {
	now := s.clock()
	stamp := fmt.Sprintf("%d_%d_%d", now.Year(), int(now.Month()), now.Day())
	endpoint := fmt.Sprintf("%s/var%%20_%s%s=/InnerFuturesNewService.getDailyKLine?symbol=%s&type=%s",
		strings.TrimRight(s.conf.DailyURL, "/"), symbol, strings.ReplaceAll(stamp, "_", ""), url.QueryEscape(symbol), stamp)
	body, err := s.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	start := bytes.IndexByte(body, '(')
	end := bytes.LastIndexByte(body, ')')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("sina daily %s: unexpected payload", symbol)
	}
	payload := bytes.TrimSpace(body[start+1 : end])
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var raw []sinaDaily
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("sina daily %s: decode: %w", symbol, err)
	}
	bars := make([]entity.Bar, 0, len(raw))
	for _, r := range raw {
		d, err := time.ParseInLocation(dateLayout, r.Date, time.Local)
		if err != nil {
			s.logger.Warn("skip sina daily row", zap.String("symbol", symbol), zap.String("date", r.Date), zap.Error(err))
			continue
		}
		bars = append(bars, entity.Bar{
			Date:         d,
			Open:         r.Open,
			High:         r.High,
			Low:          r.Low,
			Close:        r.Close,
			Volume:       r.Volume,
			OpenInterest: r.Hold,
			Settle:       r.Settle,
		})
	}
	return bars, nil
}

type sinaDaily struct {
	Date   string          `json:"d"`
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume decimal.Decimal `json:"v"`
	Hold   decimal.Decimal `json:"p"`
	Settle decimal.Decimal `json:"s"`
}

func (s *Sina) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create sina request: %w", err)
	}
	req.Header.Set("Referer", sinaReferer)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sina request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sina response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("sina http status not ok: %d", resp.StatusCode)
	}
	return body, nil
}

func decodeGBK(data []byte) (string, error) {
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("decode gbk: %w", err)
	}
	return string(out), nil
}

// parseSpotLine reads `var hq_str_nf_I2405="...";`. An empty quoted value
// means the contract is unknown.
func parseSpotLine(symbol, line string) (SpotRow, bool) {
	start := strings.IndexByte(line, '"')
	end := strings.LastIndexByte(line, '"')
	if start < 0 || end <= start+1 {
		return SpotRow{}, false
	}
	fields := strings.Split(line[start+1:end], ",")
	if len(fields) <= fieldVolume {
		return SpotRow{}, false
	}
	current, err := decimal.NewFromString(strings.TrimSpace(fields[fieldCurrent]))
	if err != nil {
		return SpotRow{}, false
	}
	return SpotRow{
		Symbol:       symbol,
		Name:         fields[fieldName],
		Time:         fields[fieldTime],
		Open:         parseDecimal(fields[fieldOpen]),
		High:         parseDecimal(fields[fieldHigh]),
		Low:          parseDecimal(fields[fieldLow]),
		LastClose:    parseDecimal(fields[fieldLastClose]),
		Bid:          parseDecimal(fields[fieldBid]),
		Ask:          parseDecimal(fields[fieldAsk]),
		CurrentPrice: current,
		LastSettle:   parseDecimal(fields[fieldLastSettle]),
		Hold:         parseDecimal(fields[fieldHold]),
		Volume:       parseDecimal(fields[fieldVolume]),
	}, true
}

func parseDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero
	}
	return d
}
