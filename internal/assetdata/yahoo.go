package assetdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	yahooBaseURL   = "https://query1.finance.yahoo.com/v8/finance/chart"
	stockBenchmark = "^GSPC"
)

// YahooProvider fetches stock data from the Yahoo Finance chart API.
type YahooProvider struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	cache   *lru.Cache[string, cachedBars]
	ttl     time.Duration
}

type bar struct {
	Time   time.Time
	Close  float64
	Volume float64
}

type cachedBars struct {
	bars    []bar
	fetched time.Time
}

// NewYahooProvider creates a stock data provider. Requests are limited to
// 5/s and chart responses cached for a minute.
func NewYahooProvider() *YahooProvider {
	cache, _ := lru.New[string, cachedBars](256)
	return &YahooProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: yahooBaseURL,
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		cache:   cache,
		ttl:     time.Minute,
	}
}

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func (p *YahooProvider) fetchChart(ctx context.Context, symbol, rng string) ([]bar, error) {
	cacheKey := symbol + ":" + rng
	if entry, ok := p.cache.Get(cacheKey); ok && time.Since(entry.fetched) < p.ttl {
		return entry.bars, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/%s?interval=1d&range=%s", p.baseURL, url.PathEscape(symbol), rng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo fetch: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: yahoo status %d", ErrUnavailable, resp.StatusCode)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: yahoo decode: %v", ErrUnavailable, err)
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
		return nil, fmt.Errorf("%w: yahoo api error: %s", ErrUnavailable, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("%w: yahoo returned no data for %s", ErrUnknownSymbol, symbol)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: yahoo returned no quote for %s", ErrUnknownSymbol, symbol)
	}
	quote := result.Indicators.Quote[0]

	bars := make([]bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := toFloat(quote.Close[i])
		if c == 0 {
			continue // null bars (holidays etc.)
		}
		bars = append(bars, bar{
			Time:   time.Unix(ts, 0),
			Close:  c,
			Volume: toFloat(quote.Volume[i]),
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: yahoo returned only null bars for %s", ErrUnknownSymbol, symbol)
	}

	p.cache.Add(cacheKey, cachedBars{bars: bars, fetched: time.Now()})
	return bars, nil
}

func (p *YahooProvider) AssetInfo(ctx context.Context, symbol string) (*AssetInfo, error) {
	bars, err := p.fetchChart(ctx, symbol, "1mo")
	if err != nil {
		return nil, err
	}

	latest := bars[len(bars)-1]
	var totalVolume float64
	for _, b := range bars {
		totalVolume += b.Volume
	}

	// Sector indices are not exposed by the chart API; sector performance
	// is approximated by the symbol's own move over the window, which the
	// relevance formula only consumes as a magnitude.
	sectorPerf := 0.0
	if bars[0].Close != 0 {
		sectorPerf = (latest.Close - bars[0].Close) / bars[0].Close * 100
	}

	return &AssetInfo{
		Symbol:            symbol,
		CurrentPrice:      decimal.NewFromFloat(latest.Close),
		TradingVolume:     latest.Volume,
		AverageVolume:     totalVolume / float64(len(bars)),
		SectorPerformance: sectorPerf,
		MarketSentiment:   0,
	}, nil
}

func (p *YahooProvider) PriceHistory(ctx context.Context, symbol string, days int) ([]decimal.Decimal, error) {
	bars, err := p.fetchChart(ctx, symbol, rangeForDays(days))
	if err != nil {
		return nil, err
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}

	closes := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		closes[i] = decimal.NewFromFloat(b.Close)
	}
	return closes, nil
}

func (p *YahooProvider) MarketReturn(ctx context.Context, since time.Time) (float64, error) {
	days := int(time.Since(since).Hours()/24) + 1
	bars, err := p.fetchChart(ctx, stockBenchmark, rangeForDays(days))
	if err != nil {
		return 0, err
	}

	// First bar at or after the pitch; fall back to the oldest available.
	base := bars[0]
	for _, b := range bars {
		if !b.Time.Before(since) {
			base = b
			break
		}
	}
	latest := bars[len(bars)-1]
	if base.Close == 0 {
		return 0, nil
	}
	return (latest.Close - base.Close) / base.Close * 100, nil
}

func rangeForDays(days int) string {
	switch {
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	default:
		return "2y"
	}
}
