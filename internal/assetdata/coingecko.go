package assetdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	coingeckoBaseURL = "https://api.coingecko.com/api/v3"
	cryptoBenchmark  = "bitcoin"
)

// CoinGeckoProvider fetches crypto data from the CoinGecko public API.
// Symbols are CoinGecko coin ids ("bitcoin", "ethereum", ...).
type CoinGeckoProvider struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	cache   *lru.Cache[string, marketChart]
	ttl     time.Duration
}

// NewCoinGeckoProvider creates a crypto data provider. The free CoinGecko
// tier allows roughly 30 calls/min, so outbound requests are throttled
// well under that and chart responses cached for a minute.
func NewCoinGeckoProvider() *CoinGeckoProvider {
	cache, _ := lru.New[string, marketChart](256)
	return &CoinGeckoProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: coingeckoBaseURL,
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 2),
		cache:   cache,
		ttl:     time.Minute,
	}
}

// marketChart is the /coins/{id}/market_chart response: parallel series
// of [unix_ms, value] pairs.
type marketChart struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
	fetched      time.Time
}

func (p *CoinGeckoProvider) fetchChart(ctx context.Context, coinID string, days int) (*marketChart, error) {
	cacheKey := fmt.Sprintf("%s:%d", coinID, days)
	if entry, ok := p.cache.Get(cacheKey); ok && time.Since(entry.fetched) < p.ttl {
		return &entry, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d&interval=daily",
		p.baseURL, url.PathEscape(strings.ToLower(coinID)), days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: coingecko fetch: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: coingecko read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, coinID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: coingecko status %d", ErrUnavailable, resp.StatusCode)
	}

	var chart marketChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: coingecko decode: %v", ErrUnavailable, err)
	}
	if len(chart.Prices) == 0 {
		return nil, fmt.Errorf("%w: coingecko returned no prices for %s", ErrUnknownSymbol, coinID)
	}

	chart.fetched = time.Now()
	p.cache.Add(cacheKey, chart)
	return &chart, nil
}

func (p *CoinGeckoProvider) AssetInfo(ctx context.Context, symbol string) (*AssetInfo, error) {
	chart, err := p.fetchChart(ctx, symbol, 30)
	if err != nil {
		return nil, err
	}

	latestPrice := chart.Prices[len(chart.Prices)-1][1]

	var latestVolume, totalVolume float64
	if n := len(chart.TotalVolumes); n > 0 {
		latestVolume = chart.TotalVolumes[n-1][1]
		for _, v := range chart.TotalVolumes {
			totalVolume += v[1]
		}
		totalVolume /= float64(n)
	}

	sectorPerf := 0.0
	if first := chart.Prices[0][1]; first != 0 {
		sectorPerf = (latestPrice - first) / first * 100
	}

	return &AssetInfo{
		Symbol:            symbol,
		CurrentPrice:      decimal.NewFromFloat(latestPrice),
		TradingVolume:     latestVolume,
		AverageVolume:     totalVolume,
		SectorPerformance: sectorPerf,
		MarketSentiment:   0,
	}, nil
}

func (p *CoinGeckoProvider) PriceHistory(ctx context.Context, symbol string, days int) ([]decimal.Decimal, error) {
	chart, err := p.fetchChart(ctx, symbol, days)
	if err != nil {
		return nil, err
	}

	prices := chart.Prices
	if len(prices) > days {
		prices = prices[len(prices)-days:]
	}

	closes := make([]decimal.Decimal, len(prices))
	for i, pt := range prices {
		closes[i] = decimal.NewFromFloat(pt[1])
	}
	return closes, nil
}

func (p *CoinGeckoProvider) MarketReturn(ctx context.Context, since time.Time) (float64, error) {
	days := int(time.Since(since).Hours()/24) + 1
	chart, err := p.fetchChart(ctx, cryptoBenchmark, days)
	if err != nil {
		return 0, err
	}

	sinceMs := float64(since.UnixMilli())
	base := chart.Prices[0]
	for _, pt := range chart.Prices {
		if pt[0] >= sinceMs {
			base = pt
			break
		}
	}
	latest := chart.Prices[len(chart.Prices)-1]
	if base[1] == 0 {
		return 0, nil
	}
	return (latest[1] - base[1]) / base[1] * 100, nil
}
