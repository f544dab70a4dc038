package assetdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

func chartJSON(timestamps []int64, closes, volumes []float64) string {
	ts, cl, vol := "", "", ""
	for i := range timestamps {
		if i > 0 {
			ts += ","
			cl += ","
			vol += ","
		}
		ts += fmt.Sprintf("%d", timestamps[i])
		cl += fmt.Sprintf("%g", closes[i])
		vol += fmt.Sprintf("%g", volumes[i])
	}
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%s],
		"indicators":{"quote":[{"close":[%s],"volume":[%s]}]}}],"error":null}}`, ts, cl, vol)
}

func testYahoo(t *testing.T, handler http.Handler) (*YahooProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cache, _ := lru.New[string, cachedBars](16)
	return &YahooProvider{
		client:  srv.Client(),
		baseURL: srv.URL,
		limiter: rate.NewLimiter(rate.Inf, 1),
		cache:   cache,
		ttl:     time.Minute,
	}, srv
}

func TestYahooAssetInfo(t *testing.T) {
	now := time.Now().Unix()
	p, _ := testYahoo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON(
			[]int64{now - 2*86400, now - 86400, now},
			[]float64{100, 105, 110},
			[]float64{1000, 2000, 3000},
		))
	}))

	info, err := p.AssetInfo(context.Background(), "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if got := info.CurrentPrice.InexactFloat64(); got != 110 {
		t.Errorf("current price = %v, want 110", got)
	}
	if info.TradingVolume != 3000 {
		t.Errorf("trading volume = %v, want 3000", info.TradingVolume)
	}
	if info.AverageVolume != 2000 {
		t.Errorf("average volume = %v, want 2000", info.AverageVolume)
	}
	if info.SectorPerformance != 10 {
		t.Errorf("sector performance = %v, want 10", info.SectorPerformance)
	}
}

func TestYahooPriceHistorySkipsNullBars(t *testing.T) {
	now := time.Now().Unix()
	p, _ := testYahoo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// middle bar is a holiday null
		fmt.Fprint(w, `{"chart":{"result":[{"timestamp":[`+
			fmt.Sprintf("%d,%d,%d", now-2*86400, now-86400, now)+
			`],"indicators":{"quote":[{"close":[100,null,110],"volume":[1,null,3]}]}}],"error":null}}`)
	}))

	closes, err := p.PriceHistory(context.Background(), "AAPL", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(closes) != 2 {
		t.Fatalf("expected 2 closes after dropping null bar, got %d", len(closes))
	}
	if closes[0].InexactFloat64() != 100 || closes[1].InexactFloat64() != 110 {
		t.Errorf("closes = %v", closes)
	}
}

func TestYahooUnknownSymbol(t *testing.T) {
	p, _ := testYahoo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := p.AssetInfo(context.Background(), "NOPE")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestYahooServerErrorIsUnavailable(t *testing.T) {
	p, _ := testYahoo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := p.PriceHistory(context.Background(), "AAPL", 30)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestYahooChartCached(t *testing.T) {
	var calls atomic.Int32
	now := time.Now().Unix()
	p, _ := testYahoo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, chartJSON([]int64{now}, []float64{100}, []float64{1}))
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := p.PriceHistory(ctx, "AAPL", 30); err != nil {
			t.Fatal(err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 upstream call, got %d", n)
	}
}

func TestYahooMarketReturn(t *testing.T) {
	now := time.Now()
	p, _ := testYahoo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON(
			[]int64{now.Add(-48 * time.Hour).Unix(), now.Add(-24 * time.Hour).Unix(), now.Unix()},
			[]float64{4000, 4100, 4200},
			[]float64{1, 1, 1},
		))
	}))

	// Since 36h ago: base is the -24h bar (4100), latest 4200.
	got, err := p.MarketReturn(context.Background(), now.Add(-36*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	want := (4200.0 - 4100.0) / 4100.0 * 100
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("market return = %v, want %v", got, want)
	}
}

func TestProvidersForClass(t *testing.T) {
	stock := &StubProvider{}
	crypto := &StubProvider{Return: 1}
	p := Providers{Stock: stock, Crypto: crypto}

	if p.ForClass("crypto") != Provider(crypto) {
		t.Error("crypto class must route to the crypto provider")
	}
	if p.ForClass("stock") != Provider(stock) {
		t.Error("stock class must route to the stock provider")
	}
	if p.ForClass("") != Provider(stock) {
		t.Error("unknown class defaults to stocks")
	}
}
