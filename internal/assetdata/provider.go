// Package assetdata fetches market data for pitched assets from external
// providers. Stocks come from the Yahoo Finance chart API, crypto from
// CoinGecko. Responses are cached and outbound requests rate limited so
// a batch rescore does not hammer either provider.
package assetdata

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matador/score-engine/internal/model"
)

var (
	// ErrUnavailable wraps any transport or upstream failure. Callers use
	// errors.Is to distinguish provider trouble from bad input.
	ErrUnavailable = errors.New("assetdata: provider unavailable")

	// ErrUnknownSymbol is returned when the provider has no data for the
	// requested symbol.
	ErrUnknownSymbol = errors.New("assetdata: unknown symbol")
)

// AssetInfo is the point-in-time market snapshot the scorer consumes.
// Fields a provider cannot supply are zero, which the score formulas
// treat as neutral.
type AssetInfo struct {
	Symbol            string
	CurrentPrice      decimal.Decimal
	TradingVolume     float64
	AverageVolume     float64
	SectorPerformance float64
	MarketSentiment   float64
}

// Provider supplies market data for one asset class.
type Provider interface {
	// AssetInfo returns the current snapshot for a symbol.
	AssetInfo(ctx context.Context, symbol string) (*AssetInfo, error)

	// PriceHistory returns up to `days` daily closing prices, oldest first.
	PriceHistory(ctx context.Context, symbol string, days int) ([]decimal.Decimal, error)

	// MarketReturn returns the benchmark's percentage move since the given
	// time: ^GSPC for stocks, bitcoin for crypto.
	MarketReturn(ctx context.Context, since time.Time) (float64, error)
}

// Providers routes requests to the provider for each asset class.
type Providers struct {
	Stock  Provider
	Crypto Provider
}

// ForClass returns the provider for an asset class, defaulting to stocks.
func (p Providers) ForClass(class string) Provider {
	if class == model.AssetCrypto {
		return p.Crypto
	}
	return p.Stock
}
