package assetdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StubProvider returns canned data. Used in tests and as an offline
// fallback when no real provider is configured.
type StubProvider struct {
	Info       map[string]*AssetInfo
	History    map[string][]decimal.Decimal
	Return     float64
	InfoErr    error
	HistoryErr error
	ReturnErr  error
}

func (s *StubProvider) AssetInfo(_ context.Context, symbol string) (*AssetInfo, error) {
	if s.InfoErr != nil {
		return nil, s.InfoErr
	}
	if info, ok := s.Info[symbol]; ok {
		return info, nil
	}
	return nil, ErrUnknownSymbol
}

func (s *StubProvider) PriceHistory(_ context.Context, symbol string, days int) ([]decimal.Decimal, error) {
	if s.HistoryErr != nil {
		return nil, s.HistoryErr
	}
	h := s.History[symbol]
	if len(h) > days {
		h = h[len(h)-days:]
	}
	return h, nil
}

func (s *StubProvider) MarketReturn(_ context.Context, _ time.Time) (float64, error) {
	if s.ReturnErr != nil {
		return 0, s.ReturnErr
	}
	return s.Return, nil
}
