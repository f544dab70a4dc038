// Package model defines the core domain types shared across the score engine.
// All asset prices use shopspring/decimal — never float64 for money. Scores
// and return percentages are unitless float64 values.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset classes a pitch can reference.
const (
	AssetStock  = "stock"
	AssetCrypto = "crypto"
)

// Pitch lifecycle states.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Pitch is a published investment call. Exactly one of StockSymbol or
// CryptoSymbol is set; the asset class is resolved from which field is
// populated. Snapshots are append-only and ordered by timestamp.
type Pitch struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	StockSymbol  string          `json:"stock,omitempty" db:"stock_symbol"`
	CryptoSymbol string          `json:"crypto,omitempty" db:"crypto_symbol"`
	Thesis       string          `json:"thesis" db:"thesis"`
	PitchPrice   decimal.Decimal `json:"pitch_price" db:"pitch_price"`
	TargetPrice  decimal.Decimal `json:"target_price,omitempty" db:"target_price"` // zero = not set
	StopLoss     decimal.Decimal `json:"stop_loss,omitempty" db:"stop_loss"`       // zero = not set
	Weight       float64         `json:"weight" db:"weight"`                       // author's tier multiplier at creation
	Likes        int             `json:"likes" db:"likes"`
	Comments     int             `json:"comments" db:"comments"`
	Shares       int             `json:"shares" db:"shares"`
	Saves        int             `json:"saves" db:"saves"`
	Status       string          `json:"status" db:"status"` // "active" or "closed"
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`

	Snapshots []PerformanceSnapshot `json:"snapshots,omitempty"`
	Score     *ContentScore         `json:"score,omitempty"`
}

// AssetClass returns "crypto" when the pitch carries a crypto symbol,
// "stock" otherwise.
func (p *Pitch) AssetClass() string {
	if p.CryptoSymbol != "" {
		return AssetCrypto
	}
	return AssetStock
}

// Symbol returns whichever asset symbol is set.
func (p *Pitch) Symbol() string {
	if p.CryptoSymbol != "" {
		return p.CryptoSymbol
	}
	return p.StockSymbol
}

// HasTarget reports whether a target price was set.
func (p *Pitch) HasTarget() bool { return p.TargetPrice.IsPositive() }

// HasStop reports whether a stop-loss was set.
func (p *Pitch) HasStop() bool { return p.StopLoss.IsPositive() }

// LatestSnapshot returns the most recent performance snapshot, or nil.
func (p *Pitch) LatestSnapshot() *PerformanceSnapshot {
	if len(p.Snapshots) == 0 {
		return nil
	}
	return &p.Snapshots[len(p.Snapshots)-1]
}

// PerformanceSnapshot is an immutable point-in-time observation of a
// pitch's performance. Once appended, snapshots are never modified.
type PerformanceSnapshot struct {
	Timestamp         time.Time       `json:"timestamp" db:"timestamp"`
	CurrentPrice      decimal.Decimal `json:"current_price" db:"current_price"`
	AbsoluteReturn    decimal.Decimal `json:"absolute_return" db:"absolute_return"`
	PercentageReturn  float64         `json:"percentage_return" db:"percentage_return"`
	WeightedReturn    float64         `json:"weighted_return" db:"weighted_return"`
	TargetAchievement *float64        `json:"target_achievement,omitempty" db:"target_achievement"`
}

// UserPerformanceMetrics is a derived view over one user's pitches.
// Recomputed on demand; never persisted as source of truth.
type UserPerformanceMetrics struct {
	UserID            string    `json:"user_id"`
	TotalPitches      int       `json:"total_pitches"`
	SuccessfulPitches int       `json:"successful_pitches"`
	SuccessRate       float64   `json:"success_rate"`
	AverageReturn     float64   `json:"average_return"`
	MonthlyReturns    []float64 `json:"monthly_returns"`
	Pitches           []Pitch   `json:"-"`
}

// CredibilityState is a user's recomputed reputation. TotalScore is
// replaced on every recalculation, never accumulated.
type CredibilityState struct {
	UserID         string             `json:"user_id" db:"user_id"`
	TotalScore     float64            `json:"total_score" db:"total_score"`
	Tier           string             `json:"tier" db:"tier"`
	DetailedScores map[string]float64 `json:"detailed_scores"`
	UpdatedAt      time.Time          `json:"updated_at" db:"updated_at"`
}

// UserKarma is the per-user, per-asset-class karma ledger state. Totals
// only change through karma events; AppliedEvents records event ids that
// have already been applied so replays are no-ops.
type UserKarma struct {
	UserID             string  `json:"user_id" db:"user_id"`
	StockKarma         float64 `json:"stockKarma" db:"stock_karma"`
	CryptoKarma        float64 `json:"cryptoKarma" db:"crypto_karma"`
	TotalStockLikes    int     `json:"totalStockLikes" db:"total_stock_likes"`
	TotalCryptoLikes   int     `json:"totalCryptoLikes" db:"total_crypto_likes"`
	TotalStockPitches  int     `json:"totalStockPitches" db:"total_stock_pitches"`
	TotalCryptoPitches int     `json:"totalCryptoPitches" db:"total_crypto_pitches"`

	AppliedEvents map[string]bool `json:"applied_events,omitempty"`
}

// Karma returns the karma total for the given asset class.
func (k *UserKarma) Karma(assetClass string) float64 {
	if assetClass == AssetCrypto {
		return k.CryptoKarma
	}
	return k.StockKarma
}

// PitchCount returns the pitch counter for the given asset class.
func (k *UserKarma) PitchCount(assetClass string) int {
	if assetClass == AssetCrypto {
		return k.TotalCryptoPitches
	}
	return k.TotalStockPitches
}

// ContentScore is one pitch's ranked score record. Immutable once
// produced; a recalculation supersedes it with a newer CalculatedAt.
type ContentScore struct {
	PitchID              string    `json:"pitch_id" db:"pitch_id"`
	PerformanceScore     float64   `json:"performance_score" db:"performance_score"`
	EngagementScore      float64   `json:"engagement_score" db:"engagement_score"`
	CredibilityScore     float64   `json:"credibility_score" db:"credibility_score"`
	MarketRelevanceScore float64   `json:"market_relevance_score" db:"market_relevance_score"`
	TotalScore           float64   `json:"total_score" db:"total_score"`
	CalculatedAt         time.Time `json:"calculated_at" db:"calculated_at"`
}
