// Package scorecalc implements the four bounded sub-score formulas used
// to rank pitches: performance, engagement, credibility, and market
// relevance.
//
// All functions are pure and stateless — safe to call concurrently with
// no synchronization. Prices come in as shopspring/decimal and are
// converted to float64 only for the transcendental math; every score is
// clamped to [0, 100] on the way out. Zero denominators are replaced by
// 1, so extreme inputs produce a large-but-clamped score rather than
// Inf/NaN.
package scorecalc

import (
	"math"

	"github.com/shopspring/decimal"
)

// Weights combine the four sub-scores into a pitch's total score.
// The fields must sum to 1.0.
type Weights struct {
	Performance     float64 `json:"performance_weight" yaml:"performance"`
	Engagement      float64 `json:"engagement_weight" yaml:"engagement"`
	Credibility     float64 `json:"credibility_weight" yaml:"credibility"`
	MarketRelevance float64 `json:"market_relevance_weight" yaml:"market_relevance"`
}

// DefaultWeights is the production weight table for content scoring.
func DefaultWeights() Weights {
	return Weights{
		Performance:     0.4,
		Engagement:      0.3,
		Credibility:     0.2,
		MarketRelevance: 0.1,
	}
}

// Total combines the four sub-scores with the weight table.
func (w Weights) Total(performance, engagement, credibility, marketRelevance float64) float64 {
	return performance*w.Performance +
		engagement*w.Engagement +
		credibility*w.Credibility +
		marketRelevance*w.MarketRelevance
}

// PerformanceScore scores a pitch's raw return against the market and
// recent price momentum:
//
//	returnPct        = (current - pitch) / pitch * 100
//	marketComparison = returnPct - marketReturn
//	score            = 0.5*returnPct + 0.3*marketComparison + 0.2*momentum
//
// priceHistory is the recent close series for the pitched asset, oldest
// first. Fewer than two points → momentum contributes 0.
func PerformanceScore(currentPrice, pitchPrice decimal.Decimal, marketReturn float64, priceHistory []decimal.Decimal) float64 {
	current := currentPrice.InexactFloat64()
	pitch := pitchPrice.InexactFloat64()
	if pitch == 0 {
		pitch = 1
	}

	returnPct := (current - pitch) / pitch * 100
	marketComparison := returnPct - marketReturn
	mom := momentum(priceHistory)

	score := returnPct*0.5 + marketComparison*0.3 + mom*0.2
	return clamp(score)
}

// EngagementScore converts raw engagement counters into hourly rates and
// combines them (likes 0.4, comments 0.3, shares 0.2, saves 0.1), scaled
// by 100. Pitches younger than one hour are rated as one hour old so a
// brand-new pitch cannot divide by zero.
func EngagementScore(likes, comments, shares, saves int, hoursSinceCreation float64) float64 {
	hours := math.Max(1, hoursSinceCreation)

	likeRate := float64(likes) / hours
	commentRate := float64(comments) / hours
	shareRate := float64(shares) / hours
	saveRate := float64(saves) / hours

	score := (likeRate*0.4 + commentRate*0.3 + shareRate*0.2 + saveRate*0.1) * 100
	return clamp(score)
}

// CredibilityScore blends author karma (normalized by /10, capped at
// 100), historical success rate, and posting activity rate.
func CredibilityScore(authorKarma, successRate float64, pitchCount, daysActive int) float64 {
	days := daysActive
	if days < 1 {
		days = 1
	}
	activityRate := float64(pitchCount) / float64(days)
	normalizedKarma := math.Min(100, authorKarma/10)

	score := normalizedKarma*0.4 + successRate*0.4 + activityRate*0.2
	return clamp(score)
}

// MarketRelevance scores how interesting the pitched asset currently is:
// volume relative to average, absolute sector move, and sentiment.
func MarketRelevance(tradingVolume, avgVolume, sectorPerformance, marketSentiment float64) float64 {
	avg := math.Max(1, avgVolume)
	volumeRatio := tradingVolume / avg

	score := (volumeRatio*0.4 + math.Abs(sectorPerformance)*0.3 + marketSentiment*0.3) * 100
	return clamp(score)
}

// momentum is the exponentially weighted average of first differences of
// the price series. Weights are exp of n points evenly spaced on [-1, 0],
// so the most recent difference carries the highest weight.
func momentum(priceHistory []decimal.Decimal) float64 {
	if len(priceHistory) < 2 {
		return 0
	}

	changes := make([]float64, len(priceHistory)-1)
	for i := 1; i < len(priceHistory); i++ {
		changes[i-1] = priceHistory[i].Sub(priceHistory[i-1]).InexactFloat64()
	}

	n := len(changes)
	var weightedSum, weightSum float64
	for i, c := range changes {
		x := -1.0
		if n > 1 {
			x = -1.0 + float64(i)/float64(n-1)
		}
		w := math.Exp(x)
		weightedSum += c * w
		weightSum += w
	}
	return weightedSum / weightSum
}

// clamp bounds a score to [0, 100].
func clamp(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}
