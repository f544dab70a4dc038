// Package scoring computes per-pitch content scores and exposes the
// engine's HTTP surface. The scorer composes the four sub-scores from
// live market data, engagement counters, and the karma/credibility
// engines, then persists the result as a single guarded overwrite.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/matador/score-engine/internal/assetdata"
	"github.com/matador/score-engine/internal/karma"
	"github.com/matador/score-engine/internal/metrics"
	"github.com/matador/score-engine/internal/model"
	"github.com/matador/score-engine/internal/scorecalc"
	"github.com/matador/score-engine/internal/store"
	"github.com/matador/score-engine/internal/tracker"
)

// defaultHistoryDays is the lookback window for momentum calculation.
const defaultHistoryDays = 30

// Scorer orchestrates score computation for pitches.
type Scorer struct {
	store       store.Store
	providers   assetdata.Providers
	karma       *karma.System
	tracker     *tracker.Tracker
	weights     scorecalc.Weights
	historyDays int
	batchLimit  int64
	hub         *WSHub // optional, nil disables broadcasts
}

// NewScorer creates a scorer. historyDays is the momentum lookback
// window; batchLimit caps concurrent provider lookups during a full
// rescore. Values below 1 take the defaults.
func NewScorer(st store.Store, providers assetdata.Providers, k *karma.System, tr *tracker.Tracker, w scorecalc.Weights, historyDays, batchLimit int, hub *WSHub) *Scorer {
	if historyDays < 1 {
		historyDays = defaultHistoryDays
	}
	if batchLimit < 1 {
		batchLimit = 4
	}
	return &Scorer{
		store:       st,
		providers:   providers,
		karma:       k,
		tracker:     tr,
		weights:     w,
		historyDays: historyDays,
		batchLimit:  int64(batchLimit),
		hub:         hub,
	}
}

// ScorePitch computes and persists the content score for one pitch.
//
// The current quote is required: a provider failure there surfaces as an
// error with no score written. Price history and the benchmark return
// are best-effort — when unavailable the momentum and market-comparison
// components fall back to neutral inputs.
func (s *Scorer) ScorePitch(ctx context.Context, pitchID string) (*model.ContentScore, error) {
	start := time.Now()

	pitch, err := s.store.GetPitch(ctx, pitchID)
	if err != nil {
		return nil, err
	}
	class := pitch.AssetClass()
	provider := s.providers.ForClass(class)

	info, err := provider.AssetInfo(ctx, pitch.Symbol())
	if err != nil {
		metrics.ScoreFailures.WithLabelValues("provider").Inc()
		return nil, fmt.Errorf("asset info for %s: %w", pitch.Symbol(), err)
	}

	history, err := provider.PriceHistory(ctx, pitch.Symbol(), s.historyDays)
	if err != nil {
		slog.Warn("price history unavailable, momentum neutral",
			"pitch_id", pitchID, "symbol", pitch.Symbol(), "err", err)
		history = nil
	}

	marketReturn, err := provider.MarketReturn(ctx, pitch.CreatedAt)
	if err != nil {
		slog.Warn("benchmark return unavailable, market comparison neutral",
			"pitch_id", pitchID, "class", class, "err", err)
		marketReturn = 0
	}

	perf := scorecalc.PerformanceScore(info.CurrentPrice, pitch.PitchPrice, marketReturn, history)

	hours := time.Since(pitch.CreatedAt).Hours()
	engagement := scorecalc.EngagementScore(pitch.Likes, pitch.Comments, pitch.Shares, pitch.Saves, hours)

	cred, err := s.credibilityScore(ctx, pitch, class)
	if err != nil {
		return nil, err
	}

	market := scorecalc.MarketRelevance(info.TradingVolume, info.AverageVolume, info.SectorPerformance, info.MarketSentiment)

	score := model.ContentScore{
		PitchID:              pitch.ID,
		PerformanceScore:     perf,
		EngagementScore:      engagement,
		CredibilityScore:     cred,
		MarketRelevanceScore: market,
		TotalScore:           s.weights.Total(perf, engagement, cred, market),
		CalculatedAt:         time.Now().UTC(),
	}

	if err := s.store.UpdatePitchScore(ctx, pitch.ID, score); err != nil {
		return nil, fmt.Errorf("persist score for %s: %w", pitch.ID, err)
	}

	metrics.ScoresCalculated.WithLabelValues(class).Inc()
	metrics.ScoreLatency.WithLabelValues(class).Observe(time.Since(start).Seconds())

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:       "score_updated",
			PitchID:    pitch.ID,
			UserID:     pitch.UserID,
			Symbol:     pitch.Symbol(),
			AssetClass: class,
			TotalScore: score.TotalScore,
		})
	}

	slog.Info("pitch scored",
		"pitch_id", pitch.ID,
		"symbol", pitch.Symbol(),
		"total", score.TotalScore,
		"performance", perf,
		"engagement", engagement,
		"credibility", cred,
		"market_relevance", market,
	)
	return &score, nil
}

// credibilityScore derives the author-credibility sub-score inputs from
// the karma ledger (class-scoped) and the user's aggregate metrics.
func (s *Scorer) credibilityScore(ctx context.Context, pitch *model.Pitch, class string) (float64, error) {
	rec := s.karma.UserKarma(pitch.UserID)
	authorKarma := rec.Karma(class)
	pitchCount := rec.PitchCount(class)

	m, err := s.tracker.UserMetrics(ctx, pitch.UserID)
	if err != nil {
		return 0, err
	}

	return scorecalc.CredibilityScore(authorKarma, m.SuccessRate, pitchCount, daysActive(m.Pitches)), nil
}

// daysActive measures the span since the user's earliest pitch.
func daysActive(pitches []model.Pitch) int {
	if len(pitches) == 0 {
		return 0
	}
	earliest := pitches[0].CreatedAt
	for _, p := range pitches[1:] {
		if p.CreatedAt.Before(earliest) {
			earliest = p.CreatedAt
		}
	}
	return int(time.Since(earliest).Hours() / 24)
}

// BatchResult summarizes a feed-wide rescore.
type BatchResult struct {
	Scored int `json:"scored"`
	Failed int `json:"failed"`
}

// RescoreAll recalculates scores for every active pitch. Items fail
// independently: one pitch's provider error is logged and counted but
// never aborts its siblings.
func (s *Scorer) RescoreAll(ctx context.Context) (BatchResult, error) {
	pitches, err := s.store.ListActivePitches(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	sem := semaphore.NewWeighted(s.batchLimit)
	var wg sync.WaitGroup
	var scored, failed atomic.Int64

	for _, p := range pitches {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled; report what completed so far.
			break
		}
		wg.Add(1)
		go func(pitchID string) {
			defer wg.Done()
			defer sem.Release(1)

			if _, err := s.ScorePitch(ctx, pitchID); err != nil {
				failed.Add(1)
				metrics.ScoreFailures.WithLabelValues("batch_item").Inc()
				slog.Error("batch rescore item failed", "pitch_id", pitchID, "err", err)
				return
			}
			scored.Add(1)
		}(p.ID)
	}
	wg.Wait()

	result := BatchResult{Scored: int(scored.Load()), Failed: int(failed.Load())}
	slog.Info("batch rescore complete", "scored", result.Scored, "failed", result.Failed, "total", len(pitches))
	return result, nil
}
