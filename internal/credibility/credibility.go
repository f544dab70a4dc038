// Package credibility maintains per-user reputation scores and the tier
// ladder derived from them.
//
// A user's total score is recomputed from scratch on every update — it is
// a weighted blend of return, success-rate, consistency, and
// risk-management sub-scores, never an accumulating counter. The tier is
// a pure function of the total score: the highest tier whose minimum
// threshold is at or below it. There is no hysteresis or cooldown; users
// move in both directions on every recalculation and no tier is terminal.
package credibility

import (
	"math"
	"sync"
	"time"

	"github.com/matador/score-engine/internal/model"
)

// Tier names, lowest to highest.
const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
	TierDiamond  = "diamond"
)

// Tier is one rung of the badge ladder. MinScore thresholds are totally
// ordered and non-overlapping; Multiplier is applied to new pitches as
// their weight.
type Tier struct {
	Name       string  `json:"name"`
	MinScore   float64 `json:"min_score"`
	Multiplier float64 `json:"multiplier"`
	Color      string  `json:"color"`
}

// tiers is ordered ascending by MinScore.
var tiers = []Tier{
	{Name: TierBronze, MinScore: 0, Multiplier: 1.0, Color: "#CD7F32"},
	{Name: TierSilver, MinScore: 100, Multiplier: 1.2, Color: "#C0C0C0"},
	{Name: TierGold, MinScore: 250, Multiplier: 1.5, Color: "#FFD700"},
	{Name: TierPlatinum, MinScore: 500, Multiplier: 2.0, Color: "#E5E4E2"},
	{Name: TierDiamond, MinScore: 1000, Multiplier: 2.5, Color: "#B9F2FF"},
}

// Weights combine the four credibility sub-scores. Distinct from the
// content-scoring weight table in scorecalc; the two are never conflated.
type Weights struct {
	Return         float64 `json:"return_percentage" yaml:"return"`
	SuccessRate    float64 `json:"success_rate" yaml:"success_rate"`
	Consistency    float64 `json:"consistency" yaml:"consistency"`
	RiskManagement float64 `json:"risk_management" yaml:"risk_management"`
}

// DefaultWeights is the production credibility weight table.
func DefaultWeights() Weights {
	return Weights{
		Return:         0.4,
		SuccessRate:    0.3,
		Consistency:    0.15,
		RiskManagement: 0.15,
	}
}

// NextTierInfo describes the tier above the user's current one.
type NextTierInfo struct {
	NextTier     string  `json:"next_tier"`
	PointsNeeded float64 `json:"points_needed"`
}

// BadgeInfo is the profile-facing badge payload.
type BadgeInfo struct {
	Tier     string        `json:"tier"`
	Color    string        `json:"color"`
	Score    float64       `json:"score"`
	NextTier *NextTierInfo `json:"next_tier"` // nil at the highest tier
}

// TierFor returns the highest tier whose minimum threshold is <= score.
// Thresholds are boundary-inclusive: a score of exactly 100 is silver.
func TierFor(score float64) Tier {
	current := tiers[0]
	for _, t := range tiers {
		if score >= t.MinScore {
			current = t
		}
	}
	return current
}

// TierByName looks up a tier; unknown names fall back to bronze.
func TierByName(name string) Tier {
	for _, t := range tiers {
		if t.Name == name {
			return t
		}
	}
	return tiers[0]
}

// nextTier returns the tier directly above the named one, or false at
// the top of the ladder.
func nextTier(name string) (Tier, bool) {
	for i, t := range tiers {
		if t.Name == name {
			if i+1 < len(tiers) {
				return tiers[i+1], true
			}
			return Tier{}, false
		}
	}
	return Tier{}, false
}

// --- Sub-score formulas ---

// ReturnScore maps an average return percentage onto [0,100]; a 20%
// average return saturates the score.
func ReturnScore(avgReturn float64) float64 {
	return clamp(avgReturn / 20 * 100)
}

// SuccessRateScore is the percentage of pitches whose latest snapshot
// shows a positive return. Zero pitches score 0.
func SuccessRateScore(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return clamp(float64(successful) / float64(total) * 100)
}

// ConsistencyScore penalizes volatile return series: 100 at zero
// standard deviation, 0 at a deviation of 30 points or more. An empty
// series scores 0.
func ConsistencyScore(monthlyReturns []float64) float64 {
	if len(monthlyReturns) == 0 {
		return 0
	}
	return clamp(100 * (1 - stddev(monthlyReturns)/30))
}

// RiskManagementScore rewards setting exits: 50 points scaled by the
// fraction of pitches with a stop-loss plus 50 scaled by the fraction
// with a target price.
func RiskManagementScore(pitches []model.Pitch) float64 {
	if len(pitches) == 0 {
		return 0
	}
	var withStops, withTargets int
	for i := range pitches {
		if pitches[i].HasStop() {
			withStops++
		}
		if pitches[i].HasTarget() {
			withTargets++
		}
	}
	n := float64(len(pitches))
	return clamp(float64(withStops)/n*50 + float64(withTargets)/n*50)
}

// --- System ---

// System holds the live credibility state for every tracked user.
// States are created on first touch and never deleted.
type System struct {
	mu      sync.RWMutex
	weights Weights
	states  map[string]*model.CredibilityState
}

// NewSystem creates a credibility system with the given weight table.
func NewSystem(w Weights) *System {
	return &System{
		weights: w,
		states:  make(map[string]*model.CredibilityState),
	}
}

// Restore hydrates a user's state, typically from the persistent store
// at startup or on a cache miss.
func (s *System) Restore(state *model.CredibilityState) {
	if state == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.states[state.UserID] = &cp
}

// UpdateUserScore recomputes a user's total score and tier from fresh
// performance metrics and returns a copy of the new state.
func (s *System) UpdateUserScore(userID string, m model.UserPerformanceMetrics) model.CredibilityState {
	detailed := map[string]float64{
		"return_percentage": ReturnScore(m.AverageReturn),
		"success_rate":      SuccessRateScore(m.SuccessfulPitches, m.TotalPitches),
		"consistency":       ConsistencyScore(m.MonthlyReturns),
		"risk_management":   RiskManagementScore(m.Pitches),
	}

	total := detailed["return_percentage"]*s.weights.Return +
		detailed["success_rate"]*s.weights.SuccessRate +
		detailed["consistency"]*s.weights.Consistency +
		detailed["risk_management"]*s.weights.RiskManagement

	state := &model.CredibilityState{
		UserID:         userID,
		TotalScore:     total,
		Tier:           TierFor(total).Name,
		DetailedScores: detailed,
		UpdatedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	s.states[userID] = state
	s.mu.Unlock()

	return *state
}

// State returns a copy of the user's current state, if tracked.
func (s *System) State(userID string) (model.CredibilityState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[userID]
	if !ok {
		return model.CredibilityState{}, false
	}
	return *st, true
}

// PitchWeight returns the tier multiplier applied to the user's new
// pitches. Untracked users get the bronze multiplier.
func (s *System) PitchWeight(userID string) float64 {
	st, ok := s.State(userID)
	if !ok {
		return tiers[0].Multiplier
	}
	return TierByName(st.Tier).Multiplier
}

// Badge builds the profile badge payload for a user. Untracked users get
// a fresh bronze badge.
func (s *System) Badge(userID string) BadgeInfo {
	st, ok := s.State(userID)
	if !ok {
		st = model.CredibilityState{UserID: userID, Tier: TierBronze}
	}

	tier := TierByName(st.Tier)
	badge := BadgeInfo{
		Tier:  tier.Name,
		Color: tier.Color,
		Score: st.TotalScore,
	}

	if next, ok := nextTier(tier.Name); ok {
		badge.NextTier = &NextTierInfo{
			NextTier:     next.Name,
			PointsNeeded: math.Max(0, next.MinScore-st.TotalScore),
		}
	}
	return badge
}

func stddev(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		dx := x - mean
		variance += dx * dx
	}
	return math.Sqrt(variance / float64(len(xs)))
}

func clamp(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}
