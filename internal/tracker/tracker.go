// Package tracker owns the pitch lifecycle: creation, performance
// snapshots, closing, and the derived per-user performance metrics that
// feed credibility recalculation.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matador/score-engine/internal/credibility"
	"github.com/matador/score-engine/internal/karma"
	"github.com/matador/score-engine/internal/model"
	"github.com/matador/score-engine/internal/store"
)

var (
	// ErrInvalidPitch is returned when pitch creation input fails validation.
	ErrInvalidPitch = errors.New("tracker: invalid pitch")

	// ErrPitchClosed is returned when an operation requires an active pitch.
	ErrPitchClosed = errors.New("tracker: pitch already closed")
)

// Tracker coordinates pitch state with the credibility and karma engines.
// Every snapshot triggers a full credibility recalculation for the owning
// user; closing a pitch additionally settles a karma event.
type Tracker struct {
	store store.Store
	cred  *credibility.System
	karma *karma.System
}

// New creates a pitch tracker.
func New(st store.Store, cred *credibility.System, k *karma.System) *Tracker {
	return &Tracker{store: st, cred: cred, karma: k}
}

// CreatePitchInput is the validated input for CreatePitch. Exactly one
// of StockSymbol/CryptoSymbol must be set.
type CreatePitchInput struct {
	UserID       string
	StockSymbol  string
	CryptoSymbol string
	Thesis       string
	PitchPrice   decimal.Decimal
	TargetPrice  decimal.Decimal
	StopLoss     decimal.Decimal
}

func (in CreatePitchInput) validate() error {
	if in.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidPitch)
	}
	if (in.StockSymbol == "") == (in.CryptoSymbol == "") {
		return fmt.Errorf("%w: exactly one of stock or crypto symbol is required", ErrInvalidPitch)
	}
	if !in.PitchPrice.IsPositive() {
		return fmt.Errorf("%w: pitch_price must be positive", ErrInvalidPitch)
	}
	if !in.TargetPrice.IsZero() && !in.TargetPrice.IsPositive() {
		return fmt.Errorf("%w: target_price must be positive when set", ErrInvalidPitch)
	}
	if !in.StopLoss.IsZero() && !in.StopLoss.IsPositive() {
		return fmt.Errorf("%w: stop_loss must be positive when set", ErrInvalidPitch)
	}
	if in.TargetPrice.IsPositive() && in.TargetPrice.Equal(in.PitchPrice) {
		return fmt.Errorf("%w: target_price must differ from pitch_price", ErrInvalidPitch)
	}
	return nil
}

// CreatePitch allocates a new active pitch. The pitch weight is the
// author's current credibility multiplier, captured at creation time.
func (t *Tracker) CreatePitch(ctx context.Context, in CreatePitchInput) (*model.Pitch, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	pitch := &model.Pitch{
		ID:           uuid.New().String(),
		UserID:       in.UserID,
		StockSymbol:  in.StockSymbol,
		CryptoSymbol: in.CryptoSymbol,
		Thesis:       in.Thesis,
		PitchPrice:   in.PitchPrice,
		TargetPrice:  in.TargetPrice,
		StopLoss:     in.StopLoss,
		Weight:       t.cred.PitchWeight(in.UserID),
		Status:       model.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	if err := t.store.CreatePitch(ctx, pitch); err != nil {
		return nil, err
	}

	slog.Info("pitch created",
		"pitch_id", pitch.ID,
		"user", pitch.UserID,
		"symbol", pitch.Symbol(),
		"class", pitch.AssetClass(),
		"weight", pitch.Weight,
	)
	return pitch, nil
}

// RecordPerformance appends a performance snapshot at the given price,
// then recalculates the owning user's credibility from fresh metrics.
func (t *Tracker) RecordPerformance(ctx context.Context, pitchID string, currentPrice decimal.Decimal) (model.PerformanceSnapshot, error) {
	pitch, err := t.store.GetPitch(ctx, pitchID)
	if err != nil {
		return model.PerformanceSnapshot{}, err
	}

	snap := buildSnapshot(pitch, currentPrice)
	if err := t.store.AppendSnapshot(ctx, pitchID, snap); err != nil {
		return model.PerformanceSnapshot{}, err
	}

	if err := t.refreshCredibility(ctx, pitch.UserID); err != nil {
		return model.PerformanceSnapshot{}, err
	}
	return snap, nil
}

// ClosePitch records a final snapshot at the given price, transitions
// the pitch to closed, and settles the author's karma for the outcome.
func (t *Tracker) ClosePitch(ctx context.Context, pitchID string, finalPrice decimal.Decimal) (*model.Pitch, error) {
	pitch, err := t.store.GetPitch(ctx, pitchID)
	if err != nil {
		return nil, err
	}
	if pitch.Status == model.StatusClosed {
		return nil, ErrPitchClosed
	}

	snap := buildSnapshot(pitch, finalPrice)
	if err := t.store.AppendSnapshot(ctx, pitchID, snap); err != nil {
		return nil, err
	}
	if err := t.store.UpdatePitchStatus(ctx, pitchID, model.StatusClosed); err != nil {
		return nil, err
	}

	ev := karma.NewPitchOutcome(pitch.UserID, pitch.AssetClass(), snap.PercentageReturn, pitch.Likes)
	record, applied, err := t.karma.Apply(ev)
	if err != nil {
		return nil, err
	}
	if applied {
		if err := t.store.SaveUserKarma(ctx, &record); err != nil {
			return nil, err
		}
	}

	if err := t.refreshCredibility(ctx, pitch.UserID); err != nil {
		return nil, err
	}

	slog.Info("pitch closed",
		"pitch_id", pitchID,
		"user", pitch.UserID,
		"return_pct", snap.PercentageReturn,
	)

	return t.store.GetPitch(ctx, pitchID)
}

// UserMetrics recomputes a user's performance metrics from scratch.
// It is a derived view over the pitch set, never cached.
func (t *Tracker) UserMetrics(ctx context.Context, userID string) (*model.UserPerformanceMetrics, error) {
	pitches, err := t.store.ListPitchesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	m := ComputeMetrics(userID, pitches)
	return &m, nil
}

// ComputeMetrics aggregates metrics over a user's pitches: success is
// judged by the latest snapshot's return, the average return is weighted
// by each pitch's credibility weight, and the returns sequence is every
// snapshot's percentage return in order.
func ComputeMetrics(userID string, pitches []model.Pitch) model.UserPerformanceMetrics {
	m := model.UserPerformanceMetrics{
		UserID:         userID,
		TotalPitches:   len(pitches),
		MonthlyReturns: []float64{},
		Pitches:        pitches,
	}
	if len(pitches) == 0 {
		return m
	}

	var totalWeightedReturn, totalWeight float64
	for _, p := range pitches {
		for _, snap := range p.Snapshots {
			m.MonthlyReturns = append(m.MonthlyReturns, snap.PercentageReturn)
		}

		latest := p.LatestSnapshot()
		if latest == nil {
			continue
		}
		if latest.PercentageReturn > 0 {
			m.SuccessfulPitches++
		}
		totalWeightedReturn += latest.PercentageReturn * p.Weight
		totalWeight += p.Weight
	}

	m.SuccessRate = float64(m.SuccessfulPitches) / float64(m.TotalPitches) * 100
	if totalWeight > 0 {
		m.AverageReturn = totalWeightedReturn / totalWeight
	}
	return m
}

func (t *Tracker) refreshCredibility(ctx context.Context, userID string) error {
	metrics, err := t.UserMetrics(ctx, userID)
	if err != nil {
		return err
	}
	state := t.cred.UpdateUserScore(userID, *metrics)
	return t.store.SaveCredibilityState(ctx, &state)
}

func buildSnapshot(p *model.Pitch, currentPrice decimal.Decimal) model.PerformanceSnapshot {
	abs := currentPrice.Sub(p.PitchPrice)

	var pct float64
	if p.PitchPrice.IsPositive() {
		pct, _ = abs.Div(p.PitchPrice).Float64()
		pct *= 100
	}

	snap := model.PerformanceSnapshot{
		Timestamp:        time.Now().UTC(),
		CurrentPrice:     currentPrice,
		AbsoluteReturn:   abs,
		PercentageReturn: pct,
		WeightedReturn:   pct * p.Weight,
	}

	if p.HasTarget() && !p.TargetPrice.Equal(p.PitchPrice) {
		ach, _ := abs.Div(p.TargetPrice.Sub(p.PitchPrice)).Float64()
		ach *= 100
		snap.TargetAchievement = &ach
	}
	return snap
}
