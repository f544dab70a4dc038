package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matador/score-engine/internal/model"
)

func newPitch(id, userID, stock, crypto string, score *model.ContentScore) *model.Pitch {
	return &model.Pitch{
		ID:           id,
		UserID:       userID,
		StockSymbol:  stock,
		CryptoSymbol: crypto,
		Thesis:       "test thesis",
		PitchPrice:   decimal.NewFromInt(100),
		Weight:       1.0,
		Status:       model.StatusActive,
		CreatedAt:    time.Now().UTC(),
		Score:        score,
	}
}

func scoreAt(total float64, at time.Time) *model.ContentScore {
	return &model.ContentScore{TotalScore: total, CalculatedAt: at}
}

func TestMemoryStoreGetPitchNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetPitch(context.Background(), "nope")
	if !errors.Is(err, ErrPitchNotFound) {
		t.Fatalf("expected ErrPitchNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdatePitchScoreStaleWriteSkipped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreatePitch(ctx, newPitch("p1", "u1", "AAPL", "", nil)); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	fresh := model.ContentScore{PitchID: "p1", TotalScore: 80, CalculatedAt: now}
	stale := model.ContentScore{PitchID: "p1", TotalScore: 20, CalculatedAt: now.Add(-time.Minute)}

	if err := s.UpdatePitchScore(ctx, "p1", fresh); err != nil {
		t.Fatal(err)
	}
	// The stale write must be dropped without error.
	if err := s.UpdatePitchScore(ctx, "p1", stale); err != nil {
		t.Fatal(err)
	}

	p, err := s.GetPitch(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Score == nil || p.Score.TotalScore != 80 {
		t.Fatalf("expected fresh score 80 to survive, got %+v", p.Score)
	}

	if err := s.UpdatePitchScore(ctx, "missing", fresh); !errors.Is(err, ErrPitchNotFound) {
		t.Fatalf("expected ErrPitchNotFound for unknown pitch, got %v", err)
	}
}

func TestMemoryStoreListScoredPitches(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	pitches := []*model.Pitch{
		newPitch("a", "u1", "AAPL", "", scoreAt(90, now)),
		newPitch("b", "u1", "", "bitcoin", scoreAt(70, now)),
		newPitch("c", "u2", "TSLA", "", scoreAt(30, now)),
		newPitch("d", "u2", "NVDA", "", nil), // unscored, must never appear
	}
	for _, p := range pitches {
		if err := s.CreatePitch(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	feed, err := s.ListScoredPitches(ctx, FeedQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(feed) != 3 {
		t.Fatalf("expected 3 scored pitches, got %d", len(feed))
	}
	for i := 1; i < len(feed); i++ {
		if feed[i].Score.TotalScore > feed[i-1].Score.TotalScore {
			t.Fatalf("feed not sorted descending at index %d", i)
		}
	}

	feed, err = s.ListScoredPitches(ctx, FeedQuery{MinScore: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(feed) != 2 {
		t.Fatalf("min_score=50: expected 2 pitches, got %d", len(feed))
	}

	feed, err = s.ListScoredPitches(ctx, FeedQuery{AssetClass: model.AssetCrypto})
	if err != nil {
		t.Fatal(err)
	}
	if len(feed) != 1 || feed[0].ID != "b" {
		t.Fatalf("crypto filter: expected just pitch b, got %+v", feed)
	}

	feed, err = s.ListScoredPitches(ctx, FeedQuery{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(feed) != 1 || feed[0].ID != "c" {
		t.Fatalf("page 2: expected just pitch c, got %d items", len(feed))
	}

	feed, err = s.ListScoredPitches(ctx, FeedQuery{Page: 10, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if feed == nil || len(feed) != 0 {
		t.Fatalf("past-end page must be empty non-nil, got %v", feed)
	}
}

func TestMemoryStoreAppendSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreatePitch(ctx, newPitch("p1", "u1", "AAPL", "", nil)); err != nil {
		t.Fatal(err)
	}

	snap := model.PerformanceSnapshot{
		Timestamp:        time.Now().UTC(),
		CurrentPrice:     decimal.NewFromInt(110),
		AbsoluteReturn:   decimal.NewFromInt(10),
		PercentageReturn: 10,
		WeightedReturn:   10,
	}
	if err := s.AppendSnapshot(ctx, "p1", snap); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendSnapshot(ctx, "ghost", snap); !errors.Is(err, ErrPitchNotFound) {
		t.Fatalf("expected ErrPitchNotFound, got %v", err)
	}

	p, err := s.GetPitch(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Snapshots) != 1 || p.Snapshots[0].PercentageReturn != 10 {
		t.Fatalf("snapshot not persisted: %+v", p.Snapshots)
	}

	// Mutating the returned copy must not leak into the store.
	p.Snapshots[0].PercentageReturn = 999
	p2, _ := s.GetPitch(ctx, "p1")
	if p2.Snapshots[0].PercentageReturn != 10 {
		t.Fatal("store returned a shared snapshot slice")
	}
}

func TestMemoryStoreKarmaAndCredibilityRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetUserKarma(ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	k := &model.UserKarma{
		UserID:            "u1",
		StockKarma:        120,
		TotalStockPitches: 3,
		AppliedEvents:     map[string]bool{"ev-1": true},
	}
	if err := s.SaveUserKarma(ctx, k); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetUserKarma(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.StockKarma != 120 || !got.AppliedEvents["ev-1"] {
		t.Fatalf("karma round trip mismatch: %+v", got)
	}

	st := &model.CredibilityState{
		UserID:     "u1",
		TotalScore: 150,
		Tier:       "silver",
		DetailedScores: map[string]float64{
			"return_percentage": 80,
		},
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.SaveCredibilityState(ctx, st); err != nil {
		t.Fatal(err)
	}
	gotSt, err := s.GetCredibilityState(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if gotSt.Tier != "silver" || gotSt.DetailedScores["return_percentage"] != 80 {
		t.Fatalf("credibility round trip mismatch: %+v", gotSt)
	}
}
