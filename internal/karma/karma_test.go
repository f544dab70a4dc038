package karma

import (
	"errors"
	"testing"

	"github.com/matador/score-engine/internal/model"
)

func TestApply_PitchOutcome_StockKarma(t *testing.T) {
	s := NewSystem()

	// Two sequential 20% stock outcomes: each contributes exactly 100.
	for i := 0; i < 2; i++ {
		_, applied, err := s.Apply(NewPitchOutcome("user1", model.AssetStock, 20, 0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !applied {
			t.Fatalf("event %d should apply", i)
		}
	}

	k := s.UserKarma("user1")
	if k.StockKarma != 200 {
		t.Errorf("expected stock karma 200, got %f", k.StockKarma)
	}
	if k.TotalStockPitches != 2 {
		t.Errorf("expected 2 stock pitches, got %d", k.TotalStockPitches)
	}
	if k.CryptoKarma != 0 || k.TotalCryptoPitches != 0 {
		t.Errorf("crypto ledger must be untouched: %+v", k)
	}
}

func TestApply_ReturnComponentCapsAtHundred(t *testing.T) {
	s := NewSystem()
	s.Apply(NewPitchOutcome("user1", model.AssetCrypto, 500, 0))

	if k := s.UserKarma("user1"); k.CryptoKarma != 100 {
		t.Errorf("return component should cap at 100, got %f", k.CryptoKarma)
	}
}

func TestApply_NegativeReturnReducesKarma(t *testing.T) {
	s := NewSystem()
	s.Apply(NewPitchOutcome("user1", model.AssetStock, 20, 0))
	s.Apply(NewPitchOutcome("user1", model.AssetStock, -40, 0))

	k := s.UserKarma("user1")
	// +100 then -200: negative totals are allowed by design.
	if k.StockKarma != -100 {
		t.Errorf("expected karma -100, got %f", k.StockKarma)
	}
	if k.TotalStockPitches != 2 {
		t.Errorf("pitch counter still increments on losses, got %d", k.TotalStockPitches)
	}
}

func TestApply_OutcomeLikesAddFivePerLike(t *testing.T) {
	s := NewSystem()
	s.Apply(NewPitchOutcome("user1", model.AssetStock, 0, 3))

	k := s.UserKarma("user1")
	if k.StockKarma != 15 {
		t.Errorf("3 likes should add 15 karma, got %f", k.StockKarma)
	}
	if k.TotalStockLikes != 3 {
		t.Errorf("expected 3 likes recorded, got %d", k.TotalStockLikes)
	}
}

func TestApply_LikeReceived_NoPitchIncrement(t *testing.T) {
	s := NewSystem()
	s.Apply(NewLikeReceived("user1", model.AssetCrypto, 4))

	k := s.UserKarma("user1")
	if k.CryptoKarma != 20 {
		t.Errorf("4 likes should add 20 karma, got %f", k.CryptoKarma)
	}
	if k.TotalCryptoLikes != 4 {
		t.Errorf("expected 4 likes, got %d", k.TotalCryptoLikes)
	}
	if k.TotalCryptoPitches != 0 {
		t.Errorf("like events must not bump the pitch counter, got %d", k.TotalCryptoPitches)
	}
}

func TestApply_DuplicateEventIsNoOp(t *testing.T) {
	s := NewSystem()
	ev := NewPitchOutcome("user1", model.AssetStock, 20, 1)

	if _, applied, _ := s.Apply(ev); !applied {
		t.Fatal("first delivery should apply")
	}
	before := s.UserKarma("user1")

	k, applied, err := s.Apply(ev)
	if err != nil {
		t.Fatalf("replay must not error: %v", err)
	}
	if applied {
		t.Error("replay must report not-applied")
	}
	if k.StockKarma != before.StockKarma || k.TotalStockPitches != before.TotalStockPitches {
		t.Errorf("replay changed the ledger: before=%+v after=%+v", before, k)
	}
}

func TestApply_InvalidEvents(t *testing.T) {
	s := NewSystem()
	tests := []Event{
		{},
		{EventID: "e1", UserID: "u", AssetClass: "bonds", Kind: KindPitchOutcome},
		{EventID: "e2", UserID: "u", AssetClass: model.AssetStock, Kind: "mystery"},
		{EventID: "e3", AssetClass: model.AssetStock, Kind: KindPitchOutcome},
	}
	for i, ev := range tests {
		if _, _, err := s.Apply(ev); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("event %d: expected ErrInvalidEvent, got %v", i, err)
		}
	}
}

func TestRestore_PreservesDedup(t *testing.T) {
	s := NewSystem()
	s.Restore(&model.UserKarma{
		UserID:        "user1",
		StockKarma:    50,
		AppliedEvents: map[string]bool{"seen-before": true},
	})

	_, applied, err := s.Apply(Event{
		EventID:    "seen-before",
		UserID:     "user1",
		AssetClass: model.AssetStock,
		Kind:       KindPitchOutcome,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Error("restored event ids must still dedup")
	}
	if k := s.UserKarma("user1"); k.StockKarma != 50 {
		t.Errorf("restored karma changed: %f", k.StockKarma)
	}
}

func TestUserKarma_UnknownUserZeroRecord(t *testing.T) {
	s := NewSystem()
	k := s.UserKarma("ghost")
	if k.UserID != "ghost" || k.StockKarma != 0 || k.CryptoKarma != 0 {
		t.Errorf("unexpected zero record: %+v", k)
	}
}
