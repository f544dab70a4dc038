// Package karma maintains the per-user, per-asset-class karma ledger.
//
// Karma is strictly event-driven: every mutation arrives as a tagged
// Event (a pitch outcome or a batch of received likes) carrying a unique
// id. Applying the same event twice is a no-op, which gives the ledger
// at-most-once semantics even when a caller retries after a timeout.
// Totals are additive and never recomputed from history; a pitch outcome
// with a negative return reduces karma — that is intentional.
package karma

import (
	"errors"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/matador/score-engine/internal/model"
)

// Event kinds.
const (
	KindPitchOutcome = "pitch_outcome"
	KindLikeReceived = "like_received"
)

var (
	// ErrInvalidEvent is returned for events missing a user, id, or a
	// recognized kind/asset class.
	ErrInvalidEvent = errors.New("karma: invalid event")
)

// Event is one karma-affecting occurrence. EventID must be unique per
// real-world event; replays with the same id are ignored.
type Event struct {
	EventID          string  `json:"event_id"`
	UserID           string  `json:"user_id"`
	AssetClass       string  `json:"asset_class"` // "stock" or "crypto"
	Kind             string  `json:"kind"`
	ReturnPercentage float64 `json:"return_percentage,omitempty"` // pitch_outcome only
	Likes            int     `json:"likes,omitempty"`
}

// NewPitchOutcome builds a pitch-outcome event with a fresh id.
func NewPitchOutcome(userID, assetClass string, returnPct float64, likes int) Event {
	return Event{
		EventID:          uuid.New().String(),
		UserID:           userID,
		AssetClass:       assetClass,
		Kind:             KindPitchOutcome,
		ReturnPercentage: returnPct,
		Likes:            likes,
	}
}

// NewLikeReceived builds a like-received event with a fresh id.
func NewLikeReceived(userID, assetClass string, likes int) Event {
	return Event{
		EventID:    uuid.New().String(),
		UserID:     userID,
		AssetClass: assetClass,
		Kind:       KindLikeReceived,
		Likes:      likes,
	}
}

// outcomeKarma converts a return percentage into a karma delta. The
// positive side saturates at 100 per event; losses are uncapped.
func outcomeKarma(returnPct float64) float64 {
	return math.Min(100, returnPct/20*100)
}

// System holds every tracked user's ledger.
type System struct {
	mu    sync.RWMutex
	users map[string]*model.UserKarma
}

// NewSystem creates an empty karma system.
func NewSystem() *System {
	return &System{users: make(map[string]*model.UserKarma)}
}

// Restore hydrates a user's ledger from the persistent store.
func (s *System) Restore(k *model.UserKarma) {
	if k == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *k
	if cp.AppliedEvents == nil {
		cp.AppliedEvents = make(map[string]bool)
	} else {
		cp.AppliedEvents = copySet(k.AppliedEvents)
	}
	s.users[k.UserID] = &cp
}

// Apply folds one event into the matching user's ledger and returns a
// copy of the resulting state. The boolean is false when the event id
// was seen before and nothing changed.
func (s *System) Apply(ev Event) (model.UserKarma, bool, error) {
	if ev.EventID == "" || ev.UserID == "" {
		return model.UserKarma{}, false, ErrInvalidEvent
	}
	if ev.AssetClass != model.AssetStock && ev.AssetClass != model.AssetCrypto {
		return model.UserKarma{}, false, ErrInvalidEvent
	}
	if ev.Kind != KindPitchOutcome && ev.Kind != KindLikeReceived {
		return model.UserKarma{}, false, ErrInvalidEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.users[ev.UserID]
	if !ok {
		k = &model.UserKarma{
			UserID:        ev.UserID,
			AppliedEvents: make(map[string]bool),
		}
		s.users[ev.UserID] = k
	}

	if k.AppliedEvents[ev.EventID] {
		return snapshot(k), false, nil
	}

	var change float64
	switch ev.Kind {
	case KindPitchOutcome:
		change = outcomeKarma(ev.ReturnPercentage) + float64(ev.Likes)*5
	case KindLikeReceived:
		change = float64(ev.Likes) * 5
	}

	if ev.AssetClass == model.AssetCrypto {
		k.CryptoKarma += change
		k.TotalCryptoLikes += ev.Likes
		if ev.Kind == KindPitchOutcome {
			k.TotalCryptoPitches++
		}
	} else {
		k.StockKarma += change
		k.TotalStockLikes += ev.Likes
		if ev.Kind == KindPitchOutcome {
			k.TotalStockPitches++
		}
	}

	k.AppliedEvents[ev.EventID] = true
	return snapshot(k), true, nil
}

// UserKarma returns a copy of the user's ledger; unknown users get a
// zero-valued record.
func (s *System) UserKarma(userID string) model.UserKarma {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.users[userID]
	if !ok {
		return model.UserKarma{UserID: userID}
	}
	return snapshot(k)
}

func snapshot(k *model.UserKarma) model.UserKarma {
	cp := *k
	cp.AppliedEvents = copySet(k.AppliedEvents)
	return cp
}

func copySet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for id := range in {
		out[id] = true
	}
	return out
}
