package store

import (
	"context"
	"sort"
	"sync"

	"github.com/matador/score-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	pitches     map[string]*model.Pitch
	karma       map[string]*model.UserKarma
	credibility map[string]*model.CredibilityState
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pitches:     make(map[string]*model.Pitch),
		karma:       make(map[string]*model.UserKarma),
		credibility: make(map[string]*model.CredibilityState),
	}
}

func (s *MemoryStore) CreatePitch(_ context.Context, p *model.Pitch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pitches[p.ID]; exists {
		return ErrDuplicatePitch
	}
	s.pitches[p.ID] = copyPitch(p)
	return nil
}

func (s *MemoryStore) GetPitch(_ context.Context, id string) (*model.Pitch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pitches[id]
	if !ok {
		return nil, ErrPitchNotFound
	}
	return copyPitch(p), nil
}

func (s *MemoryStore) ListPitchesByUser(_ context.Context, userID string) ([]model.Pitch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Pitch
	for _, p := range s.pitches {
		if p.UserID == userID {
			result = append(result, *copyPitch(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) ListActivePitches(_ context.Context) ([]model.Pitch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Pitch
	for _, p := range s.pitches {
		if p.Status == model.StatusActive {
			result = append(result, *copyPitch(p))
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdatePitchStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pitches[id]
	if !ok {
		return ErrPitchNotFound
	}
	p.Status = status
	return nil
}

func (s *MemoryStore) AppendSnapshot(_ context.Context, pitchID string, snap model.PerformanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pitches[pitchID]
	if !ok {
		return ErrPitchNotFound
	}
	p.Snapshots = append(p.Snapshots, snap)
	return nil
}

// UpdatePitchScore is a guarded overwrite: a score older than the one
// already stored is dropped without error (last writer wins).
func (s *MemoryStore) UpdatePitchScore(_ context.Context, pitchID string, score model.ContentScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pitches[pitchID]
	if !ok {
		return ErrPitchNotFound
	}
	if p.Score != nil && p.Score.CalculatedAt.After(score.CalculatedAt) {
		return nil
	}
	cp := score
	p.Score = &cp
	return nil
}

func (s *MemoryStore) ListScoredPitches(_ context.Context, q FeedQuery) ([]model.Pitch, error) {
	q = q.Normalize()

	s.mu.RLock()
	var matched []model.Pitch
	for _, p := range s.pitches {
		if p.Score == nil || p.Score.TotalScore < q.MinScore {
			continue
		}
		if q.AssetClass != "" && p.AssetClass() != q.AssetClass {
			continue
		}
		matched = append(matched, *copyPitch(p))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Score.TotalScore > matched[j].Score.TotalScore
	})

	start := (q.Page - 1) * q.PageSize
	if start >= len(matched) {
		return []model.Pitch{}, nil
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (s *MemoryStore) GetUserKarma(_ context.Context, userID string) (*model.UserKarma, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.karma[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyKarma(k), nil
}

func (s *MemoryStore) SaveUserKarma(_ context.Context, k *model.UserKarma) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.karma[k.UserID] = copyKarma(k)
	return nil
}

func (s *MemoryStore) ListUserKarma(_ context.Context) ([]model.UserKarma, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledgers := make([]model.UserKarma, 0, len(s.karma))
	for _, k := range s.karma {
		ledgers = append(ledgers, *copyKarma(k))
	}
	return ledgers, nil
}

func (s *MemoryStore) GetCredibilityState(_ context.Context, userID string) (*model.CredibilityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.credibility[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) SaveCredibilityState(_ context.Context, state *model.CredibilityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *state
	s.credibility[state.UserID] = &cp
	return nil
}

func (s *MemoryStore) ListCredibilityStates(_ context.Context) ([]model.CredibilityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]model.CredibilityState, 0, len(s.credibility))
	for _, st := range s.credibility {
		states = append(states, *st)
	}
	return states, nil
}

// --- Copy helpers (avoid aliasing internal state) ---

func copyPitch(p *model.Pitch) *model.Pitch {
	cp := *p
	if p.Snapshots != nil {
		cp.Snapshots = make([]model.PerformanceSnapshot, len(p.Snapshots))
		copy(cp.Snapshots, p.Snapshots)
	}
	if p.Score != nil {
		sc := *p.Score
		cp.Score = &sc
	}
	return &cp
}

func copyKarma(k *model.UserKarma) *model.UserKarma {
	cp := *k
	if k.AppliedEvents != nil {
		cp.AppliedEvents = make(map[string]bool, len(k.AppliedEvents))
		for id := range k.AppliedEvents {
			cp.AppliedEvents[id] = true
		}
	}
	return &cp
}
