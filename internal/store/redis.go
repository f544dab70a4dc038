package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matador/score-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreatePitch(ctx context.Context, p *model.Pitch) error {
	if err := s.primary.CreatePitch(ctx, p); err != nil {
		return err
	}
	s.cachePitch(ctx, p)
	return nil
}

func (s *CachedStore) UpdatePitchStatus(ctx context.Context, id, status string) error {
	if err := s.primary.UpdatePitchStatus(ctx, id, status); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, pitchKey(id))
	return nil
}

func (s *CachedStore) AppendSnapshot(ctx context.Context, pitchID string, snap model.PerformanceSnapshot) error {
	if err := s.primary.AppendSnapshot(ctx, pitchID, snap); err != nil {
		return err
	}
	s.rdb.Del(ctx, pitchKey(pitchID))
	return nil
}

func (s *CachedStore) UpdatePitchScore(ctx context.Context, pitchID string, score model.ContentScore) error {
	if err := s.primary.UpdatePitchScore(ctx, pitchID, score); err != nil {
		return err
	}
	s.rdb.Del(ctx, pitchKey(pitchID))
	return nil
}

func (s *CachedStore) SaveUserKarma(ctx context.Context, k *model.UserKarma) error {
	if err := s.primary.SaveUserKarma(ctx, k); err != nil {
		return err
	}
	s.rdb.Del(ctx, karmaKey(k.UserID))
	return nil
}

func (s *CachedStore) SaveCredibilityState(ctx context.Context, state *model.CredibilityState) error {
	if err := s.primary.SaveCredibilityState(ctx, state); err != nil {
		return err
	}
	s.rdb.Del(ctx, credibilityKey(state.UserID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPitch(ctx context.Context, id string) (*model.Pitch, error) {
	data, err := s.rdb.Get(ctx, pitchKey(id)).Bytes()
	if err == nil {
		var p model.Pitch
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPitch(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cachePitch(ctx, p)
	return p, nil
}

func (s *CachedStore) GetUserKarma(ctx context.Context, userID string) (*model.UserKarma, error) {
	data, err := s.rdb.Get(ctx, karmaKey(userID)).Bytes()
	if err == nil {
		var k model.UserKarma
		if json.Unmarshal(data, &k) == nil {
			return &k, nil
		}
	}

	k, err := s.primary.GetUserKarma(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(k); err == nil {
		s.rdb.Set(ctx, karmaKey(userID), data, s.ttl)
	}
	return k, nil
}

func (s *CachedStore) GetCredibilityState(ctx context.Context, userID string) (*model.CredibilityState, error) {
	data, err := s.rdb.Get(ctx, credibilityKey(userID)).Bytes()
	if err == nil {
		var st model.CredibilityState
		if json.Unmarshal(data, &st) == nil {
			return &st, nil
		}
	}

	st, err := s.primary.GetCredibilityState(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(st); err == nil {
		s.rdb.Set(ctx, credibilityKey(userID), data, s.ttl)
	}
	return st, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPitchesByUser(ctx context.Context, userID string) ([]model.Pitch, error) {
	return s.primary.ListPitchesByUser(ctx, userID)
}

func (s *CachedStore) ListActivePitches(ctx context.Context) ([]model.Pitch, error) {
	return s.primary.ListActivePitches(ctx)
}

func (s *CachedStore) ListUserKarma(ctx context.Context) ([]model.UserKarma, error) {
	return s.primary.ListUserKarma(ctx)
}

func (s *CachedStore) ListCredibilityStates(ctx context.Context) ([]model.CredibilityState, error) {
	return s.primary.ListCredibilityStates(ctx)
}

// ListScoredPitches is the feed query. Feed pages are cached under a key
// derived from the normalized query so repeated reads of the same page
// skip the primary until a score write expires the TTL.
func (s *CachedStore) ListScoredPitches(ctx context.Context, q FeedQuery) ([]model.Pitch, error) {
	q = q.Normalize()

	key := feedKey(q)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var pitches []model.Pitch
		if json.Unmarshal(data, &pitches) == nil {
			return pitches, nil
		}
	}

	pitches, err := s.primary.ListScoredPitches(ctx, q)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(pitches); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return pitches, nil
}

// --- Cache helpers ---

func (s *CachedStore) cachePitch(ctx context.Context, p *model.Pitch) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, pitchKey(p.ID), data, s.ttl)
	}
}

func pitchKey(id string) string        { return fmt.Sprintf("pitch:%s", id) }
func karmaKey(uid string) string       { return fmt.Sprintf("karma:%s", uid) }
func credibilityKey(uid string) string { return fmt.Sprintf("cred:%s", uid) }

func feedKey(q FeedQuery) string {
	return fmt.Sprintf("feed:%s:%g:%d:%d", q.AssetClass, q.MinScore, q.Page, q.PageSize)
}
