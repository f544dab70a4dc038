// Package store defines the persistence interface for the score engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/matador/score-engine/internal/model"
)

var (
	// ErrPitchNotFound is returned for reads and updates against an
	// unknown pitch id. Never retried silently.
	ErrPitchNotFound = errors.New("store: pitch not found")

	// ErrUserNotFound is returned when a user has no persisted karma or
	// credibility record.
	ErrUserNotFound = errors.New("store: user not found")

	// ErrDuplicatePitch is returned when a pitch id already exists.
	ErrDuplicatePitch = errors.New("store: pitch already exists")
)

// FeedQuery selects scored pitches for the feed. Page is 1-based.
type FeedQuery struct {
	Page       int
	PageSize   int
	MinScore   float64
	AssetClass string // "stock", "crypto", or "" for all
}

// Store is the persistence interface. Pitch ids and user ids are opaque
// strings chosen by the caller. Score writes are idempotent whole-record
// replacements guarded by calculation timestamp — the last writer wins
// and a stale write is silently skipped, never an error.
type Store interface {
	// --- Pitches ---

	// CreatePitch persists a new pitch.
	CreatePitch(ctx context.Context, p *model.Pitch) error

	// GetPitch retrieves a pitch with its snapshots and latest score.
	GetPitch(ctx context.Context, id string) (*model.Pitch, error)

	// ListPitchesByUser returns all of a user's pitches with snapshots.
	ListPitchesByUser(ctx context.Context, userID string) ([]model.Pitch, error)

	// ListActivePitches returns every pitch still in "active" status.
	ListActivePitches(ctx context.Context) ([]model.Pitch, error)

	// UpdatePitchStatus moves a pitch between "active" and "closed".
	UpdatePitchStatus(ctx context.Context, id, status string) error

	// AppendSnapshot appends an immutable performance snapshot.
	AppendSnapshot(ctx context.Context, pitchID string, snap model.PerformanceSnapshot) error

	// UpdatePitchScore replaces the pitch's score record unless a newer
	// one is already present (compared by CalculatedAt).
	UpdatePitchScore(ctx context.Context, pitchID string, score model.ContentScore) error

	// ListScoredPitches returns scored pitches ordered by total score
	// descending. Tie order is unspecified.
	ListScoredPitches(ctx context.Context, q FeedQuery) ([]model.Pitch, error)

	// --- Karma ---

	// GetUserKarma loads a user's karma ledger.
	GetUserKarma(ctx context.Context, userID string) (*model.UserKarma, error)

	// SaveUserKarma upserts a user's karma ledger, including the applied
	// event-id set.
	SaveUserKarma(ctx context.Context, k *model.UserKarma) error

	// ListUserKarma returns every persisted karma ledger. Used to
	// hydrate the in-memory karma engine at startup.
	ListUserKarma(ctx context.Context) ([]model.UserKarma, error)

	// --- Credibility ---

	// GetCredibilityState loads a user's credibility state.
	GetCredibilityState(ctx context.Context, userID string) (*model.CredibilityState, error)

	// SaveCredibilityState upserts a user's credibility state.
	SaveCredibilityState(ctx context.Context, state *model.CredibilityState) error

	// ListCredibilityStates returns every persisted credibility state.
	// Used to hydrate the in-memory credibility engine at startup.
	ListCredibilityStates(ctx context.Context) ([]model.CredibilityState, error)
}

// Normalize applies feed-query defaults: page 1, page size 20, capped
// at 100.
func (q FeedQuery) Normalize() FeedQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
	return q
}
