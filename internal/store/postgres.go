package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/matador/score-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All prices are stored as NUMERIC for exact decimal precision; scores
// and return percentages are DOUBLE PRECISION.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const pitchColumns = `id, user_id, stock_symbol, crypto_symbol, thesis,
	pitch_price::TEXT, COALESCE(target_price, 0)::TEXT, COALESCE(stop_loss, 0)::TEXT,
	weight, likes, comments, shares, saves, status, created_at,
	performance_score, engagement_score, credibility_score,
	market_relevance_score, total_score, calculated_at`

func (s *PostgresStore) CreatePitch(ctx context.Context, p *model.Pitch) error {
	var target, stop interface{}
	if p.HasTarget() {
		target = p.TargetPrice.String()
	}
	if p.HasStop() {
		stop = p.StopLoss.String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pitches (id, user_id, stock_symbol, crypto_symbol, thesis,
		    pitch_price, target_price, stop_loss, weight,
		    likes, comments, shares, saves, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9,
		    $10, $11, $12, $13, $14, $15)`,
		p.ID, p.UserID, p.StockSymbol, p.CryptoSymbol, p.Thesis,
		p.PitchPrice.String(), target, stop, p.Weight,
		p.Likes, p.Comments, p.Shares, p.Saves, p.Status, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create pitch %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetPitch(ctx context.Context, id string) (*model.Pitch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pitchColumns+` FROM pitches WHERE id = $1`, id)

	p, err := scanPitch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPitchNotFound
		}
		return nil, fmt.Errorf("get pitch %s: %w", id, err)
	}

	snaps, err := s.snapshotsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p.Snapshots = snaps[id]
	return p, nil
}

func (s *PostgresStore) ListPitchesByUser(ctx context.Context, userID string) ([]model.Pitch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pitchColumns+` FROM pitches WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pitches, err := scanPitches(rows)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(pitches))
	for i := range pitches {
		ids[i] = pitches[i].ID
	}
	snaps, err := s.snapshotsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range pitches {
		pitches[i].Snapshots = snaps[pitches[i].ID]
	}
	return pitches, nil
}

func (s *PostgresStore) ListActivePitches(ctx context.Context) ([]model.Pitch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pitchColumns+` FROM pitches WHERE status = $1 ORDER BY created_at`,
		model.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPitches(rows)
}

func (s *PostgresStore) UpdatePitchStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pitches SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPitchNotFound
	}
	return nil
}

func (s *PostgresStore) AppendSnapshot(ctx context.Context, pitchID string, snap model.PerformanceSnapshot) error {
	tag, err := s.pool.Exec(ctx, `SELECT 1 FROM pitches WHERE id = $1`, pitchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPitchNotFound
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pitch_snapshots (pitch_id, timestamp, current_price,
		    absolute_return, percentage_return, weighted_return, target_achievement)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7)`,
		pitchID, snap.Timestamp, snap.CurrentPrice.String(),
		snap.AbsoluteReturn.String(), snap.PercentageReturn,
		snap.WeightedReturn, snap.TargetAchievement,
	)
	return err
}

// UpdatePitchScore writes the score fields only when the incoming record
// is at least as new as the stored one. A stale write affects zero rows
// and is dropped silently — last writer wins.
func (s *PostgresStore) UpdatePitchScore(ctx context.Context, pitchID string, score model.ContentScore) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pitches
		 SET performance_score = $2, engagement_score = $3,
		     credibility_score = $4, market_relevance_score = $5,
		     total_score = $6, calculated_at = $7
		 WHERE id = $1 AND (calculated_at IS NULL OR calculated_at <= $7)`,
		pitchID, score.PerformanceScore, score.EngagementScore,
		score.CredibilityScore, score.MarketRelevanceScore,
		score.TotalScore, score.CalculatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the pitch is unknown or a newer score is in place.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM pitches WHERE id = $1)`, pitchID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrPitchNotFound
		}
	}
	return nil
}

func (s *PostgresStore) ListScoredPitches(ctx context.Context, q FeedQuery) ([]model.Pitch, error) {
	q = q.Normalize()

	query := `SELECT ` + pitchColumns + ` FROM pitches
		 WHERE total_score IS NOT NULL AND total_score >= $1`
	args := []interface{}{q.MinScore}

	switch q.AssetClass {
	case model.AssetCrypto:
		query += ` AND crypto_symbol <> ''`
	case model.AssetStock:
		query += ` AND crypto_symbol = ''`
	}

	query += ` ORDER BY total_score DESC LIMIT $2 OFFSET $3`
	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPitches(rows)
}

func (s *PostgresStore) GetUserKarma(ctx context.Context, userID string) (*model.UserKarma, error) {
	var k model.UserKarma
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, stock_karma, crypto_karma,
		        total_stock_likes, total_crypto_likes,
		        total_stock_pitches, total_crypto_pitches
		 FROM user_karma WHERE user_id = $1`, userID).
		Scan(&k.UserID, &k.StockKarma, &k.CryptoKarma,
			&k.TotalStockLikes, &k.TotalCryptoLikes,
			&k.TotalStockPitches, &k.TotalCryptoPitches)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get karma %s: %w", userID, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT event_id FROM karma_events WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	k.AppliedEvents = make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		k.AppliedEvents[id] = true
	}
	return &k, rows.Err()
}

func (s *PostgresStore) SaveUserKarma(ctx context.Context, k *model.UserKarma) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_karma (user_id, stock_karma, crypto_karma,
		    total_stock_likes, total_crypto_likes,
		    total_stock_pitches, total_crypto_pitches)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
		    stock_karma = EXCLUDED.stock_karma,
		    crypto_karma = EXCLUDED.crypto_karma,
		    total_stock_likes = EXCLUDED.total_stock_likes,
		    total_crypto_likes = EXCLUDED.total_crypto_likes,
		    total_stock_pitches = EXCLUDED.total_stock_pitches,
		    total_crypto_pitches = EXCLUDED.total_crypto_pitches`,
		k.UserID, k.StockKarma, k.CryptoKarma,
		k.TotalStockLikes, k.TotalCryptoLikes,
		k.TotalStockPitches, k.TotalCryptoPitches,
	)
	if err != nil {
		return fmt.Errorf("save karma %s: %w", k.UserID, err)
	}

	for eventID := range k.AppliedEvents {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO karma_events (user_id, event_id)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			k.UserID, eventID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ListUserKarma(ctx context.Context) ([]model.UserKarma, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT k.user_id, k.stock_karma, k.crypto_karma,
		        k.total_stock_likes, k.total_crypto_likes,
		        k.total_stock_pitches, k.total_crypto_pitches,
		        COALESCE(array_agg(e.event_id) FILTER (WHERE e.event_id IS NOT NULL), '{}')
		 FROM user_karma k
		 LEFT JOIN karma_events e ON e.user_id = k.user_id
		 GROUP BY k.user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ledgers []model.UserKarma
	for rows.Next() {
		var k model.UserKarma
		var eventIDs []string
		if err := rows.Scan(&k.UserID, &k.StockKarma, &k.CryptoKarma,
			&k.TotalStockLikes, &k.TotalCryptoLikes,
			&k.TotalStockPitches, &k.TotalCryptoPitches, &eventIDs); err != nil {
			return nil, err
		}
		k.AppliedEvents = make(map[string]bool, len(eventIDs))
		for _, id := range eventIDs {
			k.AppliedEvents[id] = true
		}
		ledgers = append(ledgers, k)
	}
	return ledgers, rows.Err()
}

func (s *PostgresStore) GetCredibilityState(ctx context.Context, userID string) (*model.CredibilityState, error) {
	var st model.CredibilityState
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, total_score, tier, detailed_scores, updated_at
		 FROM credibility_states WHERE user_id = $1`, userID).
		Scan(&st.UserID, &st.TotalScore, &st.Tier, &st.DetailedScores, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get credibility %s: %w", userID, err)
	}
	return &st, nil
}

func (s *PostgresStore) SaveCredibilityState(ctx context.Context, state *model.CredibilityState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credibility_states (user_id, total_score, tier, detailed_scores, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
		    total_score = EXCLUDED.total_score,
		    tier = EXCLUDED.tier,
		    detailed_scores = EXCLUDED.detailed_scores,
		    updated_at = EXCLUDED.updated_at`,
		state.UserID, state.TotalScore, state.Tier, state.DetailedScores, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save credibility %s: %w", state.UserID, err)
	}
	return nil
}

func (s *PostgresStore) ListCredibilityStates(ctx context.Context) ([]model.CredibilityState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, total_score, tier, detailed_scores, updated_at
		 FROM credibility_states`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []model.CredibilityState
	for rows.Next() {
		var st model.CredibilityState
		if err := rows.Scan(&st.UserID, &st.TotalScore, &st.Tier, &st.DetailedScores, &st.UpdatedAt); err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// snapshotsFor loads snapshots for the given pitch ids, keyed by pitch.
func (s *PostgresStore) snapshotsFor(ctx context.Context, pitchIDs []string) (map[string][]model.PerformanceSnapshot, error) {
	result := make(map[string][]model.PerformanceSnapshot)
	if len(pitchIDs) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT pitch_id, timestamp, current_price::TEXT, absolute_return::TEXT,
		        percentage_return, weighted_return, target_achievement
		 FROM pitch_snapshots WHERE pitch_id = ANY($1) ORDER BY timestamp`, pitchIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var pitchID, priceS, absS string
		var snap model.PerformanceSnapshot
		if err := rows.Scan(&pitchID, &snap.Timestamp, &priceS, &absS,
			&snap.PercentageReturn, &snap.WeightedReturn, &snap.TargetAchievement); err != nil {
			return nil, err
		}
		snap.CurrentPrice, _ = decimal.NewFromString(priceS)
		snap.AbsoluteReturn, _ = decimal.NewFromString(absS)
		result[pitchID] = append(result[pitchID], snap)
	}
	return result, rows.Err()
}

// pgxRow abstracts pgx.Row / pgx.Rows for shared scanning.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanPitch(row pgxRow) (*model.Pitch, error) {
	var p model.Pitch
	var priceS, targetS, stopS string
	var perf, eng, cred, market, total *float64
	var calculatedAt *time.Time

	if err := row.Scan(&p.ID, &p.UserID, &p.StockSymbol, &p.CryptoSymbol, &p.Thesis,
		&priceS, &targetS, &stopS,
		&p.Weight, &p.Likes, &p.Comments, &p.Shares, &p.Saves, &p.Status, &p.CreatedAt,
		&perf, &eng, &cred, &market, &total, &calculatedAt); err != nil {
		return nil, err
	}

	p.PitchPrice, _ = decimal.NewFromString(priceS)
	p.TargetPrice, _ = decimal.NewFromString(targetS)
	p.StopLoss, _ = decimal.NewFromString(stopS)

	if total != nil && calculatedAt != nil {
		p.Score = &model.ContentScore{
			PitchID:              p.ID,
			PerformanceScore:     *perf,
			EngagementScore:      *eng,
			CredibilityScore:     *cred,
			MarketRelevanceScore: *market,
			TotalScore:           *total,
			CalculatedAt:         *calculatedAt,
		}
	}
	return &p, nil
}

func scanPitches(rows pgx.Rows) ([]model.Pitch, error) {
	var pitches []model.Pitch
	for rows.Next() {
		p, err := scanPitch(rows)
		if err != nil {
			return nil, err
		}
		pitches = append(pitches, *p)
	}
	return pitches, rows.Err()
}
