package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS pitches (
    id                     TEXT PRIMARY KEY,
    user_id                TEXT NOT NULL,
    stock_symbol           TEXT NOT NULL DEFAULT '',
    crypto_symbol          TEXT NOT NULL DEFAULT '',
    thesis                 TEXT NOT NULL DEFAULT '',
    pitch_price            NUMERIC NOT NULL,
    target_price           NUMERIC,
    stop_loss              NUMERIC,
    weight                 DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    likes                  INTEGER NOT NULL DEFAULT 0,
    comments               INTEGER NOT NULL DEFAULT 0,
    shares                 INTEGER NOT NULL DEFAULT 0,
    saves                  INTEGER NOT NULL DEFAULT 0,
    status                 TEXT NOT NULL,
    created_at             TIMESTAMPTZ NOT NULL,
    performance_score      DOUBLE PRECISION,
    engagement_score       DOUBLE PRECISION,
    credibility_score      DOUBLE PRECISION,
    market_relevance_score DOUBLE PRECISION,
    total_score            DOUBLE PRECISION,
    calculated_at          TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pitches_user ON pitches(user_id);
CREATE INDEX IF NOT EXISTS idx_pitches_status ON pitches(status);
CREATE INDEX IF NOT EXISTS idx_pitches_total_score ON pitches(total_score DESC) WHERE total_score IS NOT NULL;

CREATE TABLE IF NOT EXISTS pitch_snapshots (
    id                 BIGSERIAL PRIMARY KEY,
    pitch_id           TEXT NOT NULL REFERENCES pitches(id),
    timestamp          TIMESTAMPTZ NOT NULL,
    current_price      NUMERIC NOT NULL,
    absolute_return    NUMERIC NOT NULL,
    percentage_return  DOUBLE PRECISION NOT NULL,
    weighted_return    DOUBLE PRECISION NOT NULL,
    target_achievement DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_snapshots_pitch ON pitch_snapshots(pitch_id, timestamp);

CREATE TABLE IF NOT EXISTS user_karma (
    user_id              TEXT PRIMARY KEY,
    stock_karma          DOUBLE PRECISION NOT NULL DEFAULT 0,
    crypto_karma         DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_stock_likes    INTEGER NOT NULL DEFAULT 0,
    total_crypto_likes   INTEGER NOT NULL DEFAULT 0,
    total_stock_pitches  INTEGER NOT NULL DEFAULT 0,
    total_crypto_pitches INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS karma_events (
    user_id  TEXT NOT NULL,
    event_id TEXT NOT NULL,
    PRIMARY KEY (user_id, event_id)
);

CREATE TABLE IF NOT EXISTS credibility_states (
    user_id         TEXT PRIMARY KEY,
    total_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
    tier            TEXT NOT NULL,
    detailed_scores JSONB NOT NULL DEFAULT '{}',
    updated_at      TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the tables and indexes the store expects. Statements
// are idempotent, so it is safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
