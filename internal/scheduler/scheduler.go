// Package scheduler runs the engine's periodic jobs: performance
// snapshots for active pitches and the feed-wide rescore.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/matador/score-engine/internal/assetdata"
	"github.com/matador/score-engine/internal/metrics"
	"github.com/matador/score-engine/internal/scoring"
	"github.com/matador/score-engine/internal/store"
	"github.com/matador/score-engine/internal/tracker"
)

// Scheduler manages the cron jobs. Job failures are logged and counted;
// nothing here is fatal to the process.
type Scheduler struct {
	cron      *cron.Cron
	store     store.Store
	tracker   *tracker.Tracker
	scorer    *scoring.Scorer
	providers assetdata.Providers
	ctx       context.Context
}

// New creates a scheduler bound to the given context.
func New(ctx context.Context, st store.Store, tr *tracker.Tracker, sc *scoring.Scorer, providers assetdata.Providers) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		store:     st,
		tracker:   tr,
		scorer:    sc,
		providers: providers,
		ctx:       ctx,
	}
}

// Register adds the snapshot and rescore jobs with the given cron specs.
func (s *Scheduler) Register(snapshotSpec, rescoreSpec string) error {
	if _, err := s.cron.AddFunc(snapshotSpec, s.snapshotTask); err != nil {
		return fmt.Errorf("register snapshot job: %w", err)
	}
	if _, err := s.cron.AddFunc(rescoreSpec, s.rescoreTask); err != nil {
		return fmt.Errorf("register rescore job: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	slog.Info("scheduler stopped")
}

// snapshotTask records a performance snapshot for every active pitch at
// its current quote. Per-pitch failures are skipped, not propagated.
func (s *Scheduler) snapshotTask() {
	slog.Info("running snapshot job")

	pitches, err := s.store.ListActivePitches(s.ctx)
	if err != nil {
		slog.Error("snapshot job: list active pitches", "err", err)
		return
	}
	metrics.ActivePitches.Set(float64(len(pitches)))

	var recorded, failed int
	for _, p := range pitches {
		info, err := s.providers.ForClass(p.AssetClass()).AssetInfo(s.ctx, p.Symbol())
		if err != nil {
			failed++
			slog.Warn("snapshot job: quote failed", "pitch_id", p.ID, "symbol", p.Symbol(), "err", err)
			continue
		}
		if _, err := s.tracker.RecordPerformance(s.ctx, p.ID, info.CurrentPrice); err != nil {
			failed++
			slog.Warn("snapshot job: record failed", "pitch_id", p.ID, "err", err)
			continue
		}
		recorded++
	}

	slog.Info("snapshot job complete", "recorded", recorded, "failed", failed)
}

// rescoreTask recalculates every active pitch's score.
func (s *Scheduler) rescoreTask() {
	slog.Info("running rescore job")

	result, err := s.scorer.RescoreAll(s.ctx)
	if err != nil {
		slog.Error("rescore job failed", "err", err)
		return
	}
	slog.Info("rescore job complete", "scored", result.Scored, "failed", result.Failed)
}
