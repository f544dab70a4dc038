package scoring

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/matador/score-engine/internal/assetdata"
	"github.com/matador/score-engine/internal/credibility"
	"github.com/matador/score-engine/internal/karma"
	"github.com/matador/score-engine/internal/metrics"
	"github.com/matador/score-engine/internal/model"
	"github.com/matador/score-engine/internal/store"
	"github.com/matador/score-engine/internal/tracker"
)

// Service exposes the scoring engine over HTTP.
type Service struct {
	store   store.Store
	tracker *tracker.Tracker
	scorer  *Scorer
	cred    *credibility.System
	karma   *karma.System
	hub     *WSHub
}

// NewService creates the HTTP service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, tr *tracker.Tracker, sc *Scorer, cred *credibility.System, k *karma.System, hub *WSHub) *Service {
	return &Service{
		store:   st,
		tracker: tr,
		scorer:  sc,
		cred:    cred,
		karma:   k,
		hub:     hub,
	}
}

// Routes mounts all scoring endpoints on a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/pitches", s.CreatePitch)
	r.Get("/pitches/{pitchID}", s.GetPitch)
	r.Post("/pitches/{pitchID}/snapshots", s.RecordSnapshot)
	r.Post("/pitches/{pitchID}/close", s.ClosePitch)
	r.Post("/pitches/{pitchID}/rescore", s.RescorePitch)
	r.Post("/rescore", s.RescoreAll)
	r.Get("/feed", s.GetFeed)
	r.Get("/users/{userID}/badge", s.GetBadge)
	r.Get("/users/{userID}/karma", s.GetKarma)
	r.Get("/users/{userID}/metrics", s.GetUserMetrics)
	r.Post("/karma/events", s.ApplyKarmaEvent)
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
}

// --- Request/Response types ---

// CreatePitchRequest is the JSON body for pitch creation.
type CreatePitchRequest struct {
	UserID      string          `json:"user_id"`
	Stock       string          `json:"stock,omitempty"`
	Crypto      string          `json:"crypto,omitempty"`
	Thesis      string          `json:"thesis"`
	PitchPrice  decimal.Decimal `json:"pitch_price"`
	TargetPrice decimal.Decimal `json:"target_price,omitempty"`
	StopLoss    decimal.Decimal `json:"stop_loss,omitempty"`
}

// PriceRequest carries an explicit price for snapshot/close operations.
// When Price is zero the current quote is fetched from the provider.
type PriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// KarmaEventRequest is the JSON body for POST /karma/events. EventID is
// the idempotency key; repeated deliveries of the same id are no-ops.
type KarmaEventRequest struct {
	EventID          string  `json:"event_id"`
	UserID           string  `json:"user_id"`
	AssetClass       string  `json:"asset_class"`
	Kind             string  `json:"kind"`
	ReturnPercentage float64 `json:"return_percentage,omitempty"`
	Likes            int     `json:"likes,omitempty"`
}

// KarmaEventResponse reports whether the event changed state.
type KarmaEventResponse struct {
	Applied bool            `json:"applied"`
	Karma   model.UserKarma `json:"karma"`
}

// --- HTTP Handlers ---

// CreatePitch handles POST /api/v1/pitches.
// The pitch is scored immediately after creation; a provider failure
// leaves the pitch created but unscored.
func (s *Service) CreatePitch(w http.ResponseWriter, r *http.Request) {
	var req CreatePitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	pitch, err := s.tracker.CreatePitch(ctx, tracker.CreatePitchInput{
		UserID:       req.UserID,
		StockSymbol:  req.Stock,
		CryptoSymbol: req.Crypto,
		Thesis:       req.Thesis,
		PitchPrice:   req.PitchPrice,
		TargetPrice:  req.TargetPrice,
		StopLoss:     req.StopLoss,
	})
	if err != nil {
		if errors.Is(err, tracker.ErrInvalidPitch) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, "failed to create pitch", http.StatusInternalServerError)
		return
	}

	if score, err := s.scorer.ScorePitch(ctx, pitch.ID); err != nil {
		slog.Warn("initial score failed, pitch created unscored", "pitch_id", pitch.ID, "err", err)
	} else {
		pitch.Score = score
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(pitch)
}

// GetPitch handles GET /api/v1/pitches/{pitchID}.
func (s *Service) GetPitch(w http.ResponseWriter, r *http.Request) {
	pitchID := chi.URLParam(r, "pitchID")

	pitch, err := s.store.GetPitch(r.Context(), pitchID)
	if err != nil {
		if errors.Is(err, store.ErrPitchNotFound) {
			writeError(w, "pitch not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to load pitch", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pitch)
}

// RecordSnapshot handles POST /api/v1/pitches/{pitchID}/snapshots.
func (s *Service) RecordSnapshot(w http.ResponseWriter, r *http.Request) {
	pitchID := chi.URLParam(r, "pitchID")

	price, ok := s.resolvePrice(w, r, pitchID)
	if !ok {
		return
	}

	snap, err := s.tracker.RecordPerformance(r.Context(), pitchID, price)
	if err != nil {
		if errors.Is(err, store.ErrPitchNotFound) {
			writeError(w, "pitch not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to record snapshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(snap)
}

// ClosePitch handles POST /api/v1/pitches/{pitchID}/close.
// Closing settles the author's karma for the pitch outcome.
func (s *Service) ClosePitch(w http.ResponseWriter, r *http.Request) {
	pitchID := chi.URLParam(r, "pitchID")

	price, ok := s.resolvePrice(w, r, pitchID)
	if !ok {
		return
	}

	pitch, err := s.tracker.ClosePitch(r.Context(), pitchID, price)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPitchNotFound):
			writeError(w, "pitch not found", http.StatusNotFound)
		case errors.Is(err, tracker.ErrPitchClosed):
			writeError(w, "pitch already closed", http.StatusConflict)
		default:
			writeError(w, "failed to close pitch", http.StatusInternalServerError)
		}
		return
	}

	metrics.KarmaEventsApplied.WithLabelValues(karma.KindPitchOutcome).Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pitch)
}

// RescorePitch handles POST /api/v1/pitches/{pitchID}/rescore.
func (s *Service) RescorePitch(w http.ResponseWriter, r *http.Request) {
	pitchID := chi.URLParam(r, "pitchID")

	score, err := s.scorer.ScorePitch(r.Context(), pitchID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPitchNotFound):
			writeError(w, "pitch not found", http.StatusNotFound)
		case errors.Is(err, assetdata.ErrUnknownSymbol):
			writeError(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, assetdata.ErrUnavailable):
			writeError(w, "asset data provider unavailable", http.StatusBadGateway)
		default:
			writeError(w, "failed to score pitch", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(score)
}

// RescoreAll handles POST /api/v1/rescore — the feed-wide recalculation.
func (s *Service) RescoreAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.scorer.RescoreAll(r.Context())
	if err != nil {
		writeError(w, "failed to run batch rescore", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetFeed handles GET /api/v1/feed.
// Query: page, page_size, min_score, asset_class.
func (s *Service) GetFeed(w http.ResponseWriter, r *http.Request) {
	q := store.FeedQuery{AssetClass: r.URL.Query().Get("asset_class")}

	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, "page must be an integer", http.StatusBadRequest)
			return
		}
		q.Page = n
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, "page_size must be an integer", http.StatusBadRequest)
			return
		}
		q.PageSize = n
	}
	if v := r.URL.Query().Get("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, "min_score must be a number", http.StatusBadRequest)
			return
		}
		q.MinScore = f
	}
	if q.AssetClass != "" && q.AssetClass != model.AssetStock && q.AssetClass != model.AssetCrypto {
		writeError(w, "asset_class must be stock or crypto", http.StatusBadRequest)
		return
	}

	pitches, err := s.store.ListScoredPitches(r.Context(), q)
	if err != nil {
		writeError(w, "failed to load feed", http.StatusInternalServerError)
		return
	}
	if pitches == nil {
		pitches = []model.Pitch{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pitches)
}

// GetBadge handles GET /api/v1/users/{userID}/badge.
// Unknown users get the bronze badge, not a 404.
func (s *Service) GetBadge(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.cred.Badge(userID))
}

// GetKarma handles GET /api/v1/users/{userID}/karma.
func (s *Service) GetKarma(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.karma.UserKarma(userID))
}

// GetUserMetrics handles GET /api/v1/users/{userID}/metrics.
// Metrics are recomputed from the user's pitch set on every call.
func (s *Service) GetUserMetrics(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	m, err := s.tracker.UserMetrics(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to compute metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

// ApplyKarmaEvent handles POST /api/v1/karma/events.
func (s *Service) ApplyKarmaEvent(w http.ResponseWriter, r *http.Request) {
	var req KarmaEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.EventID == "" {
		writeError(w, "event_id is required", http.StatusBadRequest)
		return
	}

	record, applied, err := s.karma.Apply(karma.Event{
		EventID:          req.EventID,
		UserID:           req.UserID,
		AssetClass:       req.AssetClass,
		Kind:             req.Kind,
		ReturnPercentage: req.ReturnPercentage,
		Likes:            req.Likes,
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if applied {
		if err := s.store.SaveUserKarma(r.Context(), &record); err != nil {
			writeError(w, "failed to persist karma", http.StatusInternalServerError)
			return
		}
		metrics.KarmaEventsApplied.WithLabelValues(req.Kind).Inc()
		slog.Info("karma event applied",
			"event_id", req.EventID,
			"user", req.UserID,
			"kind", req.Kind,
			"class", req.AssetClass,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(KarmaEventResponse{Applied: applied, Karma: record})
}

// resolvePrice reads the price from the request body, falling back to a
// live quote when the body is empty or the price is zero.
func (s *Service) resolvePrice(w http.ResponseWriter, r *http.Request, pitchID string) (decimal.Decimal, bool) {
	var req PriceRequest
	// An empty body means "use the live quote"; anything else malformed is a 400.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return decimal.Decimal{}, false
	}

	if req.Price.IsPositive() {
		return req.Price, true
	}
	if req.Price.IsNegative() {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return decimal.Decimal{}, false
	}

	pitch, err := s.store.GetPitch(r.Context(), pitchID)
	if err != nil {
		if errors.Is(err, store.ErrPitchNotFound) {
			writeError(w, "pitch not found", http.StatusNotFound)
			return decimal.Decimal{}, false
		}
		writeError(w, "failed to load pitch", http.StatusInternalServerError)
		return decimal.Decimal{}, false
	}

	info, err := s.scorer.providers.ForClass(pitch.AssetClass()).AssetInfo(r.Context(), pitch.Symbol())
	if err != nil {
		writeError(w, "asset data provider unavailable", http.StatusBadGateway)
		return decimal.Decimal{}, false
	}
	return info.CurrentPrice, true
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
