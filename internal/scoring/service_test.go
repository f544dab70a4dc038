package scoring_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/matador/score-engine/internal/assetdata"
	"github.com/matador/score-engine/internal/credibility"
	"github.com/matador/score-engine/internal/karma"
	"github.com/matador/score-engine/internal/model"
	"github.com/matador/score-engine/internal/scorecalc"
	"github.com/matador/score-engine/internal/scoring"
	"github.com/matador/score-engine/internal/store"
	"github.com/matador/score-engine/internal/tracker"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

type testEnv struct {
	store  *store.MemoryStore
	stub   *assetdata.StubProvider
	karma  *karma.System
	cred   *credibility.System
	router chi.Router
}

// newTestEnv wires the full service against the in-memory store and a
// stub provider preloaded with an AAPL quote.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ms := store.NewMemoryStore()
	stub := &assetdata.StubProvider{
		Info: map[string]*assetdata.AssetInfo{
			"AAPL": {
				Symbol:        "AAPL",
				CurrentPrice:  d(165),
				TradingVolume: 2000,
				AverageVolume: 1000,
			},
			"bitcoin": {
				Symbol:        "bitcoin",
				CurrentPrice:  d(60000),
				TradingVolume: 500,
				AverageVolume: 500,
			},
		},
		History: map[string][]decimal.Decimal{
			"AAPL": {d(145), d(148), d(152), d(155), d(160)},
		},
		Return: 3.0,
	}
	providers := assetdata.Providers{Stock: stub, Crypto: stub}

	cred := credibility.NewSystem(credibility.DefaultWeights())
	k := karma.NewSystem()
	tr := tracker.New(ms, cred, k)
	scorer := scoring.NewScorer(ms, providers, k, tr, scorecalc.DefaultWeights(), 30, 4, nil)
	svc := scoring.NewService(ms, tr, scorer, cred, k, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)

	return &testEnv{store: ms, stub: stub, karma: k, cred: cred, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func createPitch(t *testing.T, e *testEnv, userID string) model.Pitch {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/pitches", scoring.CreatePitchRequest{
		UserID:      userID,
		Stock:       "AAPL",
		Thesis:      "undervalued",
		PitchPrice:  d(150),
		TargetPrice: d(180),
		StopLoss:    d(140),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create pitch: status %d, body %s", w.Code, w.Body.String())
	}
	var p model.Pitch
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCreatePitchScoredImmediately(t *testing.T) {
	e := newTestEnv(t)

	p := createPitch(t, e, "u1")
	if p.Score == nil {
		t.Fatal("pitch must be scored at creation")
	}
	if p.Score.TotalScore < 0 || p.Score.TotalScore > 100 {
		t.Errorf("total score = %v, want [0,100]", p.Score.TotalScore)
	}
	if p.Status != model.StatusActive {
		t.Errorf("status = %q, want active", p.Status)
	}
}

func TestCreatePitchValidationErrors(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/api/v1/pitches", scoring.CreatePitchRequest{
		UserID: "u1", PitchPrice: d(100), // no symbol
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("no symbol: status %d, want 400", w.Code)
	}

	w = e.do(t, "POST", "/api/v1/pitches", scoring.CreatePitchRequest{
		UserID: "u1", Stock: "AAPL", Crypto: "bitcoin", PitchPrice: d(100),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("both symbols: status %d, want 400", w.Code)
	}
}

func TestCreatePitchSurvivesProviderFailure(t *testing.T) {
	e := newTestEnv(t)
	e.stub.InfoErr = assetdata.ErrUnavailable

	w := e.do(t, "POST", "/api/v1/pitches", scoring.CreatePitchRequest{
		UserID: "u1", Stock: "AAPL", PitchPrice: d(150),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201 even when scoring fails", w.Code)
	}
	var p model.Pitch
	json.Unmarshal(w.Body.Bytes(), &p)
	if p.Score != nil {
		t.Error("score must be absent when the provider is down")
	}
}

func TestGetPitchNotFound(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "GET", "/api/v1/pitches/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", w.Code)
	}
}

func TestRecordSnapshotAndClose(t *testing.T) {
	e := newTestEnv(t)
	p := createPitch(t, e, "u1")

	w := e.do(t, "POST", "/api/v1/pitches/"+p.ID+"/snapshots", scoring.PriceRequest{Price: d(165)})
	if w.Code != http.StatusCreated {
		t.Fatalf("snapshot: status %d, body %s", w.Code, w.Body.String())
	}
	var snap model.PerformanceSnapshot
	json.Unmarshal(w.Body.Bytes(), &snap)
	if snap.PercentageReturn != 10 {
		t.Errorf("percentage return = %v, want 10", snap.PercentageReturn)
	}

	// Close at +20%; karma settles at 100 for a like-less pitch.
	w = e.do(t, "POST", "/api/v1/pitches/"+p.ID+"/close", scoring.PriceRequest{Price: d(180)})
	if w.Code != http.StatusOK {
		t.Fatalf("close: status %d, body %s", w.Code, w.Body.String())
	}
	var closed model.Pitch
	json.Unmarshal(w.Body.Bytes(), &closed)
	if closed.Status != model.StatusClosed {
		t.Errorf("status = %q, want closed", closed.Status)
	}

	w = e.do(t, "GET", "/api/v1/users/u1/karma", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("karma: status %d", w.Code)
	}
	var k model.UserKarma
	json.Unmarshal(w.Body.Bytes(), &k)
	if k.StockKarma != 100 {
		t.Errorf("stock karma = %v, want 100", k.StockKarma)
	}

	// Double close conflicts.
	w = e.do(t, "POST", "/api/v1/pitches/"+p.ID+"/close", scoring.PriceRequest{Price: d(180)})
	if w.Code != http.StatusConflict {
		t.Errorf("double close: status %d, want 409", w.Code)
	}
}

func TestSnapshotUsesLiveQuoteWhenPriceOmitted(t *testing.T) {
	e := newTestEnv(t)
	p := createPitch(t, e, "u1")

	w := e.do(t, "POST", "/api/v1/pitches/"+p.ID+"/snapshots", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	var snap model.PerformanceSnapshot
	json.Unmarshal(w.Body.Bytes(), &snap)
	// Stub quote is 165 against a 150 entry.
	if snap.PercentageReturn != 10 {
		t.Errorf("percentage return = %v, want 10 from live quote", snap.PercentageReturn)
	}
}

func TestRescorePitchErrors(t *testing.T) {
	e := newTestEnv(t)
	p := createPitch(t, e, "u1")

	w := e.do(t, "POST", "/api/v1/pitches/ghost/rescore", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown pitch: status %d, want 404", w.Code)
	}

	e.stub.InfoErr = assetdata.ErrUnavailable
	w = e.do(t, "POST", "/api/v1/pitches/"+p.ID+"/rescore", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("provider down: status %d, want 502", w.Code)
	}
}

func TestFeedFilteringAndOrdering(t *testing.T) {
	e := newTestEnv(t)

	createPitch(t, e, "u1")
	createPitch(t, e, "u2")

	w := e.do(t, "GET", "/api/v1/feed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var feed []model.Pitch
	json.Unmarshal(w.Body.Bytes(), &feed)
	if len(feed) != 2 {
		t.Fatalf("feed size = %d, want 2", len(feed))
	}
	for i := 1; i < len(feed); i++ {
		if feed[i].Score.TotalScore > feed[i-1].Score.TotalScore {
			t.Error("feed not sorted by total score descending")
		}
	}

	w = e.do(t, "GET", "/api/v1/feed?min_score=101", nil)
	json.Unmarshal(w.Body.Bytes(), &feed)
	if len(feed) != 0 {
		t.Errorf("min_score=101: feed size = %d, want 0", len(feed))
	}

	w = e.do(t, "GET", "/api/v1/feed?asset_class=bond", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad asset class: status %d, want 400", w.Code)
	}

	w = e.do(t, "GET", "/api/v1/feed?page=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad page: status %d, want 400", w.Code)
	}
}

func TestBatchRescoreIndependentFailures(t *testing.T) {
	e := newTestEnv(t)

	good := createPitch(t, e, "u1")

	// Second pitch on a symbol the stub does not know: its rescore fails,
	// the sibling still scores.
	w := e.do(t, "POST", "/api/v1/pitches", scoring.CreatePitchRequest{
		UserID: "u2", Stock: "MISSING", PitchPrice: d(10),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d", w.Code)
	}

	w = e.do(t, "POST", "/api/v1/rescore", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("batch: status %d, body %s", w.Code, w.Body.String())
	}
	var result scoring.BatchResult
	json.Unmarshal(w.Body.Bytes(), &result)
	if result.Scored != 1 || result.Failed != 1 {
		t.Errorf("batch result = %+v, want 1 scored / 1 failed", result)
	}

	w = e.do(t, "GET", "/api/v1/pitches/"+good.ID, nil)
	var p model.Pitch
	json.Unmarshal(w.Body.Bytes(), &p)
	if p.Score == nil {
		t.Error("surviving pitch lost its score")
	}
}

func TestBadgeEndpoint(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "GET", "/api/v1/users/stranger/badge", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var badge credibility.BadgeInfo
	json.Unmarshal(w.Body.Bytes(), &badge)
	if badge.Tier != credibility.TierBronze {
		t.Errorf("unknown user tier = %q, want bronze", badge.Tier)
	}
	if badge.NextTier == nil || badge.NextTier.NextTier != credibility.TierSilver {
		t.Errorf("next tier = %+v, want silver", badge.NextTier)
	}
}

func TestKarmaEventEndpointIdempotent(t *testing.T) {
	e := newTestEnv(t)

	req := scoring.KarmaEventRequest{
		EventID:    "ev-1",
		UserID:     "u1",
		AssetClass: model.AssetStock,
		Kind:       karma.KindLikeReceived,
		Likes:      3,
	}

	for i := 0; i < 2; i++ {
		w := e.do(t, "POST", "/api/v1/karma/events", req)
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: status %d, body %s", i, w.Code, w.Body.String())
		}
		var resp scoring.KarmaEventResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if want := i == 0; resp.Applied != want {
			t.Errorf("attempt %d: applied = %v, want %v", i, resp.Applied, want)
		}
		if resp.Karma.StockKarma != 15 {
			t.Errorf("attempt %d: stock karma = %v, want 15", i, resp.Karma.StockKarma)
		}
	}

	w := e.do(t, "POST", "/api/v1/karma/events", scoring.KarmaEventRequest{
		EventID: "ev-2", UserID: "u1", AssetClass: "bond", Kind: karma.KindLikeReceived,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad class: status %d, want 400", w.Code)
	}

	w = e.do(t, "POST", "/api/v1/karma/events", scoring.KarmaEventRequest{
		UserID: "u1", AssetClass: model.AssetStock, Kind: karma.KindLikeReceived,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing event id: status %d, want 400", w.Code)
	}
}

func TestUserMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	p := createPitch(t, e, "u1")

	if w := e.do(t, "POST", "/api/v1/pitches/"+p.ID+"/snapshots", scoring.PriceRequest{Price: d(180)}); w.Code != http.StatusCreated {
		t.Fatal("snapshot failed")
	}

	w := e.do(t, "GET", "/api/v1/users/u1/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var m model.UserPerformanceMetrics
	json.Unmarshal(w.Body.Bytes(), &m)
	if m.TotalPitches != 1 || m.SuccessfulPitches != 1 || m.SuccessRate != 100 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestScoreDeterminism(t *testing.T) {
	e := newTestEnv(t)
	p := createPitch(t, e, "u1")

	scores := make([]model.ContentScore, 2)
	for i := range scores {
		w := e.do(t, "POST", fmt.Sprintf("/api/v1/pitches/%s/rescore", p.ID), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("rescore %d: status %d", i, w.Code)
		}
		json.Unmarshal(w.Body.Bytes(), &scores[i])
	}

	a, b := scores[0], scores[1]
	if a.PerformanceScore != b.PerformanceScore ||
		a.CredibilityScore != b.CredibilityScore ||
		a.MarketRelevanceScore != b.MarketRelevanceScore {
		t.Errorf("identical inputs produced different sub-scores: %+v vs %+v", a, b)
	}
}
