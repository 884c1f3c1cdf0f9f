package detection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"activity-analytics/internal/anomaly"
	"activity-analytics/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mux *http.ServeMux

	ruleTriggerStatus     int
	baselineTriggerStatus int
	ruleListStatus        int
	scoreListStatus       int

	inlineAnomalies []anomaly.BaselineScore
	ruleDetections  []anomaly.RuleDetection
	listedScores    []anomaly.BaselineScore

	ruleTriggers     atomic.Int32
	baselineTriggers atomic.Int32
	scoreListings    atomic.Int32

	mu          sync.Mutex
	lastAuth    string
	lastSession string
}

func newFakeAPI() *fakeAPI {
	api := &fakeAPI{
		mux:                   http.NewServeMux(),
		ruleTriggerStatus:     http.StatusOK,
		baselineTriggerStatus: http.StatusOK,
		ruleListStatus:        http.StatusOK,
		scoreListStatus:       http.StatusOK,
	}

	api.mux.HandleFunc("POST /api/analytics/run-rule-detection", func(w http.ResponseWriter, r *http.Request) {
		api.ruleTriggers.Add(1)
		api.capture(r)
		api.reply(w, api.ruleTriggerStatus, map[string]int{"detections": len(api.ruleDetections)})
	})
	api.mux.HandleFunc("POST /api/analytics/run-detection", func(w http.ResponseWriter, r *http.Request) {
		api.baselineTriggers.Add(1)
		api.capture(r)
		api.reply(w, api.baselineTriggerStatus, map[string]any{"anomalies": api.inlineAnomalies})
	})
	api.mux.HandleFunc("GET /api/analytics/rule-based-detections", func(w http.ResponseWriter, r *http.Request) {
		api.capture(r)
		api.reply(w, api.ruleListStatus, map[string]any{"detections": api.ruleDetections})
	})
	api.mux.HandleFunc("GET /api/analytics/anomaly-scores", func(w http.ResponseWriter, r *http.Request) {
		api.scoreListings.Add(1)
		api.capture(r)
		api.reply(w, api.scoreListStatus, api.listedScores)
	})

	return api
}

func (api *fakeAPI) capture(r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.lastAuth = r.Header.Get("Authorization")
	api.lastSession = r.Header.Get("X-Session-Id")
}

func (api *fakeAPI) headers() (auth, session string) {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.lastAuth, api.lastSession
}

func (api *fakeAPI) reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	if status < 200 || status > 299 {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
		return
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func newTestOrchestrator(t *testing.T, api *fakeAPI) *Orchestrator {
	t.Helper()
	server := httptest.NewServer(api.mux)
	t.Cleanup(server.Close)

	identity := session.NewIdentity(session.NewMemoryStore())
	client := NewClient(server.URL, func() string { return "test-token" }, identity)
	return NewOrchestrator(client, Options{})
}

func TestRunReconcilesBothPasses(t *testing.T) {
	api := newFakeAPI()
	api.ruleDetections = []anomaly.RuleDetection{{DetectionID: 1, UserID: 7, RiskScore: 80, RiskLevel: "High Alert"}}
	api.inlineAnomalies = []anomaly.BaselineScore{{ScoreID: 2, UserID: 9, RiskScore: 91, RiskLevel: "High Alert"}}

	report := newTestOrchestrator(t, api).Run(context.Background())

	require.NoError(t, report.RuleErr)
	require.NoError(t, report.BaselineErr)
	require.Len(t, report.Rule, 1)
	require.Len(t, report.Baseline, 1)
	assert.Equal(t, anomaly.KindRule, report.Rule[0].Kind)
	assert.Equal(t, anomaly.KindBaseline, report.Baseline[0].Kind)
	assert.Len(t, report.Records(), 2)

	// Inline anomalies were present, so no fallback listing fetch.
	assert.Zero(t, api.scoreListings.Load())
}

func TestBaselineFallsBackToListingWhenTriggerReturnsNothing(t *testing.T) {
	api := newFakeAPI()
	api.listedScores = []anomaly.BaselineScore{{ScoreID: 5, UserID: 3, RiskScore: 40}}

	report := newTestOrchestrator(t, api).Run(context.Background())

	require.NoError(t, report.BaselineErr)
	require.Len(t, report.Baseline, 1)
	assert.Equal(t, 5, report.Baseline[0].ScoreID)
	assert.Equal(t, int32(1), api.scoreListings.Load())
}

func TestRuleTriggerFailureStillRendersBaseline(t *testing.T) {
	api := newFakeAPI()
	api.ruleTriggerStatus = http.StatusInternalServerError
	api.inlineAnomalies = []anomaly.BaselineScore{{ScoreID: 2, UserID: 9, RiskScore: 91}}

	report := newTestOrchestrator(t, api).Run(context.Background())

	assert.Error(t, report.RuleErr, "failed branch must be marked")
	require.NoError(t, report.BaselineErr)
	require.Len(t, report.Baseline, 1, "succeeding branch's data must not be discarded")
	assert.True(t, report.Partial())
	assert.False(t, report.Failed())
}

func TestRuleTriggerFailureStillListsPriorDetections(t *testing.T) {
	api := newFakeAPI()
	api.ruleTriggerStatus = http.StatusBadGateway
	api.ruleDetections = []anomaly.RuleDetection{{DetectionID: 4, UserID: 1, RiskScore: 55}}

	report := newTestOrchestrator(t, api).Run(context.Background())

	assert.Error(t, report.RuleErr)
	require.Len(t, report.Rule, 1, "stale detections still render alongside the failure marker")
}

func TestBothBranchesFailing(t *testing.T) {
	api := newFakeAPI()
	api.ruleListStatus = http.StatusInternalServerError
	api.baselineTriggerStatus = http.StatusInternalServerError

	report := newTestOrchestrator(t, api).Run(context.Background())

	assert.True(t, report.Failed())
	assert.Empty(t, report.Records())
}

func TestRequestsCarryBearerAndSessionHeaders(t *testing.T) {
	api := newFakeAPI()
	newTestOrchestrator(t, api).Run(context.Background())

	auth, session := api.headers()
	assert.Equal(t, "Bearer test-token", auth)
	assert.Contains(t, session, "session-")
}

func TestListReadsPriorResultsWithoutTriggering(t *testing.T) {
	api := newFakeAPI()
	api.ruleDetections = []anomaly.RuleDetection{{DetectionID: 1, UserID: 7, RiskScore: 80}}
	api.listedScores = []anomaly.BaselineScore{{ScoreID: 2, UserID: 9, RiskScore: 91}}

	report := newTestOrchestrator(t, api).List(context.Background())

	require.NoError(t, report.RuleErr)
	require.NoError(t, report.BaselineErr)
	assert.Len(t, report.Records(), 2, "prior detections must be readable on a latched scope")

	assert.Zero(t, api.ruleTriggers.Load(), "listing must not re-run rule detection")
	assert.Zero(t, api.baselineTriggers.Load(), "listing must not re-run baseline detection")
	assert.Equal(t, int32(1), api.scoreListings.Load())
}

func TestListSurfacesBranchErrors(t *testing.T) {
	api := newFakeAPI()
	api.scoreListStatus = http.StatusInternalServerError
	api.ruleDetections = []anomaly.RuleDetection{{DetectionID: 1, UserID: 7}}

	report := newTestOrchestrator(t, api).List(context.Background())

	require.NoError(t, report.RuleErr)
	assert.Error(t, report.BaselineErr)
	assert.Len(t, report.Rule, 1)
	assert.True(t, report.Partial())
}

func TestCancelledRunReportsNothingRenderable(t *testing.T) {
	api := newFakeAPI()
	api.ruleDetections = []anomaly.RuleDetection{{DetectionID: 1, UserID: 7}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := newTestOrchestrator(t, api).Run(ctx)

	assert.Error(t, report.RuleErr)
	assert.Error(t, report.BaselineErr)
	assert.Empty(t, report.Records())
}
