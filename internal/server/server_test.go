package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/frontdesk/config"
	"github.com/mohammad-safakhou/frontdesk/internal/coordinator"
	"github.com/mohammad-safakhou/frontdesk/internal/decider"
	"github.com/mohammad-safakhou/frontdesk/internal/knowledge"
	"github.com/mohammad-safakhou/frontdesk/internal/lifecycle"
	"github.com/mohammad-safakhou/frontdesk/internal/store"
	"github.com/mohammad-safakhou/frontdesk/models"
	"github.com/mohammad-safakhou/frontdesk/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		General:   config.GeneralConfig{BusinessName: "Luxe Hair Salon"},
		Server:    config.ServerConfig{Address: ":0"},
		LLM:       config.LLMConfig{Type: "static"}.Normalize(),
		Knowledge: config.KnowledgeConfig{}.Normalize(),
		Lifecycle: config.LifecycleConfig{}.Normalize(),
		Notify:    config.NotifyConfig{Driver: config.NotifyDriverNoop}.Normalize(),
		Storage:   config.StorageConfig{Driver: config.StorageDriverMemory},
		Telemetry: config.TelemetryConfig{Enabled: true, MetricsPath: "/metrics"},
	}
}

func newTestApp(t *testing.T) (*App, *echo.Echo) {
	t.Helper()
	app, err := NewApp(context.Background(), testConfig(), nil, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, NewRouter(app)
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestQuestionResolveRoundTrip(t *testing.T) {
	_, e := newTestApp(t)

	rec := do(t, e, http.MethodPost, "/api/questions", `{"caller_id":"call-1","caller_contact":"+15550001","question":"Do you offer gift cards?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reply := decode[coordinator.Reply](t, rec)
	assert.False(t, reply.Answered)
	require.NotEmpty(t, reply.RequestID)

	rec = do(t, e, http.MethodGet, "/api/requests/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]models.HelpRequest](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, reply.RequestID, pending[0].ID)

	rec = do(t, e, http.MethodPost, "/api/requests/"+reply.RequestID+"/resolve", `{"answer":"$25 minimum","resolver_name":"Ana"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decode[resolveResponse](t, rec)
	assert.Equal(t, models.RequestStatusResolved, resolved.Status)
	assert.Empty(t, resolved.LearningError)

	rec = do(t, e, http.MethodPost, "/api/requests/"+reply.RequestID+"/resolve", `{"answer":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/questions", `{"caller_id":"call-2","caller_contact":"+15550002","question":"Do you offer gift cards?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	reply = decode[coordinator.Reply](t, rec)
	assert.True(t, reply.Answered)
	assert.Equal(t, "$25 minimum", reply.Text)

	rec = do(t, e, http.MethodGet, "/api/knowledge", "")
	entries := decode[[]models.KnowledgeEntry](t, rec)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 1, entries[0].UsageCount)

	rec = do(t, e, http.MethodGet, "/api/stats", "")
	st := decode[models.Stats](t, rec)
	assert.Equal(t, 1, st.TotalRequests)
	assert.Equal(t, 1, st.Resolved)
	assert.Equal(t, 1, st.KnowledgeEntries)
	assert.Equal(t, 100.0, st.ResolutionRate)
}

func TestErrorResponses(t *testing.T) {
	_, e := newTestApp(t)
	cases := []struct {
		method, path, body string
		code               int
	}{
		{http.MethodPost, "/api/questions", `{"caller_id":"c","question":"  "}`, http.StatusBadRequest},
		{http.MethodPost, "/api/questions", `{not json`, http.StatusBadRequest},
		{http.MethodPost, "/api/requests/nope/resolve", `{"answer":"x"}`, http.StatusNotFound},
		{http.MethodGet, "/api/requests/all?limit=abc", "", http.StatusBadRequest},
		{http.MethodGet, "/api/requests/all?limit=0", "", http.StatusBadRequest},
		{http.MethodGet, "/api/knowledge/search", "", http.StatusBadRequest},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := do(t, e, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			body := decode[map[string]string](t, rec)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestResolveEmptyAnswerIsRejected(t *testing.T) {
	app, e := newTestApp(t)
	req, err := app.Lifecycle.Create(context.Background(), "c", "p", "q", nil)
	require.NoError(t, err)

	rec := do(t, e, http.MethodPost, "/api/requests/"+req.ID+"/resolve", `{"answer":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAllLimit(t *testing.T) {
	app, e := newTestApp(t)
	for i := 0; i < 3; i++ {
		_, err := app.Lifecycle.Create(context.Background(), "c", "p", fmt.Sprintf("question %d", i), nil)
		require.NoError(t, err)
	}
	rec := do(t, e, http.MethodGet, "/api/requests/all?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.HelpRequest](t, rec), 2)

	rec = do(t, e, http.MethodGet, "/api/requests/all", "")
	assert.Len(t, decode[[]models.HelpRequest](t, rec), 3)
}

func TestEmptyListingsAreArrays(t *testing.T) {
	_, e := newTestApp(t)
	for _, path := range []string{"/api/requests/pending", "/api/requests/all", "/api/knowledge"} {
		rec := do(t, e, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()), path)
	}
}

func TestKnowledgeSearchAndReload(t *testing.T) {
	app, e := newTestApp(t)
	_, err := app.Knowledge.Seed(context.Background(), []knowledge.SeedEntry{
		{Question: "where are you located", Answer: "123 Main Street, Downtown"},
		{Question: "what are your hours", Answer: "Monday-Saturday 9AM-7PM"},
	})
	require.NoError(t, err)

	rec := do(t, e, http.MethodGet, "/api/knowledge/search?q=downtown", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hits := decode[[]models.KnowledgeEntry](t, rec)
	require.Len(t, hits, 1)
	assert.Equal(t, "where are you located", hits[0].Question)

	rec = do(t, e, http.MethodPost, "/api/knowledge/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"entries": 2}, decode[map[string]int](t, rec))
}

func TestHealthAndMetrics(t *testing.T) {
	_, e := newTestApp(t)
	rec := do(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	do(t, e, http.MethodPost, "/api/questions", `{"caller_id":"c","question":"anything at all"}`)
	rec = do(t, e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `frontdesk_questions_total{outcome="escalated"} 1`)
}

type failingLearner struct{}

func (failingLearner) Ingest(context.Context, string, string, string) (models.KnowledgeEntry, error) {
	return models.KnowledgeEntry{}, errors.New("knowledge collection unavailable")
}

func TestResolveReportsLearningError(t *testing.T) {
	coll := store.NewMemory()
	ks := knowledge.New(coll)
	lc := lifecycle.New(coll, lifecycle.WithLearner(failingLearner{}))
	h := &Handlers{
		Coordinator: coordinator.New(ks, decider.New(provider.StaticJudge{}), lc),
		Knowledge:   ks,
	}
	req, err := lc.Create(context.Background(), "c", "", "q", nil)
	require.NoError(t, err)

	e := echo.New()
	httpReq := httptest.NewRequest(http.MethodPost, "/api/requests/"+req.ID+"/resolve", strings.NewReader(`{"answer":"yes"}`))
	httpReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(httpReq, rec)
	c.SetParamNames("id")
	c.SetParamValues(req.ID)

	require.NoError(t, h.resolve(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[resolveResponse](t, rec)
	assert.Equal(t, models.RequestStatusResolved, resp.Status)
	assert.Contains(t, resp.LearningError, "knowledge collection unavailable")
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{models.ValidationError{Field: "question"}, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", models.ErrNotFound), http.StatusNotFound},
		{models.FinalizedError{ID: "r", Status: models.RequestStatusTimeout}, http.StatusConflict},
		{models.Persistence("create", errors.New("dial tcp")), http.StatusServiceUnavailable},
		{echo.NewHTTPError(http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, msg := statusFor(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.NotEmpty(t, msg)
	}
}

func TestMigrateRequiresDSN(t *testing.T) {
	assert.Error(t, Migrate("file://migrations", "", "up", 0))
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Address = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, nil) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
