package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	app "github.com/R3E-Network/voice_metrics/internal/app"
	"github.com/R3E-Network/voice_metrics/internal/app/domain/trial"
	"github.com/R3E-Network/voice_metrics/internal/app/storage/memory"
	"github.com/R3E-Network/voice_metrics/internal/middleware"
	"github.com/R3E-Network/voice_metrics/pkg/logger"
	"github.com/R3E-Network/voice_metrics/pkg/testutil"
)

var testOrigins = []string{"https://thsis-full", "http://localhost:5174"}

func quietLogger() *logger.Logger {
	log := logger.New(logger.LoggingConfig{Level: "error"})
	log.SetOutput(io.Discard)
	return log
}

func newTestHandler(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.New()
	log := quietLogger()
	application := app.New(app.Stores{Trials: store}, log)
	return New(application, Options{AllowedOrigins: testOrigins, Log: log}), store
}

func marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postTrial(t *testing.T, h http.Handler, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodPost, "/api/trials", marshal(payload))
}

func validPayload() map[string]any {
	return map[string]any{
		"person":       "1",
		"source":       "webkit",
		"command":      "night",
		"responseTime": 120,
		"accuracy":     0.9,
		"errorRate":    0.1,
	}
}

func seed(t *testing.T, store *memory.Store, trials ...trial.Trial) {
	t.Helper()
	for _, tr := range trials {
		_, err := store.CreateTrial(context.Background(), tr)
		require.NoError(t, err)
	}
}

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func mk(person string, src trial.Source, cmd trial.Command, rt float64, minutes int) trial.Trial {
	return trial.Trial{
		Person: person, Source: src, Command: cmd,
		ResponseTime: rt, Accuracy: rt / 1000, ErrorRate: 1 - rt/1000,
		Timestamp: base.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, gjson.Get(body, "success").Bool())
	assert.Equal(t, healthMessage, gjson.Get(body, "message").String())
	assert.Equal(t, int64(2), gjson.Get(body, "accessibleFrom.#").Int())
	assert.NotEmpty(t, rec.Header().Get(middleware.TraceHeader))
}

func TestAddTrial(t *testing.T) {
	h, store := newTestHandler(t)

	rec := postTrial(t, h, validPayload())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.True(t, gjson.Get(body, "success").Bool())
	assert.NotEmpty(t, gjson.Get(body, "data._id").String())
	assert.Equal(t, "night", gjson.Get(body, "data.command").String())
	assert.Equal(t, 120.0, gjson.Get(body, "data.responseTime").Float())
	assert.True(t, gjson.Get(body, "data.timestamp").Exists())

	// trailing slash alias
	rec = do(t, h, http.MethodPost, "/api/trials/", marshal(validPayload()))
	require.Equal(t, http.StatusCreated, rec.Code)

	n, _ := store.CountTrials(context.Background(), trial.Filter{})
	assert.Equal(t, 2, n)
}

func TestAddTrialDefaultsAndCoercion(t *testing.T) {
	h, _ := newTestHandler(t)

	payload := validPayload()
	delete(payload, "command")
	payload["person"] = 7
	payload["responseTime"] = "88.5"
	payload["timestamp"] = "2026-01-02T03:04:05Z"

	rec := postTrial(t, h, payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Equal(t, "unknown", gjson.Get(body, "data.command").String())
	assert.Equal(t, "7", gjson.Get(body, "data.person").String())
	assert.Equal(t, 88.5, gjson.Get(body, "data.responseTime").Float())
	assert.Equal(t, "2026-01-02T03:04:05Z", gjson.Get(body, "data.timestamp").String())

	payload["timestamp"] = 1767323045000
	rec = postTrial(t, h, payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "2026-01-02T03:04:05Z", gjson.Get(rec.Body.String(), "data.timestamp").String())
}

func TestAddTrialRejectsNonFiniteNumbers(t *testing.T) {
	h, store := newTestHandler(t)

	bodies := map[string]string{
		"NaN string":      `{"person":"1","source":"webkit","responseTime":"NaN","accuracy":1,"errorRate":0}`,
		"Inf string":      `{"person":"1","source":"webkit","responseTime":"Inf","accuracy":1,"errorRate":0}`,
		"Infinity string": `{"person":"1","source":"webkit","responseTime":1,"accuracy":"-Infinity","errorRate":0}`,
		"overflowing":     `{"person":"1","source":"webkit","responseTime":1,"accuracy":1,"errorRate":1e400}`,
	}
	for name, body := range bodies {
		rec := do(t, h, http.MethodPost, "/api/trials", []byte(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.False(t, gjson.Get(rec.Body.String(), "success").Bool(), name)
	}

	n, _ := store.CountTrials(context.Background(), trial.Filter{})
	assert.Zero(t, n)

	for _, path := range []string{"/api/trials", "/api/trials/compare", "/api/trials/top-fastest"} {
		rec := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, gjson.Get(rec.Body.String(), "success").Bool(), path)
	}
}

func TestAddTrialRejects(t *testing.T) {
	h, store := newTestHandler(t)

	cases := []struct {
		name    string
		body    []byte
		message string
	}{
		{"missing person", marshal(func() map[string]any { p := validPayload(); delete(p, "person"); return p }()), "Person field is required."},
		{"null person", marshal(func() map[string]any { p := validPayload(); p["person"] = nil; return p }()), "Person field is required."},
		{"empty body", nil, "Person field is required."},
		{"bad source", marshal(func() map[string]any { p := validPayload(); p["source"] = "foo"; return p }()), "source"},
		{"bad command", marshal(func() map[string]any { p := validPayload(); p["command"] = "jump"; return p }()), "command"},
		{"missing accuracy", marshal(func() map[string]any { p := validPayload(); delete(p, "accuracy"); return p }()), "accuracy"},
		{"object person", marshal(func() map[string]any { p := validPayload(); p["person"] = map[string]any{"id": 1}; return p }()), "person"},
		{"non numeric", marshal(func() map[string]any { p := validPayload(); p["errorRate"] = "lots"; return p }()), "errorRate"},
		{"malformed json", []byte(`{"person": "1",`), "valid JSON"},
		{"array body", []byte(`[1,2]`), "JSON object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/trials", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, gjson.Get(rec.Body.String(), "success").Bool())
			assert.Contains(t, gjson.Get(rec.Body.String(), "message").String(), tc.message)
		})
	}

	n, _ := store.CountTrials(context.Background(), trial.Filter{})
	assert.Zero(t, n)
}

func TestListTrials(t *testing.T) {
	h, store := newTestHandler(t)
	for i := 0; i < 25; i++ {
		person := "1"
		if i >= 20 {
			person = "2"
		}
		seed(t, store, mk(person, trial.SourceWebkit, "red", float64(i), i))
	}

	rec := do(t, h, http.MethodGet, "/api/trials", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, int64(25), gjson.Get(body, "pagination.total").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "pagination.page").Int())
	assert.Equal(t, int64(2), gjson.Get(body, "pagination.pages").Int())
	assert.Equal(t, int64(20), gjson.Get(body, "data.#").Int())
	assert.Equal(t, 24.0, gjson.Get(body, "data.0.responseTime").Float())

	rec = do(t, h, http.MethodGet, "/api/trials?page=2&limit=20", nil)
	assert.Equal(t, int64(5), gjson.Get(rec.Body.String(), "data.#").Int())

	rec = do(t, h, http.MethodGet, "/api/trials?person=02", nil)
	assert.Equal(t, int64(5), gjson.Get(rec.Body.String(), "pagination.total").Int())

	rec = do(t, h, http.MethodGet, "/api/trials?person=All", nil)
	assert.Equal(t, int64(25), gjson.Get(rec.Body.String(), "pagination.total").Int())

	// a blank person filters on person "0" rather than listing everyone
	seed(t, store, mk("0", trial.SourceONNX, "red", 1, 30))
	rec = do(t, h, http.MethodGet, "/api/trials?person=", nil)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "pagination.total").Int())
	assert.Equal(t, "0", gjson.Get(rec.Body.String(), "data.0.person").String())

	rec = do(t, h, http.MethodGet, "/api/trials?person=bob", nil)
	body = rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), gjson.Get(body, "pagination.total").Int())
	assert.Equal(t, int64(0), gjson.Get(body, "pagination.pages").Int())
	assert.True(t, gjson.Get(body, "data").IsArray())

	for _, bad := range []string{"page=0", "page=x", "limit=-5"} {
		rec = do(t, h, http.MethodGet, "/api/trials?"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestCompareTrials(t *testing.T) {
	h, store := newTestHandler(t)
	seed(t, store,
		mk("1", trial.SourceWebkit, "red", 100, 0),
		mk("1", trial.SourceWebkit, "red", 300, 1),
		mk("2", trial.SourceONNX, "red", 50, 2),
	)

	rec := do(t, h, http.MethodGet, "/api/trials/compare", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "All Trials", gjson.Get(body, "data.webkit.person").String())
	assert.Equal(t, 200.0, gjson.Get(body, "data.webkit.avgResponseTime").Float())
	assert.Equal(t, int64(2), gjson.Get(body, "data.webkit.count").Int())
	assert.Equal(t, 300.0, gjson.Get(body, "data.webkit.trend.0.responseTime").Float())
	assert.Equal(t, int64(1), gjson.Get(body, "data.onnx.count").Int())

	rec = do(t, h, http.MethodGet, "/api/trials/compare?person=1&range=1", nil)
	body = rec.Body.String()
	assert.Equal(t, "1", gjson.Get(body, "data.webkit.person").String())
	assert.Equal(t, int64(1), gjson.Get(body, "data.webkit.count").Int())
	assert.Equal(t, "1", gjson.Get(body, "data.onnx.person").String())
	assert.Equal(t, gjson.Null, gjson.Get(body, "data.onnx.avgResponseTime").Type)
	assert.True(t, gjson.Get(body, "data.onnx.trend").IsArray())
	assert.Equal(t, int64(0), gjson.Get(body, "data.onnx.trend.#").Int())

	rec = do(t, h, http.MethodGet, "/api/trials/compare?range=abc", nil)
	assert.Equal(t, int64(2), gjson.Get(rec.Body.String(), "data.webkit.count").Int())
}

func TestCommandEndpoints(t *testing.T) {
	h, store := newTestHandler(t)
	seed(t, store,
		mk("1", trial.SourceWebkit, "night", 1, 0),
		mk("1", trial.SourceWebkit, "night", 1, 1),
		mk("1", trial.SourceONNX, "undo", 1, 2),
		mk("1", trial.SourceONNX, "", 1, 3),
	)

	rec := do(t, h, http.MethodGet, "/api/trials/command-stats?range=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "data.unknown").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "data.undo").Int())
	assert.False(t, gjson.Get(body, "data.night").Exists())

	for _, path := range []string{"/api/trials/commands/distribution", "/api/trials/aggregate"} {
		rec = do(t, h, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		body = rec.Body.String()
		assert.Equal(t, int64(3), gjson.Get(body, "data.#").Int())
		assert.Equal(t, "night", gjson.Get(body, "data.0.command").String())
		assert.Equal(t, int64(2), gjson.Get(body, "data.0.count").Int())
	}
}

func TestTopFastest(t *testing.T) {
	h, store := newTestHandler(t)
	for i, rt := range []float64{100, 200, 150, 50, 300} {
		seed(t, store, mk("Person 6", trial.SourceONNX, "ghost", rt, i))
	}

	rec := do(t, h, http.MethodGet, "/api/trials/top-fastest?person=Person%206", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "Person 6", gjson.Get(body, "data.person").String())
	var rts []float64
	for _, v := range gjson.Get(body, "data.top3.#.responseTime").Array() {
		rts = append(rts, v.Float())
	}
	assert.Equal(t, []float64{50, 100, 150}, rts)
	assert.InDelta(t, 0.16, gjson.Get(body, "data.avgAccuracy").Float(), 1e-9)
	assert.Equal(t, "onnx", gjson.Get(body, "data.top3.0.source").String())
	assert.Equal(t, "ghost", gjson.Get(body, "data.top3.0.command").String())

	rec = do(t, h, http.MethodGet, "/api/trials/top-fastest?person=nobody", nil)
	body = rec.Body.String()
	assert.Equal(t, int64(0), gjson.Get(body, "data.top3.#").Int())
	assert.Equal(t, gjson.Null, gjson.Get(body, "data.avgAccuracy").Type)
	assert.Equal(t, gjson.Null, gjson.Get(body, "data.avgErrorRate").Type)
}

func TestResetTrials(t *testing.T) {
	h, store := newTestHandler(t)
	seed(t, store, mk("1", trial.SourceWebkit, "red", 1, 0), mk("1", trial.SourceONNX, "red", 1, 1))

	rec := do(t, h, http.MethodDelete, "/api/trials/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, resetMessage, gjson.Get(body, "message").String())
	assert.Equal(t, int64(2), gjson.Get(body, "deleted").Int())

	rec = do(t, h, http.MethodGet, "/api/trials", nil)
	assert.Equal(t, int64(0), gjson.Get(rec.Body.String(), "pagination.total").Int())
}

func TestRoutingErrors(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, gjson.Get(rec.Body.String(), "success").Bool())

	rec = do(t, h, http.MethodGet, "/api/trials/reset", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.False(t, gjson.Get(rec.Body.String(), "success").Bool())
}

func TestCORSRejection(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/trials", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Not allowed by CORS", gjson.Get(rec.Body.String(), "message").String())

	req = httptest.NewRequest(http.MethodGet, "/api/trials", nil)
	req.Header.Set("Origin", "https://thsis-full-abc.vercel.app")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://thsis-full-abc.vercel.app", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitedStack(t *testing.T) {
	log := quietLogger()
	application := app.New(app.Stores{Trials: memory.New()}, log)
	h := New(application, Options{
		AllowedOrigins: testOrigins,
		RateLimiter:    middleware.NewRateLimiter(1, 1, log),
		Log:            log,
	})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/trials", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/trials", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	do(t, h, http.MethodGet, "/api/trials/compare", nil)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `path="/api/trials/compare"`))
}

func TestStoreFailureIs500(t *testing.T) {
	log := quietLogger()
	application := app.New(app.Stores{Trials: testutil.NewMockTrialStore().FailAll(errors.New("database unavailable"))}, log)
	h := New(application, Options{Log: log})

	for _, tc := range []struct{ method, path, message string }{
		{http.MethodGet, "/api/trials/command-stats", "failed to load command stats"},
		{http.MethodGet, "/api/trials/commands/distribution", "Server Error"},
		{http.MethodDelete, "/api/trials/reset", "Failed to reset trials."},
		{http.MethodGet, "/api/trials/top-fastest", "failed to load fastest trials"},
	} {
		rec := do(t, h, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tc.path)
		assert.Equal(t, tc.message, gjson.Get(rec.Body.String(), "message").String(), tc.path)
	}
}

func TestUnencodableResponseIs500(t *testing.T) {
	h := &handler{log: quietLogger()}
	req := httptest.NewRequest(http.MethodGet, "/api/trials/compare", nil)
	rec := httptest.NewRecorder()

	h.writeJSON(rec, req, http.StatusOK, map[string]any{"success": true, "data": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.False(t, gjson.Get(body, "success").Bool())
	assert.Equal(t, "Server Error", gjson.Get(body, "message").String())
}
