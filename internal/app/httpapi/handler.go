package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	app "github.com/R3E-Network/voice_metrics/internal/app"
	"github.com/R3E-Network/voice_metrics/internal/app/domain/trial"
	"github.com/R3E-Network/voice_metrics/internal/app/metrics"
	"github.com/R3E-Network/voice_metrics/internal/app/services/trials"
	apperrors "github.com/R3E-Network/voice_metrics/internal/errors"
	"github.com/R3E-Network/voice_metrics/internal/middleware"
	"github.com/R3E-Network/voice_metrics/pkg/logger"
)

const (
	healthMessage = "✅ Voice Metrics API is running successfully!"
	resetMessage  = "All trial data has been reset."

	maxBodyBytes = 1 << 20
)

// Options configures the middleware chain around the router.
type Options struct {
	AllowedOrigins []string
	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter *middleware.RateLimiter
	Log         *logger.Logger
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app     *app.Application
	origins []string
	log     *logger.Logger
}

// New returns the full HTTP stack: request logging, CORS, optional rate
// limiting and the trials router.
func New(application *app.Application, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	cors := middleware.NewCORSMiddleware(opts.AllowedOrigins, log.Named("cors"))

	var h http.Handler = NewRouter(application, cors.AllowedOrigins(), log)
	if opts.RateLimiter != nil {
		h = opts.RateLimiter.Handler(h)
	}
	h = cors.Handler(h)
	return middleware.LoggingMiddleware(log.Named("http"))(h)
}

// NewRouter returns a router exposing the trials REST API, the health check
// and the Prometheus endpoint.
func NewRouter(application *app.Application, origins []string, log *logger.Logger) *mux.Router {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, origins: origins, log: log}

	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware())
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)

	r.HandleFunc("/", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/trials", h.addTrial).Methods(http.MethodPost)
	r.HandleFunc("/api/trials/", h.addTrial).Methods(http.MethodPost)
	r.HandleFunc("/api/trials", h.listTrials).Methods(http.MethodGet)
	r.HandleFunc("/api/trials/", h.listTrials).Methods(http.MethodGet)
	r.HandleFunc("/api/trials/compare", h.compareTrials).Methods(http.MethodGet)
	r.HandleFunc("/api/trials/command-stats", h.commandStats).Methods(http.MethodGet)
	r.HandleFunc("/api/trials/commands/distribution", h.commandDistribution).Methods(http.MethodGet)
	r.HandleFunc("/api/trials/aggregate", h.commandDistribution).Methods(http.MethodGet)
	r.HandleFunc("/api/trials/reset", h.resetTrials).Methods(http.MethodDelete)
	r.HandleFunc("/api/trials/top-fastest", h.topFastest).Methods(http.MethodGet)
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"success":        true,
		"message":        healthMessage,
		"accessibleFrom": h.origins,
	})
}

func (h *handler) addTrial(w http.ResponseWriter, r *http.Request) {
	draft, err := decodeDraft(r.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.app.Trials.Add(r.Context(), draft)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, map[string]any{"success": true, "data": created})
}

func (h *handler) listTrials(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := trials.ParsePositive("page", q.Get("page"), 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := trials.ParsePositive("limit", q.Get("limit"), trials.DefaultPageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	opts := trials.ListOptions{Page: page, Limit: limit}
	if values, ok := q["person"]; ok && len(values) > 0 && values[0] != "All" {
		coerced := trials.CoercePerson(values[0])
		opts.Person = &coerced
	}

	result, err := h.app.Trials.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"pagination": map[string]int{
			"total": result.Total,
			"page":  result.Page,
			"pages": result.Pages,
		},
		"data": result.Trials,
	})
}

func (h *handler) compareTrials(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.app.Trials.Compare(r.Context(), personParam(q), trials.ParseRange(q.Get("range"), q.Has("range")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "data": result})
}

func (h *handler) commandStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	counts, err := h.app.Trials.CommandStats(r.Context(), trials.ParseRange(q.Get("range"), q.Has("range")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "data": counts})
}

func (h *handler) commandDistribution(w http.ResponseWriter, r *http.Request) {
	groups, err := h.app.Trials.CommandDistribution(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "data": groups})
}

func (h *handler) topFastest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	summary, err := h.app.Trials.TopFastest(r.Context(), personParam(q), trials.ParseRange(q.Get("range"), q.Has("range")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "data": summary})
}

func (h *handler) resetTrials(w http.ResponseWriter, r *http.Request) {
	removed, err := h.app.Trials.Reset(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"message": resetMessage,
		"deleted": removed,
	})
}

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, apperrors.NotFound(fmt.Sprintf("route %s %s not found", r.Method, r.URL.Path)))
}

func (h *handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, apperrors.MethodNotAllowed(fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path)))
}

// personParam returns the person query parameter, defaulting to "all" only
// when it is absent.
func personParam(q map[string][]string) string {
	values, ok := q["person"]
	if !ok || len(values) == 0 {
		return "all"
	}
	return values[0]
}

// decodeDraft reads a trial submission. Numeric fields accept JSON numbers or
// numeric strings; person accepts strings, numbers and booleans.
func decodeDraft(body io.ReadCloser) (trial.Draft, error) {
	defer body.Close()
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return trial.Draft{}, apperrors.Validation("failed to read request body", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	if !gjson.ValidBytes(raw) {
		return trial.Draft{}, apperrors.Validation("request body must be valid JSON", nil)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return trial.Draft{}, apperrors.Validation("request body must be a JSON object", nil)
	}

	var draft trial.Draft
	if draft.Person, err = personField(doc.Get("person")); err != nil {
		return trial.Draft{}, err
	}
	if draft.Source, err = stringField("source", doc.Get("source")); err != nil {
		return trial.Draft{}, err
	}
	if draft.Command, err = stringField("command", doc.Get("command")); err != nil {
		return trial.Draft{}, err
	}
	if draft.ResponseTime, err = numberField("responseTime", doc.Get("responseTime")); err != nil {
		return trial.Draft{}, err
	}
	if draft.Accuracy, err = numberField("accuracy", doc.Get("accuracy")); err != nil {
		return trial.Draft{}, err
	}
	if draft.ErrorRate, err = numberField("errorRate", doc.Get("errorRate")); err != nil {
		return trial.Draft{}, err
	}
	if draft.Timestamp, err = timeField("timestamp", doc.Get("timestamp")); err != nil {
		return trial.Draft{}, err
	}
	return draft, nil
}

func personField(v gjson.Result) (*string, error) {
	var person string
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.String:
		person = v.Str
	case gjson.Number:
		person = trials.CoercePerson(v.Raw)
	case gjson.True, gjson.False:
		person = v.Raw
	default:
		return nil, apperrors.Validation("person must be a string or number", nil)
	}
	return &person, nil
}

func stringField(name string, v gjson.Result) (string, error) {
	switch v.Type {
	case gjson.Null:
		return "", nil
	case gjson.String:
		return v.Str, nil
	default:
		return "", apperrors.Validation(name+" must be a string", nil)
	}
}

func numberField(name string, v gjson.Result) (*float64, error) {
	var f float64
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.Number:
		f = v.Float()
	case gjson.String:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err != nil {
			return nil, apperrors.Validation(name+" must be a number", err)
		}
	default:
		return nil, apperrors.Validation(name+" must be a number", nil)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, apperrors.Validation(name+" must be a finite number", nil)
	}
	return &f, nil
}

// timeField accepts an RFC 3339 string or epoch milliseconds.
func timeField(name string, v gjson.Result) (*time.Time, error) {
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.Number:
		ts := time.UnixMilli(v.Int()).UTC()
		return &ts, nil
	case gjson.String:
		ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v.Str))
		if err != nil {
			return nil, apperrors.Validation(name+" must be an RFC 3339 date-time", err)
		}
		return &ts, nil
	default:
		return nil, apperrors.Validation(name+" must be a date-time", nil)
	}
}

// errorBody is the failure envelope. Its fields always encode.
type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// writeJSON encodes data before committing status, so an unencodable
// response becomes a 500 envelope instead of an empty success.
func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		h.writeError(w, r, apperrors.Internal("Server Error", err))
		return
	}
	writeBody(w, status, body)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	message := err.Error()
	if se := apperrors.GetServiceError(err); se != nil {
		message = se.Message
	}
	if status >= http.StatusInternalServerError {
		h.log.WithContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).
			Error("request failed")
	}
	body, _ := json.Marshal(errorBody{Success: false, Message: message})
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
