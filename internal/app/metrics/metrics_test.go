package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersExposeSeries(t *testing.T) {
	before := testutil.ToFloat64(trialsCreated.WithLabelValues("onnx", "night"))
	RecordTrialCreated("onnx", "night")
	if got := testutil.ToFloat64(trialsCreated.WithLabelValues("onnx", "night")); got != before+1 {
		t.Fatalf("expected created counter to advance, got %v", got)
	}

	RecordTrialCreated("webkit", "")
	if got := testutil.ToFloat64(trialsCreated.WithLabelValues("webkit", "unknown")); got < 1 {
		t.Fatalf("expected empty command to count as unknown")
	}

	deleted := testutil.ToFloat64(trialsDeleted)
	RecordTrialsDeleted(0)
	RecordTrialsDeleted(4)
	if got := testutil.ToFloat64(trialsDeleted); got != deleted+4 {
		t.Fatalf("expected deleted counter +4, got %v", got-deleted)
	}

	release := TrackInFlight()
	if got := testutil.ToFloat64(httpInFlight); got != 1 {
		t.Fatalf("expected one in-flight request, got %v", got)
	}
	release()

	RecordHTTPRequest("get", "/api/trials", http.StatusOK, 3*time.Millisecond)
	ObserveQuery("compare", 0, true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`voice_metrics_http_requests_total{method="GET",path="/api/trials",status="200"}`,
		`voice_metrics_trials_query_duration_seconds_count{operation="compare",success="true"}`,
		"voice_metrics_trials_deleted_total",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("exposition missing %s", want)
		}
	}
}
