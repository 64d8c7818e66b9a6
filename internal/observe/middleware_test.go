package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMiddleware_RecordsDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	mw := Middleware(m)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	rm := collect(t, reader)
	met := findMetric(rm, "parley.http.request.duration")
	if met == nil {
		t.Fatal("http duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}

	dp := hist.DataPoints[0]
	var gotMethod, gotPath string
	for _, kv := range dp.Attributes.ToSlice() {
		switch string(kv.Key) {
		case "method":
			gotMethod = kv.Value.AsString()
		case "path":
			gotPath = kv.Value.AsString()
		}
	}
	if gotMethod != "GET" || gotPath != "/healthz" {
		t.Errorf("attributes = %s %s, want GET /healthz", gotMethod, gotPath)
	}
}

func TestMiddleware_CapturesStatusCode(t *testing.T) {
	m, _ := newTestMetrics(t)
	mw := Middleware(m)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}
