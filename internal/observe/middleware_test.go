package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// The channel transport upgrades the connection via
// [http.ResponseController], which walks Unwrap to reach a writer that can
// hijack. The recorder must stay transparent to that chain.
func TestMiddleware_WriterUnwrapsForHijack(t *testing.T) {
	var inner http.ResponseWriter
	h := Middleware(DefaultMetrics())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = w
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	u, ok := inner.(interface{ Unwrap() http.ResponseWriter })
	if !ok {
		t.Fatalf("handler writer %T does not expose Unwrap", inner)
	}
	if u.Unwrap() != rec {
		t.Error("Unwrap does not return the underlying writer")
	}
}

func TestMiddleware_SetsTraceHeader(t *testing.T) {
	h := Middleware(DefaultMetrics())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil))

	if rec.Header().Get("X-Trace-ID") == "" {
		t.Error("X-Trace-ID header not set")
	}
}

func TestMiddleware_SkipsMetricsScrapes(t *testing.T) {
	h := Middleware(DefaultMetrics())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Header().Get("X-Trace-ID") != "" {
		t.Error("scrape request was traced")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
