package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if metrics.HTTPRequestDuration == nil {
		t.Error("HTTPRequestDuration is nil")
	}
	if metrics.HTTPInFlight == nil {
		t.Error("HTTPInFlight is nil")
	}

	t.Run("registering twice panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected duplicate registration to panic")
			}
		}()
		NewMetrics(registry)
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["id"] == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	for _, id := range []string{"1", "2", "missing"} {
		req := httptest.NewRequest(http.MethodGet, "/users/"+id, nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	ok := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/users/{id}", "200"))
	if ok != 2 {
		t.Errorf("expected 2 requests with code 200, got %v", ok)
	}
	notFound := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/users/{id}", "404"))
	if notFound != 1 {
		t.Errorf("expected 1 request with code 404, got %v", notFound)
	}
	if inFlight := testutil.ToFloat64(metrics.HTTPInFlight); inFlight != 0 {
		t.Errorf("expected no requests in flight, got %v", inFlight)
	}
	if count := testutil.CollectAndCount(metrics.HTTPRequestDuration); count != 1 {
		t.Errorf("expected 1 duration series, got %d", count)
	}
}

func TestHTTPMetricsMiddleware_CountsPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recover() != nil {
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	})
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/work", func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/work", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected outer recovery to write 500, got %d", rec.Code)
	}
	failed := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/work", "500"))
	if failed != 1 {
		t.Errorf("expected the panicking request to be counted as 500, got %v", failed)
	}
	if count := testutil.CollectAndCount(metrics.HTTPRequestDuration); count != 1 {
		t.Errorf("expected 1 duration series, got %d", count)
	}
	if inFlight := testutil.ToFloat64(metrics.HTTPInFlight); inFlight != 0 {
		t.Errorf("expected no requests in flight, got %v", inFlight)
	}
}

func TestResponseWriter_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rw.statusCode)
	}
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/work", "200").Inc()

	srv := httptest.NewServer(MetricsHandler(registry))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	for _, want := range []string{
		`http_requests_total{code="200",endpoint="/work",method="GET"} 1`,
		"go_goroutines",
		"http_requests_in_flight",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected scrape output to contain %q", want)
		}
	}
}
