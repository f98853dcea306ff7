package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/collections/{slug}", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"docs":[]}`))
		})
		r.Route("/admin/seed", func(r chi.Router) {
			r.Get("/files/{name}", func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "missing", http.StatusNotFound)
			})
		})
		r.Post("/newsletter", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	})
	return r
}

func TestHTTPMiddlewareLabelsByRoute(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	router := newRouter()
	for _, path := range []string{"/api/v1/collections/pages", "/api/v1/collections/posts"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/admin/seed/files/seed-20260101.json", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/newsletter", nil))

	tests := []struct {
		method, route, status string
		want                  float64
	}{
		{"GET", "/api/v1/collections/{slug}", "200", 2},
		{"GET", "/api/v1/admin/seed/files/{name}", "404", 1},
		{"POST", "/api/v1/newsletter", "429", 1},
		{"GET", "/api/v1/collections/pages", "200", 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues(tt.method, tt.route, tt.status)); got != tt.want {
			t.Errorf("requests{%s %s %s} = %v, want %v", tt.method, tt.route, tt.status, got, tt.want)
		}
	}

	if got := testutil.ToFloat64(m.APIErrorsTotal.WithLabelValues("not_found")); got != 1 {
		t.Errorf("not_found errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.APIErrorsTotal.WithLabelValues("rate_limited")); got != 1 {
		t.Errorf("rate_limited errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.APIRequestDurationSeconds); got != 3 {
		t.Errorf("duration series = %d, want 3", got)
	}
}

func TestHTTPMiddlewareUnmatchedPaths(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	router := newRouter()
	for _, path := range []string{"/wp-login.php", "/.env", "/xmlrpc.php"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d, want 404", path, rec.Code)
		}
	}

	if got := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")); got != 3 {
		t.Errorf("unmatched requests = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(m.APIRequestsTotal); got != 1 {
		t.Errorf("request series = %d, want 1", got)
	}
}

func TestHTTPMiddlewareWithoutGlobal(t *testing.T) {
	SetGlobal(nil)

	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/collections/pages", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"docs":[]}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestErrorClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusOK, ""},
		{http.StatusCreated, ""},
		{http.StatusNotModified, ""},
		{http.StatusBadRequest, "bad_request"},
		{http.StatusRequestEntityTooLarge, "bad_request"},
		{http.StatusUnauthorized, "auth_error"},
		{http.StatusForbidden, "auth_error"},
		{http.StatusNotFound, "not_found"},
		{http.StatusTooManyRequests, "rate_limited"},
		{http.StatusConflict, "client_error"},
		{http.StatusInternalServerError, "server_error"},
		{http.StatusBadGateway, "server_error"},
	}
	for _, tt := range tests {
		if got := errorClass(tt.status); got != tt.want {
			t.Errorf("errorClass(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
