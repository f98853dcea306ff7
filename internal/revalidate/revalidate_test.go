package revalidate

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Kalhara-JA/retail-os/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRevalidate(t *testing.T) {
	m := metrics.New()
	metrics.SetGlobal(m)
	defer metrics.SetGlobal(nil)

	var gotTag, gotSecret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotSecret = r.Header.Get(SecretHeader)

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		gotTag = body["tag"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "s3cret", time.Second, testLogger())
	c.Revalidate(context.Background(), "global_header")

	if gotTag != "global_header" {
		t.Errorf("tag = %q, want global_header", gotTag)
	}
	if gotSecret != "s3cret" {
		t.Errorf("secret = %q, want s3cret", gotSecret)
	}
	if got := testutil.ToFloat64(m.RevalidationsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok revalidations = %v, want 1", got)
	}
}

func TestRevalidateServerError(t *testing.T) {
	m := metrics.New()
	metrics.SetGlobal(m)
	defer metrics.SetGlobal(nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second, testLogger())
	c.Revalidate(context.Background(), "pages")

	if got := testutil.ToFloat64(m.RevalidationsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error revalidations = %v, want 1", got)
	}
}

func TestRevalidateDisabled(t *testing.T) {
	c := New("", "", 0, testLogger())
	if c.Enabled() {
		t.Error("client without URL should be disabled")
	}

	// Must return without dialing anything
	c.Revalidate(context.Background(), "pages")
}
