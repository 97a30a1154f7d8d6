package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"batch-renamer/internal/metrics"
)

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	w := httptest.NewRecorder()
	rec := record(w)

	if rec.status != http.StatusOK {
		t.Errorf("default status = %d, want 200", rec.status)
	}

	rec.WriteHeader(http.StatusNotFound)
	rec.WriteHeader(http.StatusInternalServerError)

	if rec.status != http.StatusNotFound || w.Code != http.StatusNotFound {
		t.Errorf("status = %d, recorder = %d, want 404 for both", rec.status, w.Code)
	}
	if rec.Unwrap() != w {
		t.Error("Unwrap should return the wrapped writer")
	}
}

func TestStatusRecorderCountsBytes(t *testing.T) {
	rec := record(httptest.NewRecorder())

	data := []byte("thumbnail bytes")
	n, err := rec.Write(data)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(data) || rec.written != int64(len(data)) {
		t.Errorf("n=%d written=%d, want %d", n, rec.written, len(data))
	}
	if !rec.started {
		t.Error("a body write should mark the response started")
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "/api/stats", "/api/stats"},
		{"newline", "a\nb", "a b"},
		{"carriage return", "a\r\nb", "a  b"},
		{"ansi escape", "\x1b[31mred", "[31mred"},
		{"null byte", "a\x00b", "ab"},
		{"tab kept", "a\tb", "a\tb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clean(tt.input); got != tt.want {
				t.Errorf("clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAccessLogConfigExcluded(t *testing.T) {
	config := DefaultAccessLogConfig()

	if !config.excluded("/metrics") {
		t.Error("/metrics should be excluded by default")
	}
	if config.excluded("/healthz") {
		t.Error("health checks are logged when LogHealthChecks is set")
	}

	config.LogHealthChecks = false
	if !config.excluded("/healthz") {
		t.Error("/healthz should be excluded without LogHealthChecks")
	}
	if config.excluded("/healthz/extra") {
		t.Error("health check paths match exactly")
	}
	if config.excluded("/api/thumbnail/a.jpg") {
		t.Error("API requests are always logged")
	}
}

func TestAccessEntryString(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/thumbnail/a%0Ab.jpg?size=128", nil)
	r.RemoteAddr = "10.0.0.5:51234"
	r.Header.Set("User-Agent", "curl/8.0 test")

	rec := record(httptest.NewRecorder())
	rec.WriteHeader(http.StatusAccepted)
	_, _ = rec.Write([]byte("hello"))

	line := newAccessEntry(r, rec, 42*time.Millisecond).String()

	if strings.Contains(line, "\n") {
		t.Errorf("access line must be a single line: %q", line)
	}
	for _, want := range []string{"10.0.0.5", "GET", "size=128", " 202 5 42 ", `"curl/8.0 test"`} {
		if !strings.Contains(line, want) {
			t.Errorf("access line %q missing %q", line, want)
		}
	}
	if !strings.Contains(line, " 42 - ") {
		t.Errorf("missing content encoding should log as -: %q", line)
	}
}

func TestClientAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.2:1234"
	if got := clientAddr(r); got != "192.168.1.2" {
		t.Errorf("clientAddr() = %q", got)
	}

	r.RemoteAddr = "[2001:db8::1]:443"
	if got := clientAddr(r); got != "2001:db8::1" {
		t.Errorf("clientAddr() for IPv6 = %q", got)
	}

	r.Header.Set("X-Real-IP", "172.16.0.1")
	if got := clientAddr(r); got != "172.16.0.1" {
		t.Errorf("clientAddr() with X-Real-IP = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientAddr(r); got != "203.0.113.9" {
		t.Errorf("clientAddr() with X-Forwarded-For = %q", got)
	}
}

func TestAccessLogPassesThrough(t *testing.T) {
	handler := AccessLog(DefaultAccessLogConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestCompressionMiddleware(t *testing.T) {
	large := strings.Repeat(`{"key":"value"},`, 200)

	tests := []struct {
		name           string
		acceptEncoding string
		contentType    string
		body           string
		wantGzip       bool
	}{
		{"large json", "gzip, deflate", "application/json", large, true},
		{"small json", "gzip", "application/json", `{"a":1}`, false},
		{"client without gzip", "", "application/json", large, false},
		{"jpeg never compressed", "gzip", "image/jpeg", large, false},
		{"json with charset", "gzip", "application/json; charset=utf-8", large, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusCreated)
				// Split writes to exercise buffering
				half := len(tt.body) / 2
				_, _ = w.Write([]byte(tt.body[:half]))
				_, _ = w.Write([]byte(tt.body[half:]))
			}))

			r := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if tt.acceptEncoding != "" {
				r.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, r)

			if rec.Code != http.StatusCreated {
				t.Errorf("status = %d, want 201", rec.Code)
			}

			gotGzip := rec.Header().Get("Content-Encoding") == "gzip"
			if gotGzip != tt.wantGzip {
				t.Fatalf("gzip = %v, want %v", gotGzip, tt.wantGzip)
			}

			body := rec.Body.Bytes()
			if gotGzip {
				zr, err := gzip.NewReader(bytes.NewReader(body))
				if err != nil {
					t.Fatalf("gzip.NewReader: %v", err)
				}
				body, err = io.ReadAll(zr)
				if err != nil {
					t.Fatalf("reading gzip body: %v", err)
				}
			}
			if string(body) != tt.body {
				t.Errorf("body mismatch: got %d bytes, want %d", len(body), len(tt.body))
			}
		})
	}
}

func TestCompressionEmptyBody(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodDelete, "/api/thumbnail-order/x", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("empty body should not be compressed")
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/thumbnail/{path:.*}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/thumbnail/{path:.*}", "404")
	before := testutil.ToFloat64(counter)

	for _, p := range []string{"/api/thumbnail/a/b.jpg", "/api/thumbnail/c.png"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("route counter increased by %v, want 2", got)
	}
}

func TestMetricsSkipPaths(t *testing.T) {
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "200")
	before := testutil.ToFloat64(counter)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/other", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("unmatched counter increased by %v, want 1 (metrics path skipped)", got)
	}
}
