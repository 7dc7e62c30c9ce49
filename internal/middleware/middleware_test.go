package middleware

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"gallery-viewer/internal/metrics"
)

func TestStatusRecorder(t *testing.T) {
	t.Parallel()

	rec := newStatusRecorder(httptest.NewRecorder())
	if rec.status != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", rec.status)
	}

	rec.WriteHeader(http.StatusNotFound)
	rec.WriteHeader(http.StatusInternalServerError)
	if rec.status != http.StatusNotFound {
		t.Errorf("Expected the first status code to stick, got %d", rec.status)
	}

	n, err := rec.Write([]byte("test data"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rec.written != int64(n) {
		t.Errorf("Expected %d bytes written, got %d", n, rec.written)
	}
}

func TestSanitizeLogField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "/api/galleries", "/api/galleries"},
		{"newline", "a\nb\rc", "a b c"},
		{"null byte", "a\x00b", "ab"},
		{"ansi escape", "\x1b[31mred", "[31mred"},
		{"bell", "a\x07b", "ab"},
		{"tab kept", "a\tb", "a\tb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeLogField(tt.in); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:5", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "1.2.3.4:5", "10.0.0.9"},
		{"remote addr", nil, "1.2.3.4:5678", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLoggerMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		logged bool
	}{
		{"regular request", "/api/galleries", DefaultLoggingConfig(), true},
		{"skipped path", "/metrics", DefaultLoggingConfig(), false},
		{"health checks enabled", "/health", LoggingConfig{LogHealthChecks: true}, true},
		{"health checks disabled", "/readyz", LoggingConfig{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var lines []string
			logger := NewW3CLogger(tt.config, func(line string) { lines = append(lines, line) })
			handler := logger.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
				_, _ = w.Write([]byte("ok"))
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path+"?q=1", http.NoBody)
			req.Header.Set("User-Agent", "test agent")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusTeapot {
				t.Errorf("Expected status 418, got %d", w.Code)
			}
			if got := len(lines) == 1; got != tt.logged {
				t.Fatalf("Expected logged=%v, got %d lines", tt.logged, len(lines))
			}
			if !tt.logged {
				return
			}
			for _, want := range []string{"GET", tt.path, "q=1", " 418 2 ", `"test agent"`} {
				if !strings.Contains(lines[0], want) {
					t.Errorf("Expected %q in log line %q", want, lines[0])
				}
			}
		})
	}
}

func TestCompressionMiddleware(t *testing.T) {
	t.Parallel()

	large := strings.Repeat(`{"title":"gallery"},`, 200)
	tests := []struct {
		name           string
		acceptEncoding string
		upgrade        string
		contentType    string
		body           string
		wantGzip       bool
	}{
		{"large json", "gzip", "", "application/json", large, true},
		{"client without gzip", "", "", "application/json", large, false},
		{"small body", "gzip", "", "application/json", "{}", false},
		{"image", "gzip", "", "image/jpeg", large, false},
		{"websocket upgrade", "gzip", "websocket", "application/json", large, false},
	}

	compress, err := Compression(DefaultCompressionConfig())
	if err != nil {
		t.Fatalf("Failed to build compression middleware: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := compress(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = io.WriteString(w, tt.body)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/galleries", http.NoBody)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			if tt.upgrade != "" {
				req.Header.Set("Upgrade", tt.upgrade)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			gzipped := w.Header().Get("Content-Encoding") == "gzip"
			if gzipped != tt.wantGzip {
				t.Fatalf("Expected gzip=%v, got %v", tt.wantGzip, gzipped)
			}

			body := w.Body.Bytes()
			if gzipped {
				zr, err := gzip.NewReader(w.Body)
				if err != nil {
					t.Fatalf("Failed to open gzip body: %v", err)
				}
				if body, err = io.ReadAll(zr); err != nil {
					t.Fatalf("Failed to read gzip body: %v", err)
				}
			}
			if string(body) != tt.body {
				t.Errorf("Expected body of %d bytes, got %d", len(tt.body), len(body))
			}
		})
	}
}

func TestCompressionRejectsBadLevel(t *testing.T) {
	t.Parallel()

	config := DefaultCompressionConfig()
	config.Level = 42
	if _, err := Compression(config); err == nil {
		t.Error("Expected an error for an invalid compression level")
	}
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestStatusRecorderHijack(t *testing.T) {
	t.Parallel()

	hr := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	rec := newStatusRecorder(hr)
	if _, _, err := rec.Hijack(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !hr.hijacked {
		t.Error("Expected the underlying writer to be hijacked")
	}
	if rec.status != http.StatusSwitchingProtocols {
		t.Errorf("Expected status 101 after hijack, got %d", rec.status)
	}

	plain := newStatusRecorder(httptest.NewRecorder())
	if _, _, err := plain.Hijack(); err != http.ErrNotSupported {
		t.Errorf("Expected ErrNotSupported, got %v", err)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Metrics(DefaultMetricsConfig()))
	router.HandleFunc("/api/galleries/{id:[0-9]+}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	const template = "/api/galleries/{id:[0-9]+}"
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, template, "404")
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/api/galleries/1", "/api/galleries/2", "/health"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("Expected 2 requests under the route template, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequestsInFlight); got != 0 {
		t.Errorf("Expected no requests in flight, got %v", got)
	}
}

func TestRouteTemplateUnmatched(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody)
	if got := routeTemplate(req); got != "unmatched" {
		t.Errorf("Expected unmatched, got %q", got)
	}
}
