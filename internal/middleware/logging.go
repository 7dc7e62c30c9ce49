package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"gallery-viewer/internal/logging"
)

// LoggingConfig selects which requests are logged.
type LoggingConfig struct {
	// SkipPaths are path prefixes that are never logged.
	SkipPaths       []string
	LogHealthChecks bool
}

// DefaultLoggingConfig skips scrapes and probes.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{SkipPaths: []string{"/metrics"}}
}

var probePaths = map[string]bool{
	"/health": true,
	"/livez":  true,
	"/readyz": true,
}

// W3CLogger writes one W3C Extended Log Format line per request:
//
//	date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken sc(Content-Encoding) cs(User-Agent) cs(Referer)
type W3CLogger struct {
	config LoggingConfig
	emit   func(string)
}

// NewW3CLogger creates a logger writing lines to emit, or to the
// application log when emit is nil.
func NewW3CLogger(config LoggingConfig, emit func(string)) *W3CLogger {
	if emit == nil {
		emit = func(line string) { logging.Info("%s", line) }
	}
	return &W3CLogger{config: config, emit: emit}
}

// Logger returns request logging middleware writing to the application log.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return NewW3CLogger(config, nil).Middleware
}

// Middleware wraps next with request logging.
func (l *W3CLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)
		l.emit(formatW3C(r, rec, start))
	})
}

func (l *W3CLogger) skip(path string) bool {
	if !l.config.LogHealthChecks && probePaths[path] {
		return true
	}
	for _, prefix := range l.config.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func formatW3C(r *http.Request, rec *statusRecorder, start time.Time) string {
	now := time.Now().UTC()
	fields := []string{
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		field(clientIP(r)),
		field(r.Method),
		field(r.URL.Path),
		field(r.URL.RawQuery),
		strconv.Itoa(rec.status),
		strconv.FormatInt(rec.written, 10),
		strconv.FormatInt(time.Since(start).Milliseconds(), 10),
		field(rec.Header().Get("Content-Encoding")),
		quoted(field(r.Header.Get("User-Agent"))),
		field(r.Header.Get("Referer")),
	}
	return strings.Join(fields, " ")
}

// field sanitizes a client-controlled value; empty values become "-".
func field(s string) string {
	s = sanitizeLogField(s)
	if s == "" {
		return "-"
	}
	return s
}

// quoted wraps values containing blanks or quotes, doubling inner quotes.
func quoted(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// sanitizeLogField drops control characters so a request cannot forge log
// lines or terminal escapes. Line breaks become spaces; tabs are kept.
func sanitizeLogField(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20:
			return -1
		}
		return r
	}, s)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address without its port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if i := strings.LastIndex(ip, ":"); i != -1 {
		ip = ip[:i]
	}
	return ip
}
