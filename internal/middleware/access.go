package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"batch-renamer/internal/logging"
)

// statusRecorder captures the status and body size a handler sent, for the
// access log and the request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
	started bool
}

func record(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.started {
		return
	}
	s.status = code
	s.started = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.started = true
	n, err := s.ResponseWriter.Write(b)
	s.written += int64(n)
	return n, err
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// AccessLogConfig selects which requests reach the access log.
type AccessLogConfig struct {
	// Exclude lists path prefixes that are never logged.
	Exclude []string
	// HealthPaths are matched exactly and logged only with LogHealthChecks.
	HealthPaths     []string
	LogHealthChecks bool
}

// DefaultAccessLogConfig leaves out scrapes of /metrics and keeps health
// checks.
func DefaultAccessLogConfig() AccessLogConfig {
	return AccessLogConfig{
		Exclude:         []string{"/metrics"},
		HealthPaths:     []string{"/healthz", "/livez", "/readyz"},
		LogHealthChecks: true,
	}
}

func (c AccessLogConfig) excluded(path string) bool {
	for _, prefix := range c.Exclude {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	if c.LogHealthChecks {
		return false
	}
	for _, hp := range c.HealthPaths {
		if path == hp {
			return true
		}
	}
	return false
}

// AccessLog writes one INFO line per request in W3C Extended order:
//
//	date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken cs(Content-Encoding) cs(User-Agent)
func AccessLog(config AccessLogConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.excluded(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			logging.Info("%s", newAccessEntry(r, rec, time.Since(start)))
		})
	}
}

type accessEntry struct {
	at       time.Time
	client   string
	method   string
	stem     string
	query    string
	status   int
	bytes    int64
	took     time.Duration
	encoding string
	agent    string
}

func newAccessEntry(r *http.Request, rec *statusRecorder, took time.Duration) accessEntry {
	return accessEntry{
		at:       time.Now().UTC(),
		client:   clientAddr(r),
		method:   r.Method,
		stem:     r.URL.Path,
		query:    r.URL.RawQuery,
		status:   rec.status,
		bytes:    rec.written,
		took:     took,
		encoding: rec.Header().Get("Content-Encoding"),
		agent:    r.Header.Get("User-Agent"),
	}
}

func (e accessEntry) String() string {
	return strings.Join([]string{
		e.at.Format("2006-01-02"),
		e.at.Format("15:04:05"),
		orDash(clean(e.client)),
		clean(e.method),
		clean(e.stem),
		orDash(clean(e.query)),
		strconv.Itoa(e.status),
		strconv.FormatInt(e.bytes, 10),
		strconv.FormatInt(e.took.Milliseconds(), 10),
		orDash(clean(e.encoding)),
		quoteField(orDash(clean(e.agent))),
	}, " ")
}

// clean turns line breaks into spaces and drops other control characters so
// a request cannot forge log lines or emit terminal escapes. Tabs are kept.
func clean(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// quoteField wraps values with whitespace or quotes in double quotes,
// doubling any embedded quote.
func quoteField(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// clientAddr prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the socket peer without its port.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
