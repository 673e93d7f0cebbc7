package observability

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metric names recorded by the quiz core.
const (
	MetricConsolidations        = "quiz_consolidations_total"
	MetricConsolidationFailures = "quiz_consolidation_failures_total"
	MetricParticipantsProcessed = "quiz_participants_consolidated_total"
	MetricParticipantFailures   = "quiz_participant_failures_total"
	MetricSubmissionsAccepted   = "quiz_submissions_accepted_total"
	MetricSubmissionsRejected   = "quiz_submissions_rejected_total"
	MetricTimersScheduled       = "quiz_timers_scheduled_total"
	MetricTimersCancelled       = "quiz_timers_cancelled_total"
	MetricNotificationFailures  = "quiz_notification_failures_total"
	MetricConsolidationSeconds  = "quiz_consolidation_seconds_sum"
	MetricWSMessagesDropped     = "quiz_ws_messages_dropped_total"
)

type requestKey struct {
	Method string
	Path   string
	Status int
}

type requestStat struct {
	Count     int64
	LatencyMS float64
}

type counterKey struct {
	Name   string
	Labels string
}

// Collector keeps in-process counters and renders them in Prometheus text format.
// A nil *Collector is valid and records nothing.
type Collector struct {
	logger *slog.Logger

	mu           sync.RWMutex
	requestStats map[requestKey]requestStat
	counters     map[counterKey]float64
	startedAt    time.Time
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Collector{
		logger:       logger,
		requestStats: make(map[requestKey]requestStat),
		counters:     make(map[counterKey]float64),
		startedAt:    time.Now(),
	}
}

// NewLogger builds the JSON logger used across the service.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Inc adds one to a counter. labels are key/value pairs.
func (c *Collector) Inc(name string, labels ...string) {
	c.Add(name, 1, labels...)
}

// Add adds v to a counter. labels are key/value pairs.
func (c *Collector) Add(name string, v float64, labels ...string) {
	if c == nil {
		return
	}
	k := counterKey{Name: name, Labels: formatLabels(labels)}
	c.mu.Lock()
	c.counters[k] += v
	c.mu.Unlock()
}

// Value returns the current value of a counter.
func (c *Collector) Value(name string, labels ...string) float64 {
	if c == nil {
		return 0
	}
	k := counterKey{Name: name, Labels: formatLabels(labels)}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[k]
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency and writes one structured log line per request.
// Websocket upgrades hijack the writer, so /ws is passed through untouched.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := requestKey{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		c.logger.Info("http request",
			"method", r.Method,
			"path", path,
			"status", rec.status,
			"latency_ms", latencyMS,
			"quiz_id", r.URL.Query().Get("quizId"),
			"remote_ip", strings.TrimSpace(r.RemoteAddr),
		)
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[requestKey]requestStat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	countersCopy := make(map[counterKey]float64, len(c.counters))
	for k, v := range c.counters {
		countersCopy[k] = v
	}
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]requestKey, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# live quiz service metrics\n")
	sb.WriteString("# TYPE quiz_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("quiz_uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE quiz_http_requests_total counter\n")
	sb.WriteString("# TYPE quiz_http_request_latency_ms_sum counter\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf("quiz_http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf("quiz_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
	}

	counterKeys := make([]counterKey, 0, len(countersCopy))
	for k := range countersCopy {
		counterKeys = append(counterKeys, k)
	}
	sort.Slice(counterKeys, func(i, j int) bool {
		if counterKeys[i].Name != counterKeys[j].Name {
			return counterKeys[i].Name < counterKeys[j].Name
		}
		return counterKeys[i].Labels < counterKeys[j].Labels
	})
	lastName := ""
	for _, k := range counterKeys {
		if k.Name != lastName {
			sb.WriteString(fmt.Sprintf("# TYPE %s counter\n", k.Name))
			lastName = k.Name
		}
		if k.Labels == "" {
			sb.WriteString(fmt.Sprintf("%s %g\n", k.Name, countersCopy[k]))
		} else {
			sb.WriteString(fmt.Sprintf("%s{%s} %g\n", k.Name, k.Labels, countersCopy[k]))
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func formatLabels(labels []string) string {
	if len(labels) < 2 {
		return ""
	}
	parts := make([]string, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		parts = append(parts, fmt.Sprintf("%s=%q", labels[i], labels[i+1]))
	}
	return strings.Join(parts, ",")
}

func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
