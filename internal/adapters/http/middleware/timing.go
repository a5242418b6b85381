package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/adapters/http/perf"
)

// DefaultSlowRequest is the default threshold for slow request warnings.
const DefaultSlowRequest = 200 * time.Millisecond

// unmatchedRoute labels requests no route pattern matched, keeping metric
// cardinality bounded.
const unmatchedRoute = "unmatched"

// RequestObserver receives one observation per completed request.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// TimingConfig configures Timing. Every field is optional.
type TimingConfig struct {
	Collector *perf.Collector
	Observer  RequestObserver
	Log       *zap.SugaredLogger
	Slow      time.Duration
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the underlying ResponseWriter.
// PRE: code is a valid HTTP status code
// POST: status stored, header written to underlying ResponseWriter
func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// statusWriterPool reduces allocations on the hot path.
var statusWriterPool = sync.Pool{
	New: func() any {
		return &statusWriter{}
	},
}

// routeSlot is filled in by RecordRoute once the mux has matched a pattern.
type routeSlot struct {
	pattern string
}

const routeContextKey contextKey = "route"

// RecordRoute copies the pattern the mux matched into the slot Timing placed
// in the context. It must wrap the mux directly.
func RecordRoute(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if slot, ok := r.Context().Value(routeContextKey).(*routeSlot); ok {
			slot.pattern = r.Pattern
		}
	})
}

// Timing returns middleware that logs request duration and feeds the perf
// collector and the request observer.
// Requests to /static/ are excluded.
// Normal requests log at DEBUG; slow requests (above threshold) log at WARN.
func Timing(cfg TimingConfig) func(http.Handler) http.Handler {
	if cfg.Slow <= 0 {
		cfg.Slow = DefaultSlowRequest
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	var requestIDCounter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if strings.HasPrefix(path, "/static/") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			reqID := requestIDCounter.Add(1)
			slot := &routeSlot{}
			r = r.WithContext(context.WithValue(r.Context(), routeContextKey, slot))

			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter = w
			sw.status = http.StatusOK
			defer func() {
				elapsed := time.Since(start)
				route := slot.pattern
				if route == "" {
					route = unmatchedRoute
				}

				logf := cfg.Log.Debugw
				msg := "request"
				if elapsed >= cfg.Slow {
					logf = cfg.Log.Warnw
					msg = "slow_request"
				}
				logf(msg,
					"request_id", reqID,
					"method", r.Method,
					"path", path,
					"route", route,
					"status", sw.status,
					"duration_ms", float64(elapsed.Microseconds())/1000.0,
				)

				if cfg.Collector != nil {
					key := slot.pattern
					if key == "" {
						key = r.Method + " " + path
					}
					cfg.Collector.Record(perf.Entry{
						Kind:     perf.KindRequest,
						Key:      key,
						Status:   sw.status,
						Duration: elapsed,
						At:       start,
					})
				}
				if cfg.Observer != nil {
					cfg.Observer.ObserveRequest(route, r.Method, sw.status, elapsed)
				}

				sw.ResponseWriter = nil
				statusWriterPool.Put(sw)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
