package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/bugsnag/bugsnag-go/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/momentum-mod/livestreams/internal/monitor"
)

// errorHeader carries the failure message on non-2xx admin responses.
const errorHeader = "X-Livestreams-Error"

// Scheduler is the part of *monitor.Scheduler the admin surface drives.
type Scheduler interface {
	Trigger(ctx context.Context) (monitor.Outcome, error)
	Reconnect(ctx context.Context) error
	Running() bool
}

// StateSource is implemented by *monitor.Engine.
type StateSource interface {
	Snapshot() monitor.Snapshot
}

type api struct {
	logger   *zap.Logger
	statsd   statsd.ClientInterface
	sched    Scheduler
	state    StateSource
	gatherer prometheus.Gatherer
	token    string
	exit     func(int)
}

type Option func(*api)

// WithToken requires "Authorization: Bearer <token>" on every admin route.
func WithToken(token string) Option {
	return func(a *api) {
		a.token = token
	}
}

func WithExit(fn func(int)) Option {
	return func(a *api) {
		a.exit = fn
	}
}

func NewAPI(logger *zap.Logger, sd statsd.ClientInterface, sched Scheduler, state StateSource, gatherer prometheus.Gatherer, opts ...Option) *api {
	if sd == nil {
		sd = &statsd.NoOpClient{}
	}

	a := &api{
		logger:   logger,
		statsd:   sd,
		sched:    sched,
		state:    state,
		gatherer: gatherer,
		exit:     os.Exit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *api) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(bugsnag.Handler(a.Routes()), "admin"),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (a *api) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/v1/health", a.healthCheckHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	admin := r.PathPrefix("/v1").Subrouter()
	admin.HandleFunc("/streams", a.listStreamsHandler).Methods("GET")
	admin.HandleFunc("/streams/update", a.updateStreamsHandler).Methods("POST")
	admin.HandleFunc("/reconnect", a.reconnectHandler).Methods("POST")
	admin.HandleFunc("/restart", a.restartHandler).Methods("POST")
	admin.Use(a.authMiddleware)

	r.Use(a.loggingMiddleware)

	return r
}

func (a *api) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
			a.errorResponse(w, r, http.StatusUnauthorized, "invalid admin token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type LoggingResponseWriter struct {
	w          http.ResponseWriter
	statusCode int
	bytes      int
}

func (lrw *LoggingResponseWriter) Header() http.Header {
	return lrw.w.Header()
}

func (lrw *LoggingResponseWriter) Write(bb []byte) (int, error) {
	if lrw.statusCode == 0 {
		lrw.statusCode = http.StatusOK
	}
	wb, err := lrw.w.Write(bb)
	lrw.bytes += wb
	return wb, err
}

func (lrw *LoggingResponseWriter) WriteHeader(statusCode int) {
	lrw.w.WriteHeader(statusCode)
	lrw.statusCode = statusCode
}

func (lrw *LoggingResponseWriter) Flush() {
	if f, ok := lrw.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (a *api) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip logging health checks and scrapes
		if r.RequestURI == "/v1/health" || r.RequestURI == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		lrw := &LoggingResponseWriter{w: w}
		next.ServeHTTP(lrw, r)

		remoteAddr := r.Header.Get("X-Forwarded-For")
		if remoteAddr == "" {
			if ip, _, err := net.SplitHostPort(r.RemoteAddr); err != nil {
				remoteAddr = "unknown"
			} else {
				remoteAddr = ip
			}
		}

		fields := []zap.Field{
			zap.Int64("duration", time.Since(start).Milliseconds()),
			zap.String("method", r.Method),
			zap.String("remote#addr", remoteAddr),
			zap.Int("response#bytes", lrw.bytes),
			zap.Int("status", lrw.statusCode),
			zap.String("uri", r.RequestURI),
		}

		tags := []string{"path:" + r.URL.Path}
		_ = a.statsd.Histogram("admin.latency", float64(time.Since(start).Milliseconds()), tags, 1)

		if lrw.statusCode < 400 {
			a.logger.Info("request", fields...)
		} else {
			err := lrw.Header().Get(errorHeader)
			a.logger.Error(err, fields...)
		}
	})
}
