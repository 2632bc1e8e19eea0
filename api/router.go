// Package api serves record collections as a JSON HTTP API.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/andreyvit/recstore"
	"github.com/andreyvit/recstore/logging"
)

const (
	DefaultMaxRequestBytes    = 1_000_000
	DefaultMaxInFlight        = 200
	DefaultStreamWriteTimeout = 30 * time.Second

	backlogFactor  = 4
	backlogTimeout = 60 * time.Second
)

type Options struct {
	Store  *recstore.Store
	Logger *slog.Logger

	// MaxRequestBytes bounds request bodies; larger ones get 413.
	MaxRequestBytes int64

	// MaxInFlight bounds concurrently served requests, list streams
	// excluded. Excess requests wait in a backlog.
	MaxInFlight int

	// StreamWriteTimeout bounds each chunk write of a streamed list.
	StreamWriteTimeout time.Duration

	Verbose bool
}

type env struct {
	opt      Options
	logger   *slog.Logger
	throttle func(http.Handler) http.Handler
}

// NewRouter builds the handler serving the given resources and /health.
func NewRouter(opt Options, resources ...Resource) http.Handler {
	if opt.Logger == nil {
		opt.Logger = logging.Nop()
	}
	if opt.MaxRequestBytes == 0 {
		opt.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if opt.MaxInFlight <= 0 {
		opt.MaxInFlight = DefaultMaxInFlight
	}
	if opt.StreamWriteTimeout == 0 {
		opt.StreamWriteTimeout = DefaultStreamWriteTimeout
	}
	e := &env{
		opt:      opt,
		logger:   opt.Logger,
		throttle: middleware.ThrottleBacklog(opt.MaxInFlight, opt.MaxInFlight*backlogFactor, backlogTimeout),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(e.logger))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		e.writeError(w, r, &apiError{status: http.StatusNotFound, msg: MsgNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		e.writeError(w, r, &apiError{status: http.StatusMethodNotAllowed, msg: MsgMethodNotAllowed})
	})

	r.With(e.throttle).Get("/health", e.health)
	for _, res := range resources {
		r.Route("/"+res.Path(), func(r chi.Router) {
			res.register(r, e)
		})
	}
	return r
}

type healthResponse struct {
	OK    bool                 `json:"ok"`
	Store *recstore.StoreStats `json:"store,omitempty"`
}

func (e *env) health(w http.ResponseWriter, r *http.Request) {
	if e.opt.Store == nil {
		writeJSON(r.Context(), w, http.StatusOK, healthResponse{OK: true})
		return
	}
	st, err := e.opt.Store.Stats()
	if err != nil {
		e.logger.WarnContext(r.Context(), "Health check failed", "err", err)
		writeJSON(r.Context(), w, http.StatusServiceUnavailable, (&apiError{status: http.StatusServiceUnavailable, msg: MsgStorageUnavailable}).response())
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, healthResponse{OK: true, Store: &st})
}

// requestLogger logs one line per request once it completes.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				level := slog.LevelInfo
				if status >= 500 {
					level = slog.LevelError
				} else if status == 0 {
					// handler panicked or aborted before writing
					level = slog.LevelWarn
				}
				logger.Log(r.Context(), level, "HTTP",
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"dur", time.Since(start).Round(time.Microsecond),
					"request_id", middleware.GetReqID(r.Context()),
					"remote", r.RemoteAddr,
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
