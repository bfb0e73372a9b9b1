package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phishguard/phishguard-go/internal/auth"
	"github.com/phishguard/phishguard-go/internal/ratelimit"
	"github.com/phishguard/phishguard-go/internal/sse"
	"github.com/phishguard/phishguard-go/internal/store"
	"github.com/phishguard/phishguard-go/internal/ws"
)

// RouterConfig collects what NewRouter mounts. Admin routes are only
// mounted when AdminKey is set.
type RouterConfig struct {
	Predict        *PredictHandler
	Store          store.Store
	Hub            *sse.Hub
	WS             *ws.Manager
	Limiter        *ratelimit.Limiter
	AdminKey       string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter builds the HTTP routing tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(cfg.Logger))
	r.Use(corsMiddleware)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pong"))
	})

	ph := cfg.Predict
	r.Group(func(api chi.Router) {
		if cfg.RequestTimeout > 0 {
			api.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		api.Get("/healthz", ph.Healthz)
		api.Post("/predict", ph.Legacy)
		api.Post("/v1/predict", ph.Predict)
		api.Post("/v1/predict/batch", ph.Batch)
		api.Post("/v1/explain", ph.Explain)
		api.Get("/v1/schema", ph.Schema)
	})

	if cfg.AdminKey == "" {
		cfg.Logger.Info("admin API disabled: no api key configured")
		return r
	}

	admin := NewAdminHandler(cfg.Store, cfg.Logger)
	stream := NewStreamHandler(cfg.Hub, cfg.Store)
	r.Route("/api", func(api chi.Router) {
		api.Use(auth.RequireAPIKey(cfg.AdminKey))
		api.Use(cfg.Limiter.Middleware("api"))

		api.Get("/predictions", admin.Predictions)
		api.Get("/stats", admin.Stats)
		api.Get("/stream/events", stream.HandleSSE)
		if cfg.WS != nil {
			api.Get("/ws", cfg.WS.HandleWS)
		}
	})
	return r
}

// requestLogger logs one line per request at debug level, and at warn for
// server errors.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

// corsMiddleware allows browser clients from any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
