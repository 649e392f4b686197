// internal/router/router.go
package router

import (
	"context"
	"net/http"
	"time"

	"donation-service/internal/handler"
	"donation-service/internal/metrics"
	authmw "donation-service/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RequestTimeout bounds every request; shutdown waits at least this long.
const RequestTimeout = 60 * time.Second

// Pinger is an optional dependency reported by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

func SetupRoutes(
	campaignHandler *handler.CampaignHandler,
	webhookHandler *handler.WebhookHandler,
	verifier *authmw.Verifier,
	cache Pinger,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.WebhookHashHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Redis is optional, so a failed ping degrades rather than fails health.
	health := func(w http.ResponseWriter, r *http.Request) {
		if cache != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := cache.Ping(ctx)
			cancel()
			if err != nil {
				logger.Warn("health check: redis ping failed", zap.Error(err))
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("DEGRADED: redis unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
	r.Get("/", health)
	r.Get("/api/v1/health", health)
	r.Handle("/metrics", promhttp.Handler())

	requireAuth := authmw.RequireAuth(verifier)

	r.Route("/api/v1", func(r chi.Router) {
		// ============================================
		// CAMPAIGNS
		// ============================================
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", campaignHandler.List)
			r.With(requireAuth).Post("/", campaignHandler.Create)
			r.Get("/{id}", campaignHandler.Get)
			r.Post("/{id}/donate", campaignHandler.Donate)
		})

		r.Get("/donations/{tx_ref}", campaignHandler.GetDonation)

		// ============================================
		// FLUTTERWAVE
		// ============================================
		r.Route("/flutterwave", func(r chi.Router) {
			r.Post("/webhook", webhookHandler.HandleFlutterwaveWebhook)
			r.Get("/verify/{tx_ref}", webhookHandler.Verify)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/reconcile/{tx_ref}", webhookHandler.Reconcile)
				r.Get("/notifications/{tx_ref}", webhookHandler.Notifications)
			})
		})
	})

	return r
}

// LoggerMiddleware logs HTTP requests and records their latency.
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			metrics.HTTPRequest(r.Method, ww.Status(), duration)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", duration),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()))
		})
	}
}
