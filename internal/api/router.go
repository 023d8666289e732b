package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/andrewanujbusiness/messenger/internal/api/middleware"
	"github.com/andrewanujbusiness/messenger/internal/auth"
	"github.com/andrewanujbusiness/messenger/internal/chat"
	"github.com/andrewanujbusiness/messenger/internal/handlers"
	"github.com/andrewanujbusiness/messenger/internal/realtime"
	"github.com/andrewanujbusiness/messenger/internal/store"
)

// Deps are the services the router wires into handlers.
type Deps struct {
	Store     store.DataStore
	Redis     *store.RedisStore // optional; enables rate limiting
	Auth      *auth.Authenticator
	Chat      *chat.Service
	Hub       *realtime.Hub
	Realtime  http.Handler
	RateLimit middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis
	if deps.Redis != nil {
		limiter := middleware.NewRateLimiter(deps.Redis.Client(), logger, deps.RateLimit)
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var pusher handlers.Pusher
	if deps.Hub != nil {
		pusher = deps.Hub
	}
	h := handlers.NewHandler(deps.Store, deps.Redis, deps.Auth, deps.Chat, pusher, logger)
	authMW := middleware.NewAuthMiddleware(deps.Auth)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// The mobile client uses the /api prefix; tools use the bare paths.
	mountRoutes(r, h, authMW, deps.Realtime)
	r.Route("/api", func(r chi.Router) {
		mountRoutes(r, h, authMW, deps.Realtime)
	})

	return r
}

func mountRoutes(r chi.Router, h *handlers.Handler, authMW *middleware.AuthMiddleware, ws http.Handler) {
	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/login", h.Login)

	// The websocket endpoint authenticates during the upgrade
	if ws != nil {
		r.Handle("/ws", ws)
	}

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(authMW.RequireAuth)

		r.Get("/users", h.ListUsers)
		r.Get("/users/{id}", h.GetUser)
		r.Get("/conversations/{userId}", h.GetConversation)
		r.Post("/messages", h.PostMessage)
		r.Post("/tone-preference", h.SetTonePreference)
		r.Get("/tone-preference/{targetUserId}", h.GetTonePreference)
	})
}
