package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"
)

// RouterConfig tunes the HTTP surface
type RouterConfig struct {
	AllowedOrigins []string
	JWTSecret      []byte
	RequestTimeout time.Duration
}

// NewRouter mounts the API routes
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/bets", h.PlaceBet)
		r.Get("/accounts/{id}/balance", h.GetBalance)
		r.Get("/accounts/{id}/transactions", h.GetTransactions)
		r.Post("/accounts/{id}/session/end", h.EndSession)
		r.Post("/rooms/{room}/join", h.JoinRoom)
		r.Post("/rooms/leave", h.LeaveRoom)
		r.Get("/games/{game}/rounds/current", h.GetCurrentRound)
		r.Get("/games/{game}/history", h.GetGameHistory)
		r.Get("/rounds/{id}/verify", h.VerifyRound)
		r.Get("/jackpots/{game}", h.GetJackpot)

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuth(cfg.JWTSecret))

			r.Put("/accounts/{id}/balance", h.SetBalance)
			r.Post("/rounds/{id}/resettle", h.ResettleRound)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
		}).Debug("HTTP request")
	})
}
