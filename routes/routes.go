package routes

import (
	"log/slog"
	"net/http"
	"time"

	_ "github.com/Dosada05/tournament-engine/docs" // swagger spec
	"github.com/Dosada05/tournament-engine/handlers"
	"github.com/Dosada05/tournament-engine/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Handlers struct {
	Match       *handlers.MatchHandler
	Room        *handlers.RoomHandler
	Leaderboard *handlers.LeaderboardHandler
	WebSocket   *handlers.WebSocketHandler
	Health      *handlers.HealthHandler
}

type Options struct {
	JWTSecret   []byte
	BaseDomain  string
	CORSOrigins []string
	Pool        middleware.TenantPool
	Logger      *slog.Logger
}

func SetupRoutes(router chi.Router, h Handlers, opts Options) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.TenantHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", h.Health.Health)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	tenantScoped := func(r chi.Router) {
		r.Use(middleware.Authenticate(opts.JWTSecret))
		r.Use(middleware.Tenant(opts.Pool, opts.BaseDomain, opts.Logger))
	}

	router.Group(func(r chi.Router) {
		tenantScoped(r)
		r.Get("/ws", h.WebSocket.ServeWs)
	})

	router.Route("/api", func(r chi.Router) {
		tenantScoped(r)
		r.Use(chiMiddleware.Timeout(30 * time.Second))

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", h.Room.CreateRoom)
			r.Route("/{roomID}", func(r chi.Router) {
				r.Get("/", h.Room.GetRoom)
				r.Post("/reset", h.Room.ResetRoom)
				r.Post("/finish", h.Match.FinishRoom)
				r.Post("/matches/{matchNumber}/start", h.Match.StartMatch)
				r.Get("/matches/{matchNumber}/states", h.Match.ListMatch)
			})
		})

		r.Route("/states/{stateID}", func(r chi.Router) {
			r.Get("/", h.Match.GetState)
			r.Post("/kills", h.Match.RecordKill)
			r.Post("/elimination", h.Match.ToggleElimination)
			r.Post("/complete", h.Match.CompleteMatch)
			r.Post("/disqualify", h.Match.Disqualify)
			r.Post("/revoke", h.Match.RevokeDisqualification)
			r.Post("/revert", h.Match.RevertMatch)
		})

		r.Route("/tournaments/{tournamentID}", func(r chi.Router) {
			r.Get("/leaderboard", h.Leaderboard.Standings)
			r.Get("/scoring", h.Room.GetScoring)
			r.Put("/scoring", h.Room.SetScoring)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"the requested resource could not be found"}` + "\n"))
	})
}
