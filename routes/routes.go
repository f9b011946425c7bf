package routes

import (
	"net/http"

	"github.com/Dosada05/pickleball-eventday/handlers"
	"github.com/Dosada05/pickleball-eventday/middleware"
	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/Dosada05/pickleball-eventday/docs"
)

// Dependencies bundles everything the router mounts.
type Dependencies struct {
	Auth           *middleware.Authenticator
	JoinLimiter    *middleware.IPRateLimiter
	ScoreLimiter   *middleware.IPRateLimiter
	AllowedOrigins []string
	Metrics        http.Handler

	Draw      *handlers.DrawHandler
	Match     *handlers.MatchHandler
	Event     *handlers.EventHandler
	WebSocket *handlers.WebSocketHandler
}

var (
	operatorRoles = []models.UserRole{models.RoleAdmin, models.RoleOrganizer, models.RoleStaff}
	adminRoles    = []models.UserRole{models.RoleAdmin, models.RoleOrganizer}
)

func SetupRoutes(router chi.Router, deps Dependencies) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics)
	}
	router.Get("/swagger/*", httpSwagger.WrapHandler)

	// Viewers may be anonymous.
	router.Group(func(r chi.Router) {
		r.Use(deps.Auth.OptionalAuthenticate)

		r.With(middleware.RateLimit(deps.JoinLimiter)).Get("/ws/events/{eventID}", deps.WebSocket.ServeWs)

		r.Get("/events/{eventID}/snapshot", deps.Event.GetSnapshot)
		r.Get("/events/{eventID}/presence", deps.Event.GetPresence)
		r.Get("/events/{eventID}/log", deps.Event.ListBroadcasts)
		r.Get("/events/{eventID}/matches/{matchID}", deps.Match.GetMatch)
	})

	// Players report their own scores.
	router.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(middleware.RateLimit(deps.ScoreLimiter))

		r.Post("/games/{gameID}/score", deps.Match.SubmitScore)
	})

	router.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(middleware.RequireRole(operatorRoles...))

		r.Route("/divisions/{divisionID}/draw", func(r chi.Router) {
			r.Post("/start", deps.Draw.StartDrawing)
			r.Post("/next", deps.Draw.DrawNext)
			r.Post("/complete", deps.Draw.CompleteDrawing)
			r.Post("/cancel", deps.Draw.CancelDrawing)
		})

		// Paths are spelled out: the public group already serves /events/{eventID}.
		r.Put("/events/{eventID}/status", deps.Event.UpdateStatus)
		r.Put("/events/{eventID}/policy", deps.Event.UpdatePolicy)
		r.Put("/events/{eventID}/courts/{courtID}/status", deps.Event.SetCourtStatus)

		r.Put("/events/{eventID}/matches/{matchID}/ready", deps.Match.MarkReady)
		r.Post("/events/{eventID}/matches/{matchID}/queue", deps.Match.QueueMatch)
		r.Put("/events/{eventID}/matches/{matchID}/court", deps.Match.AssignCourt)
		r.Post("/events/{eventID}/matches/{matchID}/start", deps.Match.StartMatch)
	})

	// Overrides that settle disputes or end a match need elevated authority.
	router.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(middleware.RequireRole(adminRoles...))

		r.Put("/events/{eventID}/games/{gameID}/score", deps.Match.EditGameScore)
		r.Post("/events/{eventID}/matches/{matchID}/cancel", deps.Match.CancelMatch)
	})
}
