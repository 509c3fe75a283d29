package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wsmontes/Document-Reviewer/internal/api/handlers"
	"github.com/wsmontes/Document-Reviewer/internal/api/middleware"
	"github.com/wsmontes/Document-Reviewer/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers, hub *Hub) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "X-Trace-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/version", h.Version)

	r.Route("/api/v1", func(r chi.Router) {
		// The event stream is mounted outside the compressed group; the
		// upgrade needs the raw connection.
		r.Get("/events/ws", hub.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))

			r.Get("/status", h.Status)
			r.Get("/debug/responses", h.DebugResponses)

			r.Route("/documents", func(r chi.Router) {
				r.Get("/", h.ListDocuments)
				r.Post("/", h.UploadDocument)
				r.Get("/current", h.CurrentDocument)
				r.Post("/{documentID}/select", h.SelectDocument)
				r.Delete("/{documentID}", h.DeleteDocument)
			})

			r.Route("/queries", func(r chi.Router) {
				r.Get("/", h.RunningQueries)
				r.Post("/", h.ProcessQuery)
				r.Delete("/{runID}", h.CancelQuery)
			})

			r.Route("/segments", func(r chi.Router) {
				r.Get("/", h.GetSegments)
				r.Post("/next", h.NextSegment)
				r.Post("/prev", h.PrevSegment)
				r.Post("/toggle", h.ToggleSegments)
				r.Post("/{index}/display", h.DisplaySegment)
			})

			r.Route("/agents", func(r chi.Router) {
				r.Get("/", h.ListAgents)
				r.Post("/", h.CreateAgent)
				r.Get("/templates", h.ListTemplates)
				r.Put("/auto-mode", h.SetAutoMode)
				r.Post("/factory", h.DesignAgent)
				r.Post("/plan", h.PlanAgent)
				r.Post("/select", h.SelectAgents)
				r.Post("/collaborations", h.Collaborate)
				r.Route("/{agentID}", func(r chi.Router) {
					r.Get("/", h.GetAgent)
					r.Delete("/", h.DeleteAgent)
					r.Get("/conversation", h.AgentConversation)
					r.Post("/tasks", h.SendTask)
					r.Post("/questions", h.QuestionAgent)
				})
			})
		})
	})

	return r
}
