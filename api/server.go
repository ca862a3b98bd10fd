/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. Logger:     Request logging through logrus
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the practice frontend

ROUTE GROUPS (all under /api/firms/{firmID}):
  /compliance-types/*   Firm calendar
  /clients/*            Clients and their default staff
  /staff/*              Staff roster
  /tasks/*              Task listing, generation and preview
  /runs                 Generation run history

SECURITY NOTE:
  No authentication middleware. The firm ID in the path is trusted; put
  the server behind the practice platform's gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured. An empty
// allowedOrigins allows any origin.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger()))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/firms/{firmID}", func(r chi.Router) {
			// Compliance calendar
			r.Route("/compliance-types", func(r chi.Router) {
				r.Get("/", h.ListComplianceTypes)
				r.Post("/", h.SaveComplianceType)
				r.Post("/defaults", h.SeedDefaultCalendar)
				r.Post("/import", h.ImportCalendar)
				r.Delete("/{id}", h.DeleteComplianceType)
			})

			// Client routes
			r.Route("/clients", func(r chi.Router) {
				r.Get("/", h.ListClients)
				r.Post("/", h.SaveClient)
				r.Get("/{id}", h.GetClient)
				r.Delete("/{id}", h.DeleteClient)
				r.Put("/{id}/staff", h.SetDefaultStaff)
				r.Delete("/{id}/staff", h.ClearDefaultStaff)
			})

			// Staff routes
			r.Route("/staff", func(r chi.Router) {
				r.Get("/", h.ListStaff)
				r.Post("/", h.SaveStaff)
				r.Get("/{id}", h.GetStaff)
				r.Put("/{id}/active", h.SetStaffActive)
			})

			// Task routes
			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", h.ListTasks)
				r.Post("/generate", h.GenerateTasks)
				r.Post("/preview", h.PreviewTasks)
			})

			r.Get("/runs", h.ListRuns)
		})
	})

	return r
}

// requestLogger logs one line per request with status and latency.
func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				entry := logger.WithFields(logrus.Fields{
					"module":     "http",
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
					"request_id": middleware.GetReqID(r.Context()),
				})
				switch {
				case ww.Status() >= http.StatusInternalServerError:
					entry.Error("request failed")
				case ww.Status() >= http.StatusBadRequest:
					entry.Warn("request rejected")
				default:
					entry.Info("request served")
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
