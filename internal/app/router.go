// Package app wires middleware, routes and health endpoints into the HTTP
// handler served by cmd/server.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/opcdev/opc-evaluator/internal/adapter/httpserver"
	"github.com/opcdev/opc-evaluator/internal/adapter/observability"
	"github.com/opcdev/opc-evaluator/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty input means all origins.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server, auth *httpserver.AuthHandler, dbCheck, queueCheck httpserver.Check) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Session endpoints stay outside the guard.
	r.Post("/v1/auth/login", auth.Login)
	r.Post("/v1/auth/logout", auth.Logout)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.Guard)
		pr.Get("/v1/auth/me", auth.Me)

		pr.Get("/v1/students", srv.HandleListStudents)
		pr.Get("/v1/students/{id}", srv.HandleGetStudent)
		pr.Get("/v1/students/{id}/evaluations", srv.HandleListStudentEvaluations)
		pr.Get("/v1/evaluations/{id}", srv.HandleGetEvaluation)
		pr.Get("/v1/ponderations", srv.HandleListPonderations)
		pr.Get("/v1/ponderations/{id}", srv.HandleGetPonderation)
		pr.Get("/v1/dashboard/stats", srv.HandleDashboard)

		// Rate limit mutating endpoints.
		pr.Group(func(wr chi.Router) {
			wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
			wr.Post("/v1/students", srv.HandleCreateStudent)
			wr.Put("/v1/students/{id}", srv.HandleUpdateStudent)
			wr.Delete("/v1/students/{id}", srv.HandleDeleteStudent)
			wr.Post("/v1/evaluations", srv.HandleCreateEvaluation)
			wr.Put("/v1/evaluations/{id}/items", srv.HandleSaveItems)
			wr.Post("/v1/evaluations/{id}/finalize", srv.HandleFinalize)
			wr.Post("/v1/ponderations/{id}/regenerate-tips", srv.HandleRegenerateTips)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler(dbCheck, queueCheck))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
