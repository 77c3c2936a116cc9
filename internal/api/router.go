package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/docqa/internal/api/handlers"
	"github.com/nikhilbhutani/docqa/internal/api/middleware"
	"github.com/nikhilbhutani/docqa/internal/app"
	"github.com/nikhilbhutani/docqa/internal/auth"
	"github.com/nikhilbhutani/docqa/internal/identity"
)

type Router struct {
	mux     *chi.Mux
	app     *app.App
	jwt     *auth.JWTMiddleware
	limiter *middleware.RateLimiter
}

func NewRouter(a *app.App) *Router {
	rt := &Router{
		mux: chi.NewRouter(),
		app: a,
		jwt: auth.NewJWTMiddleware(a.Config.Auth.JWTSecret),
	}
	if a.Config.Server.RateLimit > 0 {
		rt.limiter = middleware.NewRateLimiter(a.Config.Server.RateLimit, a.Config.Server.RateBurst)
	}
	return rt
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.app.Config.Server.CORSOrigins))
	if rt.limiter != nil {
		r.Use(rt.limiter.Limit)
	}

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.app.Checks())
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	queryH := handlers.NewQueryHandler(rt.app.Pipeline, rt.app.Sessions)
	sessionH := handlers.NewSessionHandler(rt.app.Sessions)

	var reindexQueue handlers.ReindexEnqueuer
	if rt.app.Queue != nil {
		reindexQueue = rt.app.Queue
	}
	docH := handlers.NewDocumentHandler(rt.app.Documents, rt.app.Config.Upload.MaxContentLength, reindexQueue)

	r.Route("/api", func(r chi.Router) {
		r.Use(rt.jwt.Identify)

		r.Post("/query", queryH.Query)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionH.List)
			r.Post("/", sessionH.Create)
			r.Post("/delete", sessionH.DeleteMany)
			r.Get("/{id}", sessionH.Get)
			r.Delete("/{id}", sessionH.Delete)
			r.Post("/{id}/rename", sessionH.Rename)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(rt.jwt.RequireRole(identity.RoleAdmin))

			r.Post("/upload", docH.Upload)
			r.Get("/documents", docH.List)
			r.Post("/documents/delete", docH.DeleteMany)
			r.Get("/document/{id}", docH.Get)
			r.Delete("/document/{id}", docH.Delete)
			r.Post("/document/{id}/reindex", docH.Reindex)
		})
	})

	return r
}

// Close stops background work started by the router.
func (rt *Router) Close() {
	if rt.limiter != nil {
		rt.limiter.Stop()
	}
}
