package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mlhubdev/mlhub/internal/logging"
	"github.com/mlhubdev/mlhub/internal/service"
	"github.com/mlhubdev/mlhub/internal/store"
	"github.com/mlhubdev/mlhub/internal/token"
	"github.com/mlhubdev/mlhub/internal/version"
)

// NewRouter wires the auth facade onto a chi router.
func NewRouter(svc service.Auth, st *store.Store, tokens *token.Manager) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(logging.RequestIDMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": version.Version,
		})
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", RegisterHandler(svc))
		r.Post("/login", LoginHandler(svc))

		r.Group(func(r chi.Router) {
			r.Use(PrivateTokenAuth(st))
			r.Get("/whoami", WhoamiHandler(tokens))
			r.Put("/user", UpdateUserHandler(svc))
		})
	})

	return r
}
