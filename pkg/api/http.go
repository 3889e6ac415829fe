package api

import (
	"net/http"

	"modchat/pkg/api/handlers"
	"modchat/pkg/auth"
	"modchat/pkg/moderation"

	"github.com/gorilla/mux"
)

// Env bundles the shared server-side pieces handlers need.
type Env = handlers.Env

// NewRouter builds the /v1 API router. Authentication middleware is
// applied by the caller; admin-only routes are gated here by role.
func NewRouter(env *Env) *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()

	handlers.RegisterThreads(v1, env)
	handlers.RegisterMessages(v1, env)

	admin := v1.PathPrefix("/moderation").Subrouter()
	handlers.RegisterModeration(admin, env)
	admin.Use(func(next http.Handler) http.Handler {
		return auth.RequireRole(auth.RoleAdmin, next)
	})

	return r
}

// NewEnv builds a handler environment.
func NewEnv(engine *moderation.Engine, scan *moderation.ScanQueue) *Env {
	return &Env{Engine: engine, Scan: scan}
}
