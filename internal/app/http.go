package app

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"modchat/pkg/api"
	"modchat/pkg/auth"
	"modchat/pkg/store"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if verStr == "" {
		verStr = "dev"
	}
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	fmt.Printf("modchat %s\n  listen: %s\n  db:     %s\n", verStr, a.addr, a.dbPath)
}

// setupHTTPHandlers mounts the API, docs and ops endpoints.
func (a *App) setupHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	mux.Handle("/", a.apiHandler())
}

// apiHandler wraps the versioned API router with authentication and
// author-signature verification.
func (a *App) apiHandler() http.Handler {
	secCfg := a.secConfig()
	env := api.NewEnv(a.engine, a.scan)
	var h http.Handler = api.NewRouter(env)
	h = auth.RequireSignedAuthor(secCfg)(h)
	h = auth.Authenticate(secCfg)(h)
	return h
}

func (a *App) secConfig() auth.SecConfig {
	sec := a.cfg.Security
	out := auth.SecConfig{
		AllowedOrigins: append([]string{}, sec.CORS.AllowedOrigins...),
		RPS:            sec.RateLimit.RPS,
		Burst:          sec.RateLimit.Burst,
		IPWhitelist:    append([]string{}, sec.IPWhitelist...),
		FrontendKeys:   map[string]struct{}{},
		BackendKeys:    map[string]struct{}{},
		AdminKeys:      map[string]struct{}{},
	}
	for _, k := range sec.APIKeys.Frontend {
		out.FrontendKeys[k] = struct{}{}
	}
	for _, k := range sec.APIKeys.Backend {
		out.BackendKeys[k] = struct{}{}
	}
	for _, k := range sec.APIKeys.Admin {
		out.AdminKeys[k] = struct{}{}
	}
	return out
}

// readyzHandler reports readiness; the store must be open.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

// healthzHandler reports liveness.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// startHTTP builds the handler, starts the HTTP server in a goroutine and
// returns a channel that will contain any server error.
func (a *App) startHTTP() <-chan error {
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)

	a.srv = &http.Server{Addr: a.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		tls := a.cfg.Server.TLS
		if tls.CertFile != "" && tls.KeyFile != "" {
			errCh <- a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
