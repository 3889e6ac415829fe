package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"modchat/pkg/logger"
	"modchat/pkg/utils"
)

// SecConfig carries the request-security settings the middleware needs.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string

	FrontendKeys map[string]struct{}
	BackendKeys  map[string]struct{}
	AdminKeys    map[string]struct{}
}

// SigningKeys returns the keys accepted for author HMAC signatures.
// Backend API keys double as signing secrets.
func (c SecConfig) SigningKeys() map[string]struct{} { return c.BackendKeys }

type ctxRoleKey struct{}
type ctxAuthorKey struct{}

// Roles assigned by API key class.
const (
	RoleFrontend = "frontend"
	RoleBackend  = "backend"
	RoleAdmin    = "admin"
)

// Authenticate returns middleware that applies CORS, the IP whitelist,
// Bearer API-key authentication and per-key rate limiting, and stores the
// caller's role in the request context.
func Authenticate(cfg SecConfig) func(http.Handler) http.Handler {
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				if allowed := corsOrigin(cfg.AllowedOrigins, origin); allowed != "" {
					w.Header().Set("Access-Control-Allow-Origin", allowed)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-User-ID, X-User-Signature")
				}
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}

			if len(cfg.IPWhitelist) > 0 && !ipAllowed(cfg.IPWhitelist, r.RemoteAddr) {
				logger.Warn("ip_rejected", "remote", r.RemoteAddr, "path", r.URL.Path)
				utils.JSONError(w, http.StatusForbidden, "forbidden")
				return
			}

			key := bearerToken(r)
			role := roleForKey(cfg, key)
			if role == "" {
				logger.Warn("missing_or_unknown_api_key", "path", r.URL.Path, "remote", r.RemoteAddr)
				utils.JSONError(w, http.StatusUnauthorized, "missing or unknown API key")
				return
			}

			if !limiters.Allow(key) {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			ctx := context.WithValue(r.Context(), ctxRoleKey{}, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSignedAuthor verifies the HMAC author signature headers and
// injects the verified author id into the request context. Backend and
// admin callers may omit the signature; everyone else must sign.
func RequireSignedAuthor(cfg SecConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
			sig := strings.TrimSpace(r.Header.Get("X-User-Signature"))

			if (role == RoleBackend || role == RoleAdmin) && sig == "" {
				// Trusted caller without a signature; handlers may take the
				// author from the X-User-ID header.
				if userID != "" {
					r = r.WithContext(context.WithValue(r.Context(), ctxAuthorKey{}, userID))
				}
				next.ServeHTTP(w, r)
				return
			}

			if sig == "" || userID == "" {
				logger.Warn("missing_signature_headers", "path", r.URL.Path, "remote", r.RemoteAddr)
				utils.JSONError(w, http.StatusUnauthorized, "missing signature headers")
				return
			}

			keys := cfg.SigningKeys()
			if len(keys) == 0 {
				logger.Error("no_signing_keys_configured")
				utils.JSONError(w, http.StatusInternalServerError, "server misconfigured: no signing secrets available")
				return
			}
			ok := false
			for k := range keys {
				if hmac.Equal([]byte(SignHMAC(k, userID)), []byte(sig)) {
					ok = true
					break
				}
			}
			if !ok {
				logger.Warn("invalid_signature", "user", userID)
				utils.JSONError(w, http.StatusUnauthorized, "invalid signature")
				return
			}
			ctx := context.WithValue(r.Context(), ctxAuthorKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a handler behind a single role.
func RequireRole(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RoleFromContext(r.Context()) != role {
			utils.JSONError(w, http.StatusForbidden, "insufficient role")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SignHMAC computes the hex HMAC-SHA256 of userID under key. Shared with
// clients and tests so signatures line up.
func SignHMAC(key, userID string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// AuthorIDFromContext returns the verified author id or empty string.
func AuthorIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxAuthorKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RoleFromContext returns the caller's role or empty string.
func RoleFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxRoleKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func roleForKey(cfg SecConfig, key string) string {
	if key == "" {
		return ""
	}
	if _, ok := cfg.AdminKeys[key]; ok {
		return RoleAdmin
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return RoleBackend
	}
	if _, ok := cfg.FrontendKeys[key]; ok {
		return RoleFrontend
	}
	return ""
}

func corsOrigin(allowed []string, origin string) string {
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if strings.EqualFold(a, origin) {
			return origin
		}
	}
	return ""
}

func ipAllowed(whitelist []string, remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	for _, w := range whitelist {
		if w == host {
			return true
		}
	}
	return false
}
