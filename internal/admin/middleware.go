package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ferro-labs/gateway-core/internal/logging"
)

type contextKey string

const tokenContextKey contextKey = "admin_token"

// Token scopes.
const (
	ScopeAdmin    = "admin"
	ScopeReadOnly = "read_only"
)

// TokenFromContext retrieves the authenticated token from the request context.
func TokenFromContext(ctx context.Context) (*Token, bool) {
	tok, ok := ctx.Value(tokenContextKey).(*Token)
	return tok, ok
}

// AuthMiddleware authenticates bearer tokens against store and stores the
// token in the request context. Requests that can change state are logged
// with the caller's token name.
func AuthMiddleware(store TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !found || secret == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="gatewaycore"`)
				writeError(w, http.StatusUnauthorized, "missing or invalid authorization header", "authentication_error", "missing_token")
				return
			}

			tok, ok := store.Validate(secret)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="gatewaycore", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, "invalid token", "authentication_error", "invalid_token")
				return
			}

			ctx := context.WithValue(r.Context(), tokenContextKey, tok)
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				logging.FromContext(ctx).Info("admin request",
					"token", tok.Name,
					"scope", tok.Scope,
					"method", r.Method,
					"path", r.URL.Path,
				)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects callers whose token grants none of scopes. The admin
// scope grants read_only as well.
func RequireScope(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := TokenFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required", "authentication_error", "authentication_required")
				return
			}
			for _, required := range scopes {
				if grants(tok.Scope, required) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "token "+tok.Name+" lacks scope "+strings.Join(scopes, " or "), "permission_error", "insufficient_scope")
		})
	}
}

func grants(have, want string) bool {
	return have == want || (have == ScopeAdmin && want == ScopeReadOnly)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a unified JSON error response:
//
//	{"error":{"message":"...","type":"...","code":"..."}}
//
// errType and code may be empty; defaults are derived from the HTTP status.
func writeError(w http.ResponseWriter, status int, message, errType, code string) {
	if errType == "" {
		errType = defaultErrType(status)
	}
	if code == "" {
		code = errType
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	})
}

func defaultErrType(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "authentication_error"
	case status == http.StatusForbidden:
		return "permission_error"
	case status == http.StatusNotFound:
		return "not_found_error"
	case status == http.StatusConflict:
		return "conflict_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status >= 400 && status < 500:
		return "invalid_request_error"
	default:
		return "server_error"
	}
}
