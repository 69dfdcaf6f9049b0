package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/btouchard/firstblood/internal/auth"
	"github.com/btouchard/firstblood/internal/config"
)

type ctxKey int

const tokenNameKey ctxKey = iota

// TokenName returns the name of the API token that authenticated the request.
func TokenName(ctx context.Context) string {
	name, _ := ctx.Value(tokenNameKey).(string)
	return name
}

// BearerAuth returns middleware that requires a bearer token granting scope.
func BearerAuth(tokens *auth.TokenSet, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				challengeAuth(w, "missing Authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				challengeAuth(w, "invalid Authorization header format")
				return
			}

			entry, err := tokens.Validate(strings.TrimSpace(parts[1]), scope)
			if err != nil {
				slog.Debug("token validation failed", "scope", scope, "error", err)
				if errors.Is(err, auth.ErrInsufficientScope) {
					writeError(w, http.StatusForbidden, "token does not grant scope "+scope)
					return
				}
				invalidToken(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), tokenNameKey, entry.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PlatformAuth is BearerAuth for the ingestion API.
func PlatformAuth(tokens *auth.TokenSet) func(http.Handler) http.Handler {
	return BearerAuth(tokens, config.ScopePlatform)
}

// AdminAuth is BearerAuth for admin automation (MCP).
func AdminAuth(tokens *auth.TokenSet) func(http.Handler) http.Handler {
	return BearerAuth(tokens, config.ScopeAdmin)
}

// challengeAuth sends a 401 with a Bearer challenge for unauthenticated requests.
func challengeAuth(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="firstblood"`)
	writeError(w, http.StatusUnauthorized, msg)
}

// invalidToken sends a 401 for requests with an unknown Bearer token.
func invalidToken(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
