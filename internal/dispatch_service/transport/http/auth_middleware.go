package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const AdminSubjectContextKey = ContextKey("adminSubject")

// AdminAuthMiddleware accepts HS256 bearer tokens signed with secret. The
// token subject is stored in the request context.
func AdminAuthMiddleware(secret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				adminAuthRejections.WithLabelValues("missing_header").Inc()
				logger.WarnContext(ctx, "Authorization header missing")
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || scheme != "Bearer" || tokenString == "" {
				adminAuthRejections.WithLabelValues("bad_scheme").Inc()
				logger.WarnContext(ctx, "Invalid Authorization header format")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				adminAuthRejections.WithLabelValues("invalid_token").Inc()
				logger.WarnContext(ctx, "Token validation failed", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			subject, _ := claims.GetSubject()
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, AdminSubjectContextKey, subject)))
		})
	}
}
