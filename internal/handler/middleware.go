package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

type contextKey string

const (
	userKey  contextKey = "user"
	tokenKey contextKey = "token"
)

// sessionCookie carries the session token for browser clients.
const sessionCookie = "session_token"

// SessionMiddleware resolves the session token (Bearer header or
// session_token cookie) and stores the user in the request context. Requests
// without a valid session continue anonymously.
func SessionMiddleware(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if authSvc == nil || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := authSvc.Authenticate(r.Context(), token)
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), tokenKey, token)
			if user != nil {
				ctx = context.WithValue(ctx, userKey, user)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireLogin rejects requests without an authenticated user.
func RequireLogin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserFromContext(r.Context()) == nil {
				logger.Debug("auth: no session",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				handleServiceError(w, &domain.ErrUnauthorized{}, logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission rejects requests whose user lacks perm.
func RequirePermission(perm domain.Permission, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			switch {
			case user == nil:
				handleServiceError(w, &domain.ErrUnauthorized{}, logger)
			case !user.Role.Can(perm):
				logger.Warn("auth: permission denied",
					zap.Int64("user_id", user.ID),
					zap.String("role", string(user.Role)),
					zap.String("permission", string(perm)),
				)
				handleServiceError(w, &domain.ErrForbidden{Action: string(perm)}, logger)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// UserFromContext returns the authenticated user, nil when anonymous.
func UserFromContext(ctx context.Context) *domain.AuthUser {
	u, _ := ctx.Value(userKey).(*domain.AuthUser)
	return u
}

func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// durationMiddleware records request latency by route pattern.
func durationMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			pattern := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				pattern = rc.RoutePattern()
			}
			metrics.RecordRequestDuration(r.Method+" "+pattern, time.Since(start))
		})
	}
}
