package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/leakwatch/gateway/internal/app"
	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/pkg/apierror"
	"github.com/leakwatch/gateway/pkg/jwt"
	"github.com/leakwatch/gateway/pkg/logger"
)

// Auth-related context keys.
const (
	UserIDKey                     = logger.ContextKeyUserID
	UsernameKey logger.ContextKey = "username"
	RoleKey     logger.ContextKey = "role"
	ClaimsKey   logger.ContextKey = "claims"
)

// accessTokenParam carries the token for clients that cannot set headers
// (EventSource and browser WebSockets). Only honoured on long-lived GETs.
const accessTokenParam = "access_token"

// GetUsername extracts the authenticated username from context.
func GetUsername(ctx context.Context) string {
	if username, ok := ctx.Value(UsernameKey).(string); ok {
		return username
	}
	return ""
}

// GetRole extracts the caller's role from context.
func GetRole(ctx context.Context) string {
	if role, ok := ctx.Value(RoleKey).(string); ok {
		return role
	}
	return ""
}

// GetClaims extracts the validated claims from context.
func GetClaims(ctx context.Context) *jwt.Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*jwt.Claims); ok {
		return claims
	}
	return nil
}

// AuthConfig configures the Auth middleware.
type AuthConfig struct {
	Secret string
	Logger *logger.Logger
}

// Auth validates the bearer token and stores the caller in the request
// context. The raw token is kept for forwarding to the authority. Requests
// without a valid token are rejected before anything is forwarded.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			token := bearerToken(r)
			if token == "" {
				RecordAuthFailure("missing_token")
				apierror.Unauthorized("Missing bearer token").WriteJSONWithRequestID(w, requestID)
				return
			}

			claims, err := jwt.ValidateToken(token, cfg.Secret)
			if err != nil {
				reason, message := "invalid_token", "Invalid token"
				if errors.Is(err, jwt.ErrExpiredToken) {
					reason, message = "expired_token", "Token has expired"
				}
				RecordAuthFailure(reason)
				if cfg.Logger != nil {
					cfg.Logger.Debug("token rejected", "reason", reason, "request_id", requestID)
				}
				apierror.Unauthorized(message).WriteJSONWithRequestID(w, requestID)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			ctx = context.WithValue(ctx, UsernameKey, claims.Username())
			ctx = context.WithValue(ctx, UserIDKey, claims.Username())
			ctx = context.WithValue(ctx, RoleKey, claims.Role)
			ctx = authority.WithToken(ctx, token)
			ctx = app.WithActor(ctx, app.Actor{
				Username:  claims.Username(),
				Role:      claims.Role,
				IP:        getClientIP(r),
				RequestID: requestID,
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if r.Method == http.MethodGet && IsLongLived(r) {
		return r.URL.Query().Get(accessTokenParam)
	}
	return ""
}

// RequireRole allows the request only if the caller holds one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRole(r.Context())
			if role == "" {
				apierror.Forbidden("No role assigned").WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}
			if !slices.Contains(roles, role) {
				RecordAuthFailure("insufficient_role")
				apierror.Forbidden("Insufficient permissions").WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCommandRole guards mutating routes.
func RequireCommandRole() func(http.Handler) http.Handler {
	return RequireRole(jwt.CommandRoles...)
}
