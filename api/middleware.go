package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bailaid/case-ledger/auth"
)

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxOfficer
)

// RequestIDMiddleware reuses X-Request-ID when the client sends one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID, reqID)))
	})
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

func LoggerMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("request",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", clientIP(r)),
			)
		})
	}
}

// AuthMiddleware requires a valid officer token.
func AuthMiddleware(secret string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header", nil)
				return
			}

			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenStr == authHeader {
				writeError(w, http.StatusUnauthorized, "invalid authorization format", nil)
				return
			}

			claims, err := auth.ParseJWT(secret, tokenStr)
			if err != nil {
				log.Debug("jwt parse error", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid or expired token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), ctxOfficer, claims.Officer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OfficerFrom returns the officer set by AuthMiddleware.
func OfficerFrom(ctx context.Context) (auth.Officer, bool) {
	o, ok := ctx.Value(ctxOfficer).(auth.Officer)
	return o, ok
}

// RequirePermission must run after AuthMiddleware.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			officer, ok := OfficerFrom(r.Context())
			if !ok || !auth.HasPermission(officer.Role, perm) {
				writeError(w, http.StatusForbidden, fmt.Sprintf("%s permission required", perm), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware counts requests per path and client IP in fixed
// windows. Without Redis, or when Redis errors, requests pass (fail open).
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rdb == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("rl:%s:%s", r.URL.Path, clientIP(r))

			ctx := r.Context()
			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				next.ServeHTTP(w, r) // fail open
				return
			}

			if count == 1 {
				rdb.Expire(ctx, key, window)
			}

			if count > int64(limit) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
