package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/warp/vacation-planner/leave"
	"github.com/warp/vacation-planner/metrics"
	"github.com/warp/vacation-planner/session"
)

type ctxKey int

const (
	callerKey ctxKey = iota
	claimsKey
)

func callerFrom(ctx context.Context) leave.Caller {
	c, _ := ctx.Value(callerKey).(leave.Caller)
	return c
}

func claimsFrom(ctx context.Context) *session.Claims {
	c, _ := ctx.Value(claimsKey).(*session.Claims)
	return c
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// RequireAuth verifies the bearer token and stores the resolved caller in
// the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || token == "" {
			writeErrorCode(w, http.StatusUnauthorized, codeUnauthenticated, "Missing bearer token", nil)
			return
		}

		claims, err := h.Sessions.Verify(r.Context(), token)
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, codeUnauthenticated, "Invalid session", err)
			return
		}

		caller, err := h.Service.ResolveCaller(r.Context(), claims.EmployeeID())
		if err != nil {
			if leave.IsNotFound(err) {
				writeErrorCode(w, http.StatusUnauthorized, codeUnauthenticated, "Unknown employee", nil)
				return
			}
			h.writeServiceError(w, "Failed to resolve caller", err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects callers that are not administrators. It must run
// after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !callerFrom(r.Context()).IsAdmin {
			writeErrorCode(w, http.StatusForbidden, leave.CodeNotAuthorized, "Administrator only", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RATE LIMITING
// =============================================================================

// limiterIdleTTL is how long an address may go unseen before its bucket is
// dropped.
const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client address. Buckets idle for
// longer than IdleTTL are swept on access.
type IPRateLimiter struct {
	mu        sync.Mutex
	ips       map[string]*visitor
	r         rate.Limit
	b         int
	IdleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewIPRateLimiter allows r events per second with burst b per address.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:     make(map[string]*visitor),
		r:       r,
		b:       b,
		IdleTTL: limiterIdleTTL,
		now:     time.Now,
	}
}

// Limiter returns the bucket for key, creating it on first use.
func (l *IPRateLimiter) Limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.IdleTTL {
		l.sweepLocked(now)
	}

	v, ok := l.ips[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Len returns the number of tracked addresses.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ips)
}

func (l *IPRateLimiter) sweepLocked(now time.Time) {
	for key, v := range l.ips {
		if now.Sub(v.lastSeen) >= l.IdleTTL {
			delete(l.ips, key)
		}
	}
	l.lastSweep = now
}

// RateLimitByIP rejects requests over the per-address budget with 429.
func RateLimitByIP(l *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Limiter(clientIP(r)).Allow() {
				writeErrorCode(w, http.StatusTooManyRequests, codeRateLimited, "Too many requests from this address", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// =============================================================================
// ACCESS LOG
// =============================================================================

// RequestLogger logs each request with zap and records HTTP metrics. The
// route label is the matched chi pattern, so ids do not explode cardinality.
func RequestLogger(logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if m != nil {
				m.ObserveHTTP(r.Method, route, status, elapsed)
			}
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("elapsed", elapsed),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
