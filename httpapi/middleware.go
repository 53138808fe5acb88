package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/middleware"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	headerRequestID = "X-Request-ID"
	ctxKeyAuth      = "auth"
	ctxKeyRequestID = "request_id"
)

// RequestContext assigns a request ID (kept from X-Request-ID when present)
// and stores it with the client IP on the request context so engine audit
// events and logs carry both.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" || len(id) > 128 {
			id = ulid.Make().String()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(headerRequestID, id)

		ctx := goToken.WithRequestID(c.Request.Context(), id)
		ctx = goToken.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := logger.Info()
		switch {
		case status >= 500:
			ev = logger.Error()
		case status >= 400:
			ev = logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(ctxKeyRequestID)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

// IPLimiter is a per-client-IP token bucket. Idle buckets are swept once
// the table grows past maxEntries.
type IPLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*ipBucket
	limit      rate.Limit
	burst      int
	idle       time.Duration
	maxEntries int
}

type ipBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewIPLimiter(perSecond float64, burst int) *IPLimiter {
	return &IPLimiter{
		buckets:    make(map[string]*ipBucket),
		limit:      rate.Limit(perSecond),
		burst:      burst,
		idle:       10 * time.Minute,
		maxEntries: 10000,
	}
}

func (l *IPLimiter) Allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) >= l.maxEntries {
			l.sweep(now)
		}
		b = &ipBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func (l *IPLimiter) sweep(now time.Time) {
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, ip)
		}
	}
}

func RateLimit(l *IPLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l != nil && !l.Allow(c.ClientIP()) {
			abortError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		c.Next()
	}
}

// RequireAuth validates the bearer access token through the engine.
func RequireAuth(v middleware.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		res, err := v.Validate(c.Request.Context(), token)
		if err != nil {
			e := errorFor(err)
			abortError(c, e.status, e.code, e.message)
			return
		}

		c.Set(ctxKeyAuth, res)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, ok := authResult(c)
		if !ok {
			abortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "not authenticated")
			return
		}
		if res.Role != role {
			abortError(c, http.StatusForbidden, "FORBIDDEN", "insufficient role")
			return
		}
		c.Next()
	}
}

func authResult(c *gin.Context) (*goToken.AuthResult, bool) {
	v, ok := c.Get(ctxKeyAuth)
	if !ok {
		return nil, false
	}
	res, ok := v.(*goToken.AuthResult)
	return res, ok && res != nil
}
