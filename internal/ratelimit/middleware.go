package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"airline-booking/internal/logger"
	"airline-booking/internal/utils"
)

// ClientIP prefers the first X-Forwarded-For hop over the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware throttles per client IP. Redis errors let the request through.
func Middleware(l *Limiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			res, err := l.Allow(r.Context(), ip)
			if err != nil {
				log.Warn("RATELIMIT", fmt.Sprintf("Limiter unavailable for %s, allowing request: %v", l.Scope, err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				log.Debug("RATELIMIT", fmt.Sprintf("%s throttled for %s (count=%d)", l.Scope, ip, res.Count))
				secs := int(math.Ceil(res.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				_ = utils.WriteJSON(w, http.StatusTooManyRequests,
					utils.ErrorResponse("rate_limited", "Rate limit exceeded. Please wait a few seconds."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
