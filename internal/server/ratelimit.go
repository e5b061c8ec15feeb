package server

import (
	"log"
	"net/http"
	"path"

	"golang.org/x/time/rate"

	"claimsaga/internal/config"
)

// newIntakeLimiter throttles claim filing only; reads and collaborator routes
// are never limited. A zero rate disables it.
func newIntakeLimiter(basePath string, cfg config.IntakeConfig, logger *log.Logger) func(http.Handler) http.Handler {
	if cfg.RatePerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if logger == nil {
		logger = log.Default()
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	claimsPath := path.Join("/", basePath, "claims")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.URL.Path == claimsPath && !limiter.Allow() {
				logger.Printf("intake: rate limit exceeded from %s", r.RemoteAddr)
				respondStatusError(w, newAPIError(http.StatusTooManyRequests, "rate_limited", "claim intake rate exceeded, retry later", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
