package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/taskprovider/internal/web/auth"
	"github.com/conduit-lang/taskprovider/internal/web/response"
)

// KeyFunc names the client a request is counted against
type KeyFunc func(r *http.Request) string

// ClientKey counts requests by token subject when the request carries
// validated claims, otherwise by remote IP
func ClientKey(r *http.Request) string {
	if claims, ok := auth.ClaimsFrom(r.Context()); ok && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Writes limits POST, PUT, PATCH and DELETE requests. Reads pass through. A
// limiter error lets the request through.
func Writes(limiter Limiter, key KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				next.ServeHTTP(w, r)
				return
			}

			client := key(r)
			info, err := limiter.Allow(r.Context(), client)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("client", client), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !info.Allowed {
				retry := int64(time.Until(info.ResetAt).Seconds()) + 1
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				response.RenderErrorWithCode(w, http.StatusTooManyRequests,
					fmt.Errorf("write limit of %d exceeded", info.Limit), "rate_limited")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
