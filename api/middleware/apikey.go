package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/imobcrm/crm-backend/api/responses"
	pkgerrors "github.com/imobcrm/crm-backend/pkg/errors"
	"github.com/imobcrm/crm-backend/pkg/logger"
)

const apiKeyHeader = "X-Api-Key"

// WindowLimiter is the fixed-window counter backing request throttles.
type WindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// APIKeyPolicy configures the shared-secret guard of the ingestion endpoint.
type APIKeyPolicy struct {
	Key    string
	Limit  int
	Window time.Duration
}

// APIKey rejects requests whose x-api-key header does not match the configured
// key. An empty key rejects everything. Accepted requests are throttled per
// client IP when a limiter is supplied.
func APIKey(policy APIKeyPolicy, limiter WindowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(policy.Key))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			provided := []byte(strings.TrimSpace(r.Header.Get(apiKeyHeader)))
			if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key"))
				return
			}

			if limiter != nil && policy.Limit > 0 && policy.Window > 0 {
				ip := clientIP(r)
				allowed, count, err := limiter.FixedWindowAllow(ctx, "ingest:ip:"+ip, int64(policy.Limit), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{"ip": ip, "attempts": count, "limit": policy.Limit}), "ingest.rate_limit.blocked")
					}
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
