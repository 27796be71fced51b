package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/transmit/core/logger"
	"github.com/dmitrymomot/transmit/pkg/async"
)

// Readiness verifies all service dependencies are functioning.
// Checks run concurrently. Returns "READY" if all pass, 503 Service
// Unavailable if any fails or panics.
//
// Example:
//
//	mux.Handle("GET /health/ready", health.Readiness(
//		log,
//		pg.Healthcheck(pool),
//		redis.Healthcheck(client),
//	))
func Readiness(log *slog.Logger, fn ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		futures := make([]*async.Future[struct{}], 0, len(fn))
		for _, f := range fn {
			futures = append(futures, async.Async(r.Context(), f, runCheck))
		}

		if _, err := async.WaitAll(futures...); err != nil {
			log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, http.StatusText(http.StatusServiceUnavailable))
			return
		}

		_, _ = io.WriteString(w, "READY")
	}
}

func runCheck(ctx context.Context, check func(context.Context) error) (struct{}, error) {
	return struct{}{}, check(ctx)
}
