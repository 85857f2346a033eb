package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const UserHeader = "X-User-Id"

type ctxKey struct{}

// RequestLogger attaches a request-scoped logger to the context and logs one
// line per request once it completes.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := base.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(logging.ContextWithLogger(r.Context(), log)))
			log.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Instrument records request latency labelled by the matched route pattern.
func Instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveHTTP(route, r.Method, status, time.Since(start))
		})
	}
}

// RequireUser trusts the gateway-provided user header and rejects requests
// without a well-formed one.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(UserHeader))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or invalid " + UserHeader, Code: "UNAUTHENTICATED"})
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, id.String())
		ctx = logging.ContextWithLogger(ctx, logging.FromContext(ctx, zap.NewNop()).With(zap.String("user_id", id.String())))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
