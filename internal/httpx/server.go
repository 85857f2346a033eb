package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(cfg.Logger), middleware.Recoverer)
	r.Use(Instrument(cfg.Metrics))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	return r
}
