package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/config"
	"github.com/ariefcatur/go-shop-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/memory"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/payments"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/ariefcatur/go-shop-checkout/internal/tracing"
	"github.com/ariefcatur/go-shop-checkout/internal/webhook"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := logging.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid_config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("tracing_init_failed", zap.Error(err))
	}

	// Store
	var store orders.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using_memory_store")
		store = memory.New()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("db_connect_failed", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.CheckTransactions(ctx, db); err != nil {
			logger.Fatal("atomic_finalization_unavailable", zap.Error(err))
		}
		store = &orders.Repo{DB: db}
	}

	m := metrics.New("checkout")
	svc := &orders.Service{
		Store:          store,
		Payments:       payments.NewStripe(cfg.StripeSecretKey),
		Currency:       cfg.Currency,
		PaymentTimeout: cfg.PaymentTimeout,
		Producer:       cfg.ServiceName,
		Logger:         logger,
		Metrics:        m,
	}
	wh := &webhook.Handler{
		Service:  svc,
		Verifier: payments.NewStripe(cfg.StripeSecretKey),
		Secret:   cfg.StripeWebhookSecret,
		Logger:   logger,
		Metrics:  m,
	}
	oh := &httpx.OrdersHandler{Service: svc}

	// Redis (optional)
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		cache := &redisx.StatusCache{RDB: rdb}
		svc.Cache = cache
		oh.Cache = cache
		wh.Dedup = &redisx.Deduper{RDB: rdb, Scope: "webhook"}
	}

	// Kafka producer (optional)
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
		prod.Start()
		svc.Publisher = prod
	}

	router := httpx.NewRouter(httpx.RouterConfig{Logger: logger, Metrics: m, RequestTimeout: cfg.RequestTimeout})
	(&httpx.CartHandler{Service: svc}).Register(router)
	oh.Register(router)
	router.Method(http.MethodPost, "/webhooks/stripe", wh)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http_listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http_listen_failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting_down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close()
	}
	if err := shutdownTracing(ctx2); err != nil {
		logger.Warn("tracing_shutdown_failed", zap.Error(err))
	}
}
