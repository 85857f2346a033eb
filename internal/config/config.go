package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	ServiceName  string
	Env          string
	StoreDriver  string

	Currency            string
	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentTimeout      time.Duration
	RequestTimeout      time.Duration

	OTLPEndpoint string
}

// Load reads the environment. Malformed durations fall back to their
// defaults; Validate reports what is missing.
func Load() Config {
	return Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:  getenv("POSTGRES_DSN", ""),
		RedisAddr:    getenv("REDIS_ADDR", ""),
		KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "")),
		ServiceName:  getenv("SERVICE_NAME", "checkout-api"),
		Env:          getenv("ENV", "dev"),
		StoreDriver:  strings.ToLower(getenv("STORE_DRIVER", DriverPostgres)),

		Currency:            strings.ToLower(getenv("CURRENCY", "mxn")),
		StripeSecretKey:     getenv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getenv("STRIPE_WEBHOOK_SECRET", ""),
		PaymentTimeout:      getDuration("PAYMENT_TIMEOUT", 10*time.Second),
		RequestTimeout:      getDuration("REQUEST_TIMEOUT", 15*time.Second),

		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required with STORE_DRIVER=postgres"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of postgres, memory", c.StoreDriver))
	}
	if len(c.Currency) != 3 {
		errs = append(errs, fmt.Errorf("CURRENCY %q is not a 3-letter code", c.Currency))
	}
	return errors.Join(errs...)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
