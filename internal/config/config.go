package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	PayoutFlat    = "flat"
	PayoutPercent = "percent"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	PGMaxConns   int32
	Store        string
	RedisAddr    string
	KafkaBrokers []string
	ServiceName  string
	LogLevel     string

	Payout   PayoutConfig
	Timeouts Timeouts
	Bulk     BulkConfig
	Notifier NotifierConfig
}

type PayoutConfig struct {
	Mode      string
	FlatCents int64
	Percent   decimal.Decimal // share of the order total, 0 < p <= 1
}

type Timeouts struct {
	Audit   time.Duration
	Notify  time.Duration
	Request time.Duration
}

type BulkConfig struct {
	Concurrency int
	MaxOrders   int
}

type NotifierConfig struct {
	WebhookURL string
	Group      string
	Workers    int
}

func Load() (Config, error) {
	var errs []error

	cfg := Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		Store:        strings.ToLower(getenv("STORE", StorePostgres)),
		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "kafka:9092")),
		ServiceName:  getenv("SERVICE_NAME", "order-admin"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		Payout: PayoutConfig{
			Mode: strings.ToLower(getenv("PAYOUT_MODE", PayoutFlat)),
		},
		Notifier: NotifierConfig{
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
			Group:      getenv("NOTIFIER_GROUP", "order-notifier"),
		},
	}

	cfg.PGMaxConns = int32(intEnv("PG_MAX_CONNS", 8, &errs))
	cfg.Payout.FlatCents = int64(intEnv("PAYOUT_FLAT_CENTS", 1500, &errs))
	pct, err := decimal.NewFromString(getenv("PAYOUT_PERCENT", "0.85"))
	if err != nil {
		errs = append(errs, fmt.Errorf("PAYOUT_PERCENT: %w", err))
	}
	cfg.Payout.Percent = pct

	cfg.Timeouts.Audit = durationEnv("AUDIT_TIMEOUT", 2*time.Second, &errs)
	cfg.Timeouts.Notify = durationEnv("NOTIFY_TIMEOUT", 2*time.Second, &errs)
	cfg.Timeouts.Request = durationEnv("REQUEST_TIMEOUT", 10*time.Second, &errs)
	cfg.Bulk.Concurrency = intEnv("BULK_CONCURRENCY", 4, &errs)
	cfg.Bulk.MaxOrders = intEnv("BULK_MAX_ORDERS", 200, &errs)
	cfg.Notifier.Workers = intEnv("NOTIFIER_WORKERS", 4, &errs)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when STORE=postgres"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store))
	}
	switch c.Payout.Mode {
	case PayoutFlat:
		if c.Payout.FlatCents <= 0 {
			errs = append(errs, errors.New("PAYOUT_FLAT_CENTS must be positive"))
		}
	case PayoutPercent:
		if !c.Payout.Percent.IsPositive() || c.Payout.Percent.GreaterThan(decimal.NewFromInt(1)) {
			errs = append(errs, errors.New("PAYOUT_PERCENT must be in (0, 1]"))
		}
	default:
		errs = append(errs, fmt.Errorf("PAYOUT_MODE must be %q or %q, got %q", PayoutFlat, PayoutPercent, c.Payout.Mode))
	}
	if c.Timeouts.Audit <= 0 || c.Timeouts.Notify <= 0 || c.Timeouts.Request <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.Bulk.Concurrency <= 0 || c.Bulk.MaxOrders <= 0 {
		errs = append(errs, errors.New("BULK_CONCURRENCY and BULK_MAX_ORDERS must be positive"))
	}
	return errors.Join(errs...)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func intEnv(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return i
}

func durationEnv(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
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
