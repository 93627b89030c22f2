package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/service/gateway"
	"github.com/nkiryanov/seowallet/internal/service/reconcile"
	"github.com/nkiryanov/seowallet/internal/service/wallet"
)

const (
	defaultListenAddr        = "localhost:8000"
	defaultLoggingLevel      = logger.LevelInfo
	defaultEnvironment       = logger.EnvProd
	defaultKafkaAlertsTopic  = "wallet-alerts"
	defaultStoreTimeout      = wallet.DefaultStoreTimeout
	defaultReconcileSchedule = reconcile.DefaultSchedule
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment (dev, prod)
	Environment string

	// Address on which the wallet service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// INR per USD, used only to show balances in USD
	USDRate string

	// Optional. Without redis idempotency keys are not enforced
	RedisURL string

	// Optional. Comma separated list; without brokers alerts go to the error log only
	KafkaBrokers     string
	KafkaAlertsTopic string

	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayURL       string

	// Deadline for one store operation
	StoreTimeout time.Duration

	// Cron spec of the balance reconciliation job
	ReconcileSchedule string

	// First admin, created on start when both are set
	AdminUsername string
	AdminPassword string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:          defaultLoggingLevel,
		Environment:       defaultEnvironment,
		ListenAddr:        defaultListenAddr,
		KafkaAlertsTopic:  defaultKafkaAlertsTopic,
		RazorpayURL:       gateway.DefaultURL,
		StoreTimeout:      defaultStoreTimeout,
		ReconcileSchedule: defaultReconcileSchedule,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":         setString(&c.ListenAddr),
		"DATABASE_URI":        setString(&c.DatabaseDSN),
		"SECRET_KEY":          setString(&c.SecretKey),
		"LOG_LEVEL":           setString(&c.LogLevel),
		"ENVIRONMENT":         setString(&c.Environment),
		"USD_RATE":            setString(&c.USDRate),
		"REDIS_URL":           setString(&c.RedisURL),
		"KAFKA_BROKERS":       setString(&c.KafkaBrokers),
		"KAFKA_ALERTS_TOPIC":  setString(&c.KafkaAlertsTopic),
		"RAZORPAY_KEY_ID":     setString(&c.RazorpayKeyID),
		"RAZORPAY_KEY_SECRET": setString(&c.RazorpayKeySecret),
		"RAZORPAY_URL":        setString(&c.RazorpayURL),
		"STORE_TIMEOUT":       setDuration(&c.StoreTimeout),
		"RECONCILE_SCHEDULE":  setString(&c.ReconcileSchedule),
		"ADMIN_USERNAME":      setString(&c.AdminUsername),
		"ADMIN_PASSWORD":      setString(&c.AdminPassword),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("env %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("seowallet", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.USDRate, "usd-rate", "u", c.USDRate, "INR per USD rate for display conversion")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis URL for idempotency keys")
	fs.StringVarP(&c.KafkaBrokers, "kafka-brokers", "k", c.KafkaBrokers, "Comma separated Kafka brokers for alerts")
	fs.StringVar(&c.KafkaAlertsTopic, "kafka-alerts-topic", c.KafkaAlertsTopic, "Kafka topic for alerts")
	fs.StringVar(&c.RazorpayKeyID, "razorpay-key-id", c.RazorpayKeyID, "Razorpay key id")
	fs.StringVar(&c.RazorpayKeySecret, "razorpay-key-secret", c.RazorpayKeySecret, "Razorpay key secret")
	fs.StringVar(&c.RazorpayURL, "razorpay-url", c.RazorpayURL, "Razorpay API base url")
	fs.DurationVar(&c.StoreTimeout, "store-timeout", c.StoreTimeout, "Deadline for one store operation")
	fs.StringVar(&c.ReconcileSchedule, "reconcile-schedule", c.ReconcileSchedule, "Cron spec of balance reconciliation")
	fs.StringVar(&c.AdminUsername, "admin-username", c.AdminUsername, "Username of the admin created on start")
	fs.StringVar(&c.AdminPassword, "admin-password", c.AdminPassword, "Password of the admin created on start")

	return fs.Parse(args)
}

func (c *Config) Brokers() []string {
	var brokers []string
	for b := range strings.SplitSeq(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
