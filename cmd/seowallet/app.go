package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/currency"
	"github.com/nkiryanov/seowallet/internal/db"
	"github.com/nkiryanov/seowallet/internal/events"
	"github.com/nkiryanov/seowallet/internal/handlers"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/repository/postgres"
	"github.com/nkiryanov/seowallet/internal/service/auth"
	"github.com/nkiryanov/seowallet/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/seowallet/internal/service/gateway"
	"github.com/nkiryanov/seowallet/internal/service/plan"
	"github.com/nkiryanov/seowallet/internal/service/recharge"
	"github.com/nkiryanov/seowallet/internal/service/rechargeprocessor"
	"github.com/nkiryanov/seowallet/internal/service/reconcile"
	"github.com/nkiryanov/seowallet/internal/service/user"
	"github.com/nkiryanov/seowallet/internal/service/wallet"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger     logger.Logger
	processor  *rechargeprocessor.Processor
	reconciler *reconcile.Reconciler
	schedule   string

	// Released in reverse order when the app stops
	closers []func() error
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	if c.SecretKey == "" {
		return nil, fmt.Errorf("%w: secret key is required", apperrors.ErrConfiguration)
	}

	// The rate is checked once here and injected; requests never read it again
	rate, err := currency.ParseRate(c.USDRate)
	if err != nil {
		return nil, err
	}
	converter, err := currency.NewConverter(rate)
	if err != nil {
		return nil, err
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l, schedule: c.ReconcileSchedule}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, closePool(pool))

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Alerts
	var alerts events.Publisher = &events.LogPublisher{L: l}
	if brokers := c.Brokers(); len(brokers) > 0 {
		kafka := events.NewKafkaPublisher(brokers, c.KafkaAlertsTopic, events.RetryConfig{Jitter: true}, l)
		app.closers = append(app.closers, kafka.Close)
		alerts = kafka
		l.Info("Alerts go to kafka", "brokers", brokers, "topic", c.KafkaAlertsTopic)
	}

	// Idempotency cache
	var cache *redis.Client
	if c.RedisURL != "" {
		cache, err = connectRedis(ctx, c.RedisURL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, cache.Close)
	} else {
		l.Warn("Redis is not configured, idempotency keys are not enforced")
	}

	// Initialize services
	walletService := wallet.NewService(storage, wallet.Config{
		Converter:    converter,
		Alerts:       alerts,
		StoreTimeout: c.StoreTimeout,
		Logger:       l.WithGroup("wallet"),
	})
	userService := user.NewService(auth.DefaultHasher, storage, walletService, l)

	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	authService, err := auth.NewService(auth.Config{}, tokenManager, userService)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	gatewayClient := gateway.NewClient(c.RazorpayURL, c.RazorpayKeyID, c.RazorpayKeySecret, l.WithGroup("razorpay"))
	rechargeService := recharge.NewService(storage, walletService, gatewayClient, l)

	planService := plan.NewService(storage, walletService, l)
	if err := planService.Seed(ctx); err != nil {
		return nil, fmt.Errorf("error while seeding plans. Err: %w", err)
	}

	if err := bootstrapAdmin(ctx, userService, c.AdminUsername, c.AdminPassword, l); err != nil {
		return nil, err
	}

	app.processor = rechargeprocessor.New(l.WithGroup("recharge-processor"), rechargeService)
	app.reconciler = reconcile.New(storage, alerts, l.WithGroup("reconcile"))

	router := handlers.NewRouter(handlers.Services{
		Auth:     authService,
		Owners:   userService,
		Wallets:  walletService,
		Recharge: rechargeService,
		Plans:    planService,
		Cache:    cache,
	}, l)

	app.Handler = router

	return app, nil
}

// Run starts http server and background jobs and stops all of them gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	if err := s.reconciler.Start(s.schedule); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	processorStopped := s.processor.Process(srvCtx)
	idleConnsClosed := make(chan struct{})

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-processorStopped

	select {
	case <-s.reconciler.Stop().Done():
	case <-time.After(shutdownTimeout):
		s.logger.Error("Reconciliation did not finish in time")
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *ServerApp) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Error("Failed to release resource", "error", err)
		}
	}
	s.closers = nil
}

func closePool(pool *pgxpool.Pool) func() error {
	return func() error {
		pool.Close()
		return nil
	}
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %v", apperrors.ErrConfiguration, err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis is not reachable. Err: %w", err)
	}

	return client, nil
}

// Create the first admin unless it exists already
func bootstrapAdmin(ctx context.Context, users *user.UserService, username string, password string, l logger.Logger) error {
	if username == "" || password == "" {
		return nil
	}

	_, _, err := users.CreateOwner(ctx, user.CreateParams{
		Username: username,
		Password: password,
		Role:     models.RoleAdmin,
		Currency: user.DefaultCurrency,
	})

	switch {
	case err == nil:
		l.Info("Admin created", "username", username)
		return nil
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		return nil
	default:
		return fmt.Errorf("error while creating admin. Err: %w", err)
	}
}
