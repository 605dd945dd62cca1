/**
 * @description
 * Process wiring shared by the serve and worker commands. It loads configuration,
 * builds the logger, tracing, database pool, Redis rate limiter, integration clients
 * behind circuit breakers and the core application service.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL connection pool.
 * - github.com/redis/go-redis/v9: Shared rate limit counters.
 * - internal/app, internal/config, internal/store: Service, configuration and persistence.
 * - pkg/bankclient, pkg/cardclient, pkg/marketclient, pkg/breaker: Outbound integrations.
 */

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/superapp-backend/internal/app"
	"github.com/transfa/superapp-backend/internal/config"
	"github.com/transfa/superapp-backend/internal/logging"
	"github.com/transfa/superapp-backend/internal/metrics"
	"github.com/transfa/superapp-backend/internal/store"
	"github.com/transfa/superapp-backend/internal/telemetry"
	"github.com/transfa/superapp-backend/pkg/bankclient"
	"github.com/transfa/superapp-backend/pkg/breaker"
	"github.com/transfa/superapp-backend/pkg/cardclient"
	"github.com/transfa/superapp-backend/pkg/marketclient"
	"go.uber.org/zap"
)

const metricsNamespace = "superapp"

// runtime holds everything a command needs. close releases it in reverse order.
type runtime struct {
	cfg     config.Config
	logger  *logging.Logger
	base    *logging.Logger
	metrics *metrics.Metrics
	pool    *pgxpool.Pool
	repo    *store.PostgresRepository
	service *app.Service

	closers []func()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.logger.Sync()
}

// loadConfig reads and validates configuration and builds the logger.
func loadConfig() (config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config load failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger init failed: %w", err)
	}
	return cfg, logger, nil
}

// openPool connects to PostgreSQL and applies the schema when asked to.
func openPool(ctx context.Context, cfg config.Config, logger *logging.Logger, migrate bool) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database url parse failed: %w", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("database connected")

	if migrate {
		if err := store.Migrate(ctx, pool, cfg.Currency); err != nil {
			pool.Close()
			return nil, fmt.Errorf("schema migration failed: %w", err)
		}
		logger.Info("schema applied")
	}
	return pool, nil
}

// bootstrap builds the shared runtime. Optional integrations degrade with a warning.
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, base, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := base.Component("bootstrap")
	rt := &runtime{cfg: cfg, logger: logger, base: base}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelServiceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		rt.closers = append(rt.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.Warn("tracing shutdown failed", zap.Error(err))
			}
		})
	}

	pool, err := openPool(ctx, cfg, logger, cfg.AutoMigrate)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.pool = pool
	rt.closers = append(rt.closers, pool.Close)

	rt.metrics = metrics.New(metricsNamespace)
	rt.repo = store.NewPostgresRepository(pool)
	rt.service = app.NewService(rt.repo, base, cfg)
	rt.service.SetPostingObserver(rt.metrics)

	if redisClient := connectRedis(ctx, cfg, logger); redisClient != nil {
		rt.closers = append(rt.closers, func() { redisClient.Close() })
		rt.service.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix))
	}

	wireIntegrations(rt)
	return rt, nil
}

// connectRedis returns nil when Redis is not configured or unreachable. The
// service then keeps its in-process limiter.
func connectRedis(ctx context.Context, cfg config.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn("redis url missing; using in-process rate limiting", zap.String("env", "REDIS_URL"))
		return nil
	}
	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; using in-process rate limiting", zap.Error(err))
		return nil
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; using in-process rate limiting", zap.Error(err))
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}

func newBreaker(rt *runtime, name string) *breaker.Breaker {
	return breaker.New(breaker.Config{
		Name:                name,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		Logger:              rt.base.Logger,
		OnStateChange:       rt.metrics.SetCircuitState,
	})
}

// wireIntegrations installs the external clients that have a base URL configured.
func wireIntegrations(rt *runtime) {
	cfg := rt.cfg
	if strings.TrimSpace(cfg.BankAPIBaseURL) != "" {
		rt.service.SetBankVerifier(bankclient.NewClient(cfg.BankAPIBaseURL, cfg.BankAPIKey, newBreaker(rt, "bank")))
	} else {
		rt.logger.Warn("bank api not configured; linked accounts stay unverified", zap.String("env", "BANK_API_BASE_URL"))
	}
	if strings.TrimSpace(cfg.CardAPIBaseURL) != "" {
		rt.service.SetCardProcessor(cardclient.NewClient(cfg.CardAPIBaseURL, cfg.CardAPIKey, newBreaker(rt, "card")))
	} else {
		rt.logger.Warn("card api not configured; cards are authorized locally", zap.String("env", "CARD_API_BASE_URL"))
	}
	if strings.TrimSpace(cfg.MarketAPIBaseURL) != "" {
		rt.service.SetQuoteProvider(marketclient.NewClient(cfg.MarketAPIBaseURL, cfg.MarketAPIKey, newBreaker(rt, "market")))
	} else {
		rt.logger.Warn("market api not configured; investment orders use client prices", zap.String("env", "MARKET_API_BASE_URL"))
	}
}
