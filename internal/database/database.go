// Package database opens the Postgres and Redis connections shared by the binaries.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"airline-booking/internal/config"
	"airline-booking/internal/logger"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const retryDelay = 2 * time.Second

// OpenSQL opens a lib/pq pool and pings it, retrying while Postgres starts up.
func OpenSQL(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: POSTGRES_DSN", config.ErrMissingConfig)
	}
	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, attempts))
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err == nil {
			if err = sqldb.PingContext(ctx); err == nil {
				sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
				sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
				sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
				log.Info("DATABASE", "PostgreSQL connection successful")
				return sqldb, nil
			}
			sqldb.Close()
		}
		lastErr = err
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", attempts, lastErr)
}

// Connect wraps OpenSQL in bun with the Postgres dialect.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	sqldb, err := OpenSQL(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// ConnectPGDriver uses bun's own pure Go driver. Short-lived tools use it
// so they need no connection pool tuning.
func ConnectPGDriver(ctx context.Context, dsn string) (*bun.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: POSTGRES_DSN", config.ErrMissingConfig)
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func ConnectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection error: %w", err)
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client, nil
}
