package viewstate

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/adminmeta/internal/config"
)

// Open creates the store selected by cfg. The returned closer is nil when
// there is nothing to release. A disabled config returns a nil store.
func Open(ctx context.Context, cfg config.ViewStateConfig, logger *zap.Logger) (Store, func(), error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory view state store")
		return NewMemoryStore(), nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("view state: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("view state: redis ping: %w", err)
		}
		logger.Info("using redis view state store", zap.String("addr", addr))
		return NewRedisStore(client), func() { client.Close() }, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("view state: %s environment variable not set", cfg.DSNEnv)
		}
		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("view state: parse DSN: %w", err)
		}
		if cfg.MaxConn > 0 {
			poolCfg.MaxConns = int32(cfg.MaxConn)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("view state: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("view state: ping: %w", err)
		}
		store := NewPgStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("using postgres view state store")
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported view state driver: %q", cfg.Driver)
	}
}
