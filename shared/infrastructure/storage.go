package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/draftea/order-fulfillment/shared/idempotency"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverRedis    = "redis"
)

// DatabaseConfig holds the postgres connection settings
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// GetDatabaseURL returns URL when set, otherwise builds one from the parts
func (c DatabaseConfig) GetDatabaseURL() string {
	if c.URL != "" {
		return c.URL
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// ConnectPostgres opens and pings the database
func ConnectPostgres(ctx context.Context, cfg DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.GetDatabaseURL())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return db, nil
}

// IdempotencyConfig selects the processed-event store
type IdempotencyConfig struct {
	Driver        string        `mapstructure:"driver"`
	Retention     time.Duration `mapstructure:"retention"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

// NewIdempotencyStore builds the store selected by cfg.Driver. The purger is
// nil for redis, whose claims expire on their own.
func NewIdempotencyStore(cfg IdempotencyConfig, db *sqlx.DB, client redis.UniversalClient) (idempotency.Store, idempotency.Purger, error) {
	switch cfg.Driver {
	case "", StorageDriverMemory:
		store := idempotency.NewMemoryStore()
		return store, store, nil

	case StorageDriverPostgres:
		if db == nil {
			return nil, nil, errors.New("postgres idempotency store requires a database")
		}
		store := NewPostgresIdempotencyStore(db)
		return store, store, nil

	case StorageDriverRedis:
		if client == nil {
			return nil, nil, errors.New("redis idempotency store requires a redis client")
		}
		return NewRedisIdempotencyStore(client, cfg.Retention), nil, nil
	}

	return nil, nil, errors.Errorf("unknown idempotency driver %q", cfg.Driver)
}
