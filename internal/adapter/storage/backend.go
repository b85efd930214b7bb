package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/book-lending/internal/config"
	"github.com/rl1809/book-lending/internal/port"
)

// Backend holds the repositories of the configured store driver.
type Backend struct {
	Books port.BookRepository
	Loans port.LoanRepository
	close func(context.Context) error
}

func (b *Backend) Close(ctx context.Context) error {
	return b.close(ctx)
}

// OpenBackend connects to the store selected by cfg.StoreDriver and prepares
// its indexes or schema.
func OpenBackend(ctx context.Context, cfg config.Config) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		return openMongo(ctx, cfg)
	case config.DriverMySQL:
		return openMySQL(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openMongo(ctx context.Context, cfg config.Config) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerSelectionTimeout(cfg.StoreTimeout).
		SetMaxPoolSize(100))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	adapter := NewMongoAdapter(client.Database(cfg.MongoDatabase))
	if err := adapter.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	if err := adapter.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	logrus.WithField("database", cfg.MongoDatabase).Info("connected to mongo")

	return &Backend{Books: adapter, Loans: adapter, close: client.Disconnect}, nil
}

func openMySQL(ctx context.Context, cfg config.Config) (*Backend, error) {
	db, err := sqlx.ConnectContext(ctx, "mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	adapter := NewMySQLAdapter(db)
	if err := adapter.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logrus.Info("connected to mysql")

	return &Backend{
		Books: adapter,
		Loans: adapter,
		close: func(context.Context) error { return db.Close() },
	}, nil
}

// Guards is what the services need for sessions and idempotency.
type Guards interface {
	port.SessionStore
	port.IdempotencyStore
}

// OpenGuards returns a RedisAdapter when REDIS_ADDR is set, otherwise an
// in-process MemoryAdapter. The returned func releases the client.
func OpenGuards(ctx context.Context, cfg config.Config) (Guards, func() error, error) {
	if cfg.RedisAddr == "" {
		logrus.Warn("REDIS_ADDR not set, sessions and idempotency keys are kept in process")
		return NewMemoryAdapter(), func() error { return nil }, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, redisError("ping", err)
	}
	logrus.WithField("addr", cfg.RedisAddr).Info("connected to redis")

	return NewRedisAdapter(rdb), rdb.Close, nil
}
