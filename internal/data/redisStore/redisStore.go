// Package redisStore owns the redis clients behind the durable batch store.
package redisStore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/akolanti/MedExtract/internal/config"
	"github.com/akolanti/MedExtract/pkg/logger_i"
	"github.com/redis/go-redis/v9"
)

const (
	pingAttempts = 3
	pingTimeout  = 3 * time.Second
	ioTimeout    = 30 * time.Second
)

var (
	clients = make(map[clientKey]*Store)
	mu      sync.Mutex
	logger  = logger_i.NewLogger("redis_store")
)

type clientKey struct {
	addr string
	db   int
}

type Store struct {
	client *redis.Client
	db     int
}

type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect returns the client for opts.Addr and opts.DB, dialing and pinging it on first use.
// A client that never answered a ping is not cached.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	key := clientKey{addr: opts.Addr, db: opts.DB}

	mu.Lock()
	defer mu.Unlock()
	if s, ok := clients[key]; ok {
		return s, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:                  opts.Addr,
		Password:              opts.Password,
		DB:                    opts.DB,
		ContextTimeoutEnabled: true,
		ReadTimeout:           ioTimeout,
		WriteTimeout:          ioTimeout,
	})
	if err := ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s db %d: %w", opts.Addr, opts.DB, err)
	}

	s := &Store{client: client, db: opts.DB}
	clients[key] = s
	logger.Info("Redis client ready", "addr", opts.Addr, "db", opts.DB)
	return s, nil
}

// GetRedisStore connects to one logical DB of the configured server. It returns nil
// when redis is offline so callers can fall back to another store.
func GetRedisStore(ctx context.Context, db int) *Store {
	settings := config.Get()
	s, err := Connect(ctx, Options{Addr: settings.RedisAddr, Password: settings.RedisPassword, DB: db})
	if err != nil {
		logger.Error("Redis is offline", "error", err)
		return nil
	}
	return s
}

func ping(ctx context.Context, client *redis.Client) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil || ctx.Err() != nil {
			return err
		}
		logger.Warn("Redis ping failed", "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}
	return err
}

// CloseAll closes every cached client.
func CloseAll() error {
	mu.Lock()
	defer mu.Unlock()
	var errs []error
	for key, s := range clients {
		if err := s.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db %d: %w", key.db, err))
		}
		delete(clients, key)
	}
	if len(errs) == 0 {
		logger.Info("Redis clients closed")
	}
	return errors.Join(errs...)
}

// NewTestStore wraps an existing client, tests point it at miniredis.
func NewTestStore(client *redis.Client) *Store {
	return &Store{client: client}
}
