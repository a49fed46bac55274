// Package app arma las dependencias compartidas por los binarios de cmd/.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rate-my-movie/internal/config"
	"rate-my-movie/internal/db"
	"rate-my-movie/internal/kv"
)

// Stores reúne el store durable y el cliente Redis opcional.
type Stores struct {
	KV    kv.Store
	Redis *redis.Client

	closers []func()
}

// Close libera conexiones en orden inverso de apertura.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStores elige el backend según cfg.StoreBackend. Si reg no es nil el
// store queda instrumentado.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Stores, error) {
	s := &Stores{}

	if cfg.RedisAddr != "" {
		s.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		client := s.Redis
		s.closers = append(s.closers, func() { _ = client.Close() })
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := s.Redis.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		}
		cancel()
	}

	var backend kv.Store
	switch cfg.StoreBackend {
	case config.BackendRedis:
		if s.Redis == nil {
			return nil, errors.New("redis store backend requires REDIS_ADDR")
		}
		backend = kv.NewRedis(s.Redis, cfg.RedisKeyPrefix)
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("db connect: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := db.Ping(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("db schema: %w", err)
		}
		backend = kv.NewPostgres(pool)
	default:
		backend = kv.NewMemory()
		logger.Warn("using in-memory store; data is lost on restart")
	}

	if reg != nil {
		s.KV = kv.Instrument(backend, reg)
	} else {
		s.KV = backend
	}
	logger.Info("store ready", zap.String("backend", cfg.StoreBackend))
	return s, nil
}
