package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"rate-my-movie/internal/kv"
)

// jsonCollection guarda un valor completo como un único blob JSON bajo una
// clave fija. mu serializa los escritores de la colección; las lecturas no
// lo toman.
type jsonCollection[T any] struct {
	mu     sync.Mutex
	store  kv.Store
	key    string
	logger *zap.Logger
}

func newJSONCollection[T any](store kv.Store, key string, logger *zap.Logger) *jsonCollection[T] {
	return &jsonCollection[T]{store: store, key: key, logger: logger}
}

// load devuelve found=false si la clave no existe o el contenido está
// corrupto. Sólo los fallos del store se devuelven como error.
func (c *jsonCollection[T]) load(ctx context.Context) (T, bool, error) {
	var zero T
	raw, err := c.store.Get(ctx, c.key)
	if errors.Is(err, kv.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("load %s: %w", c.key, err)
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		c.logger.Warn("discarding corrupt collection", zap.String("key", c.key), zap.Error(err))
		return zero, false, nil
	}
	return v, true, nil
}

func (c *jsonCollection[T]) save(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	if err := c.store.Set(ctx, c.key, string(data)); err != nil {
		return fmt.Errorf("save %s: %w", c.key, err)
	}
	return nil
}

func (c *jsonCollection[T]) remove(ctx context.Context) error {
	if err := c.store.Remove(ctx, c.key); err != nil {
		return fmt.Errorf("remove %s: %w", c.key, err)
	}
	return nil
}
