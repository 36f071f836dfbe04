package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when the cart does not exist or has expired.
var ErrNotFound = errors.New("cart: not found")

// Store persists carts.
type Store interface {
	Get(ctx context.Context, id string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps carts as JSON under cart:<id>. Every save refreshes the TTL.
type RedisStore struct {
	R   *redis.Client
	TTL time.Duration
}

func cartKey(id string) string { return "cart:" + id }

// Get loads a cart.
func (s RedisStore) Get(ctx context.Context, id string) (*Cart, error) {
	data, err := s.R.Get(ctx, cartKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return &c, nil
}

// Save writes a cart with a fresh TTL.
func (s RedisStore) Save(ctx context.Context, c *Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.R.Set(ctx, cartKey(c.ID), data, s.TTL).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Delete drops a cart. Missing carts are ignored.
func (s RedisStore) Delete(ctx context.Context, id string) error {
	return s.R.Del(ctx, cartKey(id)).Err()
}
