package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/homecanvas/homecanvas/design"
)

// CachedStore decorates a Store with a Redis read-through cache for
// conversation history, which is re-read on every chat turn. Entries are
// invalidated when a turn transaction touches them.
type CachedStore struct {
	Store
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisCacheConfig holds cache configuration.
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewCachedStore wraps inner with a conversation cache.
func NewCachedStore(inner Store, config *RedisCacheConfig) *CachedStore {
	if config == nil {
		config = &RedisCacheConfig{Addr: "localhost:6379"}
	}
	if config.Prefix == "" {
		config.Prefix = "homecanvas:conversation:"
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &CachedStore{
		Store:  inner,
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

// GetConversation serves from cache when possible, falling back to the inner
// store and populating the cache on miss. Cache failures degrade to the
// inner store; they never fail the read.
func (s *CachedStore) GetConversation(ctx context.Context, conversationID string) (*design.Conversation, error) {
	key := s.key(conversationID)
	raw, err := s.client.Get(ctx, key).Result()
	if err == nil {
		var conv design.Conversation
		if err := json.Unmarshal([]byte(raw), &conv); err == nil {
			return &conv, nil
		}
		// Corrupt entry: drop it and fall through.
		s.client.Del(ctx, key)
	}

	conv, err := s.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(conv); err == nil {
		s.client.Set(ctx, key, encoded, s.ttl)
	}
	return conv, nil
}

// RunTurn runs the turn on the inner store and invalidates any conversation
// the transaction saved.
func (s *CachedStore) RunTurn(ctx context.Context, fn func(Tx) error) error {
	touched := make(map[string]struct{})
	err := s.Store.RunTurn(ctx, func(tx Tx) error {
		return fn(&invalidatingTx{Tx: tx, touched: touched})
	})
	if err != nil {
		return err
	}
	for id := range touched {
		s.client.Del(ctx, s.key(id))
	}
	return nil
}

// Ping checks the Redis connection.
func (s *CachedStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the cache client and the inner store.
func (s *CachedStore) Close() error {
	cacheErr := s.client.Close()
	if err := s.Store.Close(); err != nil {
		return err
	}
	if cacheErr != nil {
		return fmt.Errorf("failed to close cache client: %w", cacheErr)
	}
	return nil
}

func (s *CachedStore) key(conversationID string) string {
	return s.prefix + conversationID
}

type invalidatingTx struct {
	Tx
	touched map[string]struct{}
}

func (t *invalidatingTx) SaveConversation(ctx context.Context, conv *design.Conversation) error {
	if conv != nil {
		t.touched[conv.ID] = struct{}{}
	}
	return t.Tx.SaveConversation(ctx, conv)
}
