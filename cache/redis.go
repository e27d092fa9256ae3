package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// KeyPrefix namespaces every key written by the backend.
	KeyPrefix string

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration
}

// RedisBackend stores each document under its own key and indexes the
// keys of a model URI in a sorted set scored by publication date in
// milliseconds.
//
// Keys:
//
//	<prefix>:doc:<key>            document bytes
//	<prefix>:meta:<key>           hash {uri, version, date, tenant}
//	<prefix>:idx:<scope>:<uri>    sorted set of keys
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects to Redis.
func NewRedisBackend(opts RedisOptions) (*RedisBackend, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "nodeset"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBackend{client: client, prefix: opts.KeyPrefix}, nil
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// Ping checks the Redis connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) docKey(key string) string  { return b.prefix + ":doc:" + key }
func (b *RedisBackend) metaKey(key string) string { return b.prefix + ":meta:" + key }
func (b *RedisBackend) indexKey(uri string, scope Scope) string {
	return b.prefix + ":idx:" + scope.String() + ":" + uri
}

// Newest implements Backend.
func (b *RedisBackend) Newest(ctx context.Context, uri string, scopes []Scope) (*Entry, error) {
	var entries []*Entry
	for _, scope := range scopes {
		index := b.indexKey(uri, scope)
		top, err := b.client.ZRevRangeWithScores(ctx, index, 0, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("read index: %w", err)
		}
		if len(top) == 0 {
			continue
		}
		score := strconv.FormatFloat(top[0].Score, 'f', -1, 64)
		keys, err := b.client.ZRangeByScore(ctx, index, &redis.ZRangeBy{Min: score, Max: score}).Result()
		if err != nil {
			return nil, fmt.Errorf("read index: %w", err)
		}
		for _, key := range keys {
			e, err := b.entry(ctx, key)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	}
	return newestOf(entries), nil
}

func (b *RedisBackend) entry(ctx context.Context, key string) (*Entry, error) {
	meta, err := b.client.HGetAll(ctx, b.metaKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if len(meta) == 0 {
		return nil, fmt.Errorf("%w: missing metadata for %s", ErrNotCached, key)
	}
	pub, err := nodeset.ParsePublicationDate(meta["date"])
	if err != nil {
		return nil, err
	}
	return &Entry{
		Identity: model.ModelIdentity{
			ModelURI:        meta["uri"],
			Version:         meta["version"],
			PublicationDate: pub,
			CacheKey:        key,
		},
		Scope: Scope{Tenant: meta["tenant"]},
		Key:   key,
	}, nil
}

// Put implements Backend.
func (b *RedisBackend) Put(ctx context.Context, id model.ModelIdentity, scope Scope, data []byte) (string, error) {
	key := uuid.New().String()

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.docKey(key), data, 0)
		pipe.HSet(ctx, b.metaKey(key), map[string]any{
			"uri":     id.ModelURI,
			"version": id.Version,
			"date":    nodeset.FormatPublicationDateExact(id.PublicationDate),
			"tenant":  scope.Tenant,
		})
		pipe.ZAdd(ctx, b.indexKey(id.ModelURI, scope), redis.Z{Score: dateScore(id.PublicationDate), Member: key})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store nodeset: %w", err)
	}
	return key, nil
}

// Read implements Backend.
func (b *RedisBackend) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.docKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read nodeset: %w", err)
	}
	return data, nil
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	e, err := b.entry(ctx, key)
	if errors.Is(err, ErrNotCached) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, b.indexKey(e.Identity.ModelURI, e.Scope), key)
		pipe.Del(ctx, b.docKey(key), b.metaKey(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete nodeset: %w", err)
	}
	return nil
}

// Flush implements Backend. Redis persists writes on its own schedule.
func (b *RedisBackend) Flush(context.Context) error { return nil }
