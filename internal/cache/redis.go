package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hpungsan/facet/internal/persona"
)

// RedisOptions configures a Redis cache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces keys so several deployments can share a database.
	Prefix string
	// TTL defaults to DefaultTTL when zero. Redis key expiry enforces it.
	TTL time.Duration
}

// Redis is a Cache shared between processes.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Cache = (*Redis)(nil)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisFromClient(client, opts.Prefix, opts.TTL), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Lookup fetches and decodes the entry for in.
func (r *Redis) Lookup(ctx context.Context, in persona.Input) (*persona.Persona, bool, error) {
	data, err := r.client.Get(ctx, r.key(Fingerprint(in))).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var p persona.Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("decode cached persona: %w", err)
	}
	return &p, true, nil
}

// Store writes p with the configured expiry.
func (r *Redis) Store(ctx context.Context, in persona.Input, p *persona.Persona) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}
	if err := r.client.Set(ctx, r.key(Fingerprint(in)), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Stats scans the prefix. Keys are reported sorted, without the prefix.
func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	keys, err := r.scan(ctx)
	if err != nil {
		return Stats{}, err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.TrimPrefix(k, r.prefix)
	}
	return Stats{Size: len(out), Keys: out}, nil
}

// Clear deletes every key under the prefix.
func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(fingerprint string) string {
	return r.prefix + fingerprint
}

func (r *Redis) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	// SCAN may report a key more than once.
	slices.Sort(keys)
	return slices.Compact(keys), nil
}
