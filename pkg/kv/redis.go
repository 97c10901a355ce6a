package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a Redis server. All keys live under a common
// namespace so the database can be shared with other services.
type Redis struct {
	client    redis.UniversalClient
	namespace string
	opts      *Options
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Options *Options

	Addr     string
	Password string
	DB       int

	// Namespace is prepended to every key. Default "voicerelay:".
	Namespace string
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, ropts RedisOptions) (*Redis, error) {
	if ropts.Addr == "" {
		return nil, errors.New("kv: redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     ropts.Addr,
		Password: ropts.Password,
		DB:       ropts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kv: connect redis %s: %w", ropts.Addr, err)
	}
	return NewRedisClient(client, ropts.Namespace, ropts.Options), nil
}

// NewRedisClient wraps an existing client. The Store takes ownership and
// closes client on Close.
func NewRedisClient(client redis.UniversalClient, namespace string, opts *Options) *Redis {
	if namespace == "" {
		namespace = "voicerelay:"
	}
	return &Redis{client: client, namespace: namespace, opts: opts}
}

func (r *Redis) key(k Key) string {
	return r.namespace + r.opts.encode(k)
}

func (r *Redis) Get(ctx context.Context, key Key) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

func (r *Redis) Set(ctx context.Context, key Key, value []byte) error {
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, key Key) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// List scans matching keys, sorts them and fetches values with MGET. Keys
// deleted between the scan and the fetch are skipped.
func (r *Redis) List(ctx context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := r.namespace + r.opts.scanPrefix(prefix)

	return func(yield func(Entry, error) bool) {
		var keys []string
		it := r.client.Scan(ctx, 0, globEscape(p)+"*", 256).Iterator()
		for it.Next(ctx) {
			keys = append(keys, it.Val())
		}
		if err := it.Err(); err != nil {
			yield(Entry{}, err)
			return
		}
		slices.Sort(keys)
		keys = slices.Compact(keys)

		for chunk := range slices.Chunk(keys, 256) {
			vals, err := r.client.MGet(ctx, chunk...).Result()
			if err != nil {
				yield(Entry{}, err)
				return
			}
			for i, v := range vals {
				s, ok := v.(string)
				if !ok {
					continue
				}
				e := Entry{
					Key:   r.opts.decode(strings.TrimPrefix(chunk[i], r.namespace)),
					Value: []byte(s),
				}
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// globEscape quotes the characters SCAN MATCH treats as wildcards.
func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
