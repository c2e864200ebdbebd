// Package kbcache wraps a kb.Access with a redis request-level cache, so
// repeated identical queries within and across search runs hit the backend
// once. The engine clears the namespace between independent no-gold runs.
package kbcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sgqa/groundgen/internal/graph"
	"github.com/sgqa/groundgen/internal/kb"
	"github.com/sgqa/groundgen/internal/platform/envutil"
	"github.com/sgqa/groundgen/internal/platform/logger"
)

const keyPrefix = "groundgen:kb:"

type Cache struct {
	next kb.Access
	rdb  *goredis.Client
	log  *logger.Logger
	ttl  time.Duration
}

// NewFromEnv builds the cache from REDIS_ADDR. A missing address is an
// error; callers that want no cache use the backend directly.
func NewFromEnv(next kb.Access, log *logger.Logger) (*Cache, error) {
	if log == nil {
		return nil, fmt.Errorf("kbcache: logger required")
	}
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("kbcache: missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("kbcache: redis ping: %w", err)
	}
	ttl := time.Duration(envutil.Int("KB_CACHE_TTL_SECONDS", 24*3600)) * time.Second
	return &Cache{
		next: next,
		rdb:  rdb,
		log:  log.With("client", "KBCache"),
		ttl:  ttl,
	}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Clear drops every cached entry in the namespace.
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.rdb.Del(ctx, keys...).Err()
	}
	return nil
}

func (c *Cache) QueryGroundings(ctx context.Context, g *graph.Graph, opts kb.QueryOptions) ([]kb.Grounding, error) {
	if !opts.UseCache {
		return c.next.QueryGroundings(ctx, g, opts)
	}
	key := c.key("groundings", g)
	var cached []kb.Grounding
	if ok := c.get(ctx, key, &cached); ok {
		return cached, nil
	}
	out, err := c.next.QueryGroundings(ctx, g, opts)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, out)
	return out, nil
}

func (c *Cache) Denotations(ctx context.Context, g *graph.Graph) ([]string, error) {
	key := c.key("denotations", g)
	var cached []string
	if ok := c.get(ctx, key, &cached); ok {
		return cached, nil
	}
	out, err := c.next.Denotations(ctx, g)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, out)
	return out, nil
}

func (c *Cache) Ask(ctx context.Context, g *graph.Graph) (bool, error) {
	key := c.key("ask", g)
	var cached bool
	if ok := c.get(ctx, key, &cached); ok {
		return cached, nil
	}
	out, err := c.next.Ask(ctx, g)
	if err != nil {
		return false, err
	}
	c.put(ctx, key, out)
	return out, nil
}

func (c *Cache) EntityLabel(ctx context.Context, id string) (string, error) {
	key := keyPrefix + "label:" + id
	var cached string
	if ok := c.get(ctx, key, &cached); ok {
		return cached, nil
	}
	out, err := c.next.EntityLabel(ctx, id)
	if err != nil {
		return "", err
	}
	c.put(ctx, key, out)
	return out, nil
}

func (c *Cache) LinkMention(ctx context.Context, m graph.EntityMention) ([]string, error) {
	key := keyPrefix + "link:" + hashJSON(m)
	var cached []string
	if ok := c.get(ctx, key, &cached); ok {
		return cached, nil
	}
	out, err := c.next.LinkMention(ctx, m)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, out)
	return out, nil
}

// key hashes the query family and the full graph value; edge order is part
// of the identity, matching the wire grammar's positional keys.
func (c *Cache) key(family string, g *graph.Graph) string {
	return keyPrefix + family + ":" + hashJSON(g)
}

func hashJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "unhashable"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (c *Cache) get(ctx context.Context, key string, into any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, into); err != nil {
		c.log.Warn("cache entry undecodable, dropping", "key", key, "error", err)
		_ = c.rdb.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) put(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed (continuing)", "key", key, "error", err)
	}
}
