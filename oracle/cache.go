package oracle

import (
	"context"
	"encoding/json"
	"time"

	core "github.com/DomeLiquid/liquidator"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Cache keeps verified packages per feed for a short time so that a scan of
// many loans does not hit the gateway once per loan.
type Cache interface {
	Get(ctx context.Context, symbols []string) (map[string][]*core.SignedPrice, error)
	Set(ctx context.Context, packages map[string][]*core.SignedPrice, ttl time.Duration) error
}

type RedisCache struct {
	rdb       redis.UniversalClient
	serviceId string
}

func NewRedisCache(rdb redis.UniversalClient, serviceId string) *RedisCache {
	return &RedisCache{rdb: rdb, serviceId: serviceId}
}

func (c *RedisCache) key(symbol string) string {
	return "oracle:" + c.serviceId + ":" + symbol
}

// Get returns the cached packages. Missing symbols are omitted.
func (c *RedisCache) Get(ctx context.Context, symbols []string) (map[string][]*core.SignedPrice, error) {
	out := make(map[string][]*core.SignedPrice, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = c.key(s)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "oracle/cache: mget")
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		packages, err := decodePackages(raw)
		if err != nil {
			continue
		}
		out[symbols[i]] = packages
	}
	return out, nil
}

func (c *RedisCache) Set(ctx context.Context, packages map[string][]*core.SignedPrice, ttl time.Duration) error {
	pipe := c.rdb.Pipeline()
	for symbol, ps := range packages {
		raw, err := encodePackages(ps)
		if err != nil {
			return err
		}
		pipe.Set(ctx, c.key(symbol), raw, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "oracle/cache: set")
	}
	return nil
}

func encodePackages(packages []*core.SignedPrice) (string, error) {
	b, err := json.Marshal(packages)
	if err != nil {
		return "", errors.Wrap(err, "oracle/cache: encode")
	}
	return string(b), nil
}

func decodePackages(raw string) ([]*core.SignedPrice, error) {
	var packages []*core.SignedPrice
	if err := json.Unmarshal([]byte(raw), &packages); err != nil {
		return nil, errors.Wrap(err, "oracle/cache: decode")
	}
	return packages, nil
}
