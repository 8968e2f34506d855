package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// minMarketTTL keeps a just-expired market readable long enough for
// consumers to see the rotation.
const minMarketTTL = 5 * time.Second

// RoundMarketCache implements domain.RoundMarketCache. Entries expire with
// the round they belong to.
//
// Key schema:
//
//	round:market:{asset}  - hash with field "data" containing JSON
//	round:token:{tokenID} - string value of the asset
type RoundMarketCache struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRoundMarketCache creates a RoundMarketCache backed by the given Client.
func NewRoundMarketCache(c *Client) *RoundMarketCache {
	return &RoundMarketCache{rdb: c.Underlying(), now: time.Now}
}

func roundMarketKey(asset string) string { return "round:market:" + strings.ToUpper(asset) }
func roundTokenKey(tok string) string     { return "round:token:" + tok }

// marketTTL is the time left until the market's expiry, floored at
// minMarketTTL.
func marketTTL(m domain.Market, now time.Time) time.Duration {
	ttl := m.ExpiresAt.Sub(now)
	if ttl < minMarketTTL {
		return minMarketTTL
	}
	return ttl
}

// Put stores the market under its asset and indexes both outcome tokens.
func (mc *RoundMarketCache) Put(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.Asset, err)
	}

	key := roundMarketKey(market.Asset)
	ttl := marketTTL(market, mc.now())

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, ttl)
	for _, tokenID := range []string{market.UpTokenID, market.DownTokenID} {
		if tokenID == "" {
			continue
		}
		pipe.Set(ctx, roundTokenKey(tokenID), strings.ToUpper(market.Asset), ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put market %s: %w", market.Asset, err)
	}
	return nil
}

// Get returns the current round market for asset.
// It returns domain.ErrNotFound when no market is cached.
func (mc *RoundMarketCache) Get(ctx context.Context, asset string) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, roundMarketKey(asset), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", asset, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", asset, err)
	}
	return market, nil
}

// GetByToken resolves an outcome token to its market via the token index.
func (mc *RoundMarketCache) GetByToken(ctx context.Context, tokenID string) (domain.Market, error) {
	asset, err := mc.rdb.Get(ctx, roundTokenKey(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market by token %s: %w", tokenID, err)
	}
	return mc.Get(ctx, asset)
}

// PutAll stores every market of a discovery pass in one call per market.
func (mc *RoundMarketCache) PutAll(ctx context.Context, markets []domain.Market) error {
	var errs []error
	for _, m := range markets {
		if err := mc.Put(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Compile-time interface check.
var _ domain.RoundMarketCache = (*RoundMarketCache)(nil)
