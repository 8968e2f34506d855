package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// snapshotTTL bounds how long a snapshot outlives its last update.
const snapshotTTL = 2 * time.Minute

// SnapshotCache implements domain.SnapshotCache.
//
// Key schema:
//
//	book:{tokenID}:snap - JSON encoded OrderbookSnapshot
//	book:{tokenID}:bbo  - hash with fields "bid", "ask", "obi" and "ts"
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func bookSnapKey(tokenID string) string { return "book:" + tokenID + ":snap" }
func bookBBOKey(tokenID string) string  { return "book:" + tokenID + ":bbo" }

// SetSnapshot replaces the latest snapshot of snap.TokenID.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, snap domain.OrderbookSnapshot) error {
	if snap.TokenID == "" {
		return fmt.Errorf("redis: set snapshot: empty token id")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.TokenID, err)
	}

	bbo := bookBBOKey(snap.TokenID)
	pipe := sc.rdb.TxPipeline()
	pipe.Set(ctx, bookSnapKey(snap.TokenID), data, snapshotTTL)
	pipe.HSet(ctx, bbo,
		"bid", strconv.FormatFloat(snap.BestBid, 'f', -1, 64),
		"ask", strconv.FormatFloat(snap.BestAsk, 'f', -1, 64),
		"obi", strconv.FormatFloat(snap.OBI, 'f', -1, 64),
		"ts", strconv.FormatInt(snap.Timestamp.UnixMilli(), 10),
	)
	pipe.Expire(ctx, bbo, snapshotTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.TokenID, err)
	}
	return nil
}

// GetSnapshot returns the latest snapshot of tokenID.
// It returns domain.ErrNotFound if none is cached.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, tokenID string) (domain.OrderbookSnapshot, error) {
	data, err := sc.rdb.Get(ctx, bookSnapKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderbookSnapshot{}, domain.ErrNotFound
		}
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", tokenID, err)
	}

	var snap domain.OrderbookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", tokenID, err)
	}
	return snap, nil
}

// GetBBO reads only the best bid and ask of tokenID.
func (sc *SnapshotCache) GetBBO(ctx context.Context, tokenID string) (bid, ask float64, err error) {
	vals, err := sc.rdb.HMGet(ctx, bookBBOKey(tokenID), "bid", "ask").Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s: %w", tokenID, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return 0, 0, domain.ErrNotFound
	}
	bid, err = parseFloatValue(vals[0])
	if err != nil {
		return 0, 0, fmt.Errorf("redis: parse bid %s: %w", tokenID, err)
	}
	ask, err = parseFloatValue(vals[1])
	if err != nil {
		return 0, 0, fmt.Errorf("redis: parse ask %s: %w", tokenID, err)
	}
	return bid, ask, nil
}

func parseFloatValue(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	return strconv.ParseFloat(s, 64)
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
