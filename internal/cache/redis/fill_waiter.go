package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// fillListTTL bounds how long an unclaimed fill report is kept.
const fillListTTL = 10 * time.Minute

// FillWaiter implements domain.FillWaiter. The execution client pushes a
// JSON encoded domain.Fill onto fills:{decisionID}; WaitFill pops it.
type FillWaiter struct {
	rdb *redis.Client
}

// NewFillWaiter creates a FillWaiter backed by the given Client.
func NewFillWaiter(c *Client) *FillWaiter {
	return &FillWaiter{rdb: c.Underlying()}
}

func fillKey(decisionID string) string { return "fills:" + decisionID }

// WaitFill blocks until a fill for decisionID arrives, the timeout elapses
// (domain.ErrFillTimeout) or ctx is cancelled.
func (fw *FillWaiter) WaitFill(ctx context.Context, decisionID string, timeout time.Duration) (domain.Fill, error) {
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	res, err := fw.rdb.BLPop(ctx, timeout, fillKey(decisionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Fill{}, domain.ErrFillTimeout
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Fill{}, ctxErr
		}
		return domain.Fill{}, fmt.Errorf("redis: wait fill %s: %w", decisionID, err)
	}
	if len(res) != 2 {
		return domain.Fill{}, fmt.Errorf("redis: wait fill %s: unexpected reply length %d", decisionID, len(res))
	}

	var fill domain.Fill
	if err := json.Unmarshal([]byte(res[1]), &fill); err != nil {
		return domain.Fill{}, fmt.Errorf("redis: unmarshal fill %s: %w", decisionID, err)
	}
	if fill.DecisionID == "" {
		fill.DecisionID = decisionID
	}
	return fill, nil
}

// ReportFill pushes a fill for its decision, mirroring the RPUSH the
// execution client performs.
func (fw *FillWaiter) ReportFill(ctx context.Context, fill domain.Fill) error {
	if fill.DecisionID == "" {
		return fmt.Errorf("redis: report fill: empty decision id")
	}
	data, err := json.Marshal(fill)
	if err != nil {
		return fmt.Errorf("redis: marshal fill %s: %w", fill.DecisionID, err)
	}
	key := fillKey(fill.DecisionID)
	pipe := fw.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, fillListTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: report fill %s: %w", fill.DecisionID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.FillWaiter = (*FillWaiter)(nil)
