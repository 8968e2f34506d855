package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Channel and stream names shared with the execution client.
const (
	ChannelPositions = "positions"
	ChannelRounds    = "rounds"
	StreamDecisions  = "decisions"
)

// Stream entry fields.
const (
	fieldKey     = "decision_id"
	fieldPayload = "payload"
)

// streamMaxLen caps the decision stream via XADD MAXLEN ~. The execution
// client consumes entries within seconds, so this only bounds memory.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus. Position and round events go over
// Pub/Sub; order decisions go to a stream so the execution client can
// resume after a restart.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish broadcasts payload on channel. Nobody listening is not an error.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// StreamAppend adds a decision to stream. key is stored next to the payload
// so a consumer can route the fill without decoding the decision.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream, key string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: []any{fieldKey, key, fieldPayload, payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" reads from the
// start) without blocking. Entries without a payload are skipped.
func (sb *SignalBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	res, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var out []domain.StreamMessage
	for _, s := range res {
		for _, msg := range s.Messages {
			payload, ok := msg.Values[fieldPayload].(string)
			if !ok {
				continue
			}
			key, _ := msg.Values[fieldKey].(string)
			out = append(out, domain.StreamMessage{ID: msg.ID, Key: key, Payload: []byte(payload)})
		}
	}
	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
