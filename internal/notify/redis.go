package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"govwatch/discovery-service/internal/model"
)

// Inbox lists are capped so an unread inbox cannot grow without bound.
const inboxLimit = 100

// RedisSink publishes each notification on a pub/sub channel and keeps the
// newest ones in a per-recipient inbox list.
type RedisSink struct {
	rdb     *redis.Client
	channel string
}

func NewRedisSink(rdb *redis.Client, channel string) *RedisSink {
	return &RedisSink{rdb: rdb, channel: channel}
}

// InboxKey is the list holding a recipient's recent notifications.
func InboxKey(recipientID string) string { return "notifications:" + recipientID }

func (s *RedisSink) Notify(ctx context.Context, n model.Notification) error {
	payload, err := encode(n)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, s.channel, payload)
		if n.RecipientID != "" {
			key := InboxKey(n.RecipientID)
			pipe.LPush(ctx, key, payload)
			pipe.LTrim(ctx, key, 0, inboxLimit-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis notify: %w", err)
	}
	return nil
}
