// Package broadcast publishes article-creation events to live subscribers
// over a Redis pub/sub channel.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"threatfeed/internal/model"
)

// Publisher emits new_article events. Delivery is best-effort: the caller
// logs failures and moves on.
type Publisher struct {
	rdb     *redis.Client
	channel string
}

func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = "articles:new"
	}
	return &Publisher{rdb: rdb, channel: channel}
}

// Publish sends one event to the channel as JSON.
func (p *Publisher) Publish(ctx context.Context, event model.NewArticleEvent) error {
	event.Event = "new_article"
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
