// Package notify delivers applicant notifications for committed stage
// transitions. Every Notifier here is best-effort: failures are logged and
// never reach the caller.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"corebridge/process-service/internal/process"
)

// Channel is the Pub/Sub channel notifications are published on.
const Channel = "EVENT_PROCESS_UPDATED"

// Event is the JSON payload published for each notification.
type Event struct {
	EventID     string    `json:"eventId"`
	Type        string    `json:"type"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Link        string    `json:"link"`
	RelatedID   string    `json:"relatedId"`
	RelatedType string    `json:"relatedType"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// NewEvent builds the wire payload for n.
func NewEvent(n process.Notification, at time.Time) Event {
	return Event{
		EventID:     uuid.NewString(),
		Type:        Channel,
		UserID:      strconv.FormatInt(n.UserID, 10),
		Title:       n.Title,
		Message:     n.Message,
		Link:        n.Link,
		RelatedID:   strconv.FormatInt(n.RelatedID, 10),
		RelatedType: n.RelatedType,
		OccurredAt:  at.UTC(),
	}
}

// RedisPublisher publishes notifications to Redis Pub/Sub, where the
// notification service turns them into inbox rows.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher returns a publisher on Channel.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: Channel}
}

// Notify publishes n (non-fatal).
func (p *RedisPublisher) Notify(ctx context.Context, n process.Notification) {
	event, err := json.Marshal(NewEvent(n, time.Now()))
	if err != nil {
		slog.Warn("marshal notification failed", "userId", n.UserID, "err", err)
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, event).Err(); err != nil {
		slog.Warn("publish "+p.channel+" failed", "userId", n.UserID, "relatedId", n.RelatedID, "err", err)
	}
}

var _ process.Notifier = (*RedisPublisher)(nil)
