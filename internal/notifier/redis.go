package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes events on a per-project redis Pub/Sub
// channel, for deployments where subscribers live in a different
// process than the worker pool.
type RedisNotifier struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedisNotifier wraps an existing redis client.
func NewRedisNotifier(rdb *redis.Client, logger *slog.Logger) *RedisNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{
		rdb:    rdb,
		logger: logger.With("component", "notifier.redis"),
	}
}

func channelName(projectID string) string {
	return fmt.Sprintf("project:%s", projectID)
}

type wireEvent struct {
	Kind    EventKind `json:"kind"`
	Payload any       `json:"payload"`
}

// Publish implements Notifier.
func (n *RedisNotifier) Publish(ctx context.Context, projectID string, kind EventKind, payload any) error {
	data, err := json.Marshal(wireEvent{Kind: kind, Payload: payload})
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, channelName(projectID), data).Err()
}

// Subscribe implements Notifier, bridging redis's own pub/sub channel
// onto the same Event-channel shape MemoryNotifier returns so callers
// don't need to know which backend is active.
func (n *RedisNotifier) Subscribe(projectID string) (<-chan Event, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := n.rdb.Subscribe(ctx, channelName(projectID))
	ch := make(chan Event, subscriberBuffer)

	go func() {
		defer close(ch)
		msgCh := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var w wireEvent
				if err := json.Unmarshal([]byte(msg.Payload), &w); err != nil {
					n.logger.Error("decode event failed", "error", err)
					continue
				}
				evt := Event{ProjectID: projectID, Kind: w.Kind, Payload: w.Payload}
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()

	unsubscribe := func() {
		cancel()
		pubsub.Close()
	}
	return ch, unsubscribe
}
