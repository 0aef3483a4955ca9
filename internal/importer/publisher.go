package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
)

const MessageTypeImportProgress = "import_progress"

// ProgressMessage is the event published on every stage transition.
type ProgressMessage struct {
	Type     string        `json:"type"`
	VideoID  string        `json:"video_id"`
	Progress int           `json:"progress"`
	Stage    catalog.Stage `json:"stage"`
}

// Channel is the per-user channel progress events go to.
func Channel(userID string) string {
	return "progress:user:" + userID
}

// Publisher delivers progress events. Delivery is at most once.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg ProgressMessage) error
}

// RedisPublisher publishes JSON events over Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis publisher connected", "addr", opts.Addr)
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, msg ProgressMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel, payload).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// LogPublisher writes events to the log. It is used when no Redis URL is
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, channel string, msg ProgressMessage) error {
	p.logger.Info("import progress",
		"channel", channel,
		"video_id", msg.VideoID,
		"stage", msg.Stage,
		"progress", msg.Progress,
	)
	return nil
}

// MultiPublisher fans an event out to every publisher and joins failures.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, channel string, msg ProgressMessage) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, channel, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
