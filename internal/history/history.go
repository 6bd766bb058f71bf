// Package history mirrors action records into a Redis stream other
// service instances can consume. All writes are best effort: the caller
// logs failures and moves on, so a broken mirror never blocks the
// primary audit write.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snailscoop/modauthority/internal/moderation"
)

const (
	defaultStream = "modauthority:actions"
	defaultMaxLen = 100_000
)

// Recorder appends action records to the shared stream.
type Recorder struct {
	rdb    *redis.Client
	stream string
}

var _ moderation.HistoryRecorder = (*Recorder)(nil)

// New connects to Redis and verifies the connection.
func New(redisURL string) (*Recorder, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Recorder{rdb: rdb, stream: defaultStream}, nil
}

// Append writes one record to the stream, trimming it to a bounded
// length.
func (r *Recorder) Append(ctx context.Context, rec moderation.ActionRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: defaultMaxLen,
		Approx: true,
		Values: map[string]any{
			"action_id":   rec.ActionID,
			"action_type": string(rec.ActionType),
			"actor_id":    rec.ActorID,
			"target_id":   rec.TargetID,
			"community":   rec.CommunityID,
			"reason":      rec.Reason,
			"duration_ms": rec.Duration.Milliseconds(),
			"metadata":    string(meta),
			"created_at":  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

// Close releases the Redis connection.
func (r *Recorder) Close() error { return r.rdb.Close() }

// Noop is a HistoryRecorder that records nothing. Used when no Redis
// endpoint is configured.
type Noop struct{}

func (Noop) Append(ctx context.Context, rec moderation.ActionRecord) error { return nil }
