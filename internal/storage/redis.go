package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const latestRunKey = "scraper:latest"

// discardScript drops a run's list and clears the latest pointer if it
// still names that run.
var discardScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
	redis.call("DEL", KEYS[2])
end
return 1
`)

// RedisSink publishes each run's records as a Redis list.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSink creates a sink; a zero ttl keeps the lists forever.
func NewRedisSink(addr string, ttl time.Duration) *RedisSink {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisSink{client: rdb, ttl: ttl}
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

// PostsKey is the list holding a run's records in order.
func PostsKey(runID string) string {
	return fmt.Sprintf("scraper:run:%s:posts", runID)
}

// Write pushes the records and moves the latest-run pointer in one
// MULTI/EXEC, so readers see either the old run or the complete new one.
func (s *RedisSink) Write(ctx context.Context, b Batch) error {
	values := make([]interface{}, 0, len(b.Records))
	for _, r := range b.Records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode post %s: %w", r.URL, err)
		}
		values = append(values, data)
	}

	key := PostsKey(b.RunID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
		}
		pipe.Set(ctx, latestRunKey, b.RunID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish run %s: %w", b.RunID, err)
	}
	return nil
}

// Discard removes a run written by Write.
func (s *RedisSink) Discard(ctx context.Context, runID string) error {
	return discardScript.Run(ctx, s.client, []string{PostsKey(runID), latestRunKey}, runID).Err()
}
