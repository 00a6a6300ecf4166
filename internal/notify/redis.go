package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStreamSink appends events to a Redis stream read by the mail worker.
type RedisStreamSink struct {
	Client *redis.Client
	Stream string
	MaxLen int64
	Now    func() time.Time
}

func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{Client: client, Stream: stream, MaxLen: maxLen, Now: time.Now}
}

func (s *RedisStreamSink) Enqueue(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	args := &redis.XAddArgs{
		Stream: s.Stream,
		Values: map[string]interface{}{
			"type":      string(evt.Type),
			"case_id":   evt.CaseID,
			"data":      string(data),
			"timestamp": now().Unix(),
		},
	}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	if err := s.Client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.Stream, err)
	}
	return nil
}

// DecodeStreamEvent reads an event back from a stream message's values.
func DecodeStreamEvent(values map[string]interface{}) (Event, error) {
	raw, ok := values["data"].(string)
	if !ok {
		return Event{}, fmt.Errorf("stream message missing data")
	}
	var evt Event
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return Event{}, fmt.Errorf("decode stream event: %w", err)
	}
	return evt, nil
}
