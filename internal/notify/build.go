package notify

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/config"
)

// Build assembles the sinks enabled in cfg. The returned stop func drains
// background deliveries and closes connections.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Sink, func(), error) {
	var sinks Fanout
	var stops []func()
	stop := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
	if cfg.Notify.Log {
		sinks = append(sinks, LogSink{Logger: logger.With().Str("component", "notify").Logger()})
	}
	if rc := cfg.Notify.Redis; rc.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			stop()
			return nil, nil, fmt.Errorf("redis ping %s: %w", rc.Addr, err)
		}
		sinks = append(sinks, NewRedisStreamSink(client, rc.Stream, rc.MaxLen))
		stops = append(stops, func() { _ = client.Close() })
	}
	if wc := cfg.Notify.Webhook; wc.URL != "" {
		hook := NewWebhookSink(wc, logger.With().Str("component", "webhook").Logger())
		hook.Start(context.Background())
		sinks = append(sinks, hook)
		stops = append(stops, hook.Close)
	}
	switch len(sinks) {
	case 0:
		return Nop{}, stop, nil
	case 1:
		return sinks[0], stop, nil
	}
	return sinks, stop, nil
}
