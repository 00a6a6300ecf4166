package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/config"
)

const (
	defaultWebhookTimeout   = 10 * time.Second
	defaultWebhookQueueSize = 256
	maxWebhookBackoff       = time.Hour
)

// WebhookSink posts events to an HTTP endpoint from a background worker.
// Enqueue never waits on the network; a full queue is reported as ErrQueueFull.
type WebhookSink struct {
	url    string
	secret string
	filter eventFilter
	client *resty.Client
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	wg     sync.WaitGroup
}

func NewWebhookSink(cfg config.WebhookConfig, logger zerolog.Logger) *WebhookSink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultWebhookQueueSize
	}
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	base := cfg.RetryWait
	if base <= 0 {
		base = time.Millisecond
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(attempts-1).
		SetRetryWaitTime(base).
		SetRetryMaxWaitTime(Backoff(base, attempts-1)).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "crm-webhook/1").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		}).
		SetRetryAfter(func(_ *resty.Client, r *resty.Response) (time.Duration, error) {
			if r == nil || r.Request == nil {
				return base, nil
			}
			return Backoff(base, r.Request.Attempt), nil
		})
	return &WebhookSink{
		url:    cfg.URL,
		secret: cfg.Secret,
		filter: newEventFilter(cfg.Events),
		client: client,
		logger: logger,
		queue:  make(chan Event, size),
	}
}

// Backoff returns base·2^(attempt-1), capped at one hour.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		return base
	}
	wait := base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= maxWebhookBackoff {
			return maxWebhookBackoff
		}
	}
	return wait
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header value produced by Deliver.
func VerifySignature(payload []byte, secret, header string) bool {
	expected := "sha256=" + SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(header))
}

// Start runs the delivery worker until Close or ctx is done.
func (s *WebhookSink) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-s.queue:
				if !ok {
					return
				}
				if err := s.Deliver(ctx, evt); err != nil {
					s.logger.Warn().Err(err).Str("event_id", evt.ID).Str("type", string(evt.Type)).Msg("webhook delivery failed")
				}
			}
		}
	}()
}

// Close stops accepting events and waits for queued deliveries to finish.
func (s *WebhookSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *WebhookSink) Enqueue(_ context.Context, evt Event) error {
	if !s.filter.match(string(evt.Type)) {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("webhook sink closed")
	}
	select {
	case s.queue <- evt:
		return nil
	default:
		return ErrQueueFull
	}
}

// Deliver posts evt synchronously, retrying per the sink's policy.
func (s *WebhookSink) Deliver(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req := s.client.R().
		SetContext(ctx).
		SetHeader("X-CRM-Event", string(evt.Type)).
		SetHeader("X-CRM-Delivery", evt.ID).
		SetBody(data)
	if strings.TrimSpace(s.secret) != "" {
		req.SetHeader("X-CRM-Signature", "sha256="+SignPayload(data, s.secret))
	}
	res, err := req.Post(s.url)
	if err != nil {
		return err
	}
	if res.IsError() {
		body := res.String()
		if len(body) > 4096 {
			body = body[:4096]
		}
		return fmt.Errorf("status %d: %s", res.StatusCode(), strings.TrimSpace(body))
	}
	s.logger.Debug().Str("event_id", evt.ID).Int("attempts", res.Request.Attempt).Msg("webhook delivered")
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
