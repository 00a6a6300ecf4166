package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/config"
)

func sampleEvent() Event {
	return Event{
		ID:               "evt-1",
		Type:             TypeCaseTaken,
		CaseID:           "case-1",
		CasePublicID:     123456,
		RelevantActorIDs: []string{"op1"},
		Payload:          map[string]any{"executor_id": "ex1"},
		OccurredAt:       "2026-01-02T03:04:05.000000Z",
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &Recorder{}
	failing := &Recorder{Err: errors.New("boom")}
	f := Fanout{ok, failing, Nop{}}
	err := f.Enqueue(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Len(t, ok.Events(), 1)
	assert.Len(t, failing.Events(), 1)
}

func TestRecorderOfType(t *testing.T) {
	r := &Recorder{}
	_ = r.Enqueue(context.Background(), sampleEvent())
	evt := sampleEvent()
	evt.Type = TypeNewComment
	_ = r.Enqueue(context.Background(), evt)
	assert.Len(t, r.OfType(TypeNewComment), 1)
	r.Reset()
	assert.Empty(t, r.Events())
}

func TestRedisStreamSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := NewRedisStreamSink(client, "crm:test", 100)
	ctx := context.Background()
	require.NoError(t, sink.Enqueue(ctx, sampleEvent()))

	msgs, err := client.XRange(ctx, "crm:test", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "case_taken", msgs[0].Values["type"])
	assert.Equal(t, "case-1", msgs[0].Values["case_id"])

	evt, err := DecodeStreamEvent(msgs[0].Values)
	require.NoError(t, err)
	assert.Equal(t, 123456, evt.CasePublicID)
	assert.Equal(t, []string{"op1"}, evt.RelevantActorIDs)
}

func TestRedisStreamSinkConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	sink := NewRedisStreamSink(client, "crm:test", 0)
	assert.Error(t, sink.Enqueue(context.Background(), sampleEvent()))
}

func webhookConfig(url string) config.WebhookConfig {
	return config.WebhookConfig{
		URL:        url,
		Secret:     "s3cret",
		MaxRetries: 3,
		RetryWait:  time.Millisecond,
		Timeout:    time.Second,
		QueueSize:  4,
	}
}

func TestWebhookDeliverSignsAndRetries(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	var lastBody []byte
	var lastSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		lastBody = body
		lastSig = r.Header.Get("X-CRM-Signature")
		mu.Unlock()
		assert.Equal(t, "case_taken", r.Header.Get("X-CRM-Event"))
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(webhookConfig(srv.URL), zerolog.Nop())
	require.NoError(t, sink.Deliver(context.Background(), sampleEvent()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, VerifySignature(lastBody, "s3cret", lastSig))
	var evt Event
	require.NoError(t, json.Unmarshal(lastBody, &evt))
	assert.Equal(t, "case-1", evt.CaseID)
}

func TestWebhookDeliverGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewWebhookSink(webhookConfig(srv.URL), zerolog.Nop())
	err := sink.Deliver(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWebhookQueueDeliversInBackground(t *testing.T) {
	got := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-CRM-Delivery")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := webhookConfig(srv.URL)
	cfg.Events = []string{"case_taken"}
	sink := NewWebhookSink(cfg, zerolog.Nop())
	sink.Start(context.Background())

	skipped := sampleEvent()
	skipped.ID = "evt-skip"
	skipped.Type = TypeNewComment
	require.NoError(t, sink.Enqueue(context.Background(), skipped))
	require.NoError(t, sink.Enqueue(context.Background(), sampleEvent()))
	sink.Close()

	close(got)
	var ids []string
	for id := range got {
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"evt-1"}, ids)
	assert.Error(t, sink.Enqueue(context.Background(), sampleEvent()))
}

func TestWebhookQueueFull(t *testing.T) {
	cfg := webhookConfig("http://127.0.0.1:1")
	cfg.QueueSize = 1
	sink := NewWebhookSink(cfg, zerolog.Nop())
	require.NoError(t, sink.Enqueue(context.Background(), sampleEvent()))
	assert.ErrorIs(t, sink.Enqueue(context.Background(), sampleEvent()), ErrQueueFull)
}

func TestBackoff(t *testing.T) {
	base := 60 * time.Second
	assert.Equal(t, base, Backoff(base, 1))
	assert.Equal(t, 2*base, Backoff(base, 2))
	assert.Equal(t, 16*base, Backoff(base, 5))
	assert.Equal(t, time.Hour, Backoff(base, 10))
	assert.Equal(t, time.Duration(0), Backoff(0, 3))
}

func TestBuild(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Notify.Log = true
	cfg.Notify.Redis.Addr = mr.Addr()

	sink, stop, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer stop()
	fan, ok := sink.(Fanout)
	require.True(t, ok)
	assert.Len(t, fan, 2)
	require.NoError(t, sink.Enqueue(context.Background(), sampleEvent()))
	assert.True(t, mr.Exists(cfg.Notify.Redis.Stream))

	cfg = config.Default()
	cfg.Notify.Log = false
	sink, stop, err = Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	stop()
	assert.IsType(t, Nop{}, sink)
}
