package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"order-executor/internal/api"
	"order-executor/internal/logger"
	"order-executor/internal/metrics"
	"order-executor/internal/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []types.Notification
	fail bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(ctx context.Context, n types.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func (s *recordingSink) messages() []types.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Notification(nil), s.got...)
}

func TestQueue_DeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	m := metrics.New()
	q := NewQueue(8, m, sink)
	ctx := context.Background()
	q.Start(ctx)

	q.Notify(ctx, types.Notification{Kind: types.NotifyEntry, Text: "one"})
	q.Notify(ctx, types.Notification{Kind: types.NotifyExit, Text: "two"})

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	q.Close(closeCtx)

	got := sink.messages()
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Text)
	assert.Equal(t, "two", got[1].Text)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Time.IsZero())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("recording", "ok")))
}

func TestQueue_DropsWhenFull(t *testing.T) {
	m := metrics.New()
	q := NewQueue(1, m, &recordingSink{})
	ctx := context.Background()

	// worker not started, so the buffer fills
	q.Notify(ctx, types.Notification{Text: "kept"})
	q.Notify(ctx, types.Notification{Text: "dropped"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsDropped))
}

func TestQueue_NotifyAfterCloseIsDropped(t *testing.T) {
	sink := &recordingSink{}
	m := metrics.New()
	q := NewQueue(4, m, sink)
	ctx := context.Background()
	q.Start(ctx)

	q.Notify(ctx, types.Notification{Text: "before"})
	q.Close(ctx)
	q.Close(ctx)

	assert.NotPanics(t, func() {
		q.Notify(ctx, types.Notification{Text: "after"})
	})
	require.Len(t, sink.messages(), 1)
	assert.Equal(t, "before", sink.messages()[0].Text)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsDropped))
}

func TestQueue_ConcurrentNotifyAndClose(t *testing.T) {
	q := NewQueue(2, nil, &recordingSink{})
	ctx := context.Background()
	q.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				q.Notify(ctx, types.Notification{Text: "x"})
			}
		}()
	}
	q.Close(ctx)
	wg.Wait()
}

func TestQueue_SinkFailureDoesNotStopDelivery(t *testing.T) {
	bad := &recordingSink{fail: true}
	good := &recordingSink{}
	q := NewQueue(4, nil, bad, good)
	ctx := context.Background()
	q.Start(ctx)

	q.Notify(ctx, types.Notification{Text: "x"})
	q.Close(ctx)

	assert.Len(t, bad.messages(), 1)
	assert.Len(t, good.messages(), 1)
}

func TestTelegramSink_Send(t *testing.T) {
	var gotPath string
	var gotMsg telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotMsg))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s, err := NewTelegramSink("TOKEN", "42", api.WithBaseURL(srv.URL))
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), types.Notification{Text: "Stoploss hit"}))
	assert.Equal(t, "/botTOKEN/sendMessage", gotPath)
	assert.Equal(t, "42", gotMsg.ChatID)
	assert.Equal(t, "Stoploss hit", gotMsg.Text)
}

func TestTelegramSink_DebugLoggingHidesToken(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.InitWithConfig(logger.LogConfig{Level: "DEBUG", Format: "json", DetailedLogging: true, Output: &buf}))
	t.Cleanup(func() { _ = logger.InitWithConfig(logger.LogConfig{Level: "INFO", Format: "text"}) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s, err := NewTelegramSink("BOTSECRET", "42", api.WithBaseURL(srv.URL))
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), types.Notification{Text: "Target hit"}))

	assert.Contains(t, buf.String(), "HTTP response")
	assert.NotContains(t, buf.String(), "BOTSECRET")
}

func TestTelegramSink_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	s, err := NewTelegramSink("TOKEN", "42", api.WithBaseURL(srv.URL))
	require.NoError(t, err)
	err = s.Send(context.Background(), types.Notification{Text: "x"})
	assert.ErrorContains(t, err, "chat not found")

	_, err = NewTelegramSink("", "42")
	assert.Error(t, err)
}
