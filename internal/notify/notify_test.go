package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/llm-quality-observer/internal/config"
	"github.com/kiranshivaraju/llm-quality-observer/internal/metrics"
	"github.com/kiranshivaraju/llm-quality-observer/internal/notify"
	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel records every message it receives.
type fakeChannel struct {
	name  string
	err   error
	block bool

	mu   sync.Mutex
	msgs []notify.Message
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, msg notify.Message) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeChannel) received() []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Message(nil), f.msgs...)
}

type panicChannel struct{}

func (panicChannel) Name() string { return "panicky" }

func (panicChannel) Send(context.Context, notify.Message) error {
	panic("boom")
}

func sampleLog() models.Log {
	return models.Log{
		ID:        7,
		CreatedAt: time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		Prompt:    "Summarize the quarterly report",
		Response:  "Error: upstream failed",
	}
}

func evaluation(score int) models.Evaluation {
	comment := "Response looks like an error message. Detected keywords: error, failed"
	return models.Evaluation{
		LogID:        7,
		OverallScore: score,
		Label:        models.LabelErrorLike,
		JudgeModel:   "rule-basic-v1",
		Comment:      &comment,
	}
}

func TestAlert_AboveThresholdSkipped(t *testing.T) {
	ch := &fakeChannel{name: "slack"}
	n := notify.New([]notify.Channel{ch}, 3, time.Second, nil)

	for _, score := range []int{3, 4, 5} {
		out := n.Alert(context.Background(), sampleLog(), evaluation(score), models.JudgeTypeRule)
		assert.True(t, out.Skipped)
		assert.False(t, out.Sent)
	}
	assert.Empty(t, ch.received())
}

func TestAlert_FansOutToEveryChannel(t *testing.T) {
	slack := &fakeChannel{name: "slack"}
	discord := &fakeChannel{name: "discord"}
	email := &fakeChannel{name: "email"}
	n := notify.New([]notify.Channel{slack, discord, email}, 3, time.Second, nil)

	out := n.Alert(context.Background(), sampleLog(), evaluation(1), models.JudgeTypeRule)
	assert.False(t, out.Skipped)
	assert.True(t, out.Sent)
	require.Len(t, out.Deliveries, 3)

	for _, ch := range []*fakeChannel{slack, discord, email} {
		msgs := ch.received()
		require.Len(t, msgs, 1, ch.name)
		assert.Equal(t, notify.KindAlert, msgs[0].Kind)
		assert.Contains(t, msgs[0].Text, "**Score:** 1/5")
		assert.Contains(t, msgs[0].Text, "**Log ID:** 7")
		assert.Contains(t, msgs[0].Text, "**Created:** 2025-03-04 05:06:07")
		assert.Equal(t, "🚨 LLM Quality Alert - Score: 1/5", msgs[0].Subject)
		assert.Contains(t, msgs[0].HTML, "Critical")
	}
}

func TestAlert_OneChannelFailureDoesNotBlockOthers(t *testing.T) {
	slack := &fakeChannel{name: "slack", err: errors.New("500 from slack")}
	discord := &fakeChannel{name: "discord"}
	email := &fakeChannel{name: "email"}
	n := notify.New([]notify.Channel{slack, discord, email}, 3, time.Second, nil)

	out := n.Alert(context.Background(), sampleLog(), evaluation(2), models.JudgeTypeRule)
	assert.True(t, out.Sent)

	byName := map[string]*notify.NotificationError{}
	for _, d := range out.Deliveries {
		byName[d.Channel] = d.Err
	}
	require.NotNil(t, byName["slack"])
	assert.Equal(t, "slack", byName["slack"].Channel)
	assert.Nil(t, byName["discord"])
	assert.Nil(t, byName["email"])
	assert.Len(t, discord.received(), 1)
	assert.Len(t, email.received(), 1)
}

func TestAlert_AllChannelsFail(t *testing.T) {
	n := notify.New([]notify.Channel{
		&fakeChannel{name: "slack", err: errors.New("down")},
		panicChannel{},
	}, 3, time.Second, nil)

	out := n.Alert(context.Background(), sampleLog(), evaluation(1), models.JudgeTypeLLM)
	assert.False(t, out.Skipped)
	assert.False(t, out.Sent)
	for _, d := range out.Deliveries {
		assert.NotNil(t, d.Err, d.Channel)
	}
}

func TestAlert_NoChannels(t *testing.T) {
	n := notify.New(nil, 3, time.Second, nil)
	out := n.Alert(context.Background(), sampleLog(), evaluation(1), models.JudgeTypeRule)
	assert.False(t, out.Sent)
	assert.Empty(t, out.Deliveries)
}

func TestAlert_PerChannelTimeout(t *testing.T) {
	slow := &fakeChannel{name: "slow", block: true}
	fast := &fakeChannel{name: "fast"}
	n := notify.New([]notify.Channel{slow, fast}, 3, 20*time.Millisecond, nil)

	start := time.Now()
	out := n.Alert(context.Background(), sampleLog(), evaluation(1), models.JudgeTypeRule)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, out.Sent)
	for _, d := range out.Deliveries {
		if d.Channel == "slow" {
			require.NotNil(t, d.Err)
			assert.ErrorIs(t, d.Err, context.DeadlineExceeded)
		}
	}
}

func TestAlert_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	n := notify.New([]notify.Channel{
		&fakeChannel{name: "slack"},
		&fakeChannel{name: "email", err: errors.New("smtp down")},
	}, 3, time.Second, m)

	n.Alert(context.Background(), sampleLog(), evaluation(1), models.JudgeTypeRule)

	expected := `
# HELP llm_evaluator_low_quality_alerts_total Total evaluations scored below the alert threshold
# TYPE llm_evaluator_low_quality_alerts_total counter
llm_evaluator_low_quality_alerts_total{judge_type="rule"} 1
# HELP llm_evaluator_notifications_sent_total Total notification delivery attempts
# TYPE llm_evaluator_notifications_sent_total counter
llm_evaluator_notifications_sent_total{channel="email",status="error",type="alert"} 1
llm_evaluator_notifications_sent_total{channel="slack",status="success",type="alert"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"llm_evaluator_low_quality_alerts_total", "llm_evaluator_notifications_sent_total"))
}

func TestBatchSummary(t *testing.T) {
	ch := &fakeChannel{name: "discord"}
	n := notify.New([]notify.Channel{ch}, 3, time.Second, nil)

	out := n.BatchSummary(context.Background(), 0, models.JudgeTypeRule, "rule-basic-v1")
	assert.True(t, out.Skipped)
	assert.Empty(t, ch.received())

	out = n.BatchSummary(context.Background(), 4, models.JudgeTypeLLM, "gpt-5-mini")
	assert.True(t, out.Sent)
	msgs := ch.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.KindSummary, msgs[0].Kind)
	assert.Equal(t, "✅ Batch Evaluation Complete - 4 logs evaluated", msgs[0].Subject)
	assert.Contains(t, msgs[0].Text, "**Evaluated:** 4 logs")
	assert.Contains(t, msgs[0].Text, "**Judge Type:** llm")
	assert.Contains(t, msgs[0].Text, "**Judge Model:** gpt-5-mini")
}

func TestWebhooks_PayloadShape(t *testing.T) {
	tests := []struct {
		name  string
		build func(url string) *notify.Webhook
		field string
	}{
		{"slack", func(u string) *notify.Webhook { return notify.NewSlackWebhook(u, nil) }, "text"},
		{"discord", func(u string) *notify.Webhook { return notify.NewDiscordWebhook(u, nil) }, "content"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got map[string]string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(http.StatusNoContent)
			}))
			defer srv.Close()

			wh := tc.build(srv.URL)
			assert.Equal(t, tc.name, wh.Name())
			require.NoError(t, wh.Send(context.Background(), notify.Message{Text: "hello"}))
			assert.Equal(t, map[string]string{tc.field: "hello"}, got)
		})
	}
}

func TestWebhook_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := notify.NewSlackWebhook(srv.URL, srv.Client()).Send(context.Background(), notify.Message{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestWebhook_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := notify.NewDiscordWebhook(url, nil).Send(context.Background(), notify.Message{Text: "x"})
	assert.Error(t, err)
}

func TestChannelsFromConfig(t *testing.T) {
	chs, err := notify.ChannelsFromConfig(config.NotifyConfig{}, nil)
	require.NoError(t, err)
	assert.Empty(t, chs)

	chs, err = notify.ChannelsFromConfig(config.NotifyConfig{
		SlackWebhookURL:   "https://hooks.slack.com/services/x",
		DiscordWebhookURL: "https://discord.com/api/webhooks/y",
		SMTP: config.SMTPConfig{
			Host: "smtp.example.com", Port: 587, Username: "u", Password: "p",
			FromEmail: "bot@example.com", ToEmails: "ops@example.com",
		},
	}, nil)
	require.NoError(t, err)

	n := notify.New(chs, 3, time.Second, nil)
	assert.Equal(t, []string{"slack", "discord", "email"}, n.Channels())
}

func TestBroadcast_Concurrent(t *testing.T) {
	var inFlight, peak atomic.Int32
	gate := make(chan struct{})
	var chs []notify.Channel
	for _, name := range []string{"a", "b", "c"} {
		chs = append(chs, sendFunc{name: name, fn: func(ctx context.Context) error {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			if cur == 3 {
				close(gate)
			}
			select {
			case <-gate:
			case <-ctx.Done():
			}
			inFlight.Add(-1)
			return nil
		}})
	}

	n := notify.New(chs, 3, time.Second, nil)
	out := n.BatchSummary(context.Background(), 1, models.JudgeTypeRule, "rule-basic-v1")
	assert.True(t, out.Sent)
	assert.Equal(t, int32(3), peak.Load())
}

type sendFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (s sendFunc) Name() string { return s.name }

func (s sendFunc) Send(ctx context.Context, _ notify.Message) error {
	return s.fn(ctx)
}
