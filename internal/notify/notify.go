// Package notify delivers low-quality alerts and batch summaries to chat
// webhooks and email. Delivery is best-effort: failures are logged and
// counted, never returned to the evaluation path.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/kiranshivaraju/llm-quality-observer/internal/metrics"
	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Message kinds, also used as the "type" metric label.
const (
	KindAlert   = "alert"
	KindSummary = "summary"
)

// Message is one notification rendered for every channel. Chat channels use
// Text; email uses Subject, Text and HTML.
type Message struct {
	Kind    string
	Subject string
	Text    string
	HTML    string
}

// Channel is a single delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// NotificationError reports a failed delivery on one channel.
type NotificationError struct {
	Channel string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// Delivery is the result of one channel attempt. Err is nil on success.
type Delivery struct {
	Channel string
	Err     *NotificationError
}

// Outcome summarizes a fan-out. Sent is true when any channel succeeded.
type Outcome struct {
	Skipped    bool
	Sent       bool
	Deliveries []Delivery
}

type Notifier struct {
	channels  []Channel
	threshold int
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// New builds a Notifier. Evaluations scoring below threshold trigger an
// alert; each channel gets at most timeout per message.
func New(channels []Channel, threshold int, timeout time.Duration, m *metrics.Metrics) *Notifier {
	return &Notifier{
		channels:  channels,
		threshold: threshold,
		timeout:   timeout,
		metrics:   m,
	}
}

// Channels returns the names of the configured channels.
func (n *Notifier) Channels() []string {
	names := make([]string, len(n.channels))
	for i, ch := range n.channels {
		names[i] = ch.Name()
	}
	return names
}

// Alert sends a low-quality alert for ev when its overall score is below
// the threshold. It returns a skipped Outcome otherwise.
func (n *Notifier) Alert(ctx context.Context, log models.Log, ev models.Evaluation, judgeType models.JudgeType) Outcome {
	if ev.OverallScore >= n.threshold {
		return Outcome{Skipped: true}
	}
	n.metrics.RecordLowQualityAlert(judgeType.String())

	out := n.broadcast(ctx, alertMessage(log, ev))

	logger := clog.FromContext(ctx).With("log_id", log.ID, "score", ev.OverallScore)
	if out.Sent {
		logger.Info("low quality alert sent")
	} else {
		logger.Warn("low quality alert not delivered to any channel")
	}
	return out
}

// BatchSummary announces a finished batch. Nothing is sent when evaluated is zero.
func (n *Notifier) BatchSummary(ctx context.Context, evaluated int, judgeType models.JudgeType, judgeModel string) Outcome {
	if evaluated <= 0 {
		return Outcome{Skipped: true}
	}
	return n.broadcast(ctx, summaryMessage(evaluated, judgeType, judgeModel))
}

func (n *Notifier) broadcast(ctx context.Context, msg Message) Outcome {
	deliveries := make([]Delivery, len(n.channels))

	var g errgroup.Group
	for i, ch := range n.channels {
		g.Go(func() error {
			err := n.send(ctx, ch, msg)
			deliveries[i] = Delivery{Channel: ch.Name(), Err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := Outcome{Deliveries: deliveries}
	for _, d := range deliveries {
		if d.Err == nil {
			out.Sent = true
		}
	}
	return out
}

// send delivers msg on one channel, converting errors and panics into a
// *NotificationError.
func (n *Notifier) send(ctx context.Context, ch Channel, msg Message) (nerr *NotificationError) {
	logger := clog.FromContext(ctx).With("channel", ch.Name(), "type", msg.Kind)

	defer func() {
		if r := recover(); r != nil {
			nerr = &NotificationError{Channel: ch.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
		if nerr != nil {
			n.metrics.RecordNotification(ch.Name(), msg.Kind, metrics.StatusError)
			logger.Error("notification failed", "error", nerr)
			return
		}
		n.metrics.RecordNotification(ch.Name(), msg.Kind, metrics.StatusSuccess)
		logger.Debug("notification sent")
	}()

	sendCtx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	if err := ch.Send(sendCtx, msg); err != nil {
		return &NotificationError{Channel: ch.Name(), Err: err}
	}
	return nil
}
