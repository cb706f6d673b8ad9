// Package notifier bridges in-process progress events to NATS so partner
// dashboards and webhooks can follow builds without polling.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/events"
	"github.com/forgeworks/appforge/internal/models"
)

// Notifier republishes ProgressEvents on per-job NATS subjects:
// <prefix>.<job_id>.
type Notifier struct {
	conn   *nats.Conn
	cfg    config.NotifierConfig
	log    *slog.Logger
	broker *events.Broker
	unsub  func()
	done   chan struct{}
}

// New connects to NATS. Returns an error when the notifier is enabled but
// the server is unreachable; a disabled notifier is not an error, callers
// should simply not construct one.
func New(cfg config.NotifierConfig, broker *events.Broker, log *slog.Logger) (*Notifier, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("appforge-notifier"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", cfg.URL, err)
	}
	n := &Notifier{
		conn:   conn,
		cfg:    cfg,
		log:    log.With(slog.String("component", "notifier")),
		broker: broker,
		done:   make(chan struct{}),
	}
	n.log.Info("notifier connected", slog.String("url", cfg.URL), slog.String("subject_prefix", cfg.SubjectPrefix))
	return n, nil
}

// Start subscribes to all job progress and forwards it until Stop is called.
func (n *Notifier) Start(ctx context.Context) {
	ch, unsub := n.broker.Subscribe("", 256)
	n.unsub = unsub
	go func() {
		defer close(n.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				n.forward(ev)
			}
		}
	}()
}

// subjectFor builds the per-job subject. The partner ID travels in the
// message body, not the subject, so subscribers filter on job ID alone.
func subjectFor(prefix, jobID string) string {
	return fmt.Sprintf("%s.%s", prefix, jobID)
}

func (n *Notifier) forward(ev models.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		n.log.Warn("progress event marshal failed", slog.String("job_id", ev.JobID), slog.String("error", err.Error()))
		return
	}
	subject := subjectFor(n.cfg.SubjectPrefix, ev.JobID)
	if err := n.conn.Publish(subject, data); err != nil {
		n.log.Warn("progress publish to NATS failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

// Stop unsubscribes, flushes and closes the connection.
func (n *Notifier) Stop() {
	if n.unsub != nil {
		n.unsub()
	}
	<-n.done
	if err := n.conn.Flush(); err != nil {
		n.log.Warn("NATS flush failed", slog.String("error", err.Error()))
	}
	n.conn.Close()
}
