// Package notify delivers push notifications about dictation events.
// Delivery is best effort: failures are logged, never returned to callers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samuel/go-metrics/metrics"
	"gorm.io/gorm"

	"medical-dictation-server/internal/models"
)

// Notification is one message fanned out to device tokens.
type Notification struct {
	Title  string            `json:"title"`
	Body   map[string]string `json:"body"`
	Tokens []string          `json:"tokens"`
}

// Sender delivers a notification over one transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Dispatcher sends notifications in the background.
type Dispatcher struct {
	sender  Sender
	db      *gorm.DB
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup

	statSent     *metrics.Counter
	statFailed   *metrics.Counter
	statTimedOut *metrics.Counter
}

// NewDispatcher creates a Dispatcher. db may be nil to skip the audit log and
// metricsRegistry may be nil to keep the counters unregistered.
func NewDispatcher(sender Sender, db *gorm.DB, log *slog.Logger, timeout time.Duration, metricsRegistry metrics.Registry) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		sender:       sender,
		db:           db,
		log:          log,
		timeout:      timeout,
		statSent:     metrics.NewCounter(),
		statFailed:   metrics.NewCounter(),
		statTimedOut: metrics.NewCounter(),
	}
	if metricsRegistry != nil {
		metricsRegistry.Add("push/sent", d.statSent)
		metricsRegistry.Add("push/failed", d.statFailed)
		metricsRegistry.Add("push/timedout", d.statTimedOut)
	}
	return d
}

// recordTimeout bounds the audit insert, which runs after the send context
// may already have expired.
const recordTimeout = 5 * time.Second

// Dispatch sends n asynchronously. Notifications without recipients are dropped.
func (d *Dispatcher) Dispatch(n Notification) {
	if len(n.Tokens) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.sender.Send(ctx, n)
		switch {
		case err == nil:
			d.statSent.Inc(1)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			d.statTimedOut.Inc(1)
			d.statFailed.Inc(1)
		default:
			d.statFailed.Inc(1)
		}
		if err != nil {
			d.log.Warn("notification failed",
				slog.String("transport", d.sender.Name()),
				slog.String("title", n.Title),
				slog.Int("recipients", len(n.Tokens)),
				slog.Any("error", err))
		} else {
			d.log.Debug("notification sent",
				slog.String("transport", d.sender.Name()),
				slog.Int("recipients", len(n.Tokens)))
		}
		d.record(n, err)
	}()
}

func (d *Dispatcher) record(n Notification, sendErr error) {
	if d.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	payload, err := json.Marshal(n.Body)
	if err != nil {
		d.log.Warn("encode notification payload", slog.Any("error", err))
		return
	}
	entry := models.NotificationLog{
		Transport:  d.sender.Name(),
		Title:      n.Title,
		Payload:    payload,
		Recipients: len(n.Tokens),
	}
	if sendErr != nil {
		entry.Error = sendErr.Error()
	}
	if err := d.db.WithContext(ctx).Create(&entry).Error; err != nil {
		d.log.Warn("record notification", slog.Any("error", err))
	}
}

// Wait blocks until every dispatched notification has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
