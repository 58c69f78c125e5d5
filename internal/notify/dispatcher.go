// Package notify delivers booking e-mails. Delivery is always best-effort:
// nothing here can fail a reservation that has already been committed.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/metrics"
)

const (
	DefaultQueueSize = 256
	DefaultWorkers   = 2
	deliveryTimeout  = 10 * time.Second
	drainTimeout     = 5 * time.Second
)

// Dispatcher is a Notifier that hands notifications to a bounded queue and
// returns immediately. Workers started by Run deliver them through next.
type Dispatcher struct {
	next    domain.Notifier
	logger  *slog.Logger
	queue   chan domain.Notification
	workers int
}

func NewDispatcher(next domain.Notifier, logger *slog.Logger, queueSize, workers int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Dispatcher{
		next:    next,
		logger:  logger,
		queue:   make(chan domain.Notification, queueSize),
		workers: workers,
	}
}

// Notify never blocks. A full queue drops the notification.
func (d *Dispatcher) Notify(_ context.Context, n domain.Notification) error {
	select {
	case d.queue <- n:
	default:
		metrics.TrackNotificationDropped()
		d.logger.Warn("notification queue is full, dropping notification",
			"recipient", n.Recipient, "subject", n.Subject)
	}

	return nil
}

// Run delivers queued notifications until ctx is cancelled, then makes a
// bounded attempt to flush what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for {
				select {
				case n := <-d.queue:
					d.deliver(n)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Wait()

	d.drain()

	return nil
}

func (d *Dispatcher) drain() {
	deadline := time.After(drainTimeout)

	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		case <-deadline:
			d.logger.Warn("notification drain timed out", "pending", len(d.queue))
			return
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(n domain.Notification) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TrackNotificationFailed()
			d.logger.Error("panic while delivering notification", "recipient", n.Recipient, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	err := d.next.Notify(ctx, n)
	if err != nil {
		metrics.TrackNotificationFailed()
		d.logger.Error(domain.NotificationFailedError(err).Error(),
			"recipient", n.Recipient, "subject", n.Subject)
		return
	}

	d.logger.Debug("notification delivered", "recipient", n.Recipient, "subject", n.Subject)
}

// LogNotifier only logs. It stands in when neither a broker nor an SMTP
// server is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	l.logger.Info("notification", "recipient", n.Recipient, "subject", n.Subject, "body", n.Body)
	return nil
}
