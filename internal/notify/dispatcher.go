// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authd/internal/observability"
	"github.com/holomush/authd/pkg/errutil"
)

// Dispatcher defaults.
const (
	DefaultQueueSize   = 256
	DefaultWorkers     = 2
	DefaultSendTimeout = 30 * time.Second
)

// Notification delivery statuses, used as metric labels.
const (
	StatusSent         = "sent"
	StatusFailed       = "failed"
	StatusDropped      = "dropped"
	StatusRenderFailed = "render_failed"
)

// DispatcherOptions sizes the delivery pool. Zero values take the defaults.
type DispatcherOptions struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// Dispatcher delivers messages on background workers. Enqueue never blocks:
// when the queue is full the message is dropped and counted. Delivery
// failures are logged and counted, never returned to the caller.
type Dispatcher struct {
	notifier Notifier
	opts     DispatcherOptions
	logger   *slog.Logger

	queue    chan Message
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool

	sendCtx    context.Context
	cancelSend context.CancelFunc
}

// NewDispatcher creates a Dispatcher. Call Start before enqueueing.
func NewDispatcher(notifier Notifier, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		queue:    make(chan Message, opts.QueueSize),
		stopChan: make(chan struct{}),
	}
}

// Start launches the workers. Sends are not cancelled when ctx ends; use
// Stop to shut down.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return oops.Code("DISPATCHER_ALREADY_STARTED").Errorf("dispatcher already started")
	}
	d.started = true
	d.sendCtx, d.cancelSend = context.WithCancel(context.WithoutCancel(ctx))

	for range d.opts.Workers {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("notification dispatcher started", "workers", d.opts.Workers, "queue_size", d.opts.QueueSize)
	return nil
}

// Enqueue schedules msg for delivery and reports whether it was accepted.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.started || d.stopped {
		d.drop(msg, "dispatcher not running")
		return false
	}

	select {
	case d.queue <- msg:
		observability.SetNotificationQueueDepth(len(d.queue))
		return true
	default:
		d.drop(msg, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(msg Message, reason string) {
	observability.RecordNotification(msg.Kind, StatusDropped)
	d.logger.Warn("notification dropped", "kind", msg.Kind, "reason", reason)
}

// Stop stops accepting messages and waits for queued ones to be delivered.
// If ctx ends first, in-flight sends are cancelled and the rest dropped.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started || d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.stopChan)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancelSend()
		d.logger.Info("notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.cancelSend()
		<-done
		return oops.Code("DISPATCHER_STOP_TIMEOUT").
			With("pending", len(d.queue)).
			Wrap(ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		case <-d.stopChan:
			d.drain()
			return
		}
	}
}

// drain delivers whatever is still queued, unless sends have been cancelled.
func (d *Dispatcher) drain() {
	for {
		select {
		case msg := <-d.queue:
			if d.sendCtx.Err() != nil {
				d.drop(msg, "shutdown")
				continue
			}
			d.deliver(msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	observability.SetNotificationQueueDepth(len(d.queue))

	ctx, cancel := context.WithTimeout(d.sendCtx, d.opts.SendTimeout)
	defer cancel()

	if err := d.notifier.Send(ctx, msg); err != nil {
		observability.RecordNotification(msg.Kind, StatusFailed)
		errutil.LogError(d.logger, "notification delivery failed", err, "kind", msg.Kind)
		return
	}
	observability.RecordNotification(msg.Kind, StatusSent)
	d.logger.Debug("notification delivered", "kind", msg.Kind)
}
