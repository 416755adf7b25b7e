// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/metrics"
)

// ErrQueueFull is returned by Enqueue when the dispatch queue is at capacity.
var ErrQueueFull = errors.New("notification queue full")

// Notification is one queued webhook message.
type Notification struct {
	Key     string
	MsgType string
	Content string

	// Source labels the message in logs, usually the session name.
	Source string
}

// Dispatcher delivers notifications asynchronously through a Sender.
// It implements suture.Service; workers run only while Serve is running.
type Dispatcher struct {
	sender  Sender
	queue   chan Notification
	workers int

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// DispatcherStats reports delivery counters.
type DispatcherStats struct {
	Queued  int   `json:"queued"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// NewDispatcher creates a dispatcher with a queue of queueSize and the given
// number of workers.
func NewDispatcher(sender Sender, queueSize, workers int) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan Notification, queueSize),
		workers: workers,
	}
}

// Enqueue queues n without blocking.
func (d *Dispatcher) Enqueue(n Notification) error {
	if n.MsgType == "" {
		n.MsgType = MsgTypeText
	}
	select {
	case d.queue <- n:
		metrics.NotifierQueueDepth.Set(float64(len(d.queue)))
		return nil
	default:
		d.dropped.Add(1)
		metrics.NotifierDropped.Inc()
		return fmt.Errorf("%w: dropping %s message for %s", ErrQueueFull, n.MsgType, n.Source)
	}
}

// Serve runs the workers until ctx is cancelled. Queued notifications that
// have not been picked up are kept for the next Serve.
func (d *Dispatcher) Serve(ctx context.Context) error {
	log := logging.WithComponent("notifier")
	log.Info().Int("workers", d.workers).Int("queue_size", cap(d.queue)).Msg("Notification dispatcher started")

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()

	log.Info().Msg("Notification dispatcher stopped")
	return ctx.Err()
}

func (d *Dispatcher) String() string {
	return "notifier-dispatcher"
}

// Stats returns a snapshot of the delivery counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Queued:  len(d.queue),
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			metrics.NotifierQueueDepth.Set(float64(len(d.queue)))
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	var err error
	switch n.MsgType {
	case MsgTypeMarkdown:
		err = d.sender.SendMarkdown(ctx, n.Key, n.Content)
	default:
		err = d.sender.SendText(ctx, n.Key, n.Content)
	}
	if err != nil {
		d.failed.Add(1)
		logging.Warn().Str("component", "notifier").Str("source", n.Source).Str("msgtype", n.MsgType).
			Err(err).Msg("Webhook delivery failed")
		return
	}
	d.sent.Add(1)
	logging.Debug().Str("component", "notifier").Str("source", n.Source).Str("msgtype", n.MsgType).
		Msg("Webhook delivered")
}
