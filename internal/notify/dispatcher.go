package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/weekend-academy-api/pkg/config"
	"github.com/noah-isme/weekend-academy-api/pkg/jobs"
)

const jobType = "notification"

// Recorder counts delivery outcomes.
type Recorder interface {
	RecordNotification(template string, ok bool)
}

// Dispatcher queues messages and delivers them on a worker pool with retries.
type Dispatcher struct {
	queue    *jobs.Queue
	notifier Notifier
	recorder Recorder
	logger   *zap.Logger
}

// NewDispatcher wires a Notifier behind a job queue.
func NewDispatcher(notifier Notifier, recorder Recorder, cfg config.NotificationConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{notifier: notifier, recorder: recorder, logger: logger}
	d.queue = jobs.NewQueue("notifications", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		JobTimeout: cfg.Timeout,
		Logger:     logger,
		DeadLetter: d.deadLetter,
	})
	return d
}

// Start launches the workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the workers.
func (d *Dispatcher) Stop() {
	d.queue.Stop()
}

// Pending reports undelivered messages waiting for a worker.
func (d *Dispatcher) Pending() int {
	return d.queue.Depth()
}

// Notify queues msg. Delivery happens asynchronously.
func (d *Dispatcher) Notify(_ context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("notification %s has no recipient", msg.Template)
	}
	return d.queue.Enqueue(jobs.Job{Type: jobType, Payload: msg})
}

func (d *Dispatcher) handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(Message)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	if err := d.notifier.Send(ctx, msg); err != nil {
		// a send cut off by the deadline may still reach the relay, so a
		// retry risks a duplicate mail
		if errors.Is(err, context.DeadlineExceeded) {
			return jobs.Permanent(err)
		}
		return err
	}
	if d.recorder != nil {
		d.recorder.RecordNotification(msg.Template, true)
	}
	return nil
}

func (d *Dispatcher) deadLetter(job jobs.Job, err error) {
	msg, _ := job.Payload.(Message)
	if d.recorder != nil {
		d.recorder.RecordNotification(msg.Template, false)
	}
	d.logger.Error("notification dropped", zap.String("template", msg.Template), zap.String("to", msg.To), zap.Error(err))
}
