// Package notify delivers push and email notifications off the request path.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/adapters/email"
	pushAdapter "fellowship/internal/adapters/push"
	"fellowship/internal/domain/push"
)

// Delivery channels reported to Metrics.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
)

// Job is one notification. Push goes to every subscription of MemberIDs;
// Email, when set, is sent once.
type Job struct {
	MemberIDs    []string
	Notification push.Notification
	Email        *email.SendRequest
}

// SubscriptionStore is the part of push.Store the dispatcher needs.
type SubscriptionStore interface {
	ListByMembers(ctx context.Context, memberIDs []string) ([]push.Subscription, error)
	Update(ctx context.Context, value *push.Subscription) error
	Delete(ctx context.Context, id string) error
}

// Metrics receives delivery outcomes. It may be nil.
type Metrics interface {
	NotificationSent(channel string, ok bool)
	NotificationDropped()
}

// Config sizes the worker pool.
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// Deps holds the collaborators a Dispatcher delivers through.
type Deps struct {
	Subscriptions SubscriptionStore
	Push          pushAdapter.Sender
	Email         email.Sender
	Metrics       Metrics
	Log           *zap.SugaredLogger
	Now           func() time.Time
}

// Dispatcher runs a fixed pool of workers over a bounded queue.
// INVARIANT: Enqueue never blocks; jobs that do not fit are dropped
type Dispatcher struct {
	cfg  Config
	deps Deps

	queue  chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewDispatcher creates a dispatcher. Call Start before Enqueue.
func NewDispatcher(cfg Config, deps Deps) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:    cfg,
		deps:   deps,
		queue:  make(chan Job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers. Calling it twice has no effect.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Enqueue hands a job to the workers. It reports false when the
// dispatcher is stopped or the queue is full.
func (d *Dispatcher) Enqueue(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return false
	}
	select {
	case d.queue <- job:
		return true
	default:
		d.deps.Log.Warnw("notify_event", "event", "job_dropped", "kind", job.Notification.Kind, "queue_size", d.cfg.QueueSize)
		if d.deps.Metrics != nil {
			d.deps.Metrics.NotificationDropped()
		}
		return false
	}
}

// Stop refuses new jobs, lets the workers drain the queue and waits for
// them. If ctx ends first the in-flight deliveries are cancelled and
// ctx's error is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job Job) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.JobTimeout)
	defer cancel()

	if job.Email != nil && d.deps.Email != nil {
		_, err := d.deps.Email.Send(ctx, *job.Email)
		d.observe(ChannelEmail, err == nil)
		if err != nil {
			d.deps.Log.Warnw("notify_event", "event", "email_failed", "kind", job.Notification.Kind, "error", err)
		}
	}

	if len(job.MemberIDs) == 0 || d.deps.Push == nil || d.deps.Subscriptions == nil {
		return
	}
	subs, err := d.deps.Subscriptions.ListByMembers(ctx, job.MemberIDs)
	if err != nil {
		d.deps.Log.Errorw("notify_event", "event", "subscription_lookup_failed", "kind", job.Notification.Kind, "error", err)
		return
	}
	for i := range subs {
		sub := &subs[i]
		err := d.deps.Push.Send(ctx, *sub, job.Notification)
		switch {
		case errors.Is(err, pushAdapter.ErrGone):
			d.observe(ChannelPush, false)
			if err := d.deps.Subscriptions.Delete(ctx, sub.ID); err != nil {
				d.deps.Log.Warnw("notify_event", "event", "subscription_cleanup_failed", "subscription_id", sub.ID, "error", err)
			}
		case err != nil:
			d.observe(ChannelPush, false)
			d.deps.Log.Warnw("notify_event", "event", "push_failed", "subscription_id", sub.ID, "error", err)
		default:
			d.observe(ChannelPush, true)
			now := d.deps.Now()
			sub.LastUsedAt = &now
			if err := d.deps.Subscriptions.Update(ctx, sub); err != nil {
				d.deps.Log.Debugw("notify_event", "event", "last_used_update_failed", "subscription_id", sub.ID, "error", err)
			}
		}
	}
}

func (d *Dispatcher) observe(channel string, ok bool) {
	if d.deps.Metrics != nil {
		d.deps.Metrics.NotificationSent(channel, ok)
	}
}
