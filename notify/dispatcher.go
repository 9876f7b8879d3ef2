package notify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/xraph/tally/id"
)

// JobStatus is the delivery state of a Job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRetrying  JobStatus = "retrying"
	JobDelivered JobStatus = "delivered"
	JobFailed    JobStatus = "failed"
)

// Job is one queued delivery.
type Job struct {
	ID            id.NotificationID `json:"id"`
	Message       *Message          `json:"message"`
	Status        JobStatus         `json:"status"`
	Attempts      int               `json:"attempts"`
	LastError     string            `json:"last_error,omitempty"`
	NextAttemptAt time.Time         `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// FailureHandler is called when a job exhausts its retries.
type FailureHandler func(ctx context.Context, job Job, err error)

// Stats summarizes dispatcher activity since start.
type Stats struct {
	Queued    int `json:"queued"`
	Retrying  int `json:"retrying"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Dispatcher owns the notification queue. A single worker drains it so
// deliveries for one invoice keep their order.
type Dispatcher struct {
	notifier       Notifier
	policy         *RetryPolicy
	logger         *slog.Logger
	onFailed       FailureHandler
	pollInterval   time.Duration
	attemptTimeout time.Duration

	queue chan *Job

	mu        sync.Mutex
	delayed   map[string]*Job
	failed    map[string]*Job
	delivered int
	started   bool

	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithRetryConfig sets the retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(d *Dispatcher) { d.policy = NewRetryPolicy(cfg) }
}

// WithQueueSize sets the buffer size of the queue.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan *Job, n)
		}
	}
}

// WithPollInterval sets how often delayed retries are checked.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithAttemptTimeout bounds a single delivery attempt.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.attemptTimeout = timeout
		}
	}
}

// WithFailureHandler registers a dead-letter callback.
func WithFailureHandler(fn FailureHandler) Option {
	return func(d *Dispatcher) { d.onFailed = fn }
}

// NewDispatcher creates a dispatcher delivering through n.
func NewDispatcher(n Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		notifier:       n,
		policy:         NewRetryPolicy(DefaultRetryConfig()),
		logger:         slog.Default(),
		pollInterval:   time.Second,
		attemptTimeout: 30 * time.Second,
		queue:          make(chan *Job, 256),
		delayed:        make(map[string]*Job),
		failed:         make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue queues msg for delivery. It never blocks. The returned Job is a
// snapshot taken at enqueue time; the worker updates its own copy, which is
// observable through Stats and Failed.
func (d *Dispatcher) Enqueue(msg *Message) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        id.NewNotificationID(),
		Message:   msg,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	snapshot := *job

	select {
	case d.queue <- job:
		return &snapshot, nil
	default:
		return nil, ErrQueueFull
	}
}

// Start launches the worker. Calling Start twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	d.started = true
	d.stopChan = make(chan struct{})

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel

	d.wg.Add(1)
	go d.worker(workerCtx)

	d.logger.Info("notification dispatcher started",
		"queue_size", cap(d.queue),
		"max_attempts", d.policy.Config().MaxAttempts,
	)
	return nil
}

// Stop halts the worker and waits for the in-flight attempt. Queued and
// delayed jobs stay in memory.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	close(d.stopChan)
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}

// Failed returns the dead-lettered jobs, oldest first.
func (d *Dispatcher) Failed() []Job {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Job, 0, len(d.failed))
	for _, j := range d.failed {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

// Retry moves a failed job back onto the queue with a fresh attempt budget.
func (d *Dispatcher) Retry(jobID id.NotificationID) error {
	d.mu.Lock()
	job, ok := d.failed[jobID.String()]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	delete(d.failed, jobID.String())
	job.Status = JobPending
	job.Attempts = 0
	job.UpdatedAt = time.Now().UTC()
	d.mu.Unlock()

	select {
	case d.queue <- job:
		return nil
	default:
		d.mu.Lock()
		job.Status = JobFailed
		d.failed[jobID.String()] = job
		d.mu.Unlock()
		return ErrQueueFull
	}
}

// Stats returns a snapshot of queue counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Queued:    len(d.queue),
		Retrying:  len(d.delayed),
		Delivered: d.delivered,
		Failed:    len(d.failed),
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification worker panic",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case job := <-d.queue:
			d.attempt(ctx, job)
		case now := <-ticker.C:
			d.promoteDue(now)
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, job *Job) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	err := Deliver(attemptCtx, d.notifier, job.Message)
	cancel()

	d.mu.Lock()
	job.Attempts++
	job.UpdatedAt = time.Now().UTC()

	if err == nil {
		job.Status = JobDelivered
		job.LastError = ""
		d.delivered++
		d.mu.Unlock()
		d.logger.Debug("notification delivered",
			"job_id", job.ID.String(),
			"kind", string(job.Message.Kind),
			"attempts", job.Attempts,
		)
		return
	}

	job.LastError = err.Error()
	if d.policy.ShouldRetry(job.Attempts, err) {
		job.Status = JobRetrying
		job.NextAttemptAt = job.UpdatedAt.Add(d.policy.NextRetryDelay(job.Attempts))
		d.delayed[job.ID.String()] = job
		d.mu.Unlock()
		d.logger.Warn("notification failed, will retry",
			"job_id", job.ID.String(),
			"kind", string(job.Message.Kind),
			"attempts", job.Attempts,
			"next_attempt_at", job.NextAttemptAt,
			"error", err,
		)
		return
	}

	job.Status = JobFailed
	d.failed[job.ID.String()] = job
	snapshot := *job
	d.mu.Unlock()

	d.logger.Error("notification failed permanently",
		"job_id", job.ID.String(),
		"kind", string(job.Message.Kind),
		"attempts", job.Attempts,
		"error", err,
	)
	if d.onFailed != nil {
		d.onFailed(ctx, snapshot, err)
	}
}

// promoteDue moves delayed jobs whose backoff elapsed back onto the queue.
// Jobs that do not fit stay delayed until the next tick.
func (d *Dispatcher) promoteDue(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, job := range d.delayed {
		if job.NextAttemptAt.After(now) {
			continue
		}
		select {
		case d.queue <- job:
			delete(d.delayed, key)
		default:
			return
		}
	}
}
