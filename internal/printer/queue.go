package printer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/thereceipt/receipt-emulator/internal/emulator"
	"github.com/thereceipt/receipt-emulator/internal/escpos"
	"go.uber.org/zap"
)

var (
	// ErrQueueStopped is returned when work is submitted after Stop
	ErrQueueStopped = errors.New("feed queue stopped")
	// ErrJobNotFound is returned for an unknown job id
	ErrJobNotFound = errors.New("job not found")
)

// Job statuses
const (
	StatusQueued  = "queued"
	StatusApplied = "applied"
)

// FeedJob is one buffer of bytes received from a source
type FeedJob struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Size      int       `json:"size"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

// FeedHook is called on the worker after a job's bytes have been decoded
type FeedHook func(job FeedJob, data []byte)

const (
	taskPending int32 = iota
	taskRunning
	taskCancelled
)

type task struct {
	job  *FeedJob
	data []byte

	fn    func(*emulator.Printer)
	state atomic.Int32
	done  chan struct{}
}

// FeedQueue owns the printer and its decoder. A single worker goroutine
// applies every feed and every Do call in submission order, so the printer
// is never touched concurrently.
type FeedQueue struct {
	printer *emulator.Printer
	decoder *escpos.Decoder
	logger  *zap.Logger

	mu      sync.Mutex
	pending []*task
	jobs    []*FeedJob
	maxJobs int
	hooks   []FeedHook
	resets  []func()
	stopped bool

	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeedQueue starts the worker. maxJobs bounds the job history; 0 keeps
// every job until ClearCompleted.
func NewFeedQueue(p *emulator.Printer, d *escpos.Decoder, logger *zap.Logger, maxJobs int) *FeedQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	q := &FeedQueue{
		printer: p,
		decoder: d,
		logger:  logger.With(zap.String("component", "feed_queue")),
		jobs:    make([]*FeedJob, 0),
		maxJobs: maxJobs,
		notify:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	q.wg.Add(1)
	go q.worker()

	return q
}

// OnFeed registers a hook run after every applied job
func (q *FeedQueue) OnFeed(hook FeedHook) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.hooks = append(q.hooks, hook)
}

// OnReset registers a hook run on the worker after every Reset
func (q *FeedQueue) OnReset(hook func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.resets = append(q.resets, hook)
}

// Enqueue schedules data from source to be decoded and returns the job id.
// It never blocks on the worker.
func (q *FeedQueue) Enqueue(source string, data []byte) (string, error) {
	q.mu.Lock()

	if q.stopped {
		q.mu.Unlock()
		return "", ErrQueueStopped
	}

	job := &FeedJob{
		ID:        uuid.New().String(),
		Source:    source,
		Size:      len(data),
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}

	q.jobs = append(q.jobs, job)
	q.pending = append(q.pending, &task{job: job, data: data})
	q.trimLocked()
	q.mu.Unlock()

	q.wake()

	q.logger.Debug("Feed enqueued",
		zap.String("job_id", job.ID),
		zap.String("source", source),
		zap.Int("bytes", len(data)),
	)

	return job.ID, nil
}

// Do runs fn on the worker with exclusive access to the printer and waits
// for it. If ctx ends before fn starts, fn is skipped and ctx's error is
// returned; once started, Do waits for fn to finish.
func (q *FeedQueue) Do(ctx context.Context, fn func(*emulator.Printer)) error {
	t := &task{fn: fn, done: make(chan struct{})}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrQueueStopped
	}
	q.pending = append(q.pending, t)
	q.mu.Unlock()

	q.wake()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		if t.state.CompareAndSwap(taskPending, taskCancelled) {
			return ctx.Err()
		}
		<-t.done
		return nil
	}
}

// Pages returns a snapshot of every receipt, taken on the worker
func (q *FeedQueue) Pages(ctx context.Context) ([]emulator.Page, error) {
	var pages []emulator.Page
	err := q.Do(ctx, func(p *emulator.Printer) {
		pages = p.Pages()
	})
	return pages, err
}

// Page returns a snapshot of one receipt
func (q *FeedQueue) Page(ctx context.Context, id string) (emulator.Page, bool, error) {
	var (
		page  emulator.Page
		found bool
	)
	err := q.Do(ctx, func(p *emulator.Printer) {
		if r, ok := p.Receipt(id); ok {
			page, found = r.Page(), true
		}
	})
	return page, found, err
}

// Reset discards every receipt and any partial command the decoder holds
func (q *FeedQueue) Reset(ctx context.Context) error {
	return q.Do(ctx, func(p *emulator.Printer) {
		q.decoder.Reset()
		p.Reset()

		q.mu.Lock()
		hooks := append([]func(){}, q.resets...)
		q.mu.Unlock()

		q.logger.Debug("Printer reset")
		for _, hook := range hooks {
			hook()
		}
	})
}

// GetJob returns a copy of a job by ID
func (q *FeedQueue) GetJob(jobID string) (*FeedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ID == jobID {
			jobCopy := *job
			return &jobCopy, nil
		}
	}

	return nil, ErrJobNotFound
}

// GetAllJobs returns copies of all jobs, oldest first
func (q *FeedQueue) GetAllJobs() []*FeedJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]*FeedJob, len(q.jobs))
	for i, job := range q.jobs {
		jobCopy := *job
		jobs[i] = &jobCopy
	}

	return jobs
}

// ClearCompleted removes applied jobs from the history
func (q *FeedQueue) ClearCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := make([]*FeedJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		if job.Status != StatusApplied {
			filtered = append(filtered, job)
		}
	}

	removed := len(q.jobs) - len(filtered)
	q.jobs = filtered
	return removed
}

// Stop rejects new work, applies what is already queued and waits for the
// worker to exit.
func (q *FeedQueue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *FeedQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// worker applies pending tasks
func (q *FeedQueue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.notify:
			q.drain()
		case <-q.ctx.Done():
			q.drain()
			return
		}
	}
}

func (q *FeedQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.run(t)
	}
}

func (q *FeedQueue) run(t *task) {
	if t.fn != nil {
		if t.state.CompareAndSwap(taskPending, taskRunning) {
			t.fn(q.printer)
		}
		close(t.done)
		return
	}

	q.decoder.Feed(t.data)

	q.mu.Lock()
	t.job.Status = StatusApplied
	t.job.AppliedAt = time.Now()
	job := *t.job
	hooks := append([]FeedHook(nil), q.hooks...)
	q.mu.Unlock()

	q.logger.Debug("Feed applied", zap.String("job_id", job.ID), zap.Int("bytes", job.Size))

	for _, hook := range hooks {
		hook(job, t.data)
	}
}

// trimLocked drops the oldest applied jobs beyond maxJobs
func (q *FeedQueue) trimLocked() {
	if q.maxJobs <= 0 || len(q.jobs) <= q.maxJobs {
		return
	}

	excess := len(q.jobs) - q.maxJobs
	kept := q.jobs[:0]
	for _, job := range q.jobs {
		if excess > 0 && job.Status == StatusApplied {
			excess--
			continue
		}
		kept = append(kept, job)
	}
	q.jobs = kept
}
