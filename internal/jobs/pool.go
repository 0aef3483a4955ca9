// Package jobs runs one background job per video on a fixed set of workers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/errclass"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/logging"
)

var (
	ErrDuplicate = errors.New("job already queued or running")
	ErrQueueFull = errors.New("job queue is full")
	ErrStopped   = errors.New("job pool is stopped")
)

// Handler processes one video. Returning a retryable error reschedules it.
type Handler func(ctx context.Context, videoID string) error

// ExhaustedFunc is called when a job has used all of its attempts.
type ExhaustedFunc func(ctx context.Context, videoID string, err error)

// FailedFunc is called when a job ends on an error that is not retried,
// including a panic.
type FailedFunc func(ctx context.Context, videoID string, err error)

type Config struct {
	Workers     int
	QueueSize   int
	JobTimeout  time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	OnExhausted ExhaustedFunc
	OnFailed    FailedFunc
}

func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueSize:   256,
		JobTimeout:  30 * time.Minute,
		MaxAttempts: 3,
		RetryDelay:  30 * time.Second,
	}
}

type job struct {
	videoID string
	attempt int
}

// Pool owns every job for a video from submission until it settles:
// queued, running, or waiting to be retried. At most one job per video
// exists at a time.
type Pool struct {
	cfg    Config
	logger *slog.Logger
	queue  chan job

	mu      sync.Mutex
	owned   map[string]bool
	timers  map[string]*time.Timer
	stopped bool

	running atomic.Bool
	active  atomic.Int32
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewPool(cfg Config, logger *slog.Logger) *Pool {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Pool{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "jobs"),
		queue:  make(chan job, cfg.QueueSize),
		owned:  make(map[string]bool),
		timers: make(map[string]*time.Timer),
	}
}

// Start launches the workers. It returns immediately.
func (p *Pool) Start(ctx context.Context, handler Handler) {
	if p.running.Swap(true) {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.work(ctx, handler)
		}()
	}
	p.logger.Info("job pool started", "workers", p.cfg.Workers, "queue_size", p.cfg.QueueSize)
}

// Stop refuses new jobs, cancels running ones and waits for the workers.
// Queued jobs are dropped; their videos are resumed on the next start.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.running.Store(false)
	p.logger.Info("job pool stopped")
}

// Submit queues a job for videoID. It refuses a video that already has a
// job queued, running or waiting to retry.
func (p *Pool) Submit(videoID string) error {
	if err := p.Reserve(videoID); err != nil {
		return err
	}
	return p.SubmitReserved(videoID)
}

// Reserve claims videoID without queueing anything, so work that has to
// happen before the job is queued cannot race another submitter. The claim
// ends with SubmitReserved or Release.
func (p *Pool) Reserve(videoID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.owned[videoID] {
		return ErrDuplicate
	}
	p.owned[videoID] = true
	return nil
}

// SubmitReserved queues the first attempt for a reserved video. On failure
// the reservation is dropped.
func (p *Pool) SubmitReserved(videoID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		delete(p.owned, videoID)
		return ErrStopped
	}
	select {
	case p.queue <- job{videoID: videoID, attempt: 1}:
		p.owned[videoID] = true
		return nil
	default:
		delete(p.owned, videoID)
		return ErrQueueFull
	}
}

// Release drops a reservation that will not be queued.
func (p *Pool) Release(videoID string) {
	p.release(videoID)
}

// InFlight reports whether videoID has a job queued, running or waiting to
// retry.
func (p *Pool) InFlight(videoID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owned[videoID]
}

func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// Active is the number of jobs currently executing.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

func (p *Pool) Workers() int {
	return p.cfg.Workers
}

func (p *Pool) work(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			p.run(ctx, handler, j)
		}
	}
}

func (p *Pool) run(ctx context.Context, handler Handler, j job) {
	p.active.Add(1)
	defer p.active.Add(-1)

	log := logging.WithJobID(logging.WithVideoID(p.logger, j.videoID), fmt.Sprintf("%s#%d", j.videoID, j.attempt))
	start := time.Now()

	jctx := ctx
	cancel := func() {}
	if p.cfg.JobTimeout > 0 {
		jctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
	}
	err := safeCall(jctx, handler, j.videoID)
	if err == nil && jctx.Err() == context.DeadlineExceeded {
		err = jctx.Err()
	}
	cancel()

	if err == nil {
		log.Info("job finished", "attempt", j.attempt, "duration", time.Since(start))
		p.release(j.videoID)
		return
	}
	if ctx.Err() != nil {
		log.Info("job interrupted by shutdown", "attempt", j.attempt)
		p.release(j.videoID)
		return
	}

	c := errclass.Classify(err)
	if !c.Retryable {
		log.Error("job failed", "attempt", j.attempt, "kind", c.Kind, "error", err)
		if p.cfg.OnFailed != nil {
			p.cfg.OnFailed(ctx, j.videoID, err)
		}
		p.release(j.videoID)
		return
	}

	if j.attempt >= p.cfg.MaxAttempts {
		log.Error("job attempts exhausted", "attempts", j.attempt, "kind", c.Kind, "error", err)
		if p.cfg.OnExhausted != nil {
			p.cfg.OnExhausted(ctx, j.videoID, err)
		}
		p.release(j.videoID)
		return
	}

	log.Warn("job will be retried", "attempt", j.attempt, "delay", p.cfg.RetryDelay, "kind", c.Kind, "error", err)
	p.retryLater(job{videoID: j.videoID, attempt: j.attempt + 1})
}

func (p *Pool) retryLater(j job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		delete(p.owned, j.videoID)
		return
	}
	p.timers[j.videoID] = time.AfterFunc(p.cfg.RetryDelay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		delete(p.timers, j.videoID)
		if p.stopped {
			delete(p.owned, j.videoID)
			return
		}
		select {
		case p.queue <- j:
		default:
			p.logger.Warn("queue full, dropping retry", "video_id", j.videoID, "attempt", j.attempt)
			delete(p.owned, j.videoID)
		}
	})
}

func (p *Pool) release(videoID string) {
	p.mu.Lock()
	delete(p.owned, videoID)
	p.mu.Unlock()
}

func safeCall(ctx context.Context, handler Handler, videoID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, videoID)
}
