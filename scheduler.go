package recstore

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultCommitDelay  = 10 * time.Second
	DefaultCommitPeriod = 10 * time.Second
)

// Committer is what CommitScheduler periodically commits; *Store implements it.
type Committer interface {
	Commit() error
}

// SchedulerOptions configure a CommitScheduler. Zero Delay and Period
// select the defaults; a negative Delay makes the first commit immediate.
type SchedulerOptions struct {
	Delay  time.Duration
	Period time.Duration
	Logger *slog.Logger
}

// CommitScheduler commits on a fixed schedule: first after Delay, then
// every Period. A failed commit is logged and retried on the next tick.
type CommitScheduler struct {
	committer Committer
	delay     time.Duration
	period    time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	ticks    atomic.Uint64
	failures atomic.Uint64
}

func NewCommitScheduler(committer Committer, opt SchedulerOptions) *CommitScheduler {
	if opt.Delay < 0 {
		opt.Delay = 0
	} else if opt.Delay == 0 {
		opt.Delay = DefaultCommitDelay
	}
	if opt.Period <= 0 {
		opt.Period = DefaultCommitPeriod
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CommitScheduler{
		committer: committer,
		delay:     opt.Delay,
		period:    opt.Period,
		logger:    opt.Logger,
	}
}

// Start launches the background goroutine. It runs until Stop is called or
// ctx is cancelled. Starting twice, or after Stop, does nothing.
func (cs *CommitScheduler) Start(ctx context.Context) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.done != nil || cs.stopped {
		return
	}
	ctx, cs.cancel = context.WithCancel(ctx)
	cs.done = make(chan struct{})
	go cs.run(ctx, cs.done)
}

func (cs *CommitScheduler) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(cs.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	cs.tick()

	ticker := time.NewTicker(cs.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.tick()
		}
	}
}

func (cs *CommitScheduler) tick() {
	cs.ticks.Add(1)
	err := cs.commit()
	if err != nil {
		cs.failures.Add(1)
		cs.logger.Error("scheduled commit failed", "err", err)
	}
}

func (cs *CommitScheduler) commit() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, ""}
		}
	}()
	return cs.committer.Commit()
}

// Stop cancels the schedule and waits for an in-progress commit to finish.
// No commit is attempted after Stop returns. Stop is idempotent.
func (cs *CommitScheduler) Stop() {
	cs.mu.Lock()
	cs.stopped = true
	cancel, done := cs.cancel, cs.done
	cs.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Ticks returns the number of commits attempted so far.
func (cs *CommitScheduler) Ticks() uint64 {
	return cs.ticks.Load()
}

// Failures returns the number of attempted commits that failed.
func (cs *CommitScheduler) Failures() uint64 {
	return cs.failures.Load()
}
