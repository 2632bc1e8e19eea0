package recstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
)

// Drainer stops accepting new work and waits for work in progress;
// *http.Server implements it.
type Drainer interface {
	Shutdown(ctx context.Context) error
}

// Shutdown runs the ordered shutdown: stop inbound work, stop the commit
// scheduler, then commit and close the store if it is still open. Every
// step runs even if an earlier one failed. Nil fields are skipped.
type Shutdown struct {
	Server    Drainer
	Scheduler *CommitScheduler
	Store     *Store
	Logger    *slog.Logger
}

func (sd *Shutdown) Run(ctx context.Context) error {
	logger := sd.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var errs []error
	step := func(name string, f func() error) {
		err := runStep(f)
		if err != nil {
			logger.Error("shutdown step failed", "step", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		} else {
			logger.Debug("shutdown step done", "step", name)
		}
	}

	if sd.Server != nil {
		step("server", func() error {
			return sd.Server.Shutdown(ctx)
		})
	}
	if sd.Scheduler != nil {
		step("scheduler", func() error {
			sd.Scheduler.Stop()
			return nil
		})
	}
	if sd.Store != nil && !sd.Store.IsClosed() {
		step("commit", sd.Store.Commit)
		step("close", sd.Store.Close)
	}
	return errors.Join(errs...)
}

func runStep(f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return f()
}
