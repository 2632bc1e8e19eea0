// Package app assembles the server: store, commit scheduler, HTTP API,
// and the ordered shutdown that ties them together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/andreyvit/recstore"
	"github.com/andreyvit/recstore/api"
	"github.com/andreyvit/recstore/config"
	"github.com/andreyvit/recstore/model"
)

type App struct {
	cfg    *config.Config
	logger *slog.Logger

	Store     *recstore.Store
	Customers *recstore.Collection[model.Customer]
	Items     *recstore.Collection[model.Item]
	Scheduler *recstore.CommitScheduler
	Server    *http.Server

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// New opens the store and builds everything needed to serve it. Nothing
// is listening until Run is called.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := recstore.Open(cfg.DB.File, model.Schema, recstore.Options{
		Logger:      logger,
		Verbose:     cfg.DB.Verbose,
		LockTimeout: cfg.DB.LockTimeout,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		Store:     store,
		Customers: recstore.NewCollection(store, model.Customers),
		Items:     recstore.NewCollection(store, model.Items),
		ready:     make(chan struct{}),
	}
	a.Scheduler = recstore.NewCommitScheduler(store, recstore.SchedulerOptions{
		Delay:  cfg.Commit.Delay,
		Period: cfg.Commit.Period,
		Logger: logger,
	})

	handler := api.NewRouter(api.Options{
		Store:              store,
		Logger:             logger,
		MaxRequestBytes:    cfg.Limits.MaxRequestBytes,
		MaxInFlight:        cfg.Server.MaxInFlight,
		StreamWriteTimeout: cfg.Server.StreamWriteTimeout,
		Verbose:            cfg.DB.Verbose,
	},
		api.NewResource("customers", a.Customers, (*model.Customer).Validate, (*model.CustomerPatch).Apply),
		api.NewResource("items", a.Items, (*model.Item).Validate, (*model.ItemPatch).Apply),
	)
	a.Server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return a, nil
}

// Addr returns the address the server listens on, once Ready is closed.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Ready is closed once the server is accepting connections.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Run serves until ctx is cancelled or the server fails, then performs the
// ordered shutdown. Pending changes are committed before Run returns.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		// nothing was served, but the store still has to be released
		return errors.Join(fmt.Errorf("listen %s: %w", a.Server.Addr, err), a.shutdown(context.Background()))
	}
	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()
	a.logger.Info("Listening", "addr", ln.Addr().String(), "db", a.Store.Path())

	a.Scheduler.Start(ctx)
	close(a.ready)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.Server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down")
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.shutdown(shutCtx)
	})
	err = g.Wait()
	if err != nil {
		a.logger.Error("Server stopped with error", "err", err)
		return err
	}
	a.logger.Info("Server stopped")
	return nil
}

func (a *App) shutdown(ctx context.Context) error {
	sd := &recstore.Shutdown{
		Server:    a.Server,
		Scheduler: a.Scheduler,
		Store:     a.Store,
		Logger:    a.logger,
	}
	return sd.Run(ctx)
}

// Close releases the store without serving; for callers that never Run.
func (a *App) Close() error {
	a.Scheduler.Stop()
	if a.Store.IsClosed() {
		return nil
	}
	return errors.Join(a.Store.Commit(), a.Store.Close())
}
