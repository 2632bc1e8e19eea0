package recstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeDrainer struct {
	err    error
	panics bool
	calls  int
}

func (d *fakeDrainer) Shutdown(ctx context.Context) error {
	d.calls++
	if d.panics {
		panic("drain exploded")
	}
	return d.err
}

func TestShutdown_CommitsAndCloses(t *testing.T) {
	path := tempPath(t)
	s := open(t, path)
	users := NewCollection(s, usersDef)
	must(users.Save(&User{Name: "pending"}))

	cs := NewCommitScheduler(s, SchedulerOptions{Delay: time.Hour})
	cs.Start(context.Background())
	d := &fakeDrainer{}

	sd := &Shutdown{Server: d, Scheduler: cs, Store: s}
	ensure(sd.Run(context.Background()))
	deepEqual(t, d.calls, 1)
	deepEqual(t, s.IsClosed(), true)

	s = open(t, path)
	defer s.Close()
	users = NewCollection(s, usersDef)
	deepEqual(t, must(users.Find(1)).Name, "pending")
}

func TestShutdown_ContinuesAfterFailures(t *testing.T) {
	path := tempPath(t)
	s := open(t, path)
	users := NewCollection(s, usersDef)
	must(users.Save(&User{Name: "pending"}))

	d := &fakeDrainer{panics: true}
	sd := &Shutdown{Server: d, Store: s}
	err := sd.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "drain exploded") {
		t.Fatalf("Run = %v, wanted drain panic", err)
	}
	deepEqual(t, s.IsClosed(), true)

	s = open(t, path)
	defer s.Close()
	users = NewCollection(s, usersDef)
	isnonnil(t, must(users.Find(1)))
}

func TestShutdown_JoinsErrors(t *testing.T) {
	drainErr := errors.New("drain failed")
	s := open(t, tempPath(t))
	sd := &Shutdown{Server: &fakeDrainer{err: drainErr}, Store: s}
	err := sd.Run(context.Background())
	if !errors.Is(err, drainErr) {
		t.Fatalf("Run = %v, wanted drainErr", err)
	}
}

func TestShutdown_SkipsClosedStore(t *testing.T) {
	s := open(t, tempPath(t))
	ensure(s.Close())
	sd := &Shutdown{Store: s}
	ensure(sd.Run(context.Background()))
}

func TestShutdown_Empty(t *testing.T) {
	ensure((&Shutdown{}).Run(context.Background()))
}
