package recstore

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

const DefaultLockTimeout = 5 * time.Second

type Store struct {
	path    string
	stor    storage
	schema  *Schema
	logger  *slog.Logger
	verbose bool

	mu      sync.Mutex
	stx     storageTx
	pending int
	closed  bool

	lastSize    atomic.Int64
	ReadCount   atomic.Uint64
	WriteCount  atomic.Uint64
	CommitCount atomic.Uint64
	lastCommit  atomic.Int64 // unix nanos
}

type Options struct {
	Logger      *slog.Logger
	Verbose     bool
	IsTesting   bool
	LockTimeout time.Duration
	MmapSize    int
}

// Open opens (creating if needed) the store file at path and prepares
// the buckets declared by schema. MemoryPath opens a store that is lost
// on Close.
func Open(path string, schema *Schema, opt Options) (*Store, error) {
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var stor storage
	if path == MemoryPath {
		stor = newMemStorage()
	} else {
		bdb, err := openBolt(path, opt)
		if err != nil {
			return nil, fmt.Errorf("recstore: open %s: %w: %w", path, ErrStorageUnavailable, err)
		}
		stor = newBoltStorage(bdb)
	}

	s := &Store{
		path:    path,
		stor:    stor,
		schema:  schema,
		logger:  opt.Logger,
		verbose: opt.Verbose,
	}

	err := s.prepare()
	if err != nil {
		stor.Close()
		return nil, fmt.Errorf("recstore: open %s: %w: %w", path, ErrStorageUnavailable, err)
	}
	return s, nil
}

func openBolt(path string, opt Options) (*bbolt.DB, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = opt.LockTimeout
	if bopt.Timeout == 0 {
		bopt.Timeout = DefaultLockTimeout
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}
	return bbolt.Open(path, 0o666, &bopt)
}

// prepare creates missing buckets, reconciles sequences and durably commits
// that setup before the buffering transaction starts.
func (s *Store) prepare() error {
	stx, err := s.stor.BeginTx(true)
	if err != nil {
		return err
	}
	defer stx.Rollback()

	tx := s.newTx(stx)
	err = safelyCall(func(tx *Tx) error {
		ensure1(tx.stx.CreateBucket(sequencesBucket))
		for _, cs := range s.schema.collections {
			ensure1(tx.stx.CreateBucket(cs.name))
		}
		for _, cs := range s.schema.collections {
			tx.reconcileSequence(cs)
		}
		return nil
	}, tx)
	if err != nil {
		return err
	}
	size := stx.Size()
	err = stx.Commit()
	if err != nil {
		return err
	}
	s.lastSize.Store(size)
	s.lastCommit.Store(time.Now().UnixNano())
	return nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Schema() *Schema {
	return s.schema
}

func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// Size returns the file size observed at the last commit.
func (s *Store) Size() int64 {
	return s.lastSize.Load()
}

// LastCommit returns the time of the last successful commit.
func (s *Store) LastCommit() time.Time {
	return time.Unix(0, s.lastCommit.Load())
}

// Pending returns the number of mutating calls buffered since the last commit.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Store) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Commit makes every buffered mutation durable. It is a no-op when nothing
// is pending.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrAlreadyClosed
	}
	if s.pending == 0 || s.stx == nil {
		return nil
	}

	start := time.Now()
	n := s.pending
	size := s.stx.Size()
	err := s.stx.Commit()
	s.stx = nil
	s.pending = 0
	if err != nil {
		// Bolt rolls back a transaction whose commit failed.
		s.logger.Error("recstore: commit failed, buffered mutations lost", "path", s.path, "mutations", n, "err", err)
		return fmt.Errorf("recstore: commit: %w: %w", ErrStorageUnavailable, err)
	}
	s.CommitCount.Add(1)
	s.lastSize.Store(size)
	s.lastCommit.Store(time.Now().UnixNano())
	if s.verbose {
		s.logger.Debug("recstore: COMMIT", "mutations", n, "size", size, "dur", time.Since(start))
	}
	return nil
}

// Close releases the file. Mutations that were not committed are discarded.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrAlreadyClosed
	}
	s.closed = true
	if s.stx != nil {
		if s.pending > 0 {
			s.logger.Warn("recstore: discarding uncommitted mutations", "path", s.path, "mutations", s.pending)
		}
		err := s.stx.Rollback()
		if err != nil {
			s.logger.Error("recstore: rollback failed", "path", s.path, "err", err)
		}
		s.stx = nil
		s.pending = 0
	}
	err := s.stor.Close()
	if err != nil {
		return fmt.Errorf("recstore: close %s: %w", s.path, err)
	}
	return nil
}

// current returns the buffering transaction, beginning a new one after a
// commit. Must be called with s.mu held.
func (s *Store) current() (storageTx, error) {
	if s.stx == nil {
		stx, err := s.stor.BeginTx(true)
		if err != nil {
			return nil, fmt.Errorf("recstore: begin: %w: %w", ErrStorageUnavailable, err)
		}
		s.stx = stx
	}
	return s.stx, nil
}

func (s *Store) logf(format string, args ...any) {
	s.logger.Debug(fmt.Sprintf(format, args...))
}
