package recstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime/debug"
)

// Tx gives a callback access to the store's buffering transaction. A Tx is
// only valid inside the Read or Write callback that received it.
type Tx struct {
	store   *Store
	stx     storageTx
	written bool
}

func (s *Store) newTx(stx storageTx) *Tx {
	return &Tx{
		store: s,
		stx:   stx,
	}
}

func (tx *Tx) Store() *Store {
	return tx.store
}

func (tx *Tx) IsWritable() bool {
	return tx.stx.Writable()
}

// Read runs f against the current state of the store, including buffered
// mutations that were not committed yet.
func (s *Store) Read(f func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrAlreadyClosed
	}
	stx, err := s.current()
	if err != nil {
		return err
	}
	s.ReadCount.Add(1)
	return safelyCall(f, s.newTx(stx))
}

// Write runs f with exclusive access to the buffering transaction. Whatever
// f writes stays buffered until the next Commit, even if f returns an error;
// a read-modify-write inside f is atomic with respect to every other caller.
func (s *Store) Write(f func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrAlreadyClosed
	}
	stx, err := s.current()
	if err != nil {
		return err
	}
	tx := s.newTx(stx)
	err = safelyCall(f, tx)
	if tx.written {
		s.pending++
		s.WriteCount.Add(1)
	}
	return err
}

type panicked struct {
	reason interface{}
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func (p panicked) Unwrap() error {
	if err, ok := p.reason.(error); ok {
		return err
	}
	return nil
}

func safelyCall(fn func(*Tx) error, tx *Tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}

func (tx *Tx) markWritten() {
	tx.written = true
}

func (tx *Tx) bucket(name string) storageBucket {
	b := tx.stx.Bucket(name)
	if b == nil {
		panic(fmt.Errorf("recstore: missing bucket %q", name))
	}
	return b
}

// countRows walks the bucket. Bolt's bucket stats only cover committed
// pages, and rows here stay buffered until the next commit.
func (tx *Tx) countRows(name string) int {
	var n int
	c := tx.bucket(name).Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

const sequencesBucket = "_sequences"

// CurrentSequence returns the last value issued by the named sequence, or 0.
func (tx *Tx) CurrentSequence(name string) int64 {
	raw := tx.bucket(sequencesBucket).Get(unsafeBytesFromString(name))
	if len(raw) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(raw))
}

// NextSequence increments the named sequence and returns the new value.
func (tx *Tx) NextSequence(name string) (int64, error) {
	cur := tx.CurrentSequence(name)
	if cur == math.MaxInt64 {
		return 0, fmt.Errorf("recstore: sequence %s exhausted", name)
	}
	next := cur + 1
	err := tx.putSequence(name, next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (tx *Tx) putSequence(name string, v int64) error {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(v))
	err := tx.bucket(sequencesBucket).Put([]byte(name), val)
	if err != nil {
		return fmt.Errorf("recstore: sequence %s: %w", name, err)
	}
	tx.markWritten()
	return nil
}

// reconcileSequence raises the collection's sequence to its largest stored
// identifier, so that identifiers are never reissued even when a counter
// value was lost.
func (tx *Tx) reconcileSequence(cs *collectionSchema) {
	k, _ := tx.bucket(cs.name).Cursor().Last()
	if k == nil {
		return
	}
	maxID, err := decodeKey(k)
	ensure(err)
	if tx.CurrentSequence(cs.seqName) < maxID {
		tx.store.logger.Warn("recstore: sequence behind stored data, raising", "sequence", cs.seqName, "collection", cs.name, "max_id", maxID)
		ensure(tx.putSequence(cs.seqName, maxID))
	}
}
