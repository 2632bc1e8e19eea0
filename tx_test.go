package recstore

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
)

func TestTx_WriteCountsOnlyActualWrites(t *testing.T) {
	s := setup(t, basicSchema)

	ensure(s.Write(func(tx *Tx) error {
		deepEqual(t, tx.CurrentSequence("user_seq"), int64(0))
		return nil
	}))
	deepEqual(t, s.Pending(), 0)
	deepEqual(t, s.WriteCount.Load(), uint64(0))

	ensure(s.Write(func(tx *Tx) error {
		_, err := tx.NextSequence("user_seq")
		return err
	}))
	deepEqual(t, s.Pending(), 1)
	deepEqual(t, s.WriteCount.Load(), uint64(1))
}

func TestTx_ErrorKeepsBufferedWrites(t *testing.T) {
	s := setup(t, basicSchema)
	fail := errors.New("fail")

	err := s.Write(func(tx *Tx) error {
		must(tx.NextSequence("note_seq"))
		return fail
	})
	if err != fail {
		t.Fatalf("Write = %v, wanted %v", err, fail)
	}
	deepEqual(t, must(s.Sequence("note_seq").Current()), int64(1))
	deepEqual(t, s.Pending(), 1)
}

func TestTx_PanicBecomesError(t *testing.T) {
	s := setup(t, basicSchema)
	cause := errors.New("cause")

	err := s.Read(func(tx *Tx) error {
		panic(cause)
	})
	if !errors.Is(err, cause) {
		t.Fatalf("Read = %v, wanted wrapped %v", err, cause)
	}
	if !strings.Contains(err.Error(), "panic: cause") {
		t.Errorf("error text = %q", err.Error())
	}
}

func TestTx_MissingBucketPanics(t *testing.T) {
	s := setup(t, basicSchema)
	err := s.Read(func(tx *Tx) error {
		tx.bucket("nope")
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), `missing bucket "nope"`) {
		t.Fatalf("Read = %v", err)
	}
}

func TestSequence_NextAndCurrent(t *testing.T) {
	s := setup(t, basicSchema)
	seq := s.Sequence("adhoc")
	deepEqual(t, seq.Name(), "adhoc")
	deepEqual(t, must(seq.Current()), int64(0))
	deepEqual(t, must(seq.Next()), int64(1))
	deepEqual(t, must(seq.Next()), int64(2))
	deepEqual(t, must(seq.Current()), int64(2))
}

func TestSequence_Exhausted(t *testing.T) {
	s := setup(t, basicSchema)
	ensure(s.Write(func(tx *Tx) error {
		return tx.putSequence("user_seq", math.MaxInt64)
	}))
	_, err := s.Sequence("user_seq").Next()
	if err == nil {
		t.Fatalf("Next past MaxInt64 succeeded")
	}
	_, err = NewCollection(s, usersDef).Save(&User{Name: "x"})
	if err == nil {
		t.Fatalf("Save with exhausted sequence succeeded")
	}
}

func TestSequence_ConcurrentNextIsUnique(t *testing.T) {
	s := setup(t, basicSchema)
	seq := s.Sequence("user_seq")

	const workers, perWorker = 8, 50
	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				v := must(seq.Next())
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	deepEqual(t, len(seen), workers*perWorker)
	deepEqual(t, must(seq.Current()), int64(workers*perWorker))
}
