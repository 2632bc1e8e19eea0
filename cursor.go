package recstore

import (
	"math"
)

// Cursor walks a collection in identifier order. Every step is a separate
// short read that seeks past the last identifier returned, so the store is
// not locked between steps and commits may happen mid-iteration. Records
// inserted ahead of the cursor are seen; records behind it are not.
type Cursor[R Record[R]] struct {
	coll    *Collection[R]
	started bool
	done    bool
	lastID  int64
	row     *R
	err     error
}

// Next advances to the next record and reports whether there is one.
func (cur *Cursor[R]) Next() bool {
	if cur.done {
		return false
	}
	if cur.started && cur.lastID == math.MaxInt64 {
		cur.finish(nil)
		return false
	}

	var row *R
	var id int64
	err := cur.coll.store.Read(func(tx *Tx) error {
		c := tx.bucket(cur.coll.cs.name).Cursor()
		var k, v []byte
		if cur.started {
			seek := acquireKey(cur.lastID + 1)
			k, v = c.Seek(seek)
			releaseKeyBytes(seek)
		} else {
			k, v = c.First()
		}
		if k == nil {
			return nil
		}
		var err error
		id, err = decodeKey(k)
		if err != nil {
			return collErrf(cur.coll.cs.name, 0, err, "scan")
		}
		row, _, err = cur.coll.decodeValue(id, v)
		return err
	})
	if err != nil || row == nil {
		cur.finish(err)
		return false
	}
	cur.started = true
	cur.lastID = id
	cur.row = row
	return true
}

func (cur *Cursor[R]) finish(err error) {
	cur.done = true
	cur.row = nil
	cur.err = err
}

// Row returns the current record. Valid after Next returned true.
func (cur *Cursor[R]) Row() *R {
	return cur.row
}

// ID returns the identifier of the current record.
func (cur *Cursor[R]) ID() int64 {
	if cur.row == nil {
		return 0
	}
	return cur.lastID
}

func (cur *Cursor[R]) Err() error {
	return cur.err
}

// Reset rewinds the cursor to the beginning of the collection.
func (cur *Cursor[R]) Reset() {
	*cur = Cursor[R]{coll: cur.coll}
}
