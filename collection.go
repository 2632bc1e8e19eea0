package recstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
)

// Record is implemented by record value types stored in a Collection. The
// identifier is not part of the stored data; WithRecordID sets it from the
// key when a record is loaded, and after a new identifier is minted.
type Record[R any] interface {
	RecordID() int64
	WithRecordID(id int64) R
}

// Collection is a typed view of one collection of an open store.
type Collection[R Record[R]] struct {
	store *Store
	cs    *collectionSchema
}

func NewCollection[R Record[R]](store *Store, def *CollectionDef[R]) *Collection[R] {
	if store.schema.collectionNamed(def.cs.name) != def.cs {
		panic(fmt.Errorf("collection %s is not part of the store schema", def.cs.name))
	}
	return &Collection[R]{store: store, cs: def.cs}
}

func (c *Collection[R]) Name() string {
	return c.cs.name
}

func (c *Collection[R]) Store() *Store {
	return c.store
}

// Save assigns a new identifier to a copy of rec and inserts it. The
// identifier already present in rec, if any, is ignored.
func (c *Collection[R]) Save(rec *R) (*R, error) {
	if rec == nil {
		return nil, collErrf(c.cs.name, 0, ErrInvalidInput, "save")
	}
	var result R
	err := c.store.Write(func(tx *Tx) error {
		id, err := tx.NextSequence(c.cs.seqName)
		if err != nil {
			return collErrf(c.cs.name, 0, err, "save")
		}
		row := (*rec).WithRecordID(id)

		b := tx.bucket(c.cs.name)
		key := encodeKey(id)
		if b.Get(key) != nil {
			return collErrf(c.cs.name, id, nil, "save: identifier already taken, sequence %s is behind", c.cs.seqName)
		}
		val, err := c.encodeValue(row, 1)
		if err != nil {
			return collErrf(c.cs.name, id, err, "save")
		}
		err = b.Put(key, val)
		if err != nil {
			return collErrf(c.cs.name, id, err, "save")
		}
		tx.markWritten()
		if c.store.verbose {
			c.store.logf("db: PUT %s/%d => m=1 %s", c.cs.name, id, c.loggable(row))
		}
		result = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Find returns the record with the given identifier, or nil if absent.
func (c *Collection[R]) Find(id int64) (*R, error) {
	row, _, err := c.FindMeta(id)
	return row, err
}

// FindMeta is like Find, but also returns the stored value metadata.
func (c *Collection[R]) FindMeta(id int64) (*R, Meta, error) {
	if id <= 0 {
		return nil, Meta{}, nil
	}
	var row *R
	var meta Meta
	err := c.store.Read(func(tx *Tx) error {
		var err error
		row, meta, err = c.get(tx, id)
		return err
	})
	if err != nil {
		return nil, Meta{}, err
	}
	if c.store.verbose {
		if row == nil {
			c.store.logf("db: GET.NOTFOUND %s/%d", c.cs.name, id)
		} else {
			c.store.logf("db: GET %s/%d => m=%d %s", c.cs.name, id, meta.ModCount, c.loggable(*row))
		}
	}
	return row, meta, nil
}

func (c *Collection[R]) get(tx *Tx, id int64) (*R, Meta, error) {
	key := acquireKey(id)
	defer releaseKeyBytes(key)
	raw := tx.bucket(c.cs.name).Get(key)
	if raw == nil {
		return nil, Meta{}, nil
	}
	row, vle, err := c.decodeValue(id, raw)
	if err != nil {
		return nil, Meta{}, err
	}
	return row, vle.Meta(), nil
}

// Delete removes the record with the given identifier and reports whether
// it existed.
func (c *Collection[R]) Delete(id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	var found bool
	err := c.store.Write(func(tx *Tx) error {
		key := acquireKey(id)
		defer releaseKeyBytes(key)
		b := tx.bucket(c.cs.name)
		if b.Get(key) == nil {
			return nil
		}
		err := b.Delete(key)
		if err != nil {
			return collErrf(c.cs.name, id, err, "delete")
		}
		tx.markWritten()
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if c.store.verbose {
		if found {
			c.store.logf("db: DELETE %s/%d", c.cs.name, id)
		} else {
			c.store.logf("db: DELETE.NOTFOUND %s/%d", c.cs.name, id)
		}
	}
	return found, nil
}

// Update replaces the record with merge(current) and returns the new value,
// or nil if no record has the given identifier. The read, the merge and the
// write happen under one store lock. merge cannot change the identifier.
func (c *Collection[R]) Update(id int64, merge func(R) R) (*R, error) {
	if id <= 0 {
		return nil, nil
	}
	var result *R
	err := c.store.Write(func(tx *Tx) error {
		key := encodeKey(id)
		b := tx.bucket(c.cs.name)
		raw := b.Get(key)
		if raw == nil {
			return nil
		}
		old, vle, err := c.decodeValue(id, raw)
		if err != nil {
			return err
		}

		row := *old
		if merge != nil {
			row = merge(row)
		}
		row = row.WithRecordID(id)

		modCount := vle.ModCount + 1
		val, err := c.encodeValue(row, modCount)
		if err != nil {
			return collErrf(c.cs.name, id, err, "update")
		}
		var upd value
		ensure(upd.decode(val))
		if bytes.Equal(upd.Data, vle.Data) && vle.SchemaVer == c.cs.schemaVer {
			if c.store.verbose {
				c.store.logf("db: PUT.NOOP %s/%d => m=%d %s", c.cs.name, id, vle.ModCount, c.loggable(row))
			}
			result = &row
			return nil
		}

		err = b.Put(key, val)
		if err != nil {
			return collErrf(c.cs.name, id, err, "update")
		}
		tx.markWritten()
		if c.store.verbose {
			c.store.logf("db: PUT %s/%d => m=%d %s", c.cs.name, id, modCount, c.loggable(row))
		}
		result = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Count returns the number of records, including buffered mutations.
func (c *Collection[R]) Count() (int, error) {
	var n int
	err := c.store.Read(func(tx *Tx) error {
		n = tx.countRows(c.cs.name)
		return nil
	})
	return n, err
}

// Scan returns a cursor over all records in identifier order.
func (c *Collection[R]) Scan() *Cursor[R] {
	return &Cursor[R]{coll: c}
}

// All iterates over all records in identifier order. Iteration stops after
// the first error, which is yielded with a nil record.
func (c *Collection[R]) All() iter.Seq2[*R, error] {
	return func(yield func(*R, error) bool) {
		cur := c.Scan()
		for cur.Next() {
			if !yield(cur.Row(), nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// encodeValue returns a freshly allocated value, suitable for Bolt's Put.
func (c *Collection[R]) encodeValue(row R, modCount uint64) ([]byte, error) {
	scratch := encodeBytesPool.Get().([]byte)
	defer func() { encodeBytesPool.Put(scratch[:0]) }()

	buf := reserveValueHeader(scratch[:0])
	buf, err := c.cs.valueEnc.EncodeValue(buf, row)
	if err != nil {
		return nil, err
	}
	buf = putValueHeader(buf, flagsForEncoding(c.cs.valueEnc), c.cs.schemaVer, modCount)
	return bytes.Clone(buf), nil
}

func (c *Collection[R]) decodeValue(id int64, raw []byte) (*R, value, error) {
	var vle value
	err := vle.decode(raw)
	if err != nil {
		return nil, vle, collErrf(c.cs.name, id, err, "decoding value")
	}
	var row R
	err = vle.Flags.encoding().DecodeValue(vle.Data, &row)
	if err != nil {
		return nil, vle, collErrf(c.cs.name, id, err, "decoding data")
	}
	row = row.WithRecordID(id)
	return &row, vle, nil
}

func (c *Collection[R]) loggable(row R) string {
	if c.cs.suppressContent {
		return "<suppressed>"
	}
	return string(must(json.Marshal(row)))
}
