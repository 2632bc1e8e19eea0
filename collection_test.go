package recstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestCollection_SaveFind(t *testing.T) {
	s := setup(t, basicSchema)
	users := NewCollection(s, usersDef)

	u := must(users.Save(&User{ID: 999, Name: "foo", Email: "foo@example.com"}))
	deepEqual(t, u, &User{ID: 1, Name: "foo", Email: "foo@example.com"})
	deepEqual(t, must(users.Find(1)), u)
	isnil(t, must(users.Find(2)))
	isnil(t, must(users.Find(0)))
	isnil(t, must(users.Find(-1)))

	_, meta, err := users.FindMeta(1)
	ensure(err)
	deepEqual(t, meta.ModCount, uint64(1))
	deepEqual(t, meta.SchemaVer, uint64(1))
}

func TestCollection_SaveNil(t *testing.T) {
	s := setup(t, basicSchema)
	users := NewCollection(s, usersDef)
	_, err := users.Save(nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Save(nil) = %v, wanted ErrInvalidInput", err)
	}
	deepEqual(t, s.Pending(), 0)
}

func TestCollection_IdentifiersIncrease(t *testing.T) {
	s := setup(t, basicSchema)
	users := NewCollection(s, usersDef)
	notes := NewCollection(s, notesDef)

	var last int64
	for i := range 50 {
		u := must(users.Save(&User{Name: fmt.Sprint(i)}))
		if u.ID <= last {
			t.Fatalf("id %d after %d", u.ID, last)
		}
		last = u.ID
		if i == 10 {
			must(users.Delete(u.ID))
		}
	}
	// each collection has its own sequence
	deepEqual(t, must(notes.Save(&Note{Text: "x"})).ID, int64(1))
}

func TestCollection_Delete(t *testing.T) {
	s := setup(t, basicSchema)
	users := NewCollection(s, usersDef)
	u := must(users.Save(&User{Name: "foo"}))

	deepEqual(t, must(users.Delete(u.ID)), true)
	isnil(t, must(users.Find(u.ID)))
	deepEqual(t, must(users.Delete(u.ID)), false)
	deepEqual(t, must(users.Delete(12345)), false)
	deepEqual(t, must(users.Delete(0)), false)
}

func TestCollection_Update(t *testing.T) {
	s := setup(t, basicSchema)
	users := NewCollection(s, usersDef)
	u := must(users.Save(&User{Name: "foo", Email: "foo@example.com"}))

	upd := must(users.Update(u.ID, func(old User) User {
		old.Name = "bar"
		old.ID = 777 // ignored
		return old
	}))
	deepEqual(t, upd, &User{ID: u.ID, Name: "bar", Email: "foo@example.com"})
	deepEqual(t, must(users.Find(u.ID)), upd)

	_, meta, _ := users.FindMeta(u.ID)
	deepEqual(t, meta.ModCount, uint64(2))
	isnil(t, must(users.Find(777)))
}

func TestCollection_UpdateNoop(t *testing.T) {
	s := setup(t, basicSchema)
	users := NewCollection(s, usersDef)
	u := must(users.Save(&User{Name: "foo"}))
	ensure(s.Commit())

	deepEqual(t, must(users.Update(u.ID, nil)), u)
	deepEqual(t, must(users.Update(u.ID, func(old User) User { return old })), u)
	deepEqual(t, s.Pending(), 0)

	_, meta, _ := users.FindMeta(u.ID)
	deepEqual(t, meta.ModCount, uint64(1))
}

func TestCollection_UpdateAbsent(t *testing.T) {
	s := setup(t, basicSchema)
	users := NewCollection(s, usersDef)
	called := false
	isnil(t, must(users.Update(5, func(old User) User {
		called = true
		return old
	})))
	if called {
		t.Errorf("merge called for an absent record")
	}
}

func TestCollection_ConcurrentUpdatesAreNotLost(t *testing.T) {
	s := setup(t, basicSchema)
	notes := NewCollection(s, notesDef)
	n := must(notes.Save(&Note{Text: ""}))

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				_, err := notes.Update(n.ID, func(old Note) Note {
					old.Text += "x"
					return old
				})
				if err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
	deepEqual(t, len(must(notes.Find(n.ID)).Text), workers*perWorker)
}

func TestCollection_JSONEncoding(t *testing.T) {
	s := setup(t, basicSchema)
	notes := NewCollection(s, notesDef)
	n := must(notes.Save(&Note{Text: "hello"}))
	got, meta, err := notes.FindMeta(n.ID)
	ensure(err)
	deepEqual(t, got, &Note{ID: 1, Text: "hello"})
	deepEqual(t, meta.SchemaVer, uint64(2))
}

func TestCollection_CorruptValue(t *testing.T) {
	s := setup(t, basicSchema)
	users := NewCollection(s, usersDef)
	u := must(users.Save(&User{Name: "foo"}))
	ensure(s.Write(func(tx *Tx) error {
		tx.markWritten()
		return tx.bucket("users").Put(encodeKey(u.ID), []byte("garbage garbage garbage"))
	}))

	_, err := users.Find(u.ID)
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("Find = %v, wanted *DataError", err)
	}
	var ce *CollectionError
	if !errors.As(err, &ce) || ce.ID != u.ID || ce.Collection != "users" {
		t.Fatalf("Find = %v, wanted *CollectionError for users/%d", err, u.ID)
	}
}

func TestCollection_Count(t *testing.T) {
	s := setup(t, basicSchema)
	users := NewCollection(s, usersDef)
	deepEqual(t, must(users.Count()), 0)
	must(users.Save(&User{Name: "a"}))
	must(users.Save(&User{Name: "b"}))
	deepEqual(t, must(users.Count()), 2)
	deepEqual(t, users.Name(), "users")
}

func TestCollection_CountSeesBufferedMutations(t *testing.T) {
	s := setup(t, basicSchema)
	users := NewCollection(s, usersDef)
	for range 300 {
		must(users.Save(&User{Name: "u"}))
	}
	deepEqual(t, must(users.Count()), 300)
	deepEqual(t, must(s.Stats()).Collections[0].Rows, 300)

	ensure(s.Commit())
	deepEqual(t, must(users.Count()), 300)

	for id := range int64(5) {
		must(users.Delete(id + 1))
	}
	deepEqual(t, must(users.Count()), 295)
	deepEqual(t, must(s.Stats()).Collections[0].Rows, 295)
	if out := s.DumpString(DumpCollectionHeaders); !strings.Contains(out, "users (295 rows)") {
		t.Errorf("dump header does not count buffered deletes:\n%s", out)
	}
}

func TestCollection_ForeignDefinition(t *testing.T) {
	other := NewSchema(SchemaOpts{})
	def := DefineCollection[User](other, "users", "user_seq")
	s := setup(t, basicSchema)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewCollection(s, def)
}
