package recstore

// Sequence is a named persistent counter. Values become durable with the
// next Commit, together with whatever else was written in between.
type Sequence struct {
	store *Store
	name  string
}

func (s *Store) Sequence(name string) *Sequence {
	return &Sequence{store: s, name: name}
}

func (seq *Sequence) Name() string {
	return seq.name
}

// Next increments the counter and returns the new value.
func (seq *Sequence) Next() (int64, error) {
	var v int64
	err := seq.store.Write(func(tx *Tx) error {
		var err error
		v, err = tx.NextSequence(seq.name)
		return err
	})
	return v, err
}

// Current returns the last value returned by Next, or 0.
func (seq *Sequence) Current() (int64, error) {
	var v int64
	err := seq.store.Read(func(tx *Tx) error {
		v = tx.CurrentSequence(seq.name)
		return nil
	})
	return v, err
}
