package recstore

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type DumpFlags uint64

const (
	DumpCollectionHeaders = DumpFlags(1 << iota)
	DumpRows
	DumpStats
	DumpSequences

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump writes a human-readable listing of the store, including buffered
// mutations. Rows that fail to decode are listed with their error.
func (s *Store) Dump(w io.Writer, f DumpFlags) error {
	return s.Read(func(tx *Tx) error {
		if f.Contains(DumpSequences) {
			fmt.Fprintln(w, dumpSep1)
			fmt.Fprintln(w, sequencesBucket)
			for _, name := range s.schema.SequenceNames() {
				fmt.Fprintf(w, "%s = %d\n", name, tx.CurrentSequence(name))
			}
		}
		for _, cs := range s.schema.collections {
			tx.dumpCollection(w, f, cs)
		}
		return nil
	})
}

// DumpString is like Dump, but returns the listing.
func (s *Store) DumpString(f DumpFlags) string {
	var buf strings.Builder
	err := s.Dump(&buf, f)
	if err != nil {
		fmt.Fprintf(&buf, "** ERROR: %v\n", err)
	}
	return buf.String()
}

func (tx *Tx) dumpCollection(w io.Writer, f DumpFlags, cs *collectionSchema) {
	prefix := cs.name
	st := tx.collectionStats(cs)

	if f.Contains(DumpCollectionHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d rows)\n", prefix, st.Rows)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: data_size = %d, data_alloc = %d, sequence = %s:%d\n", prefix, st.DataSize, st.DataAlloc, cs.seqName, st.Sequence)
	}

	if f.Contains(DumpRows) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep2)
		}
		c := tx.bucket(cs.name).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			dumpRow(w, prefix, cs, k, v)
		}
	}
}

func dumpRow(w io.Writer, prefix string, cs *collectionSchema, k, v []byte) {
	id, err := decodeKey(k)
	if err != nil {
		fmt.Fprintf(w, "%s.%s ** ERROR: %v\n", prefix, hexstr(k), err)
		return
	}
	var vle value
	err = vle.decode(v)
	if err != nil {
		fmt.Fprintf(w, "%s.%d ** ERROR: %v\n", prefix, id, err)
		return
	}
	data, err := vle.Flags.encoding().decodeLoose(vle.Data)
	if err != nil {
		fmt.Fprintf(w, "%s.%d = (m%d s%d) ** ERROR: %v\n", prefix, id, vle.ModCount, vle.SchemaVer, err)
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		fmt.Fprintf(w, "%s.%d = (m%d s%d) ** ERROR: %v\n", prefix, id, vle.ModCount, vle.SchemaVer, err)
		return
	}
	fmt.Fprintf(w, "%s.%d = (m%d s%d) %s\n", prefix, id, vle.ModCount, vle.SchemaVer, raw)
}
