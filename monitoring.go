package recstore

import "time"

// CollectionStats describes one collection. Rows include buffered
// mutations; DataSize and DataAlloc are as of the last commit.
type CollectionStats struct {
	Name      string `json:"name"`
	Rows      int    `json:"rows"`
	Sequence  int64  `json:"sequence"`
	DataSize  int64  `json:"data_size"`
	DataAlloc int64  `json:"data_alloc"`
}

type StoreStats struct {
	Path        string            `json:"path"`
	Size        int64             `json:"size"`
	Pending     int               `json:"pending"`
	LastCommit  time.Time         `json:"last_commit"`
	Reads       uint64            `json:"reads"`
	Writes      uint64            `json:"writes"`
	Commits     uint64            `json:"commits"`
	Collections []CollectionStats `json:"collections"`
}

func (tx *Tx) collectionStats(cs *collectionSchema) CollectionStats {
	bs := tx.bucket(cs.name).Stats()
	return CollectionStats{
		Name:      cs.name,
		Rows:      tx.countRows(cs.name),
		Sequence:  tx.CurrentSequence(cs.seqName),
		DataSize:  bs.LeafInuse,
		DataAlloc: bs.TotalAlloc(),
	}
}

// Stats returns store counters and per-collection statistics.
func (s *Store) Stats() (StoreStats, error) {
	st := StoreStats{
		Path:       s.path,
		Size:       s.Size(),
		LastCommit: s.LastCommit(),
	}
	err := s.Read(func(tx *Tx) error {
		st.Pending = s.pending
		for _, cs := range s.schema.collections {
			st.Collections = append(st.Collections, tx.collectionStats(cs))
		}
		return nil
	})
	st.Reads = s.ReadCount.Load()
	st.Writes = s.WriteCount.Load()
	st.Commits = s.CommitCount.Load()
	return st, err
}
