// store.go implements the bounded, hash-keyed record store.

package errtel

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// EvictReason says why a record left the store.
type EvictReason string

const (
	EvictPerHashCap EvictReason = "cap"
	EvictRetention  EvictReason = "retention"
	EvictGlobalCap  EvictReason = "global_cap"
)

// Eviction describes one record removed from the store.
type Eviction struct {
	Record  ErrorRecord
	Pattern string
	Reason  EvictReason
}

// smallEvictBatch is the largest global eviction served by scanning list
// heads; larger batches sort a full snapshot instead.
const smallEvictBatch = 8

// Store maps error hashes to time-ordered record lists.
//
// There is no store-wide lock: the hash→list map is a sync.Map and each list
// has its own mutex, so writers targeting different hashes never contend.
// A record is added or removed under its list's mutex, which makes removal
// atomic with respect to readers.
type Store struct {
	lists      sync.Map // string -> *recordList
	total      atomic.Int64
	maxPerHash int
	maxTotal   int

	// evictMu serializes global-cap enforcement only.
	evictMu sync.Mutex
}

type recordList struct {
	mu      sync.Mutex
	hash    string
	pattern string
	records []ErrorRecord // ascending by Timestamp
	dead    bool          // removed from the map; writers must retry
}

// NewStore creates a store with the given caps. Non-positive caps disable
// the corresponding bound.
func NewStore(maxPerHash, maxTotal int) *Store {
	return &Store{maxPerHash: maxPerHash, maxTotal: maxTotal}
}

// Add inserts rec (which must carry its ErrorHash) and returns every record
// evicted to keep the store within its caps.
func (s *Store) Add(rec ErrorRecord) []Eviction {
	var evicted []Eviction
	for {
		v, ok := s.lists.Load(rec.ErrorHash)
		if !ok {
			v, _ = s.lists.LoadOrStore(rec.ErrorHash, &recordList{hash: rec.ErrorHash, pattern: rec.PatternKey()})
		}
		l := v.(*recordList)
		l.mu.Lock()
		if l.dead {
			l.mu.Unlock()
			continue
		}
		l.insert(rec)
		s.total.Add(1)
		if s.maxPerHash > 0 && len(l.records) > s.maxPerHash {
			over := len(l.records) - s.maxPerHash
			for _, r := range l.records[:over] {
				evicted = append(evicted, Eviction{Record: r, Pattern: l.pattern, Reason: EvictPerHashCap})
			}
			l.records = slices.Delete(l.records, 0, over)
			s.total.Add(-int64(over))
		}
		l.mu.Unlock()
		break
	}

	if s.maxTotal > 0 && s.total.Load() > int64(s.maxTotal) {
		evicted = append(evicted, s.enforceGlobalCap()...)
	}
	return evicted
}

// insert places rec in timestamp order; equal timestamps keep arrival order.
// Caller holds l.mu.
func (l *recordList) insert(rec ErrorRecord) {
	n := len(l.records)
	if n == 0 || !rec.Timestamp.Before(l.records[n-1].Timestamp) {
		l.records = append(l.records, rec)
		return
	}
	i := sort.Search(n, func(i int) bool { return l.records[i].Timestamp.After(rec.Timestamp) })
	l.records = slices.Insert(l.records, i, rec)
}

// retire drops an empty list from the map. Caller holds l.mu.
func (s *Store) retire(l *recordList) {
	if len(l.records) == 0 && !l.dead {
		l.dead = true
		s.lists.CompareAndDelete(l.hash, l)
	}
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return int(s.total.Load())
}

// HashCount returns the number of distinct hashes currently stored.
func (s *Store) HashCount() int {
	n := 0
	s.lists.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Records returns deep copies of the records stored under hash, oldest first.
func (s *Store) Records(hash string) []ErrorRecord {
	v, ok := s.lists.Load(hash)
	if !ok {
		return nil
	}
	l := v.(*recordList)
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ErrorRecord, len(l.records))
	for i := range l.records {
		out[i] = l.records[i].Clone()
	}
	return out
}

// Snapshot returns deep copies of every record accepted by keep (nil keeps all).
// Each list is copied under its own lock, so a record is either wholly
// present or wholly absent; no cross-list linearizability is implied.
func (s *Store) Snapshot(keep func(*ErrorRecord) bool) []ErrorRecord {
	var out []ErrorRecord
	s.lists.Range(func(_, v any) bool {
		l := v.(*recordList)
		l.mu.Lock()
		for i := range l.records {
			if keep == nil || keep(&l.records[i]) {
				out = append(out, l.records[i].Clone())
			}
		}
		l.mu.Unlock()
		return true
	})
	return out
}

// Bounds returns the earliest and latest stored timestamps.
func (s *Store) Bounds() (earliest, latest time.Time, ok bool) {
	s.lists.Range(func(_, v any) bool {
		l := v.(*recordList)
		l.mu.Lock()
		if n := len(l.records); n > 0 {
			first, last := l.records[0].Timestamp, l.records[n-1].Timestamp
			if !ok || first.Before(earliest) {
				earliest = first
			}
			if !ok || last.After(latest) {
				latest = last
			}
			ok = true
		}
		l.mu.Unlock()
		return true
	})
	return earliest, latest, ok
}

// SetResolved sets IsResolved on every record accepted by match and returns
// how many records matched. It is the only mutation a stored record allows.
func (s *Store) SetResolved(match func(*ErrorRecord) bool, resolved bool) int {
	n := 0
	s.lists.Range(func(_, v any) bool {
		l := v.(*recordList)
		l.mu.Lock()
		for i := range l.records {
			if match(&l.records[i]) {
				l.records[i].IsResolved = resolved
				n++
			}
		}
		l.mu.Unlock()
		return true
	})
	return n
}

// enforceGlobalCap evicts the globally oldest records until the store is
// within maxTotal.
func (s *Store) enforceGlobalCap() []Eviction {
	if s.maxTotal <= 0 {
		return nil
	}
	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	excess := int(s.total.Load()) - s.maxTotal
	if excess <= 0 {
		return nil
	}
	if excess <= smallEvictBatch {
		var evicted []Eviction
		for s.total.Load() > int64(s.maxTotal) {
			ev, ok := s.evictOldestHead()
			if !ok {
				break
			}
			evicted = append(evicted, ev)
		}
		return evicted
	}
	return s.evictOldestBatch(excess)
}

// evictOldestHead removes the oldest record by scanning each list's head.
func (s *Store) evictOldestHead() (Eviction, bool) {
	for {
		var (
			oldest   *recordList
			oldestTS time.Time
			headID   string
		)
		s.lists.Range(func(_, v any) bool {
			l := v.(*recordList)
			l.mu.Lock()
			if len(l.records) > 0 && (oldest == nil || l.records[0].Timestamp.Before(oldestTS)) {
				oldest, oldestTS, headID = l, l.records[0].Timestamp, l.records[0].ID
			}
			l.mu.Unlock()
			return true
		})
		if oldest == nil {
			return Eviction{}, false
		}

		oldest.mu.Lock()
		// The head may have changed since the scan; rescan if so.
		if len(oldest.records) == 0 || oldest.records[0].ID != headID {
			oldest.mu.Unlock()
			continue
		}
		rec := oldest.records[0]
		oldest.records = slices.Delete(oldest.records, 0, 1)
		s.total.Add(-1)
		s.retire(oldest)
		oldest.mu.Unlock()
		return Eviction{Record: rec, Pattern: oldest.pattern, Reason: EvictGlobalCap}, true
	}
}

type recordRef struct {
	ts   time.Time
	id   string
	list *recordList
}

// evictOldestBatch removes the n oldest records using a sorted snapshot of
// record references. Records that vanished since the snapshot are skipped.
func (s *Store) evictOldestBatch(n int) []Eviction {
	var refs []recordRef
	s.lists.Range(func(_, v any) bool {
		l := v.(*recordList)
		l.mu.Lock()
		for _, r := range l.records {
			refs = append(refs, recordRef{ts: r.Timestamp, id: r.ID, list: l})
		}
		l.mu.Unlock()
		return true
	})
	sort.Slice(refs, func(i, j int) bool { return refs[i].ts.Before(refs[j].ts) })
	if n > len(refs) {
		n = len(refs)
	}

	victims := make(map[*recordList]map[string]struct{})
	for _, ref := range refs[:n] {
		ids, ok := victims[ref.list]
		if !ok {
			ids = make(map[string]struct{})
			victims[ref.list] = ids
		}
		ids[ref.id] = struct{}{}
	}

	var evicted []Eviction
	for l, ids := range victims {
		l.mu.Lock()
		kept := l.records[:0]
		for _, r := range l.records {
			if _, drop := ids[r.ID]; drop {
				evicted = append(evicted, Eviction{Record: r, Pattern: l.pattern, Reason: EvictGlobalCap})
				continue
			}
			kept = append(kept, r)
		}
		removed := len(l.records) - len(kept)
		clear(l.records[len(kept):])
		l.records = kept
		s.total.Add(-int64(removed))
		s.retire(l)
		l.mu.Unlock()
	}
	return evicted
}
