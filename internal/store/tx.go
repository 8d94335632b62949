// File: internal/store/tx.go
package store

import (
	"context"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/iyunix/go-branchchat/internal/domain"
)

// ChangeSet records the (kind, key) pairs a committed transaction touched.
// Chat writes are keyed by chat id; message writes by their owning chat id,
// which is the granularity live queries care about.
type ChangeSet map[Kind]map[string]struct{}

func (c ChangeSet) add(kind Kind, keys ...string) {
	set, ok := c[kind]
	if !ok {
		set = make(map[string]struct{})
		c[kind] = set
	}
	for _, key := range keys {
		set[key] = struct{}{}
	}
}

func (c ChangeSet) merge(other ChangeSet) {
	for kind, keys := range other {
		for key := range keys {
			c.add(kind, key)
		}
	}
}

func (c ChangeSet) clone() ChangeSet {
	out := make(ChangeSet, len(c))
	out.merge(c)
	return out
}

// Has reports whether the change set contains the given kind and key.
func (c ChangeSet) Has(kind Kind, key string) bool {
	_, ok := c[kind][key]
	return ok
}

// overlaps reports whether any selector matches an entry of the change set.
// An empty selector key matches any key of its kind.
func (c ChangeSet) overlaps(sels []Selector) bool {
	for _, sel := range sels {
		keys, ok := c[sel.Kind]
		if !ok {
			continue
		}
		if sel.Key == "" && len(keys) > 0 {
			return true
		}
		if _, hit := keys[sel.Key]; hit {
			return true
		}
	}
	return false
}

// Tx is the handle passed to a transaction body. Repositories bound to it
// write through DB() and record what they touched via Touch; the recorded
// change set is published to watchers only after the commit succeeds.
type Tx struct {
	db      *gorm.DB
	store   *Store
	changes ChangeSet
}

func (t *Tx) DB() *gorm.DB { return t.db }

// NextSeq draws from the store's insert counter. Values drawn by a rolled
// back transaction are skipped, which keeps the counter monotonic either way.
func (t *Tx) NextSeq() uint64 { return t.store.NextSeq() }

// Touch records that records of kind under the given keys were written.
func (t *Tx) Touch(kind Kind, keys ...string) { t.changes.add(kind, keys...) }

// Transaction runs body atomically against the named kinds. Either every
// write inside body becomes durably visible together, or none do.
//
// Transactions touching a common kind are serialized against each other; a
// body error rolls everything back and propagates to the caller unchanged.
// Commit-level failures surface as StorageFailure.
func (s *Store) Transaction(ctx context.Context, kinds []Kind, body func(tx *Tx) error) error {
	if len(kinds) == 0 {
		return domain.NewInvalidArgumentError("store.Transaction", "at least one record kind is required")
	}

	locks := s.locksFor(kinds)
	for _, mu := range locks {
		mu.Lock()
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}()

	tx := &Tx{store: s, changes: ChangeSet{}}
	var bodyErr error
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		tx.db = gtx
		bodyErr = body(tx)
		return bodyErr
	})
	if err != nil {
		if bodyErr != nil {
			return bodyErr
		}
		s.logger.Error("transaction commit failed", "error", err)
		return domain.NewStorageError("store.Transaction", "transaction failed to commit", err)
	}

	s.watches.publish(tx.changes)
	return nil
}

// locksFor deduplicates the kinds and returns their locks in a canonical
// order so overlapping transactions never deadlock.
func (s *Store) locksFor(kinds []Kind) []*sync.Mutex {
	names := make([]string, 0, len(kinds))
	seen := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		if seen[k] {
			continue
		}
		seen[k] = true
		names = append(names, string(k))
	}
	sort.Strings(names)

	locks := make([]*sync.Mutex, 0, len(names))
	for _, name := range names {
		locks = append(locks, s.lockFor(Kind(name)))
	}
	return locks
}
