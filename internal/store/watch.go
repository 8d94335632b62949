// File: internal/store/watch.go
package store

import "sync"

// Selector matches change-set entries. An empty Key matches any key of the
// kind.
type Selector struct {
	Kind Kind
	Key  string
}

// Watch delivers the change sets of committed transactions overlapping its
// selectors. Deliveries coalesce: a slow consumer sees one merged change set
// rather than a backlog, and never a change set from an uncommitted
// transaction.
type Watch struct {
	C <-chan ChangeSet

	ch   chan ChangeSet
	sels []Selector
	reg  *registry
	id   uint64
	once sync.Once
}

// Close removes the watch from the registry and closes its channel. No
// deliveries happen after Close returns.
func (w *Watch) Close() {
	w.reg.remove(w.id)
	w.closeChan()
}

func (w *Watch) closeChan() {
	w.once.Do(func() { close(w.ch) })
}

type registry struct {
	mu      sync.Mutex
	nextID  uint64
	watches map[uint64]*Watch
}

func newRegistry() *registry {
	return &registry{watches: make(map[uint64]*Watch)}
}

func (r *registry) add(sels []Selector) *Watch {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	w := &Watch{
		ch:   make(chan ChangeSet, 1),
		sels: sels,
		reg:  r,
		id:   r.nextID,
	}
	w.C = w.ch
	r.watches[w.id] = w
	return w
}

func (r *registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watches, id)
}

// publish fans a committed change set out to every overlapping watch. Sends
// happen under the registry lock, so no send can race a remove.
func (r *registry) publish(changes ChangeSet) {
	if len(changes) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.watches {
		if !changes.overlaps(w.sels) {
			continue
		}
		select {
		case w.ch <- changes.clone():
		default:
			// Consumer has not drained the previous delivery; merge into it.
			select {
			case pending := <-w.ch:
				pending.merge(changes)
				w.ch <- pending
			default:
				w.ch <- changes.clone()
			}
		}
	}
}

func (r *registry) closeAll() {
	r.mu.Lock()
	ws := make([]*Watch, 0, len(r.watches))
	for _, w := range r.watches {
		ws = append(ws, w)
	}
	r.watches = make(map[uint64]*Watch)
	r.mu.Unlock()

	for _, w := range ws {
		w.closeChan()
	}
}

// Watch registers for change sets matching any of the selectors.
func (s *Store) Watch(sels ...Selector) *Watch {
	return s.watches.add(sels)
}
