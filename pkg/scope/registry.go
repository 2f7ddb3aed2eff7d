package scope

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/cbodonnell/tickstream/pkg/log"
)

var (
	// ErrScopeRegistered is returned when registering an ID that is still active.
	ErrScopeRegistered = errors.New("scope already registered")
	// ErrEntryOwned is returned when an entry already belongs to another scope.
	ErrEntryOwned = errors.New("entry already belongs to a scope")
)

// Scope is a uniquely identified group of replicated entries.
type Scope struct {
	ID       uint32
	Bindings []Binding
}

// Registry maps scope IDs to their entries. It is the source of truth for
// what exists to be replicated.
//
// Iteration order follows registration order until a scope is unregistered
// and the registry compacted; after that it is unspecified. Callers must
// only rely on scope IDs.
//
// Each holds a read lock for the whole pass, so a mutation from another
// goroutine waits for the current collection or delta pass to finish.
// Mutating the registry from inside an Each callback deadlocks.
type Registry struct {
	lock       sync.RWMutex
	scopes     []*Scope
	index      map[uint32]int
	owners     map[Entry]uint32
	tombstones int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		index:  make(map[uint32]int),
		owners: make(map[Entry]uint32),
	}
}

func isComparable(e Entry) bool {
	t := reflect.TypeOf(e)
	return t != nil && t.Comparable()
}

// Register adds a scope with the given entries. It fails if id is already
// active or any entry already belongs to a scope.
func (r *Registry) Register(id uint32, entries ...Entry) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.index[id]; ok {
		return fmt.Errorf("failed to register scope %d: %w", id, ErrScopeRegistered)
	}

	s := &Scope{ID: id, Bindings: make([]Binding, 0, len(entries))}
	for _, e := range entries {
		if isComparable(e) {
			if owner, ok := r.owners[e]; ok {
				return fmt.Errorf("failed to register scope %d: %w (scope %d)", id, ErrEntryOwned, owner)
			}
		}
		s.Bindings = append(s.Bindings, Bind(e))
	}
	for _, e := range entries {
		if isComparable(e) {
			r.owners[e] = id
		}
	}

	r.index[id] = len(r.scopes)
	r.scopes = append(r.scopes, s)
	log.Trace("Registered scope %d with %d entries", id, len(entries))
	return nil
}

// MustRegister is like Register but panics when registration fails.
func (r *Registry) MustRegister(id uint32, entries ...Entry) {
	if err := r.Register(id, entries...); err != nil {
		panic(err)
	}
}

// Unregister removes the scope with the given ID. Unknown IDs are logged
// and ignored, since peers may race disconnect and cleanup.
func (r *Registry) Unregister(id uint32) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.removeLocked(id) {
		log.Warn("Attempted to unregister unknown scope %d", id)
		return false
	}
	if r.tombstones > len(r.scopes)/2 {
		r.compactLocked()
	}
	return true
}

func (r *Registry) removeLocked(id uint32) bool {
	i, ok := r.index[id]
	if !ok {
		return false
	}
	for _, b := range r.scopes[i].Bindings {
		if isComparable(b.Entry) {
			delete(r.owners, b.Entry)
		}
	}
	r.scopes[i] = nil
	delete(r.index, id)
	r.tombstones++
	return true
}

// UnregisterAll removes every scope with an ID greater than or equal to
// startID and returns how many were removed.
func (r *Registry) UnregisterAll(startID uint32) int {
	r.lock.Lock()
	defer r.lock.Unlock()

	removed := 0
	for _, s := range r.scopes {
		if s != nil && s.ID >= startID {
			r.removeLocked(s.ID)
			removed++
		}
	}
	r.compactLocked()
	log.Debug("Unregistered %d scopes with ID >= %d", removed, startID)
	return removed
}

// Compact reclaims the slots left by unregistered scopes. Live scopes from
// the end of the list fill the holes, so iteration order changes.
func (r *Registry) Compact() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.compactLocked()
}

func (r *Registry) compactLocked() {
	if r.tombstones == 0 {
		return
	}
	i := 0
	for i < len(r.scopes) {
		if r.scopes[i] != nil {
			i++
			continue
		}
		last := len(r.scopes) - 1
		r.scopes[i] = r.scopes[last]
		r.scopes[last] = nil
		r.scopes = r.scopes[:last]
		if i < len(r.scopes) && r.scopes[i] != nil {
			r.index[r.scopes[i].ID] = i
		}
	}
	r.tombstones = 0
}

// NextFreeID returns one past the largest registered ID, or 0 when empty.
// IDs in gaps below the maximum are never returned.
func (r *Registry) NextFreeID() uint32 {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if len(r.index) == 0 {
		return 0
	}
	var highest uint32
	for id := range r.index {
		if id > highest {
			highest = id
		}
	}
	return highest + 1
}

// Get returns the scope with the given ID.
func (r *Registry) Get(id uint32) (*Scope, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.scopes[i], true
}

// Has reports whether id is registered.
func (r *Registry) Has(id uint32) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	_, ok := r.index[id]
	return ok
}

// Len returns the number of registered scopes.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.index)
}

// IDs returns the registered scope IDs in ascending order.
func (r *Registry) IDs() []uint32 {
	r.lock.RLock()
	defer r.lock.RUnlock()

	ids := make([]uint32, 0, len(r.index))
	for id := range r.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Each calls fn for every registered scope in registry order.
func (r *Registry) Each(fn func(s *Scope)) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, s := range r.scopes {
		if s != nil {
			fn(s)
		}
	}
}
