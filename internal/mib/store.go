// Package mib holds the agent's managed objects: OID addressing, typed
// scalar values, and the mutex-guarded Object Store shared by the request
// dispatcher and the threshold monitor.
package mib

import (
	"fmt"
	"slices"
	"sync"
)

// Store maps OIDs to managed objects. The OID set is fixed at construction;
// only values change afterwards.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*Object
	order   []OID
	gen     uint64
}

// Snapshot is a point-in-time copy of every object in OID order.
// Generation increases by one for every committed mutation.
type Snapshot struct {
	Generation uint64
	Objects    []Object
}

// NewStore builds a store from objects. OIDs must be unique and every
// value must match its object's kind.
func NewStore(objects []Object) (*Store, error) {
	s := &Store{objects: make(map[string]*Object, len(objects))}
	for _, obj := range objects {
		if len(obj.OID) == 0 {
			return nil, fmt.Errorf("object %q has empty OID", obj.Name)
		}
		key := obj.OID.String()
		if _, dup := s.objects[key]; dup {
			return nil, fmt.Errorf("duplicate OID %s", key)
		}
		if obj.Value.Kind != obj.Kind {
			return nil, fmt.Errorf("object %s value kind %s does not match %s", key, obj.Value.Kind, obj.Kind)
		}
		cp := obj.Clone()
		s.objects[key] = &cp
		s.order = append(s.order, cp.OID)
	}
	slices.SortFunc(s.order, OID.Compare)
	return s, nil
}

// Get returns a copy of the object at oid.
func (s *Store) Get(oid OID) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(oid, nil)
}

// Next returns the object whose OID is the strict lexicographic successor
// of oid. The boolean is false past the last known OID.
func (s *Store) Next(oid OID) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextLocked(oid, nil)
}

// Set validates and applies a single value. Access rights are the
// caller's concern; Set only enforces existence, kind and bounds.
func (s *Store) Set(oid OID, v Value) error {
	return s.Update(func(tx *Tx) error {
		return tx.Set(oid, v)
	})
}

// View runs fn with a consistent read-only view of the store.
func (s *Store) View(fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&Tx{s: s})
}

// Update runs fn under the exclusive lock. Values staged with tx.Set are
// committed only if fn returns nil; otherwise the store is left untouched.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Tx{s: s, writable: true, staged: make(map[string]Value)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.staged) == 0 {
		return nil
	}
	for key, v := range tx.staged {
		s.objects[key].Value = v
	}
	s.gen++
	return nil
}

// Walk returns copies of all objects in OID order.
func (s *Store) Walk() []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.walkLocked()
}

// Snapshot returns a deep copy of the store with its generation.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Generation: s.gen, Objects: s.walkLocked()}
}

// Generation reports the number of committed mutations.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Restore replaces values from snap. Every object in snap must exist in the
// store and pass its kind and bounds checks, and every store object must be
// present.
func (s *Store) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(snap.Objects) != len(s.objects) {
		return fmt.Errorf("snapshot holds %d objects, store has %d", len(snap.Objects), len(s.objects))
	}
	values := make(map[string]Value, len(snap.Objects))
	for _, obj := range snap.Objects {
		key := obj.OID.String()
		cur, ok := s.objects[key]
		if !ok {
			return fmt.Errorf("snapshot object %s: %w", key, ErrNotFound)
		}
		if err := cur.Check(obj.Value); err != nil {
			return fmt.Errorf("snapshot object %s: %w", key, err)
		}
		values[key] = obj.Value
	}
	if len(values) != len(s.objects) {
		return fmt.Errorf("snapshot repeats OIDs: %d distinct of %d", len(values), len(snap.Objects))
	}
	for key, v := range values {
		s.objects[key].Value = v
	}
	s.gen++
	return nil
}

func (s *Store) walkLocked() []Object {
	out := make([]Object, 0, len(s.order))
	for _, oid := range s.order {
		out = append(out, s.objects[oid.String()].Clone())
	}
	return out
}

func (s *Store) getLocked(oid OID, staged map[string]Value) (Object, error) {
	key := oid.String()
	obj, ok := s.objects[key]
	if !ok {
		return Object{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	out := obj.Clone()
	if v, ok := staged[key]; ok {
		out.Value = v
	}
	return out, nil
}

func (s *Store) nextLocked(oid OID, staged map[string]Value) (Object, bool) {
	i, found := slices.BinarySearchFunc(s.order, oid, OID.Compare)
	if found {
		i++
	}
	if i >= len(s.order) {
		return Object{}, false
	}
	obj, _ := s.getLocked(s.order[i], staged)
	return obj, true
}

// Tx is a view of the store inside View or Update. It must not escape fn.
type Tx struct {
	s        *Store
	writable bool
	staged   map[string]Value
}

// Get returns the object at oid, reflecting values staged in this Tx.
func (tx *Tx) Get(oid OID) (Object, error) {
	return tx.s.getLocked(oid, tx.staged)
}

// Next returns the successor of oid, reflecting staged values.
func (tx *Tx) Next(oid OID) (Object, bool) {
	return tx.s.nextLocked(oid, tx.staged)
}

// Set stages v for oid after checking existence, kind and bounds.
func (tx *Tx) Set(oid OID, v Value) error {
	if !tx.writable {
		return fmt.Errorf("set %s in read-only view: %w", oid, ErrNotWritable)
	}
	obj, err := tx.Get(oid)
	if err != nil {
		return err
	}
	if err := obj.Check(v); err != nil {
		return err
	}
	tx.staged[oid.String()] = v
	return nil
}
