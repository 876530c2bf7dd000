package annotation

import "sync/atomic"

// Slot holds the current Set. Readers always observe a complete set; the
// pipeline is the only writer.
type Slot struct {
	current atomic.Pointer[Set]
}

// NewSlot creates a slot holding initial.
func NewSlot(initial *Set) *Slot {
	s := &Slot{}
	s.current.Store(initial)
	return s
}

// Load returns the current set.
func (s *Slot) Load() *Set {
	return s.current.Load()
}

// PublishIfNewer installs next only when its cycle id is greater than the
// current one. It reports whether next became current.
func (s *Slot) PublishIfNewer(next *Set) bool {
	for {
		cur := s.current.Load()
		if cur != nil && next.CycleID <= cur.CycleID {
			return false
		}
		if s.current.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Reset installs next unconditionally. Used for the empty set on quit.
func (s *Slot) Reset(next *Set) {
	s.current.Store(next)
}
