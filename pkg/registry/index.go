package registry

import (
	"sort"
	"sync"
)

// AnimationIndex is the reverse index animation id -> state machine ids,
// filled as containers are loaded. Lookups may run concurrently with a
// single loader.
type AnimationIndex struct {
	mu    sync.RWMutex
	index map[uint64]map[uint64]struct{}
}

func NewAnimationIndex() *AnimationIndex {
	return &AnimationIndex{index: make(map[uint64]map[uint64]struct{})}
}

// Add records that stateMachine references each of animations.
func (a *AnimationIndex) Add(stateMachine uint64, animations ...uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, anim := range animations {
		set, ok := a.index[anim]
		if !ok {
			set = make(map[uint64]struct{})
			a.index[anim] = set
		}
		set[stateMachine] = struct{}{}
	}
}

// StateMachines returns the state machines referencing animation, sorted.
func (a *AnimationIndex) StateMachines(animation uint64) []uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	set := a.index[animation]
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Belongs reports whether animation is referenced by stateMachine.
func (a *AnimationIndex) Belongs(animation, stateMachine uint64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.index[animation][stateMachine]
	return ok
}

// Len returns the number of indexed animations.
func (a *AnimationIndex) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.index)
}

// MaterialSlots caches, per unit, the slot ids each material is bound to.
type MaterialSlots struct {
	mu    sync.RWMutex
	slots map[uint64]map[uint64][]uint32
}

func NewMaterialSlots() *MaterialSlots {
	return &MaterialSlots{slots: make(map[uint64]map[uint64][]uint32)}
}

// Set replaces the slot map of unit.
func (s *MaterialSlots) Set(unit uint64, slots map[uint64][]uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[unit] = slots
}

// AddSlot records that material is bound to slot within unit. Known slots
// are ignored.
func (s *MaterialSlots) AddSlot(unit, material uint64, slot uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMaterial, ok := s.slots[unit]
	if !ok {
		byMaterial = make(map[uint64][]uint32)
		s.slots[unit] = byMaterial
	}
	for _, known := range byMaterial[material] {
		if known == slot {
			return
		}
	}
	byMaterial[material] = append(byMaterial[material], slot)
}

// Slots returns the slot ids of material within unit.
func (s *MaterialSlots) Slots(unit, material uint64) []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[unit][material]
}

// Units returns the number of cached units.
func (s *MaterialSlots) Units() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
