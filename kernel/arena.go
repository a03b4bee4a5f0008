package kernel

// ThreadID is the (slot, generation) handle described in SPEC_FULL.md §3:
// it identifies a TCB without being a live pointer, so a reference to a
// terminated and recycled thread is detectably stale rather than dangling.
// This replaces the intrusive-pointer identity the original C++ kernel uses
// (see SPEC_FULL.md Design Notes, "Intrusive queues -> arena + generational
// indices").
type ThreadID struct {
	slot       int32
	generation uint32
}

// Valid reports whether id could possibly refer to a live thread; it does
// not guarantee the thread is still alive, only that the zero value isn't
// being used as if it were a handle.
func (id ThreadID) Valid() bool {
	return id.slot >= 0
}

type arenaSlot struct {
	tcb        *tcb
	generation uint32
}

// arena owns every TCB the kernel has ever created. Slots are reused after
// a thread is joined or detached-and-terminated; the generation counter
// ensures a ThreadID captured before recycling can never alias the new
// occupant.
type arena struct {
	slots []arenaSlot
	free  []int32
}

func newArena() *arena {
	return &arena{}
}

func (a *arena) alloc(t *tcb) ThreadID {
	if n := len(a.free); n > 0 {
		slot := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[slot].tcb = t
		id := ThreadID{slot: slot, generation: a.slots[slot].generation}
		t.id = id
		return id
	}
	slot := int32(len(a.slots))
	a.slots = append(a.slots, arenaSlot{tcb: t, generation: 0})
	id := ThreadID{slot: slot, generation: 0}
	t.id = id
	return id
}

// release invalidates id, bumping its generation so any stale copy of id fails
// lookup. The slot is returned to the free list for reuse.
func (a *arena) release(id ThreadID) {
	s := &a.slots[id.slot]
	s.tcb = nil
	s.generation++
	a.free = append(a.free, id.slot)
}

func (a *arena) lookup(id ThreadID) *tcb {
	if id.slot < 0 || int(id.slot) >= len(a.slots) {
		return nil
	}
	s := &a.slots[id.slot]
	if s.generation != id.generation {
		return nil
	}
	return s.tcb
}

// live returns every TCB currently allocated, in slot order. Used only by
// diagnostics and the priority-inheritance cycle-walk bound (SPEC_FULL.md
// §4.5/§9: the walk is bounded by the live-thread count).
func (a *arena) live() []*tcb {
	out := make([]*tcb, 0, len(a.slots))
	for i := range a.slots {
		if a.slots[i].tcb != nil {
			out = append(out, a.slots[i].tcb)
		}
	}
	return out
}

func (a *arena) count() int {
	return len(a.slots) - len(a.free)
}
