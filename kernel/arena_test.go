package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArenaAllocLookupRelease(t *testing.T) {
	a := newArena()
	t1 := newTCB("t1", 1, PolicyFIFO, 0, nil)
	t2 := newTCB("t2", 2, PolicyFIFO, 0, nil)

	id1 := a.alloc(t1)
	id2 := a.alloc(t2)
	assert.NotEqual(t, id1, id2)
	assert.Same(t, t1, a.lookup(id1))
	assert.Same(t, t2, a.lookup(id2))
	assert.Equal(t, 2, a.count())
}

func TestArenaReleaseBumpsGeneration(t *testing.T) {
	a := newArena()
	t1 := newTCB("t1", 1, PolicyFIFO, 0, nil)
	id1 := a.alloc(t1)

	a.release(id1)
	assert.Nil(t, a.lookup(id1), "stale id must not resolve after release")
	assert.Equal(t, 0, a.count())

	t2 := newTCB("t2", 2, PolicyFIFO, 0, nil)
	id2 := a.alloc(t2)
	assert.Equal(t, id1.slot, id2.slot, "freed slot should be reused")
	assert.NotEqual(t, id1.generation, id2.generation, "reused slot must bump generation")
	assert.Same(t, t2, a.lookup(id2))
	assert.Nil(t, a.lookup(id1), "the old id must remain stale even after the slot is reused")
}

func TestArenaLiveExcludesReleased(t *testing.T) {
	a := newArena()
	t1 := newTCB("t1", 1, PolicyFIFO, 0, nil)
	t2 := newTCB("t2", 2, PolicyFIFO, 0, nil)
	id1 := a.alloc(t1)
	a.alloc(t2)

	a.release(id1)
	live := a.live()
	assert.Len(t, live, 1)
	assert.Same(t, t2, live[0])
}
