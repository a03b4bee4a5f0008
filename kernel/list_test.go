package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedQueuePriorityThenArrival(t *testing.T) {
	var q orderedQueue
	nodes := []*qnode{{self: "low-1"}, {self: "high-1"}, {self: "low-2"}, {self: "high-2"}}
	q.insert(nodes[0], 5)
	q.insert(nodes[1], 10)
	q.insert(nodes[2], 5)
	q.insert(nodes[3], 10)

	var got []string
	for {
		h := q.popHead()
		if h == nil {
			break
		}
		got = append(got, h.self.(string))
	}
	assert.Equal(t, []string{"high-1", "high-2", "low-1", "low-2"}, got)
}

func TestOrderedQueueRemoveMiddle(t *testing.T) {
	var q orderedQueue
	a := &qnode{self: "a"}
	b := &qnode{self: "b"}
	c := &qnode{self: "c"}
	q.insert(a, 1)
	q.insert(b, 1)
	q.insert(c, 1)

	q.remove(b)
	assert.False(t, b.linked())
	assert.Equal(t, 2, q.len())

	got := []string{q.popHead().self.(string), q.popHead().self.(string)}
	assert.Equal(t, []string{"a", "c"}, got)
	assert.True(t, q.empty())
}

func TestOrderedQueueReinsertResorts(t *testing.T) {
	var q orderedQueue
	a := &qnode{self: "a"}
	b := &qnode{self: "b"}
	q.insert(a, 5)
	q.insert(b, 5)

	q.reinsert(a, 20)
	got := q.popHead()
	assert.Equal(t, "a", got.self.(string))
}

func TestOrderedQueueInsertPanicsIfAlreadyLinked(t *testing.T) {
	var q orderedQueue
	n := &qnode{}
	q.insert(n, 1)
	assert.Panics(t, func() { q.insert(n, 2) })
}

func TestOrderedQueueRemovePanicsIfNotLinked(t *testing.T) {
	var q1, q2 orderedQueue
	n := &qnode{}
	q1.insert(n, 1)
	assert.Panics(t, func() { q2.remove(n) })
}

func TestOrderedQueueForEachOrder(t *testing.T) {
	var q orderedQueue
	q.insert(&qnode{self: "mid"}, 100)
	q.insert(&qnode{self: "highest"}, 255)
	q.insert(&qnode{self: "lowest"}, 0)

	var got []string
	q.forEach(func(n *qnode) { got = append(got, n.self.(string)) })
	require.Len(t, got, 3)
	assert.Equal(t, []string{"highest", "mid", "lowest"}, got)
}
