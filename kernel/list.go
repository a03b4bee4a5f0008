package kernel

import "math/bits"

// qnode is the single, reusable list-node embedded in every queueable
// kernel object (TCB, software timer): SPEC_FULL.md §3 requires that a
// thread (or timer) is linked into at most one queue at a time. This
// replaces the original kernel's intrusive pointer-chasing list node with
// an arena-friendly node that still supports O(1) link/unlink, per
// SPEC_FULL.md Design Notes ("Intrusive queues -> arena + generational
// indices").
type qnode struct {
	prev, next *qnode
	queue      *orderedQueue // non-nil iff currently linked
	priority   uint8
	arrival    uint64
	self       any // the *tcb or *swTimer this node belongs to
}

func (n *qnode) linked() bool { return n.queue != nil }

// orderedQueue is a priority-bucketed FIFO: SPEC_FULL.md §3's ordering key
// is "(effectivePriority desc, arrivalSequence asc)". Each of the 256
// possible priorities has its own doubly-linked FIFO bucket, and a 256-bit
// bitmap tracks which buckets are non-empty so the highest-priority,
// oldest-arrival member can be found in O(1) rather than by scanning a
// single sorted list on every insert, matching the "O(1) insertion into a
// sorted queue via a sentinel head" goal in Design Notes.
type orderedQueue struct {
	buckets     [256]bucket
	nonEmpty    [4]uint64 // bit (255-p)%64 of word (255-p)/64 is set iff buckets[p] is non-empty
	count       int
	nextArrival uint64

	// owner is the Mutex/Semaphore/ConditionVariable this queue is the
	// waiter list for, if any, so a blocked thread's node can be walked
	// back to the object it is waiting on (e.g. boostOwnerChain's priority
	// inheritance walk). Left nil for queues with no such use (the ready
	// queue, the idle/ready buckets in general).
	owner any
}

type bucket struct {
	head, tail *qnode
}

func (q *orderedQueue) empty() bool { return q.count == 0 }
func (q *orderedQueue) len() int    { return q.count }

func bitmapIndex(priority uint8) (word int, bit uint) {
	// Store priority 255 at bit 0 of word 0 so the highest priority is
	// found by the fewest trailing zeros.
	inv := 255 - int(priority)
	return inv / 64, uint(inv % 64)
}

func (q *orderedQueue) setNonEmpty(priority uint8) {
	w, b := bitmapIndex(priority)
	q.nonEmpty[w] |= 1 << b
}

func (q *orderedQueue) clearNonEmpty(priority uint8) {
	w, b := bitmapIndex(priority)
	q.nonEmpty[w] &^= 1 << b
}

// highestNonEmpty returns the highest priority with a non-empty bucket, and
// ok=false if the queue is empty.
func (q *orderedQueue) highestNonEmpty() (priority uint8, ok bool) {
	for w := 0; w < 4; w++ {
		word := q.nonEmpty[w]
		if word == 0 {
			continue
		}
		b := bits.TrailingZeros64(word)
		return uint8(255 - (w*64 + b)), true
	}
	return 0, false
}

// insert links n into the queue at priority, assigning it the next arrival
// sequence number. n must not already be linked anywhere.
func (q *orderedQueue) insert(n *qnode, priority uint8) {
	if n.queue != nil {
		panic("kernel: qnode already linked")
	}
	n.priority = priority
	n.arrival = q.nextArrival
	q.nextArrival++
	n.queue = q

	b := &q.buckets[priority]
	if b.tail == nil {
		b.head, b.tail = n, n
		q.setNonEmpty(priority)
	} else {
		n.prev = b.tail
		b.tail.next = n
		b.tail = n
	}
	q.count++
}

// insertBehind behaves like insert but is used by setPriority's alwaysBehind
// flag; since arrival sequence numbers only ever increase, appending at the
// bucket tail already places n behind every existing same-priority member,
// so this is the same operation as insert. It is kept as a distinct name at
// call sites to document intent (SPEC_FULL.md §4.3).
func (q *orderedQueue) insertBehind(n *qnode, priority uint8) {
	q.insert(n, priority)
}

// remove unlinks n, which must currently belong to q.
func (q *orderedQueue) remove(n *qnode) {
	if n.queue != q {
		panic("kernel: qnode not linked to this queue")
	}
	b := &q.buckets[n.priority]
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		b.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		b.tail = n.prev
	}
	if b.head == nil {
		q.clearNonEmpty(n.priority)
	}
	n.prev, n.next, n.queue = nil, nil, nil
	q.count--
}

// peekHead returns the highest-priority, oldest-arrival node without
// removing it, or nil if the queue is empty.
func (q *orderedQueue) peekHead() *qnode {
	p, ok := q.highestNonEmpty()
	if !ok {
		return nil
	}
	return q.buckets[p].head
}

// popHead removes and returns the head, or nil if empty.
func (q *orderedQueue) popHead() *qnode {
	h := q.peekHead()
	if h == nil {
		return nil
	}
	q.remove(h)
	return h
}

// reinsert re-sorts n (already linked to q) under a new priority, e.g.
// after an effective-priority change (SPEC_FULL.md §4.3 "Priority change").
func (q *orderedQueue) reinsert(n *qnode, priority uint8) {
	q.remove(n)
	q.insert(n, priority)
}

// forEach visits every node in priority-then-arrival order. The callback
// must not mutate the queue.
func (q *orderedQueue) forEach(fn func(*qnode)) {
	for w := 0; w < 4; w++ {
		word := q.nonEmpty[w]
		for word != 0 {
			b := bits.TrailingZeros64(word)
			word &^= 1 << b
			priority := uint8(255 - (w*64 + b))
			for n := q.buckets[priority].head; n != nil; n = n.next {
				fn(n)
			}
		}
	}
}
