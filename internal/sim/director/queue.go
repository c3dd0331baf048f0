package director

import (
	"container/heap"

	"stagecraft.ai/internal/sim/performance"
)

// entry is one queued performance. seq breaks priority ties deterministically
// in favor of the earlier Schedule call.
type entry struct {
	perf     *performance.Performance
	priority int
	seq      uint64
	index    int
}

// pqueue is a max-heap over (priority desc, seq asc) with O(log n) removal of
// arbitrary performances via the byPerf index.
type pqueue struct {
	entries []*entry
	byPerf  map[*performance.Performance]*entry
}

func newPQueue() *pqueue {
	return &pqueue{byPerf: map[*performance.Performance]*entry{}}
}

func (q *pqueue) Len() int { return len(q.entries) }

func (q *pqueue) Less(i, j int) bool {
	a, b := q.entries[i], q.entries[j]
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

func (q *pqueue) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	q.entries[i].index = i
	q.entries[j].index = j
}

func (q *pqueue) Push(x any) {
	e := x.(*entry)
	e.index = len(q.entries)
	q.entries = append(q.entries, e)
}

func (q *pqueue) Pop() any {
	old := q.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	q.entries = old[:n-1]
	return e
}

func (q *pqueue) push(p *performance.Performance, priority int, seq uint64) {
	e := &entry{perf: p, priority: priority, seq: seq}
	q.byPerf[p] = e
	heap.Push(q, e)
}

// peek returns the best entry without removing it.
func (q *pqueue) peek() (*entry, bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	return q.entries[0], true
}

// remove deletes a performance's entry if present.
func (q *pqueue) remove(p *performance.Performance) bool {
	e, ok := q.byPerf[p]
	if !ok {
		return false
	}
	delete(q.byPerf, p)
	heap.Remove(q, e.index)
	return true
}
