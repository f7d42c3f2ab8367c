package reindex

import (
	"container/heap"

	"github.com/jackzampolin/mdindex/internal/store"
)

// pendingQueue orders enabled pending entries for dispatch: ascending
// priority, then new AUs first when prioritizeNew is set, then the order
// the entries were pushed in.
type pendingQueue struct {
	items pendingHeap
	seq   uint64
}

func newPendingQueue(prioritizeNew bool, entries []store.PendingEntry) *pendingQueue {
	q := &pendingQueue{items: pendingHeap{prioritizeNew: prioritizeNew}}
	for _, e := range entries {
		q.push(e)
	}
	return q
}

func (q *pendingQueue) push(e store.PendingEntry) {
	q.seq++
	heap.Push(&q.items, &pendingItem{entry: e, seq: q.seq})
}

// pop returns the next entry; ok is false when the queue is empty.
func (q *pendingQueue) pop() (store.PendingEntry, bool) {
	if q.items.Len() == 0 {
		return store.PendingEntry{}, false
	}
	return heap.Pop(&q.items).(*pendingItem).entry, true
}

func (q *pendingQueue) len() int {
	return q.items.Len()
}

type pendingItem struct {
	entry store.PendingEntry
	seq   uint64
}

// pendingHeap implements heap.Interface.
type pendingHeap struct {
	list          []*pendingItem
	prioritizeNew bool
}

func (h pendingHeap) Len() int { return len(h.list) }

func (h pendingHeap) Less(i, j int) bool {
	a, b := h.list[i], h.list[j]
	if a.entry.Priority != b.entry.Priority {
		return a.entry.Priority < b.entry.Priority
	}
	if h.prioritizeNew && a.entry.IsNew != b.entry.IsNew {
		return a.entry.IsNew
	}
	return a.seq < b.seq
}

func (h pendingHeap) Swap(i, j int) {
	h.list[i], h.list[j] = h.list[j], h.list[i]
}

func (h *pendingHeap) Push(x any) {
	h.list = append(h.list, x.(*pendingItem))
}

func (h *pendingHeap) Pop() any {
	old := h.list
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.list = old[:n-1]
	return item
}
