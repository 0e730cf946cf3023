package scheduler

import (
	"container/heap"
	"time"

	"github.com/sells-group/apply-cli/internal/model"
)

// dueHeap orders follow-ups by due time. IDs are tracked so repeated
// scans do not enqueue the same follow-up twice.
type dueHeap struct {
	items []model.FollowUp
	ids   map[string]bool
}

func newDueHeap() *dueHeap {
	h := &dueHeap{ids: make(map[string]bool)}
	heap.Init(h)
	return h
}

func (h *dueHeap) Len() int           { return len(h.items) }
func (h *dueHeap) Less(i, j int) bool { return h.items[i].DueAt.Before(h.items[j].DueAt) }
func (h *dueHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *dueHeap) Push(x any) {
	h.items = append(h.items, x.(model.FollowUp))
}

func (h *dueHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// Offer enqueues a follow-up unless it is already tracked.
func (h *dueHeap) Offer(fu model.FollowUp) {
	if h.ids[fu.ID] {
		return
	}
	h.ids[fu.ID] = true
	heap.Push(h, fu)
}

// PopDue removes and returns the earliest follow-up if it is due.
func (h *dueHeap) PopDue(now time.Time) (model.FollowUp, bool) {
	if len(h.items) == 0 || h.items[0].DueAt.After(now) {
		return model.FollowUp{}, false
	}
	fu := heap.Pop(h).(model.FollowUp)
	delete(h.ids, fu.ID)
	return fu, true
}

// NextDue returns the earliest due time, if any.
func (h *dueHeap) NextDue() (time.Time, bool) {
	if len(h.items) == 0 {
		return time.Time{}, false
	}
	return h.items[0].DueAt, true
}
