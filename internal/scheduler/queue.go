package scheduler

import (
	"container/heap"

	"github.com/Strob0t/SwarmForge/internal/domain/task"
)

// queueItem wraps a queued task with the monotonic sequence number that
// breaks priority ties (FIFO within a band).
type queueItem struct {
	t     *task.Task
	seq   uint64
	index int
}

// taskQueue is a priority queue: lower Priority value first, then enqueue
// order. Not safe for concurrent use; the Scheduler serializes access.
type taskQueue struct {
	items  []*queueItem
	byID   map[string]*queueItem
	depths map[string]int // queued tasks per capability
	seq    uint64
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		byID:   make(map[string]*queueItem),
		depths: make(map[string]int),
	}
}

func (q *taskQueue) Len() int { return len(q.items) }

func (q *taskQueue) Less(i, j int) bool {
	if q.items[i].t.Priority != q.items[j].t.Priority {
		return q.items[i].t.Priority < q.items[j].t.Priority
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *taskQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *taskQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(q.items)
	q.items = append(q.items, item)
}

func (q *taskQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	q.items = old[:n-1]
	return item
}

// push enqueues a task at the back of its priority band.
func (q *taskQueue) push(t *task.Task) {
	q.seq++
	item := &queueItem{t: t, seq: q.seq}
	heap.Push(q, item)
	q.byID[t.ID] = item
	q.depths[t.RequiredCapability]++
}

// remove drops a queued task by id. Returns false if it is not queued.
func (q *taskQueue) remove(taskID string) bool {
	item, ok := q.byID[taskID]
	if !ok {
		return false
	}
	heap.Remove(q, item.index)
	delete(q.byID, taskID)
	q.depths[item.t.RequiredCapability]--
	return true
}

// popEligible pops the highest-priority task whose capability currently has
// an eligible agent, scanning at most maxScan entries from the queue head.
// The bounded scan prevents a capability with no agents from blocking the
// head of the queue, without degrading into a full-queue sweep per dispatch.
func (q *taskQueue) popEligible(hasAgent func(capability string) bool, maxScan int) *task.Task {
	var skipped []*queueItem
	var picked *queueItem

	for range maxScan {
		if q.Len() == 0 {
			break
		}
		item := heap.Pop(q).(*queueItem)
		if hasAgent(item.t.RequiredCapability) {
			picked = item
			break
		}
		skipped = append(skipped, item)
	}

	for _, item := range skipped {
		heap.Push(q, item)
	}

	if picked == nil {
		return nil
	}
	delete(q.byID, picked.t.ID)
	q.depths[picked.t.RequiredCapability]--
	return picked.t
}

// depthFor returns the number of queued tasks requiring the capability.
func (q *taskQueue) depthFor(capability string) int {
	return q.depths[capability]
}
