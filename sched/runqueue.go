package sched

import "container/list"

// runQueue holds one FIFO per priority level. A thread's list element is kept
// in its SchedPolicy so unlinking and rotation are O(1).
type runQueue struct {
	levels [NumPriorities]list.List
	size   int
}

func newRunQueue() *runQueue {
	q := &runQueue{}
	for i := range q.levels {
		q.levels[i].Init()
	}
	return q
}

// append adds t to the tail of its priority level.
func (q *runQueue) append(t *Thread) {
	if t.Sched.elem != nil {
		violation("thread %d already on run queue level %d", t.ID, t.Sched.level)
	}
	t.Sched.elem = q.levels[t.Priority].PushBack(t)
	t.Sched.level = t.Priority
	q.size++
}

// remove unlinks t if it is queued.
func (q *runQueue) remove(t *Thread) {
	if t.Sched.elem == nil {
		return
	}
	q.levels[t.Sched.level].Remove(t.Sched.elem)
	t.Sched.elem = nil
	q.size--
}

// rotate moves t to the tail of its level.
func (q *runQueue) rotate(t *Thread) {
	q.levels[t.Sched.level].MoveToBack(t.Sched.elem)
}

func (q *runQueue) front(level int) *list.Element {
	return q.levels[level].Front()
}

// Len returns the number of queued threads.
func (q *runQueue) Len() int { return q.size }

// LevelLen returns the number of threads queued at level.
func (q *runQueue) LevelLen(level int) int { return q.levels[level].Len() }
