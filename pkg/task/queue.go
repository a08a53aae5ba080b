package task

import (
	"container/heap"
	"encoding/json"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/vltest/vltest/pkg/logging"
)

var (
	ErrQueueEmpty = errors.New("queue empty")
	ErrQueueFull  = errors.New("queue full")
)

// NewQueue builds the in-memory priority queue on top of the given storage.
// Tasks found under the queue prefix are requeued; tasks found under the
// current prefix were being processed when the daemon last stopped, and are
// requeued as well so the work is not lost.
func NewQueue(ts *Storage, max int) (*Queue, error) {
	tq := new(taskQueue)
	for _, prefix := range []string{QUEUEPREFIX, CURRENTPREFIX} {
		iter := ts.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		for iter.Next() {
			tsk := &Task{}
			if err := json.Unmarshal(iter.Value(), tsk); err != nil {
				iter.Release()
				return nil, err
			}
			heap.Push(tq, tsk)
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return nil, err
		}
	}

	return &Queue{
		tq:  tq,
		ts:  ts,
		max: max,
	}, nil
}

// Queue is the scheduling frontend of the task storage: a priority heap of
// tasks not yet claimed by a worker. The heap orders by priority first,
// creation time second.
type Queue struct {
	sync.Mutex
	tq *taskQueue
	ts *Storage

	max int // cap on enqueued-but-unclaimed tasks
}

// Push persists the task and makes it eligible for workers.
func (q *Queue) Push(tsk *Task) error {
	q.Lock()
	defer q.Unlock()

	// too many items enqueued already; try again later.
	if q.tq.Len() >= q.max {
		return ErrQueueFull
	}

	if err := q.ts.PersistNew(tsk); err != nil {
		return err
	}
	heap.Push(q.tq, tsk)
	return nil
}

// Pop removes the highest-priority task from the heap and returns it. The
// stored record is untouched; the worker advances it via AppendTaskState.
func (q *Queue) Pop() (*Task, error) {
	q.Lock()
	defer q.Unlock()

	if q.tq.Len() == 0 {
		return nil, ErrQueueEmpty
	}

	tsk := heap.Pop(q.tq).(*Task)
	logging.S().Debugw("queue.pop", "id", tsk.ID, "task", tsk.Name(), "remaining", q.tq.Len())
	return tsk, nil
}

// Remove withdraws a still-scheduled task from the heap. It returns false if
// the task is not in the heap (already claimed, or never scheduled).
func (q *Queue) Remove(id string) bool {
	q.Lock()
	defer q.Unlock()

	for i, tsk := range *q.tq {
		if tsk.ID == id {
			heap.Remove(q.tq, i)
			return true
		}
	}
	return false
}

func (q *Queue) Len() int {
	q.Lock()
	defer q.Unlock()
	return q.tq.Len()
}

// taskQueue implements container/heap.Interface. Tasks are sorted by
// priority, then timestamp.
type taskQueue []*Task

func (q taskQueue) Len() int {
	return len(q)
}

func (q taskQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].Created().Before(q[j].Created())
}

func (q taskQueue) Swap(i, j int) {
	q[j], q[i] = q[i], q[j]
}

func (q *taskQueue) Push(x interface{}) {
	t := x.(*Task)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() interface{} {
	t := (*q)[len(*q)-1]
	*q = (*q)[:len(*q)-1]
	return t
}
