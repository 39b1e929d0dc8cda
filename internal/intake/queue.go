package intake

import (
	"sync"
	"time"

	"github.com/joseph-ayodele/finance-intake/constants"
)

// Task is one queued unit of work. Attempt counts the OCR calls already
// made for the current revision.
type Task struct {
	DocID      string
	Priority   constants.Priority
	Attempt    int
	EnqueuedAt time.Time
}

// queue is a two-level FIFO: high priority tasks are served before normal
// ones. A document is queued at most once.
type queue struct {
	mu    sync.Mutex
	tasks []Task
	wake  chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

// push enqueues t. If the document is already queued, a high priority push
// promotes the existing task and anything else is dropped. Reports whether
// the queue changed.
func (q *queue) push(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexOf(t.DocID); i >= 0 {
		if t.Priority != constants.PriorityHigh || q.tasks[i].Priority == constants.PriorityHigh {
			return false
		}
		q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
	}

	if t.Priority == constants.PriorityHigh {
		at := 0
		for at < len(q.tasks) && q.tasks[at].Priority == constants.PriorityHigh {
			at++
		}
		q.tasks = append(q.tasks, Task{})
		copy(q.tasks[at+1:], q.tasks[at:])
		q.tasks[at] = t
	} else {
		q.tasks = append(q.tasks, t)
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *queue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return Task{}, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

func (q *queue) remove(docID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(docID)
	if i < 0 {
		return false
	}
	q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
	return true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *queue) snapshot() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.tasks...)
}

func (q *queue) indexOf(docID string) int {
	for i, t := range q.tasks {
		if t.DocID == docID {
			return i
		}
	}
	return -1
}
