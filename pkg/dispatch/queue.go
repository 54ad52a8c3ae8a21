package dispatch

import "sync"

// Queue is a Poster that holds tasks until Drain is called on the owning goroutine.
// It lets a caller step loop-confined components deterministically.
type Queue struct {
	mu    sync.Mutex
	tasks []func()
}

// Post enqueues fn. It never rejects work.
func (q *Queue) Post(fn func()) bool {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
	return true
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Drain runs queued tasks, including ones posted while draining, until the queue is empty.
// It returns the number of tasks executed.
func (q *Queue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return n
		}
		fn := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		fn()
		n++
	}
}
