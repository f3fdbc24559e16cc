// Package frontier holds the breadth-first work queue for a single crawl
// run: tasks ordered by ascending depth, deduplicated against entries already
// queued or already visited this run, and bounded by the run's new-entity
// budget.
package frontier

import (
	"fmt"
	"sort"
	"sync"
)

type Kind string

const (
	KindUser Kind = "user"
	KindRepo Kind = "repo"
)

// Task is one unit of crawl work: visit an entity at a target depth. Done
// carries the phases the visit has already serviced, so a task deferred on
// a rate limit resumes where it stopped instead of re-fetching.
type Task struct {
	Kind   Kind
	Login  string // user natural key
	RepoID int64  // repo natural key
	Depth  int
	Done   Progress
}

// Progress flags the phases of a visit already completed. The dedup
// identity of a task ignores it.
type Progress struct {
	Profile       bool
	Repos         bool
	Followers     bool
	Starred       bool
	Subscriptions bool
	Contributors  bool
	Languages     bool
}

// Key is the dedup identity of the task's entity.
func (t Task) Key() string {
	if t.Kind == KindUser {
		return fmt.Sprintf("user:%s", t.Login)
	}
	return fmt.Sprintf("repo:%d", t.RepoID)
}

type Queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	buckets     map[int][]Task // depth -> FIFO
	depths      []int          // sorted depths with non-empty buckets
	queued      map[string]bool
	visited     map[string]int // key -> shallowest depth popped this run
	size        int
	outstanding int
	closed      bool
	maxNew      int
	discovered  int
}

func NewQueue(maxNew int) *Queue {
	q := &Queue{
		buckets: make(map[int][]Task),
		queued:  make(map[string]bool),
		visited: make(map[string]int),
		maxNew:  maxNew,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Seed admits a task without touching the new-entity budget. Used by the run
// controller for entities already known to the store.
func (q *Queue) Seed(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.admit(t)
}

// Discover admits a neighbor observed while merging. When the neighbor is
// previously unknown it counts against the new-entity budget; past the budget
// it is dropped so shallow work always completes before more breadth is
// admitted.
func (q *Queue) Discover(t Task, isNew bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if isNew && q.discovered >= q.maxNew {
		return false
	}
	if !q.admit(t) {
		return false
	}
	if isNew {
		q.discovered++
	}
	return true
}

// admit enqueues unless the entity is already queued or was already visited
// at an equal or shallower depth this run. Caller holds the lock.
func (q *Queue) admit(t Task) bool {
	if q.closed {
		return false
	}
	key := t.Key()
	if q.queued[key] {
		return false
	}
	if depth, ok := q.visited[key]; ok && depth <= t.Depth {
		return false
	}

	q.push(t, false)
	q.queued[key] = true
	q.cond.Broadcast()
	return true
}

// PushFront re-admits a deferred task ahead of its depth bucket, bypassing
// dedup: the task was already popped, so the visited record would otherwise
// reject it.
func (q *Queue) PushFront(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.queued[t.Key()] {
		return
	}
	q.push(t, true)
	q.queued[t.Key()] = true
	delete(q.visited, t.Key())
	q.cond.Broadcast()
}

func (q *Queue) push(t Task, front bool) {
	bucket, ok := q.buckets[t.Depth]
	if !ok {
		idx := sort.SearchInts(q.depths, t.Depth)
		q.depths = append(q.depths, 0)
		copy(q.depths[idx+1:], q.depths[idx:])
		q.depths[idx] = t.Depth
	}
	if front {
		q.buckets[t.Depth] = append([]Task{t}, bucket...)
	} else {
		q.buckets[t.Depth] = append(bucket, t)
	}
	q.size++
}

// Pop blocks until a task is available. It returns false once the queue is
// drained with no task still in flight, or after Close: workers can treat a
// false return as "run over".
func (q *Queue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed && q.outstanding > 0 {
		q.cond.Wait()
	}
	if q.size == 0 {
		return Task{}, false
	}

	depth := q.depths[0]
	bucket := q.buckets[depth]
	t := bucket[0]
	if len(bucket) == 1 {
		delete(q.buckets, depth)
		q.depths = q.depths[1:]
	} else {
		q.buckets[depth] = bucket[1:]
	}
	q.size--

	key := t.Key()
	delete(q.queued, key)
	if prev, ok := q.visited[key]; !ok || t.Depth < prev {
		q.visited[key] = t.Depth
	}
	q.outstanding++
	return t, true
}

// Done marks a popped task finished. The final Done on an empty queue wakes
// every blocked worker so they can observe the drain.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outstanding--
	if q.outstanding == 0 && q.size == 0 {
		q.cond.Broadcast()
	}
}

// Close stops admission and wakes blocked workers. Queued tasks are
// discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.size = 0
	q.buckets = make(map[int][]Task)
	q.depths = nil
	q.cond.Broadcast()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Discovered reports how many new entities were admitted this run.
func (q *Queue) Discovered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.discovered
}
