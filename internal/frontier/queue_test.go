package frontier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func user(login string, depth int) Task {
	return Task{Kind: KindUser, Login: login, Depth: depth}
}

func repo(id int64, depth int) Task {
	return Task{Kind: KindRepo, RepoID: id, Depth: depth}
}

func drain(q *Queue) []Task {
	var tasks []Task
	for {
		t, ok := q.Pop()
		if !ok {
			return tasks
		}
		tasks = append(tasks, t)
		q.Done()
	}
}

func TestPopOrdersByDepthThenFIFO(t *testing.T) {
	q := NewQueue(100)

	require.True(t, q.Seed(user("deep", 2)))
	require.True(t, q.Seed(user("alice", 0)))
	require.True(t, q.Seed(user("bob", 0)))
	require.True(t, q.Seed(repo(1, 1)))

	tasks := drain(q)
	require.Len(t, tasks, 4)
	assert.Equal(t, "alice", tasks[0].Login)
	assert.Equal(t, "bob", tasks[1].Login)
	assert.Equal(t, int64(1), tasks[2].RepoID)
	assert.Equal(t, "deep", tasks[3].Login)
}

func TestEnqueueIsIdempotent(t *testing.T) {
	q := NewQueue(100)

	assert.True(t, q.Seed(user("alice", 0)))
	assert.False(t, q.Seed(user("alice", 0)))
	assert.False(t, q.Discover(user("alice", 1), true))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 0, q.Discovered())
}

func TestVisitedAtShallowerDepthIsNotReenqueued(t *testing.T) {
	q := NewQueue(100)

	require.True(t, q.Seed(user("alice", 0)))
	task, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, "alice", task.Login)

	// Fan-in: another task observes alice at depth 2 while she is in flight
	assert.False(t, q.Discover(user("alice", 2), false))
	q.Done()
	assert.False(t, q.Discover(user("alice", 2), false))
}

func TestNewEntityBudgetDropsExcessDiscoveries(t *testing.T) {
	q := NewQueue(2)

	assert.True(t, q.Discover(user("a", 1), true))
	assert.True(t, q.Discover(user("b", 1), true))
	assert.False(t, q.Discover(user("c", 1), true))
	assert.Equal(t, 2, q.Discovered())

	// Known-but-stale entities are not budget-counted
	assert.True(t, q.Discover(user("known", 1), false))
	assert.Equal(t, 2, q.Discovered())
}

func TestPushFrontReadmitsDeferredTask(t *testing.T) {
	q := NewQueue(100)

	require.True(t, q.Seed(user("alice", 0)))
	require.True(t, q.Seed(user("bob", 0)))

	task, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, "alice", task.Login)

	// Rate limited: alice goes back to the front of her depth bucket
	q.PushFront(task)
	q.Done()

	tasks := drain(q)
	require.Len(t, tasks, 2)
	assert.Equal(t, "alice", tasks[0].Login)
	assert.Equal(t, "bob", tasks[1].Login)
}

func TestPushFrontIgnoresStillQueuedTask(t *testing.T) {
	q := NewQueue(100)
	require.True(t, q.Seed(user("alice", 0)))

	// Not in flight, still queued: re-admission must not duplicate it
	q.PushFront(user("alice", 0))
	assert.Equal(t, 1, q.Len())

	tasks := drain(q)
	require.Len(t, tasks, 1)
	assert.Equal(t, "alice", tasks[0].Login)
}

func TestPopReturnsFalseWhenDrained(t *testing.T) {
	q := NewQueue(100)
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestCloseDiscardsQueuedWork(t *testing.T) {
	q := NewQueue(100)
	require.True(t, q.Seed(user("alice", 0)))
	q.Close()

	_, ok := q.Pop()
	assert.False(t, ok)
	assert.False(t, q.Seed(user("bob", 0)))
}
