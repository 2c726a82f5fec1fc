package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/discoverer/internal/errors"
	"grimm.is/discoverer/internal/model"
)

func jobWithTasks(ruleID model.RuleID, counts ...int) *model.Job {
	tasks := make([]model.Task, len(counts))
	for i, c := range counts {
		tasks[i] = model.Task{ID: uint64(i + 1), CheckCount: c}
	}
	return &model.Job{RuleID: ruleID, Tasks: tasks}
}

func TestPushPopRoundTrip(t *testing.T) {
	q := New(1000, 1)
	job := jobWithTasks(1, 3, 2)

	require.NoError(t, q.Push(job))
	assert.EqualValues(t, 5, q.PendingChecksCount())

	popped, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, model.RuleID(1), popped.RuleID)

	task, ok := q.PopTask(popped)
	require.True(t, ok)
	assert.Equal(t, 3, task.CheckCount)
	assert.EqualValues(t, 2, q.PendingChecksCount())
}

func TestPushRefusesWhenOverCapacity(t *testing.T) {
	q := New(5, 1)
	job := jobWithTasks(1, 10)

	err := q.Push(job)
	require.Error(t, err)
	assert.Equal(t, errors.KindQueueFull, errors.GetKind(err))

	recorded, ok := q.RuleError(1)
	require.True(t, ok)
	assert.Equal(t, err.Error(), recorded.Error())
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New(1000, 1)
	done := make(chan *model.Job, 1)

	go func() {
		job, ok := q.Pop(context.Background())
		if ok {
			done <- job
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(jobWithTasks(7, 1)))

	select {
	case job := <-done:
		assert.Equal(t, model.RuleID(7), job.RuleID)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestPopReturnsFalseOnStopWhenEmpty(t *testing.T) {
	q := New(1000, 1)
	done := make(chan bool, 1)

	go func() {
		_, ok := q.Pop(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Stop()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Stop")
	}
}

func TestReleaseWorkerRequeuesWaitingJob(t *testing.T) {
	q := New(1000, 1)
	job := jobWithTasks(2, 1)
	job.WorkersUsed = 1
	job.Status = model.JobWaiting

	removed := q.ReleaseWorker(job)
	assert.False(t, removed)
	assert.Equal(t, model.JobQueued, job.Status)

	popped, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, model.RuleID(2), popped.RuleID)
}

func TestReleaseWorkerRemovesDrainedRemovingJob(t *testing.T) {
	q := New(1000, 1)
	job := jobWithTasks(3)
	job.WorkersUsed = 1
	job.Status = model.JobRemoving

	removed := q.ReleaseWorker(job)
	assert.True(t, removed)
}

func TestAcquireReleaseSNMPv3(t *testing.T) {
	q := New(1000, 1)
	ctx := context.Background()

	require.True(t, q.AcquireSNMPv3(ctx))

	acquired := make(chan bool, 1)
	go func() {
		acquired <- q.AcquireSNMPv3(ctx)
	}()

	select {
	case <-acquired:
		t.Fatal("second AcquireSNMPv3 should block while the cap is held")
	case <-time.After(50 * time.Millisecond):
	}

	q.ReleaseSNMPv3()
	select {
	case ok := <-acquired:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("AcquireSNMPv3 did not unblock after ReleaseSNMPv3")
	}
}

func TestPurgeRuleDropsQueuedJob(t *testing.T) {
	q := New(1000, 1)
	require.NoError(t, q.Push(jobWithTasks(9, 4)))
	assert.EqualValues(t, 4, q.PendingChecksCount())

	q.PurgeRule(9)
	assert.EqualValues(t, 0, q.PendingChecksCount())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(context.Background())
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	q.Stop()
	select {
	case ok := <-done:
		assert.False(t, ok, "purged job should not be handed out by Pop")
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Stop")
	}
}

func TestWorkerRegistration(t *testing.T) {
	q := New(1000, 1)
	q.RegisterWorker()
	q.RegisterWorker()
	assert.Equal(t, 2, q.WorkerCount())
	q.DeregisterWorker()
	assert.Equal(t, 1, q.WorkerCount())
}
