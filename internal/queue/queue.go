// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package queue implements the discovery engine's bounded, shared task
// queue: a FIFO of Jobs each holding its own Task queue, round-robined
// across rules by re-appending a Job to the tail after a worker pops
// one task from it, with a capacity cap on total pending check count
// and a separate semaphore capping concurrent SNMPv3 tasks engine-wide.
// Grounded in the teacher's mutex+condition-variable idiom
// (internal/services/ha/service.go's sync.Mutex/sync.WaitGroup pattern)
// rather than a channel-based queue, since the spec's pop/wait/notify
// contract maps directly onto sync.Cond.
package queue

import (
	"context"
	"sync"

	"grimm.is/discoverer/internal/errors"
	"grimm.is/discoverer/internal/model"
)

// Queue is the engine's single shared job queue. All state it protects
// (jobs, pendingChecksCount, jobIndex, snmpv3 allowance, per-rule
// errors) lives behind one mutex, matching the "queueLock" design note.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	jobs     []*model.Job
	jobIndex map[model.RuleID]*model.Job

	pendingChecksCount uint64
	maxSize            uint64

	snmpv3Allowed int
	snmpv3Max     int

	workerCount int
	stopped     bool

	ruleErrors map[model.RuleID]error
}

// New builds a Queue with the given admission cap and SNMPv3 concurrency
// cap (both EngineConfig fields, not compile constants).
func New(maxSize uint64, snmpv3Max int) *Queue {
	if snmpv3Max <= 0 {
		snmpv3Max = 1
	}
	q := &Queue{
		jobIndex:   make(map[model.RuleID]*model.Job),
		maxSize:    maxSize,
		snmpv3Max:  snmpv3Max,
		ruleErrors: make(map[model.RuleID]error),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// totalCheckCount sums checkCount across every task still held by job.
func totalCheckCount(job *model.Job) uint64 {
	var n uint64
	for _, t := range job.Tasks {
		n += uint64(t.CheckCount)
	}
	return n
}

// Push admits a new job at the queue tail, marking it Queued and
// signaling one waiter. It refuses admission — recording a transient
// per-rule queue-full error instead of blocking — when doing so would
// push pendingChecksCount past maxSize.
func (q *Queue) Push(job *model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	need := totalCheckCount(job)
	if q.maxSize > 0 && q.pendingChecksCount+need > q.maxSize {
		err := errors.Errorf(errors.KindQueueFull, "queue: admitting rule %d would exceed max size %d", job.RuleID, q.maxSize)
		q.ruleErrors[job.RuleID] = err
		return err
	}

	q.appendTail(job)
	q.pendingChecksCount += need
	q.cond.Signal()
	return nil
}

// requeueTail re-appends a job already admitted once (the round-robin
// re-push after a worker pops one task from it). It bypasses the
// capacity check: admission control only applies when new work enters
// the queue, not when in-flight work is rotated to the tail.
func (q *Queue) requeueTail(job *model.Job) {
	job.Status = model.JobQueued
	q.appendTail(job)
	q.cond.Signal()
}

func (q *Queue) appendTail(job *model.Job) {
	job.Status = model.JobQueued
	q.jobs = append(q.jobs, job)
	q.jobIndex[job.RuleID] = job
}

// Pop blocks until a Queued job is available or the queue is stopped,
// then removes and returns it from the head. ok is false when there is
// nothing to hand out and either the queue was stopped or ctx is done
// (ctx is checked each time the wait wakes).
func (q *Queue) Pop(ctx context.Context) (*model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.jobs) == 0 && !q.stopped {
		if ctx != nil && ctx.Err() != nil {
			return nil, false
		}
		q.cond.Wait()
	}
	if len(q.jobs) == 0 {
		return nil, false
	}

	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	delete(q.jobIndex, job.RuleID)
	return job, true
}

// PopTask pops the next task from job and decrements pendingChecksCount
// by its checkCount: once a task leaves the job's pending queue it no
// longer counts against admission capacity, whether or not a worker has
// finished running it yet.
func (q *Queue) PopTask(job *model.Job) (model.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := job.PopTask()
	if !ok {
		return model.Task{}, false
	}
	if n := uint64(task.CheckCount); n <= q.pendingChecksCount {
		q.pendingChecksCount -= n
	} else {
		q.pendingChecksCount = 0
	}
	return task, true
}

// RequeueIfMore re-admits job to the tail when it still has tasks left,
// and does nothing otherwise. The worker-loop fast path taken right
// after popTask is Readmit, not this method.
func (q *Queue) RequeueIfMore(job *model.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.HasMoreTasks() {
		q.requeueTail(job)
	}
}

// Readmit unconditionally re-appends job to the tail: the worker-loop
// fast path taken right after popTask when workersMax allows another
// concurrent task on the same job ("queue.push(job); queue.notify()").
func (q *Queue) Readmit(job *model.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requeueTail(job)
}

// MarkWaiting flags job as Waiting (every assigned worker busy) without
// re-admitting it to the queue.
func (q *Queue) MarkWaiting(job *model.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Status = model.JobWaiting
}

// ReleaseWorker runs the post-probe bookkeeping step of the worker loop:
// decrement workersUsed, then either requeue a Waiting job (more work
// arrived while this worker was busy) or finish removing a job that was
// marked Removing once its last worker returns.
func (q *Queue) ReleaseWorker(job *model.Job) (removed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.WorkersUsed--
	switch job.Status {
	case model.JobWaiting:
		q.requeueTail(job)
	case model.JobRemoving:
		if job.WorkersUsed == 0 {
			delete(q.jobIndex, job.RuleID)
			return true
		}
	}
	return false
}

// RemoveIfDrained marks job Removing (if it still has workers attached)
// or reports that it can be discarded immediately (no tasks, no
// in-flight workers) — the "task is None" branch of the worker loop.
func (q *Queue) RemoveIfDrained(job *model.Job) (removed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.WorkersUsed == 0 {
		delete(q.jobIndex, job.RuleID)
		return true
	}
	job.Status = model.JobRemoving
	return false
}

// PendingChecksCount reports the current admission-capacity usage.
func (q *Queue) PendingChecksCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pendingChecksCount
}

// JobCount reports the number of jobs currently held in the queue.
func (q *Queue) JobCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// AcquireSNMPv3 blocks until an SNMPv3 slot is free or ctx is done,
// reporting whether it acquired one. SNMPv3 USM session state is
// expensive to reinitialize, so at most snmpv3Max such tasks run
// engine-wide regardless of worker count.
func (q *Queue) AcquireSNMPv3(ctx context.Context) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.snmpv3Allowed >= q.snmpv3Max && !q.stopped {
		if ctx != nil && ctx.Err() != nil {
			return false
		}
		q.cond.Wait()
	}
	if q.stopped {
		return false
	}
	q.snmpv3Allowed++
	return true
}

// ReleaseSNMPv3 frees one SNMPv3 slot and wakes any waiter.
func (q *Queue) ReleaseSNMPv3() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.snmpv3Allowed > 0 {
		q.snmpv3Allowed--
	}
	q.cond.Signal()
}

// RegisterWorker/DeregisterWorker track how many workers are attached,
// as reported by WorkerCount.
func (q *Queue) RegisterWorker() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.workerCount++
}

func (q *Queue) DeregisterWorker() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.workerCount--
}

// WorkerCount reports how many workers are currently registered.
func (q *Queue) WorkerCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.workerCount
}

// Notify wakes a single waiter.
func (q *Queue) Notify() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cond.Signal()
}

// NotifyAll wakes every waiter, used on Stop to release all workers at
// their next loop head.
func (q *Queue) NotifyAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cond.Broadcast()
}

// Wait blocks on the queue's condition variable until predicate()
// returns true or the queue stops, re-checking predicate under the lock
// each time it wakes.
func (q *Queue) Wait(predicate func() bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for !predicate() && !q.stopped {
		q.cond.Wait()
	}
}

// Stop marks the queue stopped and wakes every blocked caller; in-flight
// probes still run to completion, so shutdown is timeout- not
// immediately-bounded.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// RuleError returns the last recorded transient error for ruleID, if
// any (e.g. a queue-full admission refusal), and clears it.
func (q *Queue) RuleError(ruleID model.RuleID) (error, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	err, ok := q.ruleErrors[ruleID]
	if ok {
		delete(q.ruleErrors, ruleID)
	}
	return err, ok
}

// PurgeRule drops any queued job for ruleID outright — used when the
// scheduler detects a revision change and must discard stale work
// (spec §4.6's revision-diff purge, §8 property 5).
func (q *Queue) PurgeRule(ruleID model.RuleID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobIndex[ruleID]; ok {
		q.pendingChecksCount -= minU64(q.pendingChecksCount, totalCheckCount(job))
		delete(q.jobIndex, ruleID)
		for i, j := range q.jobs {
			if j.RuleID == ruleID {
				q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
				break
			}
		}
	}
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
