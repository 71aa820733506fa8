package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]*DeliveryJob
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: make(map[string]*DeliveryJob)}
}

func (m *memoryStore) LoadJobs(_ context.Context) ([]*DeliveryJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*DeliveryJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		ret = append(ret, cloneJob(j))
	}
	return ret, nil
}

func (m *memoryStore) UpsertJob(_ context.Context, job *DeliveryJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memoryStore) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

func (m *memoryStore) DeleteJobData(_ context.Context, _ string) error {
	return nil
}

func (m *memoryStore) get(id string) (*DeliveryJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return cloneJob(j), ok
}

func TestQueue_Worker_TransitionsStatus(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *DeliveryJob) error { return nil })
	defer q.Stop()

	job, created := q.Enqueue(EnqueueRequest{
		Channel:   "telegram",
		DedupeKey: "hi|abc",
		Payload:   Payload{LanguageCode: "hi", FileName: "hi.yml", EntryCount: 2, Content: "a: \"b\""},
	})
	require.True(t, created)

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSuccess && got.Attempts == 1
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_Enqueue_DedupesPendingJobs(t *testing.T) {
	q := NewQueue(1, nil)

	first, created := q.Enqueue(EnqueueRequest{Channel: "telegram", DedupeKey: "same"})
	require.True(t, created)

	second, created := q.Enqueue(EnqueueRequest{Channel: "telegram", DedupeKey: "same"})
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, q.List(), 1)
}

func TestQueue_Retry_AfterFailure(t *testing.T) {
	q := NewQueue(1, nil)

	var attempts atomic.Int32
	q.Start(func(_ context.Context, _ *DeliveryJob) error {
		if attempts.Add(1) == 1 {
			return assert.AnError
		}
		return nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Channel: "telegram", DedupeKey: "retry-key"})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	failed, _ := q.Get(job.ID)
	assert.Equal(t, assert.AnError.Error(), failed.Error)

	retried, err := q.Retry(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, retried.ID)

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSuccess && got.Attempts == 2
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_Retry_RejectsNonFailed(t *testing.T) {
	q := NewQueue(1, nil)
	job, _ := q.Enqueue(EnqueueRequest{Channel: "telegram"})

	_, err := q.Retry(job.ID)
	assert.ErrorIs(t, err, ErrNotRetryable)

	_, err = q.Retry("job-404")
	assert.Error(t, err)
}

func TestQueue_RecoversRunningJobsFromStore(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.jobs["job-7"] = &DeliveryJob{
		ID:        "job-7",
		Channel:   "telegram",
		DedupeKey: "es|x",
		Status:    StatusRunning,
		Payload:   Payload{LanguageCode: "es", FileName: "es.yml"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	q := NewQueue(1, store)

	got, ok := q.Get("job-7")
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)

	next, _ := q.Enqueue(EnqueueRequest{Channel: "telegram", DedupeKey: "other"})
	assert.Equal(t, "job-8", next.ID)

	q.Start(func(_ context.Context, _ *DeliveryJob) error { return nil })
	defer q.Stop()

	require.Eventually(t, func() bool {
		persisted, ok := store.get("job-7")
		return ok && persisted.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_List_NewestFirst(t *testing.T) {
	q := NewQueue(1, nil)
	a, _ := q.Enqueue(EnqueueRequest{DedupeKey: "a"})
	b, _ := q.Enqueue(EnqueueRequest{DedupeKey: "b"})

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
}

func TestQueue_Retry_UnknownJob(t *testing.T) {
	q := NewQueue(1, nil)
	_, err := q.Retry("job-1")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueue_Counts(t *testing.T) {
	q := NewQueue(1, nil)
	q.Enqueue(EnqueueRequest{DedupeKey: "a"})
	q.Enqueue(EnqueueRequest{DedupeKey: "b"})

	counts := q.Counts()
	assert.Equal(t, 2, counts[StatusPending])
	assert.Len(t, counts, len(Statuses))
	assert.Zero(t, counts[StatusFailed])
}

func TestQueue_WithRetention_PrunesFinishedJobs(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(1, store, WithRetention(2))
	q.Start(func(_ context.Context, _ *DeliveryJob) error { return nil })
	defer q.Stop()

	for _, key := range []string{"a", "b", "c"} {
		job, _ := q.Enqueue(EnqueueRequest{DedupeKey: key})
		require.Eventually(t, func() bool {
			got, ok := q.Get(job.ID)
			return ok && got.Status == StatusSuccess
		}, time.Second, 10*time.Millisecond)
	}

	assert.Len(t, q.List(), 2)
	_, ok := q.Get("job-1")
	assert.False(t, ok, "oldest finished job is pruned")
	require.Eventually(t, func() bool {
		_, ok := store.get("job-1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
