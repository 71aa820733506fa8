package jobs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

const (
	defaultRetention = 200
	idPrefix         = "job-"
)

var (
	ErrJobNotFound  = errors.New("delivery job not found")
	ErrNotRetryable = errors.New("only failed jobs can be retried")
)

// Executor performs one delivery. A returned error fails the job.
type Executor func(ctx context.Context, job *DeliveryJob) error

type Option func(*Queue)

// WithRetention caps how many jobs are kept. Only finished jobs are pruned,
// oldest first.
func WithRetention(n int) Option {
	return func(q *Queue) {
		q.retention = n
	}
}

// Queue runs delivery jobs on a fixed set of workers. A job is deduplicated
// against any pending or running job carrying the same key.
type Queue struct {
	workers   int
	retention int
	store     Store

	mu      sync.RWMutex
	jobs    map[string]*DeliveryJob
	active  map[string]string // dedupe key -> job id
	lastID  uint64
	running bool

	ready  chan string
	ctx    context.Context
	cancel context.CancelFunc
	stop   sync.Once
	wg     sync.WaitGroup
}

// NewQueue restores persisted jobs from store (which may be nil). Jobs that
// were running when the process stopped go back to pending.
func NewQueue(workers int, store Store, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		workers:   max(workers, 1),
		retention: defaultRetention,
		store:     store,
		jobs:      make(map[string]*DeliveryJob),
		active:    make(map[string]string),
		ready:     make(chan string, 256),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.restore(context.Background())
	return q
}

// Enqueue adds a pending job. When an unfinished job with the same dedupe
// key exists, that job is returned instead with created=false.
func (q *Queue) Enqueue(req EnqueueRequest) (job *DeliveryJob, created bool) {
	q.mu.Lock()
	if existing := q.activeLocked(req.DedupeKey); existing != nil {
		q.mu.Unlock()
		return existing, false
	}

	q.lastID++
	now := time.Now()
	j := &DeliveryJob{
		ID:        idPrefix + strconv.FormatUint(q.lastID, 10),
		Channel:   req.Channel,
		DedupeKey: req.DedupeKey,
		Payload:   req.Payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.jobs[j.ID] = j
	if j.DedupeKey != "" {
		q.active[j.DedupeKey] = j.ID
	}
	snap := cloneJob(j)
	dispatch := q.running
	q.mu.Unlock()

	q.persist(snap)
	if dispatch {
		q.dispatch(snap.ID)
	}
	return snap, true
}

// Retry puts a failed job back in line. If another job with the same content
// is already pending, that one is returned and the failed job is left alone.
func (q *Queue) Retry(id string) (*DeliveryJob, error) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	switch {
	case !ok:
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	case j.Status != StatusFailed:
		q.mu.Unlock()
		return nil, ErrNotRetryable
	}
	if other := q.activeLocked(j.DedupeKey); other != nil {
		q.mu.Unlock()
		return other, nil
	}
	if j.DedupeKey != "" {
		q.active[j.DedupeKey] = id
	}
	j.Status = StatusPending
	j.Error = ""
	j.UpdatedAt = time.Now()
	snap := cloneJob(j)
	dispatch := q.running
	q.mu.Unlock()

	q.persist(snap)
	if dispatch {
		q.dispatch(id)
	}
	return snap, nil
}

func (q *Queue) Get(id string) (*DeliveryJob, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	return cloneJob(j), ok
}

// List returns all jobs, newest first.
func (q *Queue) List() []*DeliveryJob {
	q.mu.RLock()
	list := make([]*DeliveryJob, 0, len(q.jobs))
	for _, j := range q.jobs {
		list = append(list, cloneJob(j))
	}
	q.mu.RUnlock()

	slices.SortFunc(list, func(a, b *DeliveryJob) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(jobNumber(b.ID), jobNumber(a.ID))
	})
	return list
}

// Counts returns the number of jobs in every status, including empty ones.
func (q *Queue) Counts() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, st := range Statuses {
		counts[st] = 0
	}
	q.mu.RLock()
	for _, j := range q.jobs {
		counts[j.Status]++
	}
	q.mu.RUnlock()
	return counts
}

// Start launches the workers and schedules every pending job. Calling it
// twice has no effect.
func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	var pending []*DeliveryJob
	for _, j := range q.jobs {
		if j.Status == StatusPending {
			pending = append(pending, j)
		}
	}
	slices.SortFunc(pending, func(a, b *DeliveryJob) int {
		return cmp.Compare(jobNumber(a.ID), jobNumber(b.ID))
	})
	q.mu.Unlock()

	for _, j := range pending {
		q.dispatch(j.ID)
	}
	for range q.workers {
		q.wg.Add(1)
		go q.work(exec)
	}
}

// Stop cancels in-flight deliveries and waits for the workers to exit.
func (q *Queue) Stop() {
	q.stop.Do(func() {
		q.cancel()
		q.wg.Wait()
	})
}

func (q *Queue) work(exec Executor) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case id := <-q.ready:
			job, ok := q.claim(id)
			if !ok {
				continue
			}
			err := exec(q.ctx, job)
			if err != nil {
				log.Warn("Delivery %s of %s failed (attempt %d): %v", id, job.Payload.FileName, job.Attempts, err)
			}
			q.finish(id, err)
		}
	}
}

// dispatch hands id to the workers without blocking the caller.
func (q *Queue) dispatch(id string) {
	select {
	case q.ready <- id:
	default:
		go func() {
			select {
			case q.ready <- id:
			case <-q.ctx.Done():
			}
		}()
	}
}

// claim marks a pending job as running and counts the attempt.
func (q *Queue) claim(id string) (*DeliveryJob, bool) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok || j.Status != StatusPending {
		q.mu.Unlock()
		return nil, false
	}
	j.Status = StatusRunning
	j.Attempts++
	j.UpdatedAt = time.Now()
	snap := cloneJob(j)
	q.mu.Unlock()

	q.persist(snap)
	return snap, true
}

// finish records the outcome of a delivery and frees its dedupe key.
func (q *Queue) finish(id string, err error) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	j.Status = StatusSuccess
	j.Error = ""
	if err != nil {
		j.Status = StatusFailed
		j.Error = apperr.Message(err)
	}
	j.UpdatedAt = time.Now()
	q.releaseLocked(j)
	pruned := q.pruneLocked()
	snap := cloneJob(j)
	q.mu.Unlock()

	q.persist(snap)
	q.forget(pruned)
}

func (q *Queue) activeLocked(key string) *DeliveryJob {
	if key == "" {
		return nil
	}
	id, ok := q.active[key]
	if !ok {
		return nil
	}
	j, ok := q.jobs[id]
	if !ok || j.Status.Finished() {
		delete(q.active, key)
		return nil
	}
	return cloneJob(j)
}

func (q *Queue) releaseLocked(j *DeliveryJob) {
	if j.DedupeKey != "" && q.active[j.DedupeKey] == j.ID {
		delete(q.active, j.DedupeKey)
	}
}

// pruneLocked drops the oldest finished jobs above the retention limit.
func (q *Queue) pruneLocked() []string {
	excess := len(q.jobs) - q.retention
	if q.retention <= 0 || excess <= 0 {
		return nil
	}
	var finished []*DeliveryJob
	for _, j := range q.jobs {
		if j.Status.Finished() {
			finished = append(finished, j)
		}
	}
	slices.SortFunc(finished, func(a, b *DeliveryJob) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})

	ids := make([]string, 0, min(excess, len(finished)))
	for _, j := range finished[:min(excess, len(finished))] {
		q.releaseLocked(j)
		delete(q.jobs, j.ID)
		ids = append(ids, j.ID)
	}
	return ids
}

func (q *Queue) forget(ids []string) {
	if q.store == nil {
		return
	}
	ctx := context.Background()
	for _, id := range ids {
		if err := q.store.DeleteJobData(ctx, id); err != nil {
			log.Error("Failed to delete file content of pruned job %s: %v", id, err)
		}
		if err := q.store.DeleteJob(ctx, id); err != nil {
			log.Error("Failed to delete pruned job %s: %v", id, err)
		}
	}
}

func (q *Queue) restore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load delivery jobs: %v", err)
		return
	}

	var requeued []*DeliveryJob
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		j := cloneJob(raw)
		if j.Status == StatusRunning {
			j.Status = StatusPending
			j.UpdatedAt = time.Now()
			requeued = append(requeued, cloneJob(j))
		}
		q.jobs[j.ID] = j
		if !j.Status.Finished() && j.DedupeKey != "" {
			q.active[j.DedupeKey] = j.ID
		}
		q.lastID = max(q.lastID, jobNumber(j.ID))
	}
	q.mu.Unlock()

	if len(requeued) > 0 {
		log.Info("Requeued %d interrupted deliveries", len(requeued))
	}
	for _, j := range requeued {
		q.persist(j)
	}
}

func (q *Queue) persist(j *DeliveryJob) {
	if q.store == nil || j == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), j); err != nil {
		log.Error("Failed to persist delivery job %s: %v", j.ID, err)
	}
}

// jobNumber extracts N from "job-N", or 0 for foreign ids.
func jobNumber(id string) uint64 {
	n, err := strconv.ParseUint(strings.TrimPrefix(id, idPrefix), 10, 64)
	if err != nil || !strings.HasPrefix(id, idPrefix) {
		return 0
	}
	return n
}

func cloneJob(j *DeliveryJob) *DeliveryJob {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}
