// Package jobs runs long operations in the background and tracks their
// progress under a generated ID. Only the goroutine running a job writes
// its record; readers always receive copies.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the job will not change any more.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind names what a job does.
type Kind string

const (
	KindConvert      Kind = "convert"
	KindResponseTime Kind = "response_time"
)

// Job is a snapshot of a job record.
type Job struct {
	ID        string    `json:"task_id"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Result    any       `json:"result"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressFunc reports a percentage in [0, 100] and a step description.
type ProgressFunc func(progress int, message string)

// Func is the body of a job. Its result becomes Job.Result on success.
type Func func(progress ProgressFunc) (any, error)

// Store persists job records. Implementations must be safe for
// concurrent use.
type Store interface {
	SaveJob(ctx context.Context, job Job) error
	SaveJobError(ctx context.Context, jobID, message string) error
}

// Registry owns the job records.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	wg       sync.WaitGroup
	store    Store
	observer func(Job)
	now      func() time.Time
	logger   log.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore persists every status transition to s.
func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithObserver calls fn with the final snapshot of every finished job.
func WithObserver(fn func(Job)) Option {
	return func(r *Registry) { r.observer = fn }
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(options ...Option) *Registry {
	r := &Registry{
		jobs:   make(map[string]*Job),
		now:    time.Now,
		logger: log.GetLoggerWithName("jobs"),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Submit registers a pending job and starts fn in its own goroutine.
func (r *Registry) Submit(kind Kind, fn Func) Job {
	now := r.now()
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusPending,
		Message:   "Waiting to start",
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	snapshot := *job
	r.mu.Unlock()

	r.persist(snapshot)
	r.logger.Info("Job submitted", log.JobIDKey, job.ID, log.JobKindKey, string(kind))

	r.wg.Add(1)
	go r.run(job.ID, fn)
	return snapshot
}

func (r *Registry) run(id string, fn Func) {
	defer r.wg.Done()
	logger := r.logger.With(log.JobIDKey, id)

	r.persist(r.update(id, func(j *Job) {
		j.Status = StatusProcessing
		j.Message = "Processing"
	}))

	var result any
	err := errors.SafeExecute("job "+id, func() error {
		var err error
		result, err = fn(func(progress int, message string) {
			r.update(id, func(j *Job) {
				j.Progress = clamp(progress)
				if message != "" {
					j.Message = message
				}
			})
		})
		return err
	})

	var final Job
	if err != nil {
		final = r.update(id, func(j *Job) {
			j.Status = StatusFailed
			j.Message = err.Error()
		})
		logger.Error("Job failed", err, log.JobStatusKey, string(StatusFailed))
		if r.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if serr := r.store.SaveJobError(ctx, id, err.Error()); serr != nil {
				logger.Warn("Job error not persisted", serr)
			}
			cancel()
		}
	} else {
		final = r.update(id, func(j *Job) {
			j.Status = StatusCompleted
			j.Progress = 100
			j.Message = "Completed successfully"
			j.Result = result
		})
		logger.Info("Job completed", log.JobStatusKey, string(StatusCompleted))
	}
	r.persist(final)
	if r.observer != nil {
		r.observer(final)
	}
}

// update applies fn to the record under the write lock and returns a copy.
func (r *Registry) update(id string, fn func(*Job)) Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	fn(j)
	j.UpdatedAt = r.now()
	return *j
}

func (r *Registry) persist(job Job) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.SaveJob(ctx, job); err != nil {
		r.logger.Warn("Job not persisted", err, log.JobIDKey, job.ID)
	}
}

// Get returns a snapshot of job id, or an error wrapping
// errors.ErrJobNotFound.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, errors.Wrapf(errors.ErrJobNotFound, "task %s", id)
	}
	return *j, nil
}

// List returns snapshots of every job, oldest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	r.mu.RUnlock()
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// Wait blocks until every submitted job has finished.
func (r *Registry) Wait() {
	r.wg.Wait()
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
