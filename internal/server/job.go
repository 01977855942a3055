package server

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cwbudde/hypertune/space"
	"github.com/cwbudde/hypertune/trial"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobConfig describes a search job submitted over the API. Objective
// names a built-in benchmark; Space optionally overrides its
// conventional domain with a raw space literal.
type JobConfig struct {
	Objective  string         `json:"objective"`
	Algorithm  string         `json:"algorithm"`
	Backend    string         `json:"backend,omitempty"`
	Space      map[string]any `json:"space,omitempty"`
	Dimensions int            `json:"dimensions,omitempty"`
	Iterations int            `json:"iterations,omitempty"`
	Seed       int64          `json:"seed,omitempty"`
	Population int            `json:"population,omitempty"`
}

// Job represents one search job
type Job struct {
	ID         string         `json:"id"`
	State      JobState       `json:"state"`
	Config     JobConfig      `json:"config"`
	BestParams map[string]any `json:"bestParams,omitempty"`
	BestValue  float64        `json:"bestValue"`
	Trials     int            `json:"trials"`
	StartTime  time.Time      `json:"startTime"`
	EndTime    *time.Time     `json:"endTime,omitempty"`
	Error      string         `json:"error,omitempty"`

	space  *space.Space
	trials []trial.Trial
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]context.CancelFunc
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a new job with the given configuration and
// returns its snapshot plus the context the worker should run under.
// CancelJob aborts that context.
func (jm *JobManager) CreateJob(config JobConfig) (Job, context.Context) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	jm.jobs[job.ID] = job
	jm.cancels[job.ID] = cancel
	return *job, ctx
}

// GetJob retrieves a snapshot of a job by ID. Handlers encode the copy
// outside the lock while the worker keeps mutating the live job.
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

// ListJobs returns snapshots of all jobs, most recent first.
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, *job)
	}
	slices.SortFunc(jobs, func(a, b Job) int {
		return b.StartTime.Compare(a.StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// CancelJob aborts a pending or running job. Terminal jobs are left
// untouched.
func (jm *JobManager) CancelJob(id string) (Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, fmt.Errorf("job not found: %s", id)
	}
	if job.State != StatePending && job.State != StateRunning {
		return *job, fmt.Errorf("job %s already %s", id, job.State)
	}
	if cancel, ok := jm.cancels[id]; ok {
		cancel()
	}
	return *job, nil
}

// JobTrials returns a copy of the trials recorded for a job so far.
func (jm *JobManager) JobTrials(id string) ([]trial.Trial, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return slices.Clone(job.trials), true
}

// JobSpace returns the resolved search space of a job, once the worker
// has built it.
func (jm *JobManager) JobSpace(id string) (*space.Space, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists || job.space == nil {
		return nil, false
	}
	return job.space, true
}

// GetRunningJobs returns snapshots of all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, *job)
		}
	}
	return runningJobs
}
