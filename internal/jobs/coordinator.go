package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kezsmith/clipforge/internal/store"
)

// Coordinator owns per-project mutual exclusion, job lifecycle state and the
// two-tier persistence behind it. It is the only entry point the caller-facing
// layer is expected to use.
type Coordinator struct {
	logger zerolog.Logger
	store  store.Store

	lockMu sync.Mutex
	locks  map[string]chan struct{}

	// jobMu serializes read-modify-write job mutations so concurrent
	// progress updates from variant tasks cannot race.
	jobMu sync.Mutex
}

// NewCoordinator creates a coordinator backed by the given store
func NewCoordinator(logger zerolog.Logger, s store.Store) *Coordinator {
	return &Coordinator{
		logger: logger.With().Str("component", "job-coordinator").Logger(),
		store:  s,
		locks:  make(map[string]chan struct{}),
	}
}

// ReleaseFunc releases a held project lock. Safe to call exactly once.
type ReleaseFunc func()

// AcquireProjectLock suspends until no other generation holds the lock for
// projectID. Acquisition honours context cancellation and deadlines.
func (c *Coordinator) AcquireProjectLock(ctx context.Context, projectID string) (ReleaseFunc, error) {
	c.lockMu.Lock()
	sem, ok := c.locks[projectID]
	if !ok {
		sem = make(chan struct{}, 1)
		c.locks[projectID] = sem
	}
	c.lockMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("project lock %s: %w", projectID, ctx.Err())
	}
}

// CreateJob creates and persists a pending job record
func (c *Coordinator) CreateJob(projectID, profileID string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ProfileID: profileID,
		Status:    StatusPending,
		Data:      make(map[string]interface{}),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.putJob(job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	c.logger.Info().
		Str("job", job.ID).
		Str("project", projectID).
		Msg("job created")

	return job, nil
}

// GetJob loads a job record from the store
func (c *Coordinator) GetJob(jobID string) (*Job, error) {
	doc, err := c.store.Get(jobKey(jobID))
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(doc, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}
	return &job, nil
}

// ListJobs returns every job for a project
func (c *Coordinator) ListJobs(projectID string) ([]*Job, error) {
	docs, err := c.store.Query(store.Filter{Path: "project_id", Value: projectID})
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(docs))
	for _, doc := range docs {
		var job Job
		if err := json.Unmarshal(doc, &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// UpdateProgress records pipeline progress while a job is processing. Calls
// after a terminal state are rejected with JobAlreadyTerminalError.
func (c *Coordinator) UpdateProgress(jobID string, percent int, message string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	return c.setJobFields(jobID, map[string]interface{}{
		"progress": percent,
		"message":  message,
	})
}

// SetJobData attaches a payload entry (e.g. a warning list) to the job record
func (c *Coordinator) SetJobData(jobID, key string, value interface{}) error {
	return c.setJobFields(jobID, map[string]interface{}{
		"data." + key: value,
	})
}

// WorkFunc is the job body executed under RunUnderJob.
type WorkFunc func(ctx context.Context) error

// RunUnderJob acquires the project lock, transitions the job to processing,
// runs work, and records the terminal state. The lock is released on every
// exit path: normal return, error, panic or cancellation.
func (c *Coordinator) RunUnderJob(ctx context.Context, job *Job, work WorkFunc) error {
	release, err := c.AcquireProjectLock(ctx, job.ProjectID)
	if err != nil {
		c.failJob(job.ID, err)
		return err
	}
	defer release()

	if err := c.transition(job.ID, StatusProcessing); err != nil {
		return err
	}

	err = c.runProtected(ctx, work)

	// The context may have expired after work returned; a timeout still
	// wins over a success so callers see the enforced deadline.
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	if err != nil {
		c.failJob(job.ID, err)
		return err
	}

	return c.completeJob(job.ID)
}

// runProtected converts panics inside the work body into errors.
func (c *Coordinator) runProtected(ctx context.Context, work WorkFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return work(ctx)
}

func (c *Coordinator) transition(jobID string, status Status) error {
	return c.setJobFields(jobID, map[string]interface{}{
		"status": status,
	})
}

func (c *Coordinator) completeJob(jobID string) error {
	c.logger.Info().Str("job", jobID).Msg("job completed")
	return c.setJobFields(jobID, map[string]interface{}{
		"status":   StatusCompleted,
		"progress": 100,
	})
}

func (c *Coordinator) failJob(jobID string, cause error) {
	c.logger.Error().Str("job", jobID).Err(cause).Msg("job failed")
	if err := c.setJobFields(jobID, map[string]interface{}{
		"status":      StatusFailed,
		"error":       cause.Error(),
		"error_cause": classifyCause(cause),
	}); err != nil {
		c.logger.Error().Str("job", jobID).Err(err).Msg("failed to record job failure")
	}
}

// setJobFields applies field-level updates to one job record, serialized so
// concurrent progress updates cannot race. Terminal jobs reject the mutation.
func (c *Coordinator) setJobFields(jobID string, fields map[string]interface{}) error {
	c.jobMu.Lock()
	defer c.jobMu.Unlock()

	job, err := c.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Status.terminal() {
		terr := &JobAlreadyTerminalError{JobID: jobID, Status: job.Status}
		c.logger.Error().Str("job", jobID).Str("status", string(job.Status)).Msg("mutation of terminal job rejected")
		return terr
	}

	key := jobKey(jobID)
	for path, value := range fields {
		if err := c.store.SetField(key, path, value); err != nil {
			return err
		}
	}
	return c.store.SetField(key, "updated_at", time.Now().UTC())
}

func (c *Coordinator) putJob(job *Job) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.store.Put(jobKey(job.ID), doc)
}

func jobKey(jobID string) string {
	return "job_" + jobID
}
