package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kezsmith/clipforge/internal/ffmpeg"
	"github.com/kezsmith/clipforge/internal/segment"
)

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// terminal reports whether no further transitions are allowed
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the lifecycle record for one generation request. It is created by
// the Coordinator and mutated only through the Coordinator's update API.
type Job struct {
	ID         string                 `json:"id"`
	ProjectID  string                 `json:"project_id"`
	ProfileID  string                 `json:"profile_id"`
	Status     Status                 `json:"status"`
	Progress   int                    `json:"progress"`
	Message    string                 `json:"message,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ErrorCause string                 `json:"error_cause,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// JobAlreadyTerminalError rejects mutations of completed or failed jobs.
// It indicates stale background work, never a normal condition.
type JobAlreadyTerminalError struct {
	JobID  string
	Status Status
}

func (e *JobAlreadyTerminalError) Error() string {
	return fmt.Sprintf("job %s is already %s", e.JobID, e.Status)
}

// Error cause categories carried on failed jobs.
const (
	CauseInput       = "input"
	CauseTimeout     = "timeout"
	CauseCancelled   = "cancelled"
	CauseConcurrency = "concurrency"
	CauseExternal    = "external"
)

// classifyCause maps an error to its machine-readable category.
func classifyCause(err error) string {
	var decodeErr *ffmpeg.DecodeError
	var emptyErr *ffmpeg.EmptyVideoError
	var metricsErr *segment.InvalidMetricsError
	var terminalErr *JobAlreadyTerminalError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	case errors.Is(err, context.Canceled):
		return CauseCancelled
	case errors.As(err, &decodeErr), errors.As(err, &emptyErr), errors.As(err, &metricsErr):
		return CauseInput
	case errors.As(err, &terminalErr):
		return CauseConcurrency
	default:
		return CauseExternal
	}
}
