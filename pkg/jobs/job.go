// Package jobs schedules external tool invocations: one FIFO queue per
// thread, a bounded worker pool across threads, and poll-based status
// reporting. Per-thread serialization is what keeps a thread's working
// directory and session identifier single-writer.
package jobs

import (
	"errors"
	"time"

	"github.com/harun/loom/pkg/invoker"
)

var (
	// ErrJobNotFound is returned when polling an unknown job id
	ErrJobNotFound = errors.New("job not found")

	// ErrCapacityExceeded is returned when a queue depth limit rejects a submission
	ErrCapacityExceeded = errors.New("queue capacity exceeded")

	// ErrManagerClosed is returned when submitting after shutdown
	ErrManagerClosed = errors.New("job manager is closed")

	// ErrInvalidSubmission is returned when a submission is incomplete
	ErrInvalidSubmission = errors.New("invalid submission")
)

// Status is a job lifecycle state.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// job is the manager-internal mutable record. All fields are guarded by
// the manager mutex; once terminal they are never written again.
type job struct {
	id         string
	threadID   string
	workingDir string
	message    string

	// seq orders jobs by arrival for the dispatch scan
	seq uint64

	status    Status
	result    string
	errKind   invoker.Kind
	errDetail string

	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
}

// Snapshot is the immutable, caller-facing view of a job.
type Snapshot struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"thread_id"`
	Message     string       `json:"message"`
	Status      Status       `json:"status"`
	Result      string       `json:"result,omitempty"`
	ErrorKind   invoker.Kind `json:"error_kind,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

func (j *job) snapshot() Snapshot {
	s := Snapshot{
		ID:        j.id,
		ThreadID:  j.threadID,
		Message:   j.message,
		Status:    j.status,
		Result:    j.result,
		ErrorKind: j.errKind,
		Error:     j.errDetail,
		CreatedAt: j.createdAt,
	}
	if j.startedAt != nil {
		t := *j.startedAt
		s.StartedAt = &t
	}
	if j.completedAt != nil {
		t := *j.completedAt
		s.CompletedAt = &t
	}
	return s
}
