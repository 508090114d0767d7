package analysis

import "context"

// JobState is the lifecycle state reported by the remote job API.
type JobState string

const (
	JobQueued         JobState = "queued"
	JobInProgress     JobState = "in_progress"
	JobCancelling     JobState = "cancelling"
	JobRequiresAction JobState = "requires_action"
	JobCompleted      JobState = "completed"
	JobFailed         JobState = "failed"
	JobCancelled      JobState = "cancelled"
	JobExpired        JobState = "expired"
	JobIncomplete     JobState = "incomplete"
)

// Pending reports whether the job is still running and should be polled.
func (s JobState) Pending() bool {
	switch s {
	case JobQueued, JobInProgress, JobCancelling:
		return true
	}
	return false
}

// Job identifies one submission: the conversation it lives in and the run
// that processes it.
type Job struct {
	ThreadID string
	RunID    string
}

// JobStatus is one poll result.
type JobStatus struct {
	State JobState

	// LastError carries the provider's error message for a failed run.
	LastError string
}

// JobRunner drives the remote asynchronous analysis API.
type JobRunner interface {
	// Start creates a conversation, posts content and starts a run on it.
	Start(ctx context.Context, content string) (Job, error)

	// Restart starts a fresh run on the conversation of a failed job.
	Restart(ctx context.Context, job Job) (Job, error)

	Status(ctx context.Context, job Job) (JobStatus, error)

	// Output returns the text of the final reply produced by the run.
	Output(ctx context.Context, job Job) (string, error)
}
