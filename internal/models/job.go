package models

import "time"

// JobState is the lifecycle state of a background job: queued, running,
// succeeded, failed, timed out, or cancelled. TimedOut and Cancelled are
// kept distinct from Failed so the dispatch fabric can report deadline and
// shutdown outcomes without overloading it.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobTimedOut  JobState = "timed_out"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the state will never transition further.
func (s JobState) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobTimedOut, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is a background turn submitted to the Job Manager.
type Job struct {
	ID          string
	SessionID   string
	Recipient   string
	Prompt      string
	State       JobState
	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Output      string
	Error       string
}

// CompletionKind mirrors a terminal Job state for the purposes of the
// job-completion event published to transports.
type CompletionKind string

const (
	CompletionSucceeded CompletionKind = "succeeded"
	CompletionFailed    CompletionKind = "failed"
	CompletionTimedOut  CompletionKind = "timed_out"
)

// JobCompletionEvent is published once a background job reaches a terminal
// state; transports drain these to notify the recipient.
type JobCompletionEvent struct {
	JobID        string
	Recipient    string
	Kind         CompletionKind
	Output       string
	Error        string
	TimeoutSecs  int
}
