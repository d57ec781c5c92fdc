package model

import "time"

// Job tracking states. Pending jobs are still running on the scheduler,
// Terminal jobs have finished but their log is not yet delivered,
// Submitted jobs are done for good, Unresolved jobs exhausted their
// metadata-lookup retries and are no longer polled.
const (
	JobStatePending    = "pending"
	JobStateTerminal   = "terminal"
	JobStateSubmitted  = "submitted"
	JobStateUnresolved = "unresolved"
)

// Job is the durable tracking record for one scheduler job. The monitor
// writes a row before it treats a submission as acknowledged, so a restart
// never re-submits a job whose log was already delivered.
type Job struct {
	ID              string `gorm:"primaryKey"`
	Kind            string
	BaseID          string
	Name            string
	User            string
	Partition       string
	State           string `gorm:"index"`
	SlurmState      string
	OutputPath      string
	ResolveAttempts int
	SubmittedAt     *time.Time
	UpdatedAt       time.Time
}

type JobList []Job
