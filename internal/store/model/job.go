package model

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

func (s JobStatus) String() string {
	return string(s)
}

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusSucceeded, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal is true for the statuses a job never leaves.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// IsActive is true while a job is waiting for or occupying a worker.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// transitions lists, for every target status, the statuses it can be reached from.
var transitions = map[JobStatus][]JobStatus{
	JobStatusRunning:   {JobStatusQueued},
	JobStatusSucceeded: {JobStatusRunning},
	JobStatusFailed:    {JobStatusRunning},
}

// AllowedFrom returns the statuses from which a job can move to s.
func (s JobStatus) AllowedFrom() []JobStatus {
	return transitions[s]
}

// CanTransition reports whether a job in status from can move to status to.
func CanTransition(from, to JobStatus) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

type Job struct {
	ID            uuid.UUID `gorm:"primaryKey;column:id;type:TEXT;"`
	RepositoryURL string    `gorm:"column:repository_url;not null"`
	CommitHash    *string   `gorm:"column:commit_hash"`
	Status        JobStatus `gorm:"column:status;not null;default:QUEUED"`
	Script        string    `gorm:"column:script"`
	StatusInfo    string    `gorm:"column:status_info"`
	ExitCode      *int      `gorm:"column:exit_code"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

func (Job) TableName() string {
	return "jobs"
}

type JobList []Job

// NewJob returns a QUEUED job for url with a fresh id.
func NewJob(url string, commitHash *string, script string) Job {
	return Job{
		ID:            uuid.New(),
		RepositoryURL: url,
		CommitHash:    commitHash,
		Status:        JobStatusQueued,
		Script:        script,
	}
}

// JobUpdate carries the fields a status report may change.
type JobUpdate struct {
	Status     JobStatus
	CommitHash *string
	StatusInfo *string
	ExitCode   *int
}
