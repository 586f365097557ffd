// Package v1alpha1 holds the JSON types of the build server API.
package v1alpha1

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

// Job is a build request and its current status.
type Job struct {
	Id            uuid.UUID `json:"id"`
	RepositoryUrl string    `json:"repository_url"`
	CommitHash    *string   `json:"commit_hash"`
	Status        JobStatus `json:"status"`
	Script        string    `json:"script,omitempty"`
	StatusInfo    string    `json:"status_info,omitempty"`
	ExitCode      *int      `json:"exit_code,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type JobList []Job

type RegisterJobRequest struct {
	RepositoryUrl string `json:"repository_url" validate:"required,secure_repo_url"`
	Script        string `json:"script,omitempty"`
}

type JobStatusUpdate struct {
	Status     JobStatus `json:"job_status" validate:"required,job_status"`
	CommitHash *string   `json:"commit_hash,omitempty" validate:"omitempty,commit_hash"`
	StatusInfo *string   `json:"status_info,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
}

type ArtifactReport struct {
	FileName string `json:"artifact_file_name" validate:"required,artifact_file_name"`
	Path     string `json:"artifact_path" validate:"required"`
}

type ArtifactReportList []ArtifactReport

type Artifact struct {
	Id            uuid.UUID `json:"id"`
	FileName      string    `json:"artifact_file_name"`
	Path          string    `json:"artifact_path"`
	CommitHash    string    `json:"commit_hash"`
	RepositoryUrl string    `json:"git_repository_url"`
	CreatedAt     time.Time `json:"created_at"`
}

type ArtifactList []Artifact

// ActiveJobs lists the jobs an agent is building, and the ones it gave up reporting on.
type ActiveJobs struct {
	Jobs      []uuid.UUID `json:"jobs"`
	Abandoned []uuid.UUID `json:"abandoned"`
}

type Error struct {
	Message   string  `json:"message"`
	RequestId *string `json:"request_id,omitempty"`
}
