package mappers

import (
	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/kubev2v/build-orchestrator/internal/store/model"
)

func JobToApi(job model.Job) api.Job {
	return api.Job{
		Id:            job.ID,
		RepositoryUrl: job.RepositoryURL,
		CommitHash:    job.CommitHash,
		Status:        api.JobStatus(job.Status),
		Script:        job.Script,
		StatusInfo:    job.StatusInfo,
		ExitCode:      job.ExitCode,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}

// JobListToApi never returns nil so an empty list encodes as [].
func JobListToApi(jobs model.JobList) api.JobList {
	out := make(api.JobList, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, JobToApi(j))
	}
	return out
}

func ArtifactListToApi(artifacts model.ArtifactList) api.ArtifactList {
	out := make(api.ArtifactList, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, api.Artifact{
			Id:            a.ID,
			FileName:      a.FileName,
			Path:          a.Path,
			CommitHash:    a.CommitHash,
			RepositoryUrl: a.RepositoryURL,
			CreatedAt:     a.CreatedAt,
		})
	}
	return out
}
