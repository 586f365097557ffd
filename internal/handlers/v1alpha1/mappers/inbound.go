package mappers

import (
	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/kubev2v/build-orchestrator/internal/artifacts"
	"github.com/kubev2v/build-orchestrator/internal/store/model"
)

func JobUpdateFromApi(update api.JobStatusUpdate) model.JobUpdate {
	return model.JobUpdate{
		Status:     model.JobStatus(update.Status),
		CommitHash: update.CommitHash,
		StatusInfo: update.StatusInfo,
		ExitCode:   update.ExitCode,
	}
}

func ArtifactsFromApi(reports api.ArtifactReportList) []artifacts.Artifact {
	out := make([]artifacts.Artifact, 0, len(reports))
	for _, r := range reports {
		out = append(out, artifacts.Artifact{FileName: r.FileName, Path: r.Path})
	}
	return out
}
