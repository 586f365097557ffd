package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kubev2v/build-orchestrator/internal/artifacts"
	"github.com/kubev2v/build-orchestrator/internal/queue"
	"github.com/kubev2v/build-orchestrator/internal/store"
	"github.com/kubev2v/build-orchestrator/internal/store/model"
	"go.uber.org/zap"
)

type ArtifactService struct {
	store store.Store
	jobs  *JobService
	log   *zap.SugaredLogger
}

func NewArtifactService(s store.Store, jobs *JobService) *ArtifactService {
	return &ArtifactService{
		store: s,
		jobs:  jobs,
		log:   zap.S().Named("artifact_service"),
	}
}

// Record links artifacts to the repository and commit built by job id.
// Only a SUCCEEDED job with a resolved commit hash accepts artifacts. Recording the same file
// twice for a commit keeps the first row. The job is read and the rows written in one transaction.
func (s *ArtifactService) Record(ctx context.Context, id uuid.UUID, files []artifacts.Artifact) (model.ArtifactList, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusSucceeded || job.CommitHash == nil {
		return nil, NewErrArtifactWithoutBuild(id)
	}

	seen := make(map[string]struct{}, len(files))
	rows := make(model.ArtifactList, 0, len(files))
	for _, f := range files {
		if f.FileName == "" || f.Path == "" {
			return nil, NewErrInvalidArtifact("file name and path are required")
		}
		if _, ok := seen[f.FileName]; ok {
			continue
		}
		seen[f.FileName] = struct{}{}
		rows = append(rows, model.Artifact{
			FileName:      f.FileName,
			Path:          f.Path,
			CommitHash:    *job.CommitHash,
			RepositoryURL: job.RepositoryURL,
		})
	}

	stored, err := s.store.Artifact().Create(ctx, rows)
	if err != nil {
		s.log.Errorw("failed to record artifacts", "job_id", id, "error", err)
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Infow("artifacts recorded", "job_id", id, "commit_hash", *job.CommitHash, "count", len(stored))
	return stored, nil
}

// HandleArtifactJob records the artifacts an agent published on the artifact queue.
func (s *ArtifactService) HandleArtifactJob(ctx context.Context, msg queue.ArtifactJob) error {
	job, err := s.jobs.Get(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if job.CommitHash == nil || *job.CommitHash != msg.CommitHash {
		return fmt.Errorf("artifact message for commit %s does not match job %s: %w", msg.CommitHash, msg.JobID, NewErrArtifactWithoutBuild(msg.JobID))
	}

	_, err = s.Record(ctx, msg.JobID, msg.Artifacts)
	return err
}

func (s *ArtifactService) List(ctx context.Context, repositoryURL, commitHash string) (model.ArtifactList, error) {
	filter := store.NewArtifactQueryFilter()
	if repositoryURL != "" {
		filter = filter.ByRepositoryURL(repositoryURL)
	}
	if commitHash != "" {
		filter = filter.ByCommitHash(commitHash)
	}
	return s.store.Artifact().List(ctx, filter)
}
