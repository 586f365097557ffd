package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kubev2v/build-orchestrator/internal/builder"
	"github.com/kubev2v/build-orchestrator/internal/queue"
	"github.com/kubev2v/build-orchestrator/internal/store"
	"github.com/kubev2v/build-orchestrator/internal/store/model"
	"github.com/kubev2v/build-orchestrator/pkg/metrics"
	"github.com/kubev2v/build-orchestrator/pkg/repourl"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Publisher puts a message on a queue. *queue.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

type JobService struct {
	store     store.Store
	publisher Publisher
	queue     string
	listLimit int
	log       *zap.SugaredLogger
}

func NewJobService(s store.Store, publisher Publisher, queueName string, listLimit int) *JobService {
	if listLimit <= 0 {
		listLimit = DefaultListLimit
	}
	return &JobService{
		store:     s,
		publisher: publisher,
		queue:     queueName,
		listLimit: min(listLimit, MaxListLimit),
		log:       zap.S().Named("job_service"),
	}
}

// ValidateRepositoryURL accepts only non empty https urls with a host and a repository name.
func ValidateRepositoryURL(url string) error {
	repo, err := repourl.Parse(url)
	if err != nil {
		return NewErrInvalidRepositoryURL(url, err)
	}
	if !repo.IsSecure() {
		return NewErrInvalidRepositoryURL(url, errors.New("only https urls are accepted"))
	}
	return nil
}

// Register creates a QUEUED job and publishes it on the build queue.
// The row is committed before the message goes out so the agent never reports on a job that
// does not exist yet. When the publish fails the row is removed and the error returned.
func (s *JobService) Register(ctx context.Context, url, script, trigger string) (*model.Job, error) {
	if err := ValidateRepositoryURL(url); err != nil {
		return nil, err
	}

	job, err := s.store.Job().Create(ctx, model.NewJob(url, nil, script))
	if err != nil {
		s.log.Errorw("failed to create job", "repository_url", url, "error", err)
		return nil, err
	}
	log := s.log.With("job_id", job.ID, "repository_url", url, "trigger", trigger)

	body, err := queue.NewBuildMessage(queue.BuildJob{
		JobID:         job.ID,
		RepositoryURL: job.RepositoryURL,
		CommitHash:    job.CommitHash,
		Script:        job.Script,
	}).Encode()
	if err == nil {
		err = s.publisher.Publish(ctx, s.queue, body)
	}
	if err != nil {
		log.Errorw("failed to publish job, removing it", "queue", s.queue, "error", err)
		if delErr := s.store.Job().Delete(context.WithoutCancel(ctx), job.ID); delErr != nil {
			log.Errorw("failed to remove unpublished job", "error", delErr)
		}
		return nil, fmt.Errorf("publishing job %s: %w", job.ID, err)
	}

	metrics.IncreaseJobsRegisteredMetric(trigger)
	log.Infow("job registered", "queue", s.queue)
	return job, nil
}

func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

// List returns the most recently created jobs, newest first.
// A non positive limit means the configured default; limits above MaxListLimit are capped.
func (s *JobService) List(ctx context.Context, limit int) (model.JobList, error) {
	return s.store.Job().List(ctx, nil, store.NewJobQueryOptions().
		WithSortOrder(store.SortByCreatedTime).
		WithLimit(s.limit(limit)))
}

// ListLatest returns the most recent terminal job of every repository.
func (s *JobService) ListLatest(ctx context.Context, limit int) (model.JobList, error) {
	return s.store.Job().ListUnique(ctx, s.limit(limit))
}

// LatestByRepository is ListLatest without limit: one job for every repository ever built.
func (s *JobService) LatestByRepository(ctx context.Context) (model.JobList, error) {
	return s.store.Job().ListUnique(ctx, 0)
}

// HasActiveJob reports whether url has a job still QUEUED or RUNNING.
func (s *JobService) HasActiveJob(ctx context.Context, url string) (bool, error) {
	jobs, err := s.store.Job().List(ctx,
		store.NewJobQueryFilter().ByRepositoryURL(url).ByStatus(model.JobStatusQueued, model.JobStatusRunning),
		store.NewJobQueryOptions().WithLimit(1))
	if err != nil {
		return false, err
	}
	return len(jobs) > 0, nil
}

func (s *JobService) UpdateStatus(ctx context.Context, id uuid.UUID, update model.JobUpdate) (*model.Job, error) {
	if update.CommitHash != nil && !builder.IsCommitHash(*update.CommitHash) {
		return nil, NewErrInvalidCommitHash(*update.CommitHash)
	}

	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	job, err := s.store.Job().UpdateStatus(ctx, id, update)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRecordNotFound):
			return nil, NewErrJobNotFound(id)
		case errors.Is(err, store.ErrInvalidTransition):
			return nil, NewErrInvalidStatusTransition(id, string(update.Status))
		case errors.Is(err, store.ErrCommitHashConflict):
			return nil, NewErrCommitHashConflict(id, *update.CommitHash)
		default:
			s.log.Errorw("failed to update job status", "job_id", id, "status", update.Status, "error", err)
			return nil, err
		}
	}

	if before.Status != job.Status {
		metrics.IncreaseJobStatusTransitionMetric(string(job.Status))
		s.log.Infow("job status changed", "job_id", id, "from", before.Status, "to", job.Status, "commit_hash", job.CommitHash)
	}
	return job, nil
}

func (s *JobService) limit(limit int) int {
	if limit <= 0 {
		return s.listLimit
	}
	return min(limit, MaxListLimit)
}
