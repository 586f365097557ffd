package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/build-orchestrator/internal/store/model"
	"gorm.io/gorm"
)

type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	ListUnique(ctx context.Context, limit int) (model.JobList, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update model.JobUpdate) (*model.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

// Create inserts a job. A zero id is replaced with a new uuid.
func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = model.JobStatusQueued
	}
	if err := s.getDB(ctx).WithContext(ctx).Create(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var job model.Job
	if err := s.getDB(ctx).WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobs model.JobList
	tx := s.getDB(ctx).WithContext(ctx)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Model(&jobs).Find(&jobs).Error; err != nil {
		return nil, err
	}

	return jobs, nil
}

// ListUnique returns, for every repository, its most recently created terminal job.
// Jobs still QUEUED or RUNNING are never part of the result. The list is ordered newest first;
// a positive limit truncates it.
func (s *JobStore) ListUnique(ctx context.Context, limit int) (model.JobList, error) {
	terminal := []model.JobStatus{model.JobStatusSucceeded, model.JobStatusFailed}
	db := s.getDB(ctx).WithContext(ctx)

	latest := db.Table("jobs AS latest").
		Select("MAX(latest.created_at)").
		Where("latest.repository_url = jobs.repository_url AND latest.status IN ?", terminal)

	var candidates model.JobList
	err := db.Model(&model.Job{}).
		Where("status IN ?", terminal).
		Where("created_at = (?)", latest).
		Order("created_at DESC").
		Order("id").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	// two jobs of the same repository can share a timestamp; keep the first one
	seen := make(map[string]struct{}, len(candidates))
	jobs := make(model.JobList, 0, len(candidates))
	for _, j := range candidates {
		if _, ok := seen[j.RepositoryURL]; ok {
			continue
		}
		seen[j.RepositoryURL] = struct{}{}
		jobs = append(jobs, j)
		if limit > 0 && len(jobs) == limit {
			break
		}
	}

	return jobs, nil
}

// UpdateStatus moves a job to update.Status in a single conditional statement.
// The row only changes if its current status is allowed to reach the target and its commit hash
// is either unset or equal to the reported one. Repeating the update that produced the current
// state is a no-op that returns the job unchanged.
func (s *JobStore) UpdateStatus(ctx context.Context, id uuid.UUID, update model.JobUpdate) (*model.Job, error) {
	if !update.Status.IsValid() {
		return nil, ErrInvalidTransition
	}

	if allowed := update.Status.AllowedFrom(); len(allowed) > 0 {
		values := map[string]any{
			"status":     update.Status,
			"updated_at": time.Now(),
		}
		if update.StatusInfo != nil {
			values["status_info"] = *update.StatusInfo
		}
		if update.ExitCode != nil {
			values["exit_code"] = *update.ExitCode
		}

		tx := s.getDB(ctx).WithContext(ctx).Model(&model.Job{}).
			Where("id = ?", id).
			Where("status IN ?", allowed)
		if update.CommitHash != nil {
			values["commit_hash"] = gorm.Expr("COALESCE(commit_hash, ?)", *update.CommitHash)
			tx = tx.Where("(commit_hash IS NULL OR commit_hash = ?)", *update.CommitHash)
		}

		result := tx.Updates(values)
		if result.Error != nil {
			return nil, fmt.Errorf("updating job status: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			return s.Get(ctx, id)
		}
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Status != update.Status && !model.CanTransition(current.Status, update.Status) {
		return nil, ErrInvalidTransition
	}
	if update.CommitHash != nil && current.CommitHash != nil && *current.CommitHash != *update.CommitHash {
		return nil, ErrCommitHashConflict
	}
	if current.Status == update.Status {
		return current, nil
	}

	// the row moved between the update and the read
	return nil, ErrInvalidTransition
}

func (s *JobStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.getDB(ctx).WithContext(ctx).Delete(&model.Job{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
