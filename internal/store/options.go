package store

import (
	"github.com/kubev2v/build-orchestrator/internal/store/model"
	"gorm.io/gorm"
)

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByID
	SortByUpdatedTime
	SortByCreatedTime
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *JobQueryFilter) ByRepositoryURL(url string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("repository_url = ?", url)
	})
	return qf
}

func (qf *JobQueryFilter) ByCommitHash(hash string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("commit_hash = ?", hash)
	})
	return qf
}

func (qf *JobQueryFilter) ByStatus(statuses ...model.JobStatus) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return qf
}

// Terminal keeps only the jobs that reached SUCCEEDED or FAILED.
func (qf *JobQueryFilter) Terminal() *JobQueryFilter {
	return qf.ByStatus(model.JobStatusSucceeded, model.JobStatusFailed)
}

type JobQueryOptions BaseQuerier

func NewJobQueryOptions() *JobQueryOptions {
	return &JobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

// WithSortOrder orders newest first for time based orders.
func (o *JobQueryOptions) WithSortOrder(sort SortOrder) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByID:
			return tx.Order("id")
		case SortByUpdatedTime:
			return tx.Order("updated_at DESC").Order("id")
		case SortByCreatedTime:
			return tx.Order("created_at DESC").Order("id")
		default:
			return tx
		}
	})
	return o
}

func (o *JobQueryOptions) WithLimit(limit int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit)
	})
	return o
}

type ArtifactQueryFilter BaseQuerier

func NewArtifactQueryFilter() *ArtifactQueryFilter {
	return &ArtifactQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *ArtifactQueryFilter) ByRepositoryURL(url string) *ArtifactQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("repository_url = ?", url)
	})
	return qf
}

func (qf *ArtifactQueryFilter) ByCommitHash(hash string) *ArtifactQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("commit_hash = ?", hash)
	})
	return qf
}
