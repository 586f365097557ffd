package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	Artifact() Artifact
	Close() error
}

type DataStore struct {
	db       *gorm.DB
	job      Job
	artifact Artifact
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		job:      NewJobStore(db),
		artifact: NewArtifactStore(db),
		db:       db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Artifact() Artifact {
	return s.artifact
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
