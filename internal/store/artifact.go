package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kubev2v/build-orchestrator/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Artifact interface {
	// Create stores artifacts that all belong to the same repository and commit. Rows already
	// present for a file name are kept as they are and returned in place of the new ones.
	Create(ctx context.Context, artifacts model.ArtifactList) (model.ArtifactList, error)
	List(ctx context.Context, filter *ArtifactQueryFilter) (model.ArtifactList, error)
}

type ArtifactStore struct {
	db *gorm.DB
}

var _ Artifact = (*ArtifactStore)(nil)

func NewArtifactStore(db *gorm.DB) Artifact {
	return &ArtifactStore{db: db}
}

func (s *ArtifactStore) Create(ctx context.Context, artifacts model.ArtifactList) (model.ArtifactList, error) {
	if len(artifacts) == 0 {
		return model.ArtifactList{}, nil
	}

	fileNames := make([]string, 0, len(artifacts))
	for i := range artifacts {
		if artifacts[i].ID == uuid.Nil {
			artifacts[i].ID = uuid.New()
		}
		fileNames = append(fileNames, artifacts[i].FileName)
	}

	db := s.getDB(ctx).WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "repository_url"}, {Name: "commit_hash"}, {Name: "file_name"}},
		DoNothing: true,
	}).Create(&artifacts).Error
	if err != nil {
		return nil, fmt.Errorf("creating artifacts: %w", err)
	}

	var stored model.ArtifactList
	err = db.Model(&model.Artifact{}).
		Where("repository_url = ? AND commit_hash = ?", artifacts[0].RepositoryURL, artifacts[0].CommitHash).
		Where("file_name IN ?", fileNames).
		Order("file_name").
		Find(&stored).Error
	if err != nil {
		return nil, err
	}

	return stored, nil
}

func (s *ArtifactStore) List(ctx context.Context, filter *ArtifactQueryFilter) (model.ArtifactList, error) {
	var artifacts model.ArtifactList
	tx := s.getDB(ctx).WithContext(ctx)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Model(&artifacts).Order("created_at").Order("file_name").Find(&artifacts).Error; err != nil {
		return nil, err
	}

	return artifacts, nil
}

func (s *ArtifactStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
