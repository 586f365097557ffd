package model

import (
	"time"

	"github.com/google/uuid"
)

// Artifact is a file produced by a successful build, linked to the
// (repository, commit) pair that produced it.
type Artifact struct {
	ID            uuid.UUID `gorm:"primaryKey;column:id;type:TEXT;"`
	FileName      string    `gorm:"column:file_name;not null;uniqueIndex:artifacts_repo_commit_file"`
	Path          string    `gorm:"column:path;not null"`
	CommitHash    string    `gorm:"column:commit_hash;not null;uniqueIndex:artifacts_repo_commit_file"`
	RepositoryURL string    `gorm:"column:repository_url;not null;uniqueIndex:artifacts_repo_commit_file"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

func (Artifact) TableName() string {
	return "artifacts"
}

type ArtifactList []Artifact
